// Package pagination provides parallel batch fetching for page-numbered
// GitHub listings.
//
// GitHub listings expose page numbers through the Link rel="last" header,
// so once the first response arrives the remaining pages can be fetched
// concurrently instead of walking rel="next" one page at a time. This
// package bounds that concurrency with an errgroup and reassembles the
// items in page order.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(
//		&pagination.ClientFetcher{Client: gh, PerPage: 100},
//		pagination.DefaultConfig(),
//	)
//	items, err := fetcher.FetchAll(ctx, "/repos/octocat/hello-world/issues")
//
// The batch fetcher:
//   - Fetches the first page to learn the total page count
//   - Fetches the remaining pages in parallel (default 4 at a time)
//   - Aborts outstanding fetches on the first error
//   - Returns all items flattened in page order
//
// For strictly sequential, memory-lazy traversal use client.Paginate
// instead.
package pagination
