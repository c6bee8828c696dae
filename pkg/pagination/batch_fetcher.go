package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jwodder/ghreq/pkg/client"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	// GitHub's secondary rate limits punish aggressive concurrency, so the
	// default stays low.
	MaxConcurrency int

	// Timeout bounds each page fetch. Zero applies no per-page bound.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// PageFetcher fetches one numbered page of a listing. Implementations
// return the page's items and, when the server discloses it, the total page
// count (0 when unknown).
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, page int) (items []json.RawMessage, totalPages int, err error)
}

// ClientFetcher adapts a ghreq client to the PageFetcher interface using
// the standard page/per_page query parameters.
type ClientFetcher struct {
	Client *client.Client

	// PerPage is the page size requested from the server. Zero leaves the
	// server default.
	PerPage int
}

// FetchPage fetches a single numbered page. The total page count is read
// from the Link rel="last" header of the response.
func (f *ClientFetcher) FetchPage(ctx context.Context, path string, page int) ([]json.RawMessage, int, error) {
	opts := []client.RequestOption{client.WithQuery("page", strconv.Itoa(page))}
	if f.PerPage > 0 {
		opts = append(opts, client.WithQuery("per_page", strconv.Itoa(f.PerPage)))
	}
	resp, err := f.Client.RequestRaw(ctx, http.MethodGet, path, nil, opts...)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read page %d of %s: %w", page, path, err)
	}
	items, err := client.PageItems(data, path)
	if err != nil {
		return nil, 0, err
	}
	return items, lastPage(resp.Header), nil
}

// lastPage extracts the final page number from a Link rel="last" header.
func lastPage(h http.Header) int {
	target := client.LinkURL(h, "last")
	if target == "" {
		return 0
	}
	u, err := url.Parse(target)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil {
		return 0
	}
	return n
}

// BatchFetcher fetches every page of a listing in parallel once the first
// response discloses the page count.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches all pages of path and returns their items flattened in
// page order. The first fetch error aborts the outstanding page requests.
func (bf *BatchFetcher) FetchAll(ctx context.Context, path string) ([]json.RawMessage, error) {
	start := time.Now()

	first, totalPages, err := bf.fetcher.FetchPage(ctx, path, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	if totalPages <= 1 {
		log.Debug().
			Str("path", path).
			Int("items", len(first)).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return first, nil
	}

	log.Info().
		Str("path", path).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	// Page 1 is already in hand; every worker writes a distinct index.
	pages := make([][]json.RawMessage, totalPages+1)
	pages[1] = first

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)
	for page := 2; page <= totalPages; page++ {
		page := page
		g.Go(func() error {
			pageCtx := gctx
			if bf.config.Timeout > 0 {
				var cancel context.CancelFunc
				pageCtx, cancel = context.WithTimeout(gctx, bf.config.Timeout)
				defer cancel()
			}
			items, _, err := bf.fetcher.FetchPage(pageCtx, path, page)
			if err != nil {
				return fmt.Errorf("fetch page %d: %w", page, err)
			}
			pages[page] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []json.RawMessage
	for _, p := range pages {
		items = append(items, p...)
	}

	log.Info().
		Str("path", path).
		Int("pages", totalPages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return items, nil
}
