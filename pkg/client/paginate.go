package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Paginate returns an iterator over the items of a paginated GET listing.
// Query options apply to the first request only; pages after that are
// fetched from the server's next-page URL verbatim, which carries its own
// query string. Header options apply to every page request.
func (c *Client) Paginate(path string, opts ...RequestOption) *Iterator {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Iterator{client: c, path: path, query: o.query, headers: o.headers}
}

// Iterator lazily yields the elements of a paginated listing, following
// Link rel="next" headers until the last page. Iteration is single-pass;
// stopping early is just ceasing to call Next.
//
//	it := gh.Paginate("/repos/octocat/hello-world/issues")
//	for it.Next(ctx) {
//		var issue Issue
//		if err := it.Scan(&issue); err != nil {
//			return err
//		}
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
type Iterator struct {
	client  *Client
	path    string
	query   url.Values
	headers http.Header

	started bool
	nextURL string
	pageURL string
	items   []json.RawMessage
	pos     int
	err     error
}

// Next fetches pages as needed and advances to the next item. It returns
// false when the listing is exhausted or an error occurred; consult Err to
// tell the two apart.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for it.pos >= len(it.items) {
		if !it.fetch(ctx) {
			return false
		}
	}
	it.pos++
	return true
}

// Value returns the current item as raw JSON.
func (it *Iterator) Value() json.RawMessage {
	if it.pos == 0 || it.pos > len(it.items) {
		return nil
	}
	return it.items[it.pos-1]
}

// Scan decodes the current item into dst.
func (it *Iterator) Scan(dst any) error {
	v := it.Value()
	if v == nil {
		return fmt.Errorf("no current item")
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return &DecodeError{URL: it.pageURL, Err: err}
	}
	return nil
}

// Err returns the first error encountered during iteration.
func (it *Iterator) Err() error {
	return it.err
}

// fetch loads the next page into it.items. It returns false when there are
// no more pages or fetching failed.
func (it *Iterator) fetch(ctx context.Context) bool {
	target, opts, ok := it.nextTarget()
	if !ok {
		return false
	}
	resp, err := it.client.dispatch(ctx, http.MethodGet, target, nil, false, opts)
	if err != nil {
		it.err = err
		return false
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		it.err = fmt.Errorf("read page body: %w", err)
		return false
	}
	it.pageURL = responseURL(resp, target)
	items, err := PageItems(data, it.pageURL)
	if err != nil {
		it.err = err
		return false
	}
	it.items = items
	it.pos = 0
	it.nextURL = LinkURL(resp.Header, "next")
	return true
}

// nextTarget resolves the URL and options for the next page request.
func (it *Iterator) nextTarget() (string, []RequestOption, bool) {
	var target string
	var opts []RequestOption
	switch {
	case !it.started:
		it.started = true
		target = it.path
		if len(it.query) > 0 {
			opts = append(opts, WithQueryValues(it.query))
		}
	case it.nextURL == "":
		return "", nil, false
	default:
		target = it.nextURL
	}
	if len(it.headers) > 0 {
		opts = append(opts, withHeaderValues(it.headers))
	}
	return target, opts, true
}

// PaginateRaw returns an iterator over whole pages instead of items. Each
// page has a live body the caller must close before requesting the next.
func (c *Client) PaginateRaw(path string, opts ...RequestOption) *PageIterator {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &PageIterator{
		inner: Iterator{client: c, path: path, query: o.query, headers: o.headers},
	}
}

// PageIterator yields raw page responses, following Link rel="next" headers
// until the last page.
type PageIterator struct {
	inner Iterator
	page  *http.Response
}

// Next fetches the next page. It returns false when the listing is
// exhausted or an error occurred; consult Err to tell the two apart.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.inner.err != nil {
		return false
	}
	target, opts, ok := it.inner.nextTarget()
	if !ok {
		return false
	}
	resp, err := it.inner.client.dispatch(ctx, http.MethodGet, target, nil, true, opts)
	if err != nil {
		it.inner.err = err
		return false
	}
	it.page = resp
	it.inner.nextURL = LinkURL(resp.Header, "next")
	return true
}

// Page returns the current page response.
func (it *PageIterator) Page() *http.Response {
	return it.page
}

// Err returns the first error encountered during iteration.
func (it *PageIterator) Err() error {
	return it.inner.err
}

// PageItems flattens one page body into its item list. The body must be a
// JSON array or an object with exactly one list-valued field; non-list
// fields such as total counts are ignored. PaginateRaw callers can use it
// to get the items out of a page they fetched themselves.
func PageItems(data []byte, pageURL string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &DecodeError{URL: pageURL, Err: io.ErrUnexpectedEOF}
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, &DecodeError{URL: pageURL, Err: err}
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, &DecodeError{URL: pageURL, Err: err}
		}
		var lists []json.RawMessage
		for _, v := range obj {
			if raw := bytes.TrimSpace(v); len(raw) > 0 && raw[0] == '[' {
				lists = append(lists, raw)
			}
		}
		if len(lists) != 1 {
			return nil, &PaginationShapeError{URL: pageURL, ListFields: len(lists)}
		}
		var items []json.RawMessage
		if err := json.Unmarshal(lists[0], &items); err != nil {
			return nil, &DecodeError{URL: pageURL, Err: err}
		}
		return items, nil
	default:
		return nil, &PaginationShapeError{URL: pageURL}
	}
}

// LinkURL extracts the target of the given relation ("next", "last", ...)
// from a Link header, or "" when the relation is absent.
func LinkURL(h http.Header, rel string) string {
	for _, field := range h.Values("Link") {
		for _, link := range splitLinks(field) {
			parts := strings.Split(link, ";")
			if len(parts) < 2 {
				continue
			}
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range parts[1:] {
				k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok {
					continue
				}
				if strings.EqualFold(strings.TrimSpace(k), "rel") && strings.Trim(strings.TrimSpace(v), `"`) == rel {
					return strings.Trim(target, "<>")
				}
			}
		}
	}
	return ""
}

// splitLinks splits a Link header field on entry-separating commas. A comma
// inside a <...> target is part of the URI, not an entry boundary.
func splitLinks(field string) []string {
	var links []string
	start := 0
	inTarget := false
	for i := 0; i < len(field); i++ {
		switch field[i] {
		case '<':
			inTarget = true
		case '>':
			inTarget = false
		case ',':
			if !inTarget {
				links = append(links, field[start:i])
				start = i + 1
			}
		}
	}
	return append(links, field[start:])
}

// withHeaderValues applies a prebuilt header set to one request.
func withHeaderValues(h http.Header) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		for k, vs := range h {
			o.headers[k] = append([]string(nil), vs...)
		}
	}
}
