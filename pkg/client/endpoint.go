package client

import (
	"context"
	"net/http"
)

// Endpoint is a URL-building façade bound to a client. Call sites hold a
// resolved URL once and issue requests against it or its children instead
// of concatenating path strings at every call.
//
//	repo := gh.Endpoint("/repos/octocat/hello-world")
//	issues := repo.Child("issues")
//	err := issues.Get(ctx, &out)
type Endpoint struct {
	client *Client
	url    string
}

// Endpoint resolves path against the client's base URL and returns an
// endpoint bound to it. An absolute URL is used verbatim.
func (c *Client) Endpoint(path string) Endpoint {
	return Endpoint{client: c, url: joinURL(c.baseURL, path)}
}

// URL returns the endpoint's resolved URL.
func (e Endpoint) URL() string {
	return e.url
}

// Child returns a new endpoint for a sub-path of this one.
func (e Endpoint) Child(segment string) Endpoint {
	return Endpoint{client: e.client, url: joinURL(e.url, segment)}
}

// Request dispatches a request to the endpoint; see Client.Request.
func (e Endpoint) Request(ctx context.Context, method string, body, out any, opts ...RequestOption) error {
	return e.client.Request(ctx, method, e.url, body, out, opts...)
}

// RequestRaw dispatches a request to the endpoint and returns the raw
// response; see Client.RequestRaw.
func (e Endpoint) RequestRaw(ctx context.Context, method string, body any, opts ...RequestOption) (*http.Response, error) {
	return e.client.RequestRaw(ctx, method, e.url, body, opts...)
}

// Get issues a GET request to the endpoint.
func (e Endpoint) Get(ctx context.Context, out any, opts ...RequestOption) error {
	return e.client.Get(ctx, e.url, out, opts...)
}

// Post issues a POST request to the endpoint.
func (e Endpoint) Post(ctx context.Context, body, out any, opts ...RequestOption) error {
	return e.client.Post(ctx, e.url, body, out, opts...)
}

// Put issues a PUT request to the endpoint.
func (e Endpoint) Put(ctx context.Context, body, out any, opts ...RequestOption) error {
	return e.client.Put(ctx, e.url, body, out, opts...)
}

// Patch issues a PATCH request to the endpoint.
func (e Endpoint) Patch(ctx context.Context, body, out any, opts ...RequestOption) error {
	return e.client.Patch(ctx, e.url, body, out, opts...)
}

// Delete issues a DELETE request to the endpoint.
func (e Endpoint) Delete(ctx context.Context, out any, opts ...RequestOption) error {
	return e.client.Delete(ctx, e.url, out, opts...)
}

// Paginate iterates over the items of the endpoint's paginated listing.
func (e Endpoint) Paginate(opts ...RequestOption) *Iterator {
	return e.client.Paginate(e.url, opts...)
}

// PaginateRaw iterates over the endpoint's raw listing pages.
func (e Endpoint) PaginateRaw(opts ...RequestOption) *PageIterator {
	return e.client.PaginateRaw(e.url, opts...)
}
