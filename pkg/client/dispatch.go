package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// requestOptions collects per-call adjustments to a dispatch.
type requestOptions struct {
	query   url.Values
	headers http.Header
	rawBody []byte
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

// WithQuery adds a query parameter to the request URL.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = make(url.Values)
		}
		o.query.Add(key, value)
	}
}

// WithQueryValues merges a set of query parameters into the request URL.
func WithQueryValues(values url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = make(url.Values)
		}
		for k, vs := range values {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithHeader sets a header on this request only, overriding any session
// header of the same name.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		o.headers.Set(key, value)
	}
}

// WithHeaders sets several headers on this request only.
func WithHeaders(h map[string]string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		for k, v := range h {
			o.headers.Set(k, v)
		}
	}
}

// WithRawBody sends body verbatim instead of JSON-serializing the body
// argument. No Content-Type is set; add one with WithHeader when needed.
func WithRawBody(body []byte) RequestOption {
	return func(o *requestOptions) {
		o.rawBody = body
	}
}

// Request dispatches an HTTP request and decodes the JSON response into
// out. The path may be an absolute URL or relative to the client's base
// URL; body, when non-nil, is serialized as JSON. A nil out discards the
// response; an empty or all-whitespace response body leaves out untouched.
func (c *Client) Request(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	resp, err := c.dispatch(ctx, method, path, body, false, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent || strings.TrimSpace(string(data)) == "" {
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{URL: responseURL(resp, joinURL(c.baseURL, path)), Err: err}
	}
	return nil
}

// RequestRaw dispatches an HTTP request and returns the response with its
// body left unread, for streaming large payloads or inspecting headers.
// Retries, throttling, and error handling behave exactly as in Request. The
// caller owns the response and must close its body.
func (c *Client) RequestRaw(ctx context.Context, method, path string, body any, opts ...RequestOption) (*http.Response, error) {
	return c.dispatch(ctx, method, path, body, true, opts)
}

// dispatch runs the retry loop for one logical request. On success it
// returns the response, with the body fully buffered unless stream is set.
// Error responses are consumed by the retry decision, so terminal HTTP
// failures come back as *HTTPError with the body attached.
func (c *Client) dispatch(ctx context.Context, method, path string, body any, stream bool, opts []RequestOption) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	method = strings.ToUpper(method)
	rawURL := joinURL(c.baseURL, path)
	if len(o.query) > 0 {
		rawURL = appendQuery(rawURL, o.query)
	}

	payload, contentType, err := encodePayload(body, o.rawBody)
	if err != nil {
		return nil, err
	}

	start := c.clock.Now()
	defer func() {
		ghreqRequestDuration.WithLabelValues(method).Observe(c.clock.Now().Sub(start).Seconds())
	}()

	mutating := isMutating(method)
	rt := newRetrier(c.retry, c.clock)

	var out attemptOutcome
	var lastResp *http.Response
	for {
		if mutating {
			if wait := c.throttle.reserve(c.clock.Now()); wait > 0 {
				ghreqMutationWaitSeconds.Observe(wait.Seconds())
				c.logger.Debug().
					Str("method", method).
					Str("url", rawURL).
					Dur("wait", wait).
					Msg("Delaying mutating request")
				if err := c.clock.Sleep(ctx, wait); err != nil {
					return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
				}
			}
		}

		req, err := c.newRequest(ctx, method, rawURL, payload, contentType, o.headers)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		c.logger.Debug().
			Str("method", method).
			Str("url", rawURL).
			Msg("Dispatching request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if requestCancelled(ctx, err) {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
			}
			out = attemptOutcome{Err: err}
		} else {
			// Record rate-limit headers from every response.
			if err := c.rateLimits.UpdateFromHeaders(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit headers")
			}

			if resp.StatusCode < 400 {
				ghreqRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
				if rt.attempts > 0 {
					c.logger.Info().
						Str("method", method).
						Str("url", rawURL).
						Int("attempt", rt.attempts+1).
						Msg("Request succeeded after retry")
				}
				if stream {
					return resp, nil
				}
				data, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				if err != nil {
					return nil, fmt.Errorf("read response body: %w", err)
				}
				resp.Body = io.NopCloser(bytes.NewReader(data))
				return resp, nil
			}

			data, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				c.logger.Warn().Err(readErr).
					Str("url", rawURL).
					Int("status", resp.StatusCode).
					Msg("Failed to read error response body")
			}
			out = attemptOutcome{Status: resp.StatusCode, Header: resp.Header, Body: data}
			lastResp = resp

			c.logger.Warn().
				Str("method", method).
				Str("url", rawURL).
				Int("status", resp.StatusCode).
				Msg("Request error")
		}

		decision := rt.decide(out)
		if !decision.retry {
			if decision.class != "" {
				ghreqRetryExhaustedTotal.WithLabelValues(string(decision.class)).Inc()
				c.logger.Warn().
					Str("method", method).
					Str("url", rawURL).
					Int("attempts", rt.attempts).
					Str("error_class", string(decision.class)).
					Msg("Giving up on request")
			}
			break
		}

		ghreqRetriesTotal.WithLabelValues(string(decision.class)).Inc()
		ghreqRetryWaitSeconds.WithLabelValues(string(decision.class)).Observe(decision.wait.Seconds())
		c.logger.Debug().
			Str("method", method).
			Str("url", rawURL).
			Int("attempt", rt.attempts).
			Dur("wait", decision.wait).
			Str("error_class", string(decision.class)).
			Msg("Retrying request after backoff")
		if err := c.clock.Sleep(ctx, decision.wait); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	if out.Err != nil {
		ghreqErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		ghreqRequestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, &TransportError{
			Method:   method,
			URL:      rawURL,
			Attempts: rt.attempts,
			Err:      out.Err,
		}
	}

	class := classifyStatus(out.Status)
	ghreqErrorsTotal.WithLabelValues(string(class)).Inc()
	ghreqRequestsTotal.WithLabelValues(method, strconv.Itoa(out.Status)).Inc()
	return nil, &HTTPError{
		StatusCode: out.Status,
		Status:     lastResp.Status,
		URL:        responseURL(lastResp, rawURL),
		Header:     out.Header,
		Body:       out.Body,
	}
}

// newRequest builds one attempt's request. Per-call headers override
// session headers of the same name.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, payload []byte, contentType string, extra http.Header) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range extra {
		req.Header[k] = append([]string(nil), vs...)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// encodePayload prepares the request body. A raw body is sent verbatim;
// otherwise a non-nil body is JSON-serialized. Serialization failures are
// terminal, never retried.
func encodePayload(body any, rawBody []byte) ([]byte, string, error) {
	if rawBody != nil {
		return rawBody, "", nil
	}
	if body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request body: %w", err)
	}
	return data, "application/json", nil
}

// appendQuery merges query values into rawURL, preserving any query string
// already present.
func appendQuery(rawURL string, q url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	merged := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	u.RawQuery = merged.Encode()
	return u.String()
}

// responseURL returns the final URL of a response, falling back to the
// dispatched URL when the transport did not record one.
func responseURL(resp *http.Response, fallback string) string {
	if resp != nil && resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return fallback
}
