// Package transport is the HTTP seam between this module and the network.
// The client and the credential providers consume the HTTP interface and
// never touch a concrete HTTP library, which keeps every network
// interaction swappable in tests.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Response is a completed HTTP exchange. Post returns it for every status
// so the caller can classify error envelopes itself.
type Response struct {
	Status int
	Body   []byte
}

// RequestFailed reports a request that produced no usable response: either
// the transport itself failed (Err set) or, for Get and Put, the server
// answered outside the 2xx range (Status and Body set).
type RequestFailed struct {
	URL    string
	Status int
	Body   []byte
	Err    error
}

func (e *RequestFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.Status)
}

func (e *RequestFailed) Unwrap() error {
	return e.Err
}

// HTTP is the transport capability. Get and Put fail with RequestFailed on
// any non-2xx status. Post reports transport-level failures only and hands
// back the response otherwise, whatever its status. Timeouts come from the
// context.
type HTTP interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	Put(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error)
}

// HTTPClient implements HTTP on net/http.
type HTTPClient struct {
	hc *http.Client
}

// NewHTTPClient wraps hc. Passing nil uses a zero-value http.Client, which
// shares the default transport and applies no client-wide timeout.
func NewHTTPClient(hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{hc: hc}
}

func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.fetch(ctx, http.MethodGet, url, headers)
}

func (c *HTTPClient) Put(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.fetch(ctx, http.MethodPut, url, headers)
}

func (c *HTTPClient) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &RequestFailed{URL: url, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &RequestFailed{URL: url, Err: err}
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestFailed{URL: url, Err: err}
	}
	return &Response{Status: resp.StatusCode, Body: out}, nil
}

func (c *HTTPClient) fetch(ctx context.Context, method, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &RequestFailed{URL: url, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &RequestFailed{URL: url, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestFailed{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestFailed{URL: url, Status: resp.StatusCode, Body: body}
	}
	return body, nil
}
