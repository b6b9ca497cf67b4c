// Package restclient is the bearer-token HTTP plumbing shared by the
// service adapters. It decodes JSON bodies and turns any non-2xx
// response into a result.StatusError so classification can key off the
// status code.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/twinscape/twinscape/result"
)

const maxErrorBody = 4 << 10

// Client issues authenticated JSON requests.
type Client struct {
	httpClient *http.Client
}

// New creates a client. A nil httpClient gets a sane default.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// Request describes one JSON call.
type Request struct {
	Method  string
	URL     string
	Token   string
	Query   url.Values
	Headers map[string]string
	Body    interface{}
}

// DoJSON performs req and decodes the response into out when out is
// non-nil. API versions travel in req.Query and must be preserved
// exactly for wire compatibility.
func (c *Client) DoJSON(ctx context.Context, req Request, out interface{}) error {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := req.URL
	if len(req.Query) > 0 {
		u = u + "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &result.StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// DoRaw performs req and returns the raw response body, for blob reads
// where the payload is not JSON.
func (c *Client) DoRaw(ctx context.Context, req Request, payload []byte, contentType string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	u := req.URL
	if len(req.Query) > 0 {
		u = u + "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &result.StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}
	return io.ReadAll(resp.Body)
}
