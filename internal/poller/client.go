package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxStatusBodySize = 64 << 10 // 64KB

// a poller talks to a single installer, so the pool stays small
const (
	defaultMaxIdleConns        = 4
	defaultMaxIdleConnsPerHost = 2
	defaultIdleConnTimeout     = 60 * time.Second
)

var (
	// ErrNotFound is returned when the status resource does not exist.
	// It is never retried.
	ErrNotFound = errors.New("status resource not found")

	// ErrUnexpectedStatus is returned for any non-200, non-404 response.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrMalformedResponse is returned when the body is not a status document.
	ErrMalformedResponse = errors.New("malformed status response")
)

// Document is the JSON body served at /status/{id}.
type Document struct {
	Status      string `json:"status"`
	ClientToken string `json:"client_token"`
	IPAddress   string `json:"ip_address"`
	Error       string `json:"error"`
}

// Reply is the outcome of one status request.
type Reply struct {
	// Document is the decoded body. Valid only when Err is nil.
	Document Document
	// StatusCode is zero if the request failed before a response arrived.
	StatusCode int
	Latency    time.Duration
	// Err wraps ErrNotFound, ErrUnexpectedStatus or ErrMalformedResponse,
	// or carries the transport error.
	Err error
}

// Client fetches and decodes install status documents.
//
// Each request gets its own timeout via context.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client].
//
// If httpClient is nil, a client with a small keep-alive pool is created.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		}
	}
	return &Client{httpClient: httpClient}
}

// FetchStatus requests the status document at url and decodes it.
//
// A non-positive timeout means the request is bounded only by ctx. Bodies
// larger than 64KB are truncated and fail to decode.
func (c *Client) FetchStatus(ctx context.Context, url string, timeout time.Duration) Reply {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	code, body, err := c.get(ctx, url)
	reply := Reply{StatusCode: code, Latency: time.Since(start)}

	switch {
	case err != nil:
		reply.Err = err
	case code == http.StatusNotFound:
		reply.Err = fmt.Errorf("%w: %s", ErrNotFound, url)
	case code != http.StatusOK:
		reply.Err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	default:
		reply.Document, reply.Err = decodeDocument(body)
	}
	return reply
}

func (c *Client) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// only 200 bodies are decoded
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatusBodySize))
		return resp.StatusCode, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func decodeDocument(body []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc.Status == "" {
		return Document{}, fmt.Errorf("%w: missing status field", ErrMalformedResponse)
	}
	return doc, nil
}

// Close closes idle pooled connections. Safe on a nil receiver.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
