/*
Package transport implements C3, the gateway's pooled outbound HTTP client.
It exposes exactly the three operations §2 assigns to C3: a buffered JSON
POST (used by C8 for synchronous agent calls), a buffered GET (used to
fetch agent-card documents), and a raw streaming POST whose response body
is handed to C7 to consume frame by frame.
*/
package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	fiberClient "github.com/gofiber/fiber/v3/client"
)

// Client is safe for concurrent use; one instance is shared by every
// agent worker and the card-resolution path.
type Client struct {
	pooled *fiberClient.Client
	stream *http.Client
}

// New builds a Client with a pooled fasthttp-backed transport for
// request/response calls and a standard net/http client for streaming.
// fasthttp (which fiber/v3/client wraps) buffers the entire response body
// before returning it, which is fine for JSON POST/GET but unusable for
// SSE: net/http's Response.Body is the one that streams chunk by chunk as
// the server flushes, so the streaming path uses it instead.
func New() *Client {
	return &Client{
		pooled: fiberClient.New(),
		stream: &http.Client{},
	}
}

// Result is the outcome of a buffered request.
type Result struct {
	Status int
	Body   []byte
}

// PostJSON sends body as a JSON POST to url with the given headers and
// returns the buffered response. It never interprets the response body;
// callers decode it per their own protocol adapter.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body []byte, timeout time.Duration) (Result, error) {
	cfg := fiberClient.Config{
		Ctx:     ctx,
		Header:  mergeHeaders(headers, map[string]string{"Content-Type": "application/json"}),
		Body:    body,
		Timeout: timeout,
	}

	resp, err := c.pooled.Post(url, cfg)
	if err != nil {
		log.Debug("outbound post failed", "url", url, "error", err)
		return Result{}, err
	}
	defer resp.Close()

	return Result{Status: resp.StatusCode(), Body: append([]byte(nil), resp.Body()...)}, nil
}

// GetCard fetches an agent-card document.
func (c *Client) GetCard(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (Result, error) {
	cfg := fiberClient.Config{Ctx: ctx, Header: headers, Timeout: timeout}

	resp, err := c.pooled.Get(url, cfg)
	if err != nil {
		return Result{}, err
	}
	defer resp.Close()

	return Result{Status: resp.StatusCode(), Body: append([]byte(nil), resp.Body()...)}, nil
}

// OpenStream issues a streaming POST and returns the live response so the
// caller (C7) can read it frame by frame. The caller owns closing the
// response body.
func (c *Client) OpenStream(ctx context.Context, url string, headers map[string]string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.stream.Do(req)
}

func mergeHeaders(sets ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}
