package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const maxErrorBody = 256

// StatusClient reads a relay's /healthz and /matches endpoints. Transport
// errors and 5xx gateway answers are retried with doubling backoff.
type StatusClient struct {
	base     string
	http     *fasthttp.Client
	timeout  time.Duration
	attempts int
}

type StatusClientOption func(*StatusClient)

// WithStatusTimeout bounds each request when ctx has no earlier deadline.
func WithStatusTimeout(d time.Duration) StatusClientOption {
	return func(c *StatusClient) { c.timeout = d }
}

// WithStatusRetry sets the total number of attempts per request.
func WithStatusRetry(n int) StatusClientOption {
	return func(c *StatusClient) { c.attempts = n }
}

// WithDialer routes requests through dial, e.g. an in-memory listener.
func WithDialer(dial func(addr string) (net.Conn, error)) StatusClientOption {
	return func(c *StatusClient) { c.http.Dial = dial }
}

func NewStatusClient(baseURL string, opts ...StatusClientOption) *StatusClient {
	c := &StatusClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			MaxConnsPerHost: 4,
		},
		timeout:  5 * time.Second,
		attempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.attempts = max(c.attempts, 1)
	return c
}

func (c *StatusClient) Health(ctx context.Context) (*Health, error) {
	h := new(Health)
	if err := c.get(ctx, "/healthz", h); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *StatusClient) Matches(ctx context.Context) ([]*MatchMeta, error) {
	var out []*MatchMeta
	if err := c.get(ctx, "/matches", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// statusError is a non-2xx answer from the relay.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relay status error: status=%d body=%s", e.code, e.body)
}

func (e *statusError) temporary() bool {
	switch e.code {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *StatusClient) get(ctx context.Context, path string, out any) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.base + path)

	var err error
	wait := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err = c.once(ctx, req, resp, out)
		if se, ok := err.(*statusError); err == nil || (ok && !se.temporary()) {
			return err
		}
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("request %s: %w", path, err)
		case <-time.After(wait):
		}
		wait = min(2*wait, 3200*time.Millisecond)
	}
	return fmt.Errorf("request %s failed: %w", path, err)
}

func (c *StatusClient) once(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, out any) error {
	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return err
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &statusError{code: code, body: string(body)}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
