package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sweetpotato0/modelgate/pkg/logging"
	"github.com/sweetpotato0/modelgate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrTransport marks connection-level failures reaching a vendor.
var ErrTransport = errors.New("provider transport failure")

// HTTPError is a non-2xx vendor response. The body is retained for
// diagnostics.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// DefaultCallTimeout bounds a provider invocation when none is configured.
const DefaultCallTimeout = 120 * time.Second

// Call is one outbound vendor invocation.
type Call struct {
	Provider string
	Endpoint string
	Headers  http.Header
	Payload  []byte
}

// Client performs vendor HTTP calls with a per-call deadline and duration
// recording. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a provider client. A zero timeout selects
// DefaultCallTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		http:    &http.Client{},
		timeout: timeout,
	}
}

// Do performs a non-streaming invocation and returns the materialized body.
func (c *Client) Do(ctx context.Context, call Call) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, span, start, err := c.send(ctx, call, false)
	if err != nil {
		telemetry.End(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("read provider response: %w: %v", ErrTransport, err)
		telemetry.End(span, err)
		return nil, err
	}
	c.finish(span, call, start, resp.StatusCode, nil)
	return body, nil
}

// Stream performs a streaming invocation and returns the live body. The
// returned reader is bounded by the per-call deadline; closing it releases
// the connection.
func (c *Client) Stream(ctx context.Context, call Call) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	resp, span, start, err := c.send(ctx, call, true)
	if err != nil {
		cancel()
		telemetry.End(span, err)
		return nil, err
	}
	c.finish(span, call, start, resp.StatusCode, nil)
	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (c *Client) send(ctx context.Context, call Call, streaming bool) (*http.Response, trace.Span, time.Time, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "provider.invoke",
		trace.WithAttributes(
			attribute.String("provider.id", call.Provider),
			attribute.Bool("provider.streaming", streaming),
		))
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.Endpoint, bytes.NewReader(call.Payload))
	if err != nil {
		return nil, span, start, fmt.Errorf("build provider request: %w", err)
	}
	for k, vals := range call.Headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, span, start, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		resp.Body.Close()
		httpErr := &HTTPError{Status: resp.StatusCode, Body: string(body)}
		c.finish(span, call, start, resp.StatusCode, httpErr)
		return nil, nil, start, httpErr
	}
	return resp, span, start, nil
}

func (c *Client) finish(span trace.Span, call Call, start time.Time, status int, err error) {
	duration := time.Since(start)
	if span != nil {
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("provider.duration_ms", duration.Milliseconds()),
		)
	}
	telemetry.End(span, err)
	logging.WithComponent("provider").Info("provider call",
		"provider", call.Provider,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"error", err,
	)
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
