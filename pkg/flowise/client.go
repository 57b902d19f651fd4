// Package flowise is a client for the Flowise prediction API, the external
// engine that performs posting analysis and response generation. It adds
// retries with backoff, per-call timeouts, and a circuit breaker around the
// raw HTTP calls.
package flowise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

var ErrCircuitOpen = errors.New("flowise circuit open")

// StatusError is a non-2xx reply from the prediction endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("flowise returned status %d: %s", e.Code, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsTransient classifies an error from the client as retryable. Timeouts,
// connection failures, 429 and 5xx replies are transient; everything else
// (auth failures, malformed requests) is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// PredictResult is a typed representation of a prediction reply.
type PredictResult struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw"`
	Meta map[string]any  `json:"meta,omitempty"`
}

// Client wraps the Flowise HTTP API and adds retries, timeout, and circuit breaker.
type Client struct {
	cfg    Config
	client *http.Client

	// simple circuit breaker state
	failures  int32
	openUntil int64 // unix nano
	closed    int32 // atomic flag for Close()
}

// NewClient creates a new Flowise client wrapper.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{cfg: cfg, client: httpClient}
	logger.Info("flowise: NewClient created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return c, nil
}

func NewDefaultClient(cfg Config) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return NewClient(cfg, defaultClient)
}

// package-level logger for pkg/flowise; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/flowise. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}

	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}

	// attempt half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

// Close releases idle connections on the underlying HTTP transport when
// supported. Close is idempotent and safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
		}
	}
	return nil
}

// Health pings the Flowise instance.
func (c *Client) Health(ctx context.Context) error {
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/ping", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordFailure()
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	atomic.StoreInt32(&c.failures, 0)
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// Predict posts input to a chatflow and collects the reply. The input is
// serialized to JSON and wrapped in the "question" field the prediction
// endpoint expects. Transient failures are retried with backoff up to the
// configured attempt ceiling; permanent failures return immediately.
func (c *Client) Predict(ctx context.Context, flowID string, input any) (PredictResult, error) {
	var empty PredictResult
	if flowID == "" {
		return empty, fmt.Errorf("flow id is empty")
	}
	if c.isCircuitOpen() {
		return empty, ErrCircuitOpen
	}

	question, err := json.Marshal(input)
	if err != nil {
		return empty, fmt.Errorf("encode prediction input: %w", err)
	}
	payload, err := json.Marshal(map[string]string{"question": string(question)})
	if err != nil {
		return empty, fmt.Errorf("encode prediction payload: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/prediction/" + flowID

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		ctxReq, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		start := time.Now()
		res, err := c.predictOnce(ctxReq, endpoint, payload)
		cancel()

		if err == nil {
			atomic.StoreInt32(&c.failures, 0)
			res.Meta = map[string]any{"flow_id": flowID, "latency_ms": time.Since(start).Milliseconds()}
			return res, nil
		}

		lastErr = err
		c.recordFailure()

		if !IsTransient(err) {
			return empty, fmt.Errorf("prediction failed: %w", err)
		}
		if ctx.Err() != nil {
			return empty, ctx.Err()
		}

		// exponential backoff: base, 2x, 4x, ...
		time.Sleep(c.cfg.Backoff << attempt)
		if c.isCircuitOpen() {
			return empty, ErrCircuitOpen
		}
	}

	return empty, fmt.Errorf("prediction failed after retries: %w", lastErr)
}

func (c *Client) predictOnce(ctx context.Context, endpoint string, payload []byte) (PredictResult, error) {
	var empty PredictResult

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return empty, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return empty, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return empty, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	// the reply is either {"text": "..."} or a bare JSON/text body
	var wrapped struct {
		Text string `json:"text"`
	}
	text := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Text != "" {
		text = wrapped.Text
	}

	return PredictResult{Text: text, Raw: body}, nil
}
