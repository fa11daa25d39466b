package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hotelhub/metrics"
)

// TokenSource is the part of TokenBroker the executor depends on.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Executor sends authenticated requests to the upstream API. A request
// rejected with 401 is replayed once with a fresh token.
type Executor struct {
	client  *http.Client
	tokens  TokenSource
	baseURL string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// ExecutorOption customises an Executor.
type ExecutorOption func(*Executor)

func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

// WithRateLimit throttles every attempt to rps with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) ExecutorOption {
	return func(e *Executor) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor builds an executor for the API rooted at baseURL.
func NewExecutor(baseURL string, tokens TokenSource, opts ...ExecutorOption) *Executor {
	e := &Executor{
		client:  &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute calls method on path with body encoded as JSON and returns the
// envelope result. Transport errors and non-401 failures are never retried.
func (e *Executor) Execute(ctx context.Context, path, method string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("upstream: encode request: %w", err)
		}
	}

	status, respBody, err := e.attempt(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		e.logger.Warn("upstream rejected token, retrying with a fresh one",
			zap.String("method", method), zap.String("path", path))
		if err := e.tokens.Invalidate(ctx); err != nil {
			return nil, fmt.Errorf("upstream: invalidate token: %w", err)
		}
		metrics.UpstreamRetries.Inc()

		status, respBody, err = e.attempt(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status >= 300 {
		return nil, &HTTPError{Status: status, Body: string(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("upstream: decode envelope: %w", err)
	}
	if !env.IsSuccess {
		return nil, &APIError{Message: env.Message}
	}
	return env.Result, nil
}

func (e *Executor) attempt(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("upstream: throttle: %w", err)
		}
	}

	token, err := e.tokens.AccessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := e.client.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("transport_error").Inc()
		return 0, nil, fmt.Errorf("upstream: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(metrics.StatusClass(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("upstream: read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// DecodeResult unmarshals an envelope result into T.
func DecodeResult[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("upstream: decode result: %w", err)
	}
	return out, nil
}
