// Package monday is a GraphQL client for the Monday.com boards that mirror
// purchase orders, their detail items and vendor contacts.
package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxResponseSize = 10 * 1024 * 1024
	serviceName     = "monday"

	defaultRetryAfter = 10 * time.Second
	// minComplexity is the remaining budget below which requests wait for the reset
	minComplexity = 50
)

// Errors returned by the client
var (
	ErrMissingToken       = errors.New("monday: api token is required")
	ErrNotFound           = errors.New("monday: not found")
	ErrRateLimited        = errors.New("monday: rate limited")
	ErrComplexity         = errors.New("monday: complexity budget exhausted")
	ErrDailyLimit         = errors.New("monday: daily limit exceeded")
	ErrMinuteLimit        = errors.New("monday: minute limit exceeded")
	ErrConcurrencyLimit   = errors.New("monday: concurrency limit exceeded")
	ErrRequestFailed      = errors.New("monday: request failed")
	ErrMaxAttemptsReached = errors.New("monday: max attempts reached")
)

// GraphQLError is one entry of the errors array
type GraphQLError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// classify maps a GraphQL error message to a sentinel
func classify(messages []string) error {
	joined := strings.Join(messages, "; ")
	switch {
	case strings.Contains(joined, "ComplexityException"):
		return fmt.Errorf("%w: %s", ErrComplexity, joined)
	case strings.Contains(joined, "DAILY_LIMIT_EXCEEDED"):
		return fmt.Errorf("%w: %s", ErrDailyLimit, joined)
	case strings.Contains(joined, "Minute limit rate exceeded"):
		return fmt.Errorf("%w: %s", ErrMinuteLimit, joined)
	case strings.Contains(joined, "Concurrency limit exceeded"):
		return fmt.Errorf("%w: %s", ErrConcurrencyLimit, joined)
	}
	return fmt.Errorf("%w: %s", ErrRequestFailed, joined)
}

// isRetryable reports errors worth another attempt
func isRetryable(err error) bool {
	return errors.Is(err, ErrComplexity) || errors.Is(err, ErrMinuteLimit) ||
		errors.Is(err, ErrConcurrencyLimit) || errors.Is(err, ErrRateLimited)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data         json.RawMessage `json:"data"`
	Errors       []GraphQLError  `json:"errors"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
}

type complexity struct {
	Before          int `json:"before"`
	After           int `json:"after"`
	ResetInXSeconds int `json:"reset_in_x_seconds"`
}

// Client talks to the Monday.com v2 API
type Client struct {
	cfg        config.MondayConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *telemetry.PipelineMetrics

	// backoffUnit scales the 2^(attempt+1) connection-error backoff
	backoffUnit    time.Duration
	complexityWait time.Duration

	mu        sync.Mutex
	remaining int
	resetAt   time.Time
}

// NewClient creates a client from the monday config section
func NewClient(cfg config.MondayConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIToken == "" {
		return nil, ErrMissingToken
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 120
	}
	return &Client{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: 200 * time.Second},
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
		logger:         logger.With(zap.String("component", "monday")),
		backoffUnit:    time.Second,
		complexityWait: 60 * time.Second,
		remaining:      -1,
	}, nil
}

// SetMetrics records outbound call latency
func (c *Client) SetMetrics(m *telemetry.PipelineMetrics) {
	c.metrics = m
}

// POBoardID is the configured PO board
func (c *Client) POBoardID() int64 { return c.cfg.POBoardID }

// Execute runs a query or mutation and decodes data into out (when non-nil).
// A complexity block is added to the query so the remaining budget can be tracked.
func (c *Client) Execute(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	ctx, span := telemetry.StartClientSpan(ctx, serviceName, operation)
	defer span.End()
	start := time.Now()

	data, err := c.execute(ctx, operation, withComplexity(query), variables)
	c.metrics.RecordAPICall(ctx, serviceName, operation, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("monday: failed to decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation, query string, variables map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("monday: failed to marshal %s: %w", operation, err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := c.waitForComplexity(ctx); err != nil {
			return nil, err
		}

		data, wait, err := c.send(ctx, payload)
		if err == nil {
			return data, nil
		}
		lastErr = err
		switch {
		case wait > 0:
		case wait < 0:
			wait = c.backoff(attempt)
		case errors.Is(err, ErrComplexity):
			wait = c.complexityWait
		case isRetryable(err):
			wait = c.backoff(attempt)
		default:
			return nil, err
		}
		c.logger.Warn("Monday request failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))
		if attempt+1 < c.cfg.MaxAttempts {
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxAttemptsReached, lastErr)
}

// send posts one request. A positive wait is the delay the server asked
// for; a negative one marks a connection error.
func (c *Client) send(ctx context.Context, payload []byte) (json.RawMessage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("monday: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Version", c.cfg.APIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, -1, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, -1, fmt.Errorf("monday: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, retryAfter(resp.Header.Get("Retry-After")), ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		var gr graphQLResponse
		if json.Unmarshal(body, &gr) == nil && (len(gr.Errors) > 0 || gr.ErrorCode != "") {
			return nil, 0, classify(gr.messages())
		}
		return nil, 0, fmt.Errorf("%w: HTTP %d: %s", ErrRequestFailed, resp.StatusCode, truncate(body, 200))
	}

	var gr graphQLResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, 0, fmt.Errorf("monday: failed to parse response: %w", err)
	}
	if len(gr.Errors) > 0 || gr.ErrorCode != "" {
		return nil, 0, classify(gr.messages())
	}
	c.trackComplexity(gr.Data)
	return gr.Data, 0, nil
}

func (r graphQLResponse) messages() []string {
	msgs := make([]string, 0, len(r.Errors)+1)
	for _, e := range r.Errors {
		msg := e.Message
		if code, ok := e.Extensions["code"].(string); ok && code != "" {
			msg = code + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	if r.ErrorCode != "" {
		msgs = append(msgs, r.ErrorCode+": "+r.ErrorMessage)
	}
	return msgs
}

func (c *Client) trackComplexity(data json.RawMessage) {
	var wrapper struct {
		Complexity *complexity `json:"complexity"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil || wrapper.Complexity == nil {
		return
	}
	cx := wrapper.Complexity
	c.mu.Lock()
	c.remaining = cx.After
	c.resetAt = time.Now().Add(time.Duration(cx.ResetInXSeconds) * time.Second)
	c.mu.Unlock()
	c.logger.Debug("Monday complexity", zap.Int("before", cx.Before), zap.Int("after", cx.After))
}

// waitForComplexity pauses when the remaining budget is low
func (c *Client) waitForComplexity(ctx context.Context) error {
	c.mu.Lock()
	remaining, resetAt := c.remaining, c.resetAt
	c.mu.Unlock()
	if remaining < 0 || remaining >= minComplexity {
		return nil
	}
	wait := c.complexityWait
	if until := time.Until(resetAt); until > 0 && until < wait {
		wait = until
	}
	c.logger.Warn("Monday complexity budget low, waiting",
		zap.Int("remaining", remaining), zap.Duration("wait", wait))
	if err := sleep(ctx, wait); err != nil {
		return err
	}
	c.mu.Lock()
	c.remaining = -1
	c.mu.Unlock()
	return nil
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffUnit * time.Duration(1<<(attempt+1))
}

// withComplexity adds "complexity { ... }" right after the operation's
// opening brace unless the query already asks for it.
func withComplexity(query string) string {
	if strings.Contains(query, "complexity") {
		return query
	}
	start := strings.Index(query, "query")
	if m := strings.Index(query, "mutation"); m >= 0 && (start < 0 || m < start) {
		start = m
	}
	if start < 0 {
		start = 0
	}
	idx := strings.Index(query[start:], "{")
	if idx < 0 {
		return query
	}
	idx += start
	return query[:idx+1] + " complexity { before after reset_in_x_seconds } " + query[idx+1:]
}

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
