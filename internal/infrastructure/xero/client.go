// Package xero is an OAuth2 client for the Xero accounting API, covering the
// contacts, bills and spend money transactions the pipeline books.
package xero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxResponseSize = 5 * 1024 * 1024
	serviceName     = "xero"
	maxAttempts     = 3
	// tokenSkew refreshes the access token this long before it expires
	tokenSkew = 60 * time.Second
)

// Errors returned by the client
var (
	ErrMissingCredentials = errors.New("xero: client id, secret, refresh token and tenant id are required")
	ErrUnauthorized       = errors.New("xero: unauthorized")
	ErrRateLimited        = errors.New("xero: rate limited")
	ErrNotFound           = errors.New("xero: not found")
	ErrValidation         = errors.New("xero: validation failed")
	ErrRequestFailed      = errors.New("xero: request failed")
)

// Client talks to the Xero accounting API on behalf of one tenant
type Client struct {
	cfg        config.XeroConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *telemetry.PipelineMetrics

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewClient creates a client from the xero config section
func NewClient(cfg config.XeroConfig, logger *zap.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" || cfg.TenantID == "" {
		return nil, ErrMissingCredentials
	}
	return &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		limiter:      rate.NewLimiter(rate.Every(time.Second), 5),
		logger:       logger.With(zap.String("component", "xero")),
		refreshToken: cfg.RefreshToken,
	}, nil
}

// SetMetrics records outbound call latency
func (c *Client) SetMetrics(m *telemetry.PipelineMetrics) {
	c.metrics = m
}

// RefreshToken returns the latest refresh token. Xero rotates it on every grant.
func (c *Client) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshToken
}

func (c *Client) token(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force && c.accessToken != "" && time.Now().Add(tokenSkew).Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.refreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("xero: failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("xero: token request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token refresh HTTP %d: %s", ErrUnauthorized, resp.StatusCode, truncate(body, 200))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("xero: failed to parse token response: %w", err)
	}
	c.accessToken = tr.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.RefreshToken != "" {
		c.refreshToken = tr.RefreshToken
	}
	c.logger.Debug("Xero token refreshed", zap.Time("expires_at", c.expiresAt))
	return c.accessToken, nil
}

// call sends one API request, refreshing the token on 401 and waiting out
// 429s, for up to maxAttempts attempts.
func (c *Client) call(ctx context.Context, operation, method, path string, in, out any) error {
	ctx, span := telemetry.StartClientSpan(ctx, serviceName, operation)
	defer span.End()
	start := time.Now()
	err := c.retryOnUnauthorized(ctx, method, path, in, out)
	c.metrics.RecordAPICall(ctx, serviceName, operation, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

func (c *Client) retryOnUnauthorized(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("xero: failed to marshal request: %w", err)
		}
	}

	force := false
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		token, err := c.token(ctx, force)
		if err != nil {
			return err
		}
		force = false

		err = c.send(ctx, method, path, token, payload, out)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrUnauthorized):
			c.logger.Warn("Xero rejected token, refreshing", zap.Int("attempt", attempt))
			force = true
		case errors.Is(err, ErrRateLimited):
			c.logger.Warn("Xero rate limit hit, waiting",
				zap.Int("attempt", attempt), zap.Duration("wait", c.cfg.RateLimitWait))
			if attempt < maxAttempts {
				if err := sleep(ctx, c.cfg.RateLimitWait); err != nil {
					return err
				}
			}
		default:
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path, token string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBaseURL+path, body)
	if err != nil {
		return fmt.Errorf("xero: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Xero-tenant-id", c.cfg.TenantID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("xero: failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case http.StatusBadRequest:
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%w: %s", ErrValidation, apiErr.Message)
		}
		return fmt.Errorf("%w: %s", ErrValidation, truncate(raw, 200))
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ErrRequestFailed, resp.StatusCode, truncate(raw, 200))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("xero: failed to parse response: %w", err)
	}
	return nil
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
