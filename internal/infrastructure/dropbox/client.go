// Package dropbox is a small client for the Dropbox HTTP API covering the
// team-member file operations the sync pipeline needs.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// maxResponseSize limits RPC response bodies
	maxResponseSize = 10 * 1024 * 1024
	// maxDownloadSize limits downloaded documents
	maxDownloadSize = 100 * 1024 * 1024

	refreshLeadTime = 60 * time.Second
	serviceName     = "dropbox"
)

// Errors returned by the client
var (
	ErrMissingCredentials = errors.New("dropbox: app key, app secret and refresh token are required")
	ErrMemberNotFound     = errors.New("dropbox: team member not found")
	ErrNamespaceNotFound  = errors.New("dropbox: namespace not found")
	ErrUnauthorized       = errors.New("dropbox: unauthorized")
	ErrRateLimited        = errors.New("dropbox: rate limited")
	ErrNotFound           = errors.New("dropbox: path not found")
	ErrRequestFailed      = errors.New("dropbox: request failed")
)

// Client calls the Dropbox API as one team member inside one namespace
type Client struct {
	cfg        config.DropboxConfig
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *telemetry.PipelineMetrics

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	memberID    string
	namespaceID string

	stopOnce sync.Once
	stop     chan struct{}
}

// NewClient creates a client. Call Connect before use.
func NewClient(cfg config.DropboxConfig, logger *zap.Logger) (*Client, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" || cfg.RefreshToken == "" {
		return nil, ErrMissingCredentials
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With(zap.String("component", "dropbox")),
		stop:       make(chan struct{}),
	}, nil
}

// SetMetrics records outbound call latency
func (c *Client) SetMetrics(m *telemetry.PipelineMetrics) {
	c.metrics = m
}

// SetHTTPClient replaces the transport client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Connect fetches an access token, resolves the configured team member and
// namespace, and starts the background token refresher.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.refreshToken(ctx); err != nil {
		return err
	}
	if c.cfg.MemberEmail != "" {
		id, err := c.lookupMember(ctx, c.cfg.MemberEmail)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.memberID = id
		c.mu.Unlock()
	}
	if c.cfg.NamespaceName != "" {
		id, err := c.lookupNamespace(ctx, c.cfg.NamespaceName)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.namespaceID = id
		c.mu.Unlock()
	}
	c.logger.Info("Connected to Dropbox",
		zap.String("member_id", c.MemberID()),
		zap.String("namespace_id", c.namespaceID))
	go c.refreshLoop()
	return nil
}

// Stop ends the token refresher
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// MemberID is the team member the client acts as. It also keys the cursor store.
func (c *Client) MemberID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.memberID == "" {
		return "default"
	}
	return c.memberID
}

func (c *Client) refreshLoop() {
	for {
		c.mu.Lock()
		wait := time.Until(c.expiresAt) - refreshLeadTime
		c.mu.Unlock()
		if wait < time.Second {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-c.stop:
			timer.Stop()
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := c.refreshToken(ctx); err != nil {
				c.logger.Error("Failed to refresh Dropbox access token", zap.Error(err))
			}
			cancel()
		}
	}
}

// refreshToken runs the OAuth refresh-token grant
func (c *Client) refreshToken(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.cfg.RefreshToken)
	form.Set("client_id", c.cfg.AppKey)
	form.Set("client_secret", c.cfg.AppSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("dropbox: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: token refresh: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("dropbox: failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token refresh returned HTTP %d: %s", ErrUnauthorized, resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("dropbox: failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 4 * 3600
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.mu.Unlock()
	c.logger.Debug("Dropbox access token refreshed", zap.Int("expires_in", tok.ExpiresIn))
	return nil
}

// token returns a valid access token, refreshing it when it has expired
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok, exp := c.accessToken, c.expiresAt
	c.mu.Unlock()
	if tok != "" && time.Now().Before(exp) {
		return tok, nil
	}
	if err := c.refreshToken(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, nil
}

func (c *Client) lookupMember(ctx context.Context, email string) (string, error) {
	arg := map[string]any{
		"members": []map[string]string{{".tag": "email", "email": email}},
	}
	var infos []memberInfo
	if err := c.rpc(ctx, "team/members/get_info", arg, &infos, false); err != nil {
		return "", err
	}
	for _, m := range infos {
		if m.Tag == "member_info" && m.Profile.TeamMemberID != "" {
			return m.Profile.TeamMemberID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMemberNotFound, email)
}

func (c *Client) lookupNamespace(ctx context.Context, name string) (string, error) {
	var page namespaceList
	if err := c.rpc(ctx, "team/namespaces/list", map[string]any{"limit": 1000}, &page, false); err != nil {
		return "", err
	}
	for {
		for _, ns := range page.Namespaces {
			if ns.Name == name {
				return ns.NamespaceID, nil
			}
		}
		if !page.HasMore {
			break
		}
		cursor := page.Cursor
		page = namespaceList{}
		if err := c.rpc(ctx, "team/namespaces/list/continue", map[string]string{"cursor": cursor}, &page, false); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNamespaceNotFound, name)
}

// rpc posts a JSON argument to an RPC endpoint and decodes the JSON result.
// asUser adds the member and path root headers.
func (c *Client) rpc(ctx context.Context, endpoint string, arg, out any, asUser bool) error {
	payload, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("dropbox: failed to marshal %s args: %w", endpoint, err)
	}
	body, err := c.do(ctx, endpoint, func(ctx context.Context, token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/2/"+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req, token, asUser)
		return req, nil
	}, maxResponseSize)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("dropbox: failed to parse %s response: %w", endpoint, err)
	}
	return nil
}

// do sends the request built by build, retrying once after a forced token
// refresh on 401 and once after the Retry-After delay on 429.
func (c *Client) do(ctx context.Context, endpoint string, build func(context.Context, string) (*http.Request, error), limit int64) ([]byte, error) {
	ctx, span := telemetry.StartClientSpan(ctx, serviceName, endpoint)
	defer span.End()
	start := time.Now()

	var lastErr error
attempts:
	for attempt := 0; attempt < 3; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			lastErr = err
			break
		}
		req, err := build(ctx, token)
		if err != nil {
			lastErr = fmt.Errorf("dropbox: failed to create request: %w", err)
			break
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %s: %v", ErrRequestFailed, endpoint, err)
			break
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, limit))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("dropbox: failed to read %s response: %w", endpoint, readErr)
			break
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			c.metrics.RecordAPICall(ctx, serviceName, endpoint, time.Since(start), nil)
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized:
			lastErr = fmt.Errorf("%w: %s", ErrUnauthorized, endpoint)
			c.mu.Lock()
			c.accessToken = ""
			c.mu.Unlock()
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
			wait := retryAfter(resp.Header.Get("Retry-After"), 5*time.Second)
			c.logger.Warn("Dropbox rate limit hit", zap.String("endpoint", endpoint), zap.Duration("wait", wait))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attempts
			case <-time.After(wait):
			}
			continue
		case resp.StatusCode == http.StatusConflict:
			var apiErr apiError
			_ = json.Unmarshal(body, &apiErr)
			if apiErr.is("path/not_found") || apiErr.is("path_lookup/not_found") {
				lastErr = fmt.Errorf("%w: %s", ErrNotFound, apiErr.ErrorSummary)
			} else {
				lastErr = fmt.Errorf("%w: %s: %s", ErrRequestFailed, endpoint, apiErr.ErrorSummary)
			}
		default:
			lastErr = fmt.Errorf("%w: %s: HTTP %d: %s", ErrRequestFailed, endpoint, resp.StatusCode, truncate(body, 200))
		}
		break
	}
	telemetry.RecordError(span, lastErr)
	c.metrics.RecordAPICall(ctx, serviceName, endpoint, time.Since(start), lastErr)
	return nil, lastErr
}

func (c *Client) setHeaders(req *http.Request, token string, asUser bool) {
	req.Header.Set("Authorization", "Bearer "+token)
	if !asUser {
		return
	}
	c.mu.Lock()
	memberID, namespaceID := c.memberID, c.namespaceID
	c.mu.Unlock()
	if memberID != "" {
		req.Header.Set("Dropbox-API-Select-User", memberID)
	}
	if namespaceID != "" {
		root, _ := json.Marshal(map[string]string{".tag": "namespace_id", "namespace_id": namespaceID})
		req.Header.Set("Dropbox-API-Path-Root", string(root))
	}
}

func retryAfter(v string, def time.Duration) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
