package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ListFolder lists a folder. The root of the namespace is "".
func (c *Client) ListFolder(ctx context.Context, path string, recursive bool) (*ListFolderResult, error) {
	var out ListFolderResult
	arg := map[string]any{"path": path, "recursive": recursive, "include_deleted": false}
	if err := c.rpc(ctx, "files/list_folder", arg, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFolderContinue returns the next page of changes after cursor
func (c *Client) ListFolderContinue(ctx context.Context, cursor string) (*ListFolderResult, error) {
	var out ListFolderResult
	if err := c.rpc(ctx, "files/list_folder/continue", map[string]string{"cursor": cursor}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLatestCursor returns a cursor for the current state without listing
func (c *Client) GetLatestCursor(ctx context.Context, path string, recursive bool) (string, error) {
	var out struct {
		Cursor string `json:"cursor"`
	}
	arg := map[string]any{"path": path, "recursive": recursive}
	if err := c.rpc(ctx, "files/list_folder/get_latest_cursor", arg, &out, true); err != nil {
		return "", err
	}
	return out.Cursor, nil
}

// Download returns the content of a file
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	arg, err := apiArg(map[string]string{"path": path})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "files/download", func(ctx context.Context, token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ContentBaseURL+"/2/files/download", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Dropbox-API-Arg", arg)
		c.setHeaders(req, token, true)
		return req, nil
	}, maxDownloadSize)
}

// GetTemporaryLink returns a four hour direct link to a file
func (c *Client) GetTemporaryLink(ctx context.Context, path string) (string, error) {
	var out TemporaryLink
	if err := c.rpc(ctx, "files/get_temporary_link", map[string]string{"path": path}, &out, true); err != nil {
		return "", err
	}
	return out.Link, nil
}

// CreateShareLink returns the existing direct shared link of path, or
// creates a public one.
func (c *Client) CreateShareLink(ctx context.Context, path string) (string, error) {
	var existing listSharedLinksResult
	arg := map[string]any{"path": path, "direct_only": true}
	if err := c.rpc(ctx, "sharing/list_shared_links", arg, &existing, true); err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if len(existing.Links) > 0 && existing.Links[0].URL != "" {
		return existing.Links[0].URL, nil
	}

	var created sharedLink
	createArg := map[string]any{
		"path":     path,
		"settings": map[string]string{"requested_visibility": "public"},
	}
	if err := c.rpc(ctx, "sharing/create_shared_link_with_settings", createArg, &created, true); err != nil {
		return "", fmt.Errorf("failed to create share link for %s: %w", path, err)
	}
	return created.URL, nil
}

// apiArg encodes the Dropbox-API-Arg header. Header values must be ASCII,
// so non-ASCII runes are escaped as \uXXXX.
func apiArg(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("dropbox: failed to marshal api arg: %w", err)
	}
	var b strings.Builder
	for _, r := range string(raw) {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&b, `\u%04x`, r)
	}
	return b.String(), nil
}
