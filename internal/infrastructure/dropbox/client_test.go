package dropbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDropbox struct {
	mux        *http.ServeMux
	tokenCalls atomic.Int32
}

func newFakeDropbox(t *testing.T) (*fakeDropbox, *httptest.Server) {
	f := &fakeDropbox{mux: http.NewServeMux()}
	f.mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		n := f.tokenCalls.Add(1)
		writeJSON(w, map[string]any{"access_token": "tok-" + string(rune('0'+n)), "expires_in": 14400})
	})
	f.mux.HandleFunc("/2/team/members/get_info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{
			".tag":    "member_info",
			"profile": map[string]string{"team_member_id": "dbmid:abc", "email": "ops@example.com"},
		}})
	})
	f.mux.HandleFunc("/2/team/namespaces/list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"namespaces": []map[string]any{
				{"name": "Archive", "namespace_id": "111"},
				{"name": "2024", "namespace_id": "222"},
			},
			"has_more": false,
		})
	})
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	c, err := NewClient(config.DropboxConfig{
		AppKey:         "key",
		AppSecret:      "secret",
		RefreshToken:   "refresh-1",
		MemberEmail:    "ops@example.com",
		NamespaceName:  "2024",
		APIBaseURL:     srv.URL,
		ContentBaseURL: srv.URL,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Stop)
	return c
}

func TestNewClient_MissingCredentials(t *testing.T) {
	_, err := NewClient(config.DropboxConfig{AppKey: "k"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestConnect_ResolvesMemberAndNamespace(t *testing.T) {
	_, srv := newFakeDropbox(t)
	c := newTestClient(t, srv)

	assert.Equal(t, "dbmid:abc", c.MemberID())
	assert.Equal(t, "222", c.namespaceID)
}

func TestConnect_UnknownNamespace(t *testing.T) {
	_, srv := newFakeDropbox(t)
	c, err := NewClient(config.DropboxConfig{
		AppKey: "key", AppSecret: "secret", RefreshToken: "refresh-1",
		NamespaceName: "1999", APIBaseURL: srv.URL, ContentBaseURL: srv.URL,
	}, zap.NewNop())
	require.NoError(t, err)

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNamespaceNotFound)
}

func TestListFolderContinue_SendsUserHeaders(t *testing.T) {
	f, srv := newFakeDropbox(t)
	modified := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f.mux.HandleFunc("/2/files/list_folder/continue", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dbmid:abc", r.Header.Get("Dropbox-API-Select-User"))
		assert.JSONEq(t, `{".tag":"namespace_id","namespace_id":"222"}`, r.Header.Get("Dropbox-API-Path-Root"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cur-1", body["cursor"])

		writeJSON(w, map[string]any{
			"entries": []map[string]any{
				{".tag": "file", "name": "2416_05 Acme Invoice.pdf", "path_display": "/2416 - Film/1. Purchase Orders/2416_05 Acme/2416_05 Acme Invoice.pdf", "server_modified": modified.Format(time.RFC3339)},
				{".tag": "deleted", "name": "old.pdf", "path_lower": "/2416 - film/old.pdf"},
			},
			"cursor":   "cur-2",
			"has_more": false,
		})
	})
	c := newTestClient(t, srv)

	res, err := c.ListFolderContinue(context.Background(), "cur-1")
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "cur-2", res.Cursor)

	file := res.Entries[0]
	assert.True(t, file.IsFile())
	ts, ok := file.Modified()
	require.True(t, ok)
	assert.True(t, ts.Equal(modified))

	deleted := res.Entries[1]
	assert.True(t, deleted.IsDeleted())
	assert.Equal(t, "/2416 - film/old.pdf", deleted.Path())
	_, ok = deleted.Modified()
	assert.False(t, ok)
}

func TestDo_RefreshesTokenOnUnauthorized(t *testing.T) {
	f, srv := newFakeDropbox(t)
	var calls atomic.Int32
	f.mux.HandleFunc("/2/files/get_temporary_link", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"link": "https://dl.example.com/x"})
	})
	c := newTestClient(t, srv)

	link, err := c.GetTemporaryLink(context.Background(), "/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://dl.example.com/x", link)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestDo_NotFound(t *testing.T) {
	f, srv := newFakeDropbox(t)
	f.mux.HandleFunc("/2/files/get_temporary_link", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, map[string]string{"error_summary": "path/not_found/.."})
	})
	c := newTestClient(t, srv)

	_, err := c.GetTemporaryLink(context.Background(), "/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateShareLink(t *testing.T) {
	t.Run("reuses existing link", func(t *testing.T) {
		f, srv := newFakeDropbox(t)
		f.mux.HandleFunc("/2/sharing/list_shared_links", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"links": []map[string]string{{"url": "https://www.dropbox.com/s/existing"}}})
		})
		f.mux.HandleFunc("/2/sharing/create_shared_link_with_settings", func(w http.ResponseWriter, r *http.Request) {
			t.Error("create must not be called when a link exists")
		})
		c := newTestClient(t, srv)

		link, err := c.CreateShareLink(context.Background(), "/folder")
		require.NoError(t, err)
		assert.Equal(t, "https://www.dropbox.com/s/existing", link)
	})

	t.Run("creates public link", func(t *testing.T) {
		f, srv := newFakeDropbox(t)
		f.mux.HandleFunc("/2/sharing/list_shared_links", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"links": []any{}})
		})
		f.mux.HandleFunc("/2/sharing/create_shared_link_with_settings", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Path     string            `json:"path"`
				Settings map[string]string `json:"settings"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "public", body.Settings["requested_visibility"])
			writeJSON(w, map[string]string{"url": "https://www.dropbox.com/s/new"})
		})
		c := newTestClient(t, srv)

		link, err := c.CreateShareLink(context.Background(), "/folder")
		require.NoError(t, err)
		assert.Equal(t, "https://www.dropbox.com/s/new", link)
	})
}

func TestDownload_EscapesArgHeader(t *testing.T) {
	f, srv := newFakeDropbox(t)
	f.mux.HandleFunc("/2/files/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `{"path":"/Caf\u00e9 Invoice.pdf"}`, r.Header.Get("Dropbox-API-Arg"))
		_, _ = io.WriteString(w, "%PDF-1.4")
	})
	c := newTestClient(t, srv)

	data, err := c.Download(context.Background(), "/Café Invoice.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestApiArg(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", "/a/b.pdf", `{"path":"/a/b.pdf"}`},
		{"latin", "/é", `{"path":"/\u00e9"}`},
		{"astral", "/😀", `{"path":"/\ud83d\ude00"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := apiArg(map[string]string{"path": tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
