package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docsync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, expires time.Time) string {
	t.Helper()
	claims := MondayClaims{
		AccountID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestMondayAuth(t *testing.T) {
	const secret = "signing-secret"
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name       string
		cfg        MondayAuthConfig
		header     string
		wantStatus int
		wantCode   string
	}{
		{"jwt ok", MondayAuthConfig{SigningSecret: secret}, signToken(t, secret, jwt.SigningMethodHS256, future), http.StatusOK, ""},
		{"jwt with bearer prefix", MondayAuthConfig{SigningSecret: secret}, "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, future), http.StatusOK, ""},
		{"jwt wrong secret", MondayAuthConfig{SigningSecret: secret}, signToken(t, "other", jwt.SigningMethodHS256, future), http.StatusUnauthorized, dto.ErrCodeTokenInvalid},
		{"jwt wrong alg", MondayAuthConfig{SigningSecret: secret}, signToken(t, secret, jwt.SigningMethodHS512, future), http.StatusUnauthorized, dto.ErrCodeTokenInvalid},
		{"jwt expired", MondayAuthConfig{SigningSecret: secret}, signToken(t, secret, jwt.SigningMethodHS256, time.Now().Add(-time.Hour)), http.StatusUnauthorized, dto.ErrCodeTokenExpired},
		{"jwt missing", MondayAuthConfig{SigningSecret: secret}, "", http.StatusUnauthorized, dto.ErrCodeTokenInvalid},
		{"webhook token ok", MondayAuthConfig{WebhookToken: "tok"}, "Bearer tok", http.StatusOK, ""},
		{"webhook token without prefix", MondayAuthConfig{WebhookToken: "tok"}, "tok", http.StatusOK, ""},
		{"webhook token wrong", MondayAuthConfig{WebhookToken: "tok"}, "Bearer nope", http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"webhook token ignored when secret set", MondayAuthConfig{SigningSecret: secret, WebhookToken: "tok"}, "Bearer tok", http.StatusUnauthorized, dto.ErrCodeTokenInvalid},
		{"no credentials", MondayAuthConfig{}, "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(MondayAuth(tt.cfg))
			router.POST("/monday-subitem-change", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodPost, "/monday-subitem-change", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), tt.wantCode)
			}
		})
	}
}

func TestMondayAuth_Challenge(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"challenge passes without header", `{"challenge":"abc"}`, http.StatusOK},
		{"event needs a token", `{"event":{"pulseId":1}}`, http.StatusUnauthorized},
		{"challenge with event needs a token", `{"challenge":"abc","event":{"pulseId":1}}`, http.StatusUnauthorized},
		{"empty challenge needs a token", `{"challenge":""}`, http.StatusUnauthorized},
		{"not json", `challenge`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(MondayAuth(MondayAuthConfig{SigningSecret: "s3cret"}))
			router.POST("/monday-subitem-change", func(c *gin.Context) {
				body, err := io.ReadAll(c.Request.Body)
				require.NoError(t, err)
				c.String(http.StatusOK, string(body))
			})

			req := httptest.NewRequest(http.MethodPost, "/monday-subitem-change", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestAdminAuth(t *testing.T) {
	router := gin.New()
	router.Use(AdminAuth("admin-secret"))
	router.GET("/api/v1/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	for header, want := range map[string]int{
		"Bearer admin-secret": http.StatusOK,
		"Bearer wrong":        http.StatusUnauthorized,
		"admin-secret":        http.StatusUnauthorized,
		"":                    http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, "header %q", header)
	}
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestDropboxSignature(t *testing.T) {
	const secret = "app-secret"
	body := `{"list_folder":{"accounts":["dbid:AAA"]},"delta":{"users":[12345]}}`

	tests := []struct {
		name       string
		signature  string
		wantStatus int
	}{
		{"valid", sign(secret, body), http.StatusOK},
		{"wrong secret", sign("other", body), http.StatusForbidden},
		{"tampered body", sign(secret, body+" "), http.StatusForbidden},
		{"missing", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			router := gin.New()
			router.Use(DropboxSignature(secret))
			router.POST("/dropbox-webhook", func(c *gin.Context) {
				b, _ := io.ReadAll(c.Request.Body)
				seen = string(b)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/dropbox-webhook", strings.NewReader(body))
			if tt.signature != "" {
				req.Header.Set(DropboxSignatureHeader, tt.signature)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, body, seen)
			}
		})
	}
}

func TestValidDropboxSignature(t *testing.T) {
	assert.True(t, ValidDropboxSignature("s", nil, sign("s", "")))
	assert.False(t, ValidDropboxSignature("s", []byte("x"), strings.ToUpper(sign("s", "x"))))
}
