package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/docsync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// DropboxSignatureHeader carries the hex HMAC-SHA256 of the body
const DropboxSignatureHeader = "X-Dropbox-Signature"

// MondayClaimsKey is the gin context key holding verified board JWT claims
const MondayClaimsKey = "monday_claims"

// MondayClaims are the claims of a board webhook JWT
type MondayClaims struct {
	AccountID int64 `json:"accountId,omitempty"`
	UserID    int64 `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// MondayAuthConfig holds the credentials board webhooks are checked against
type MondayAuthConfig struct {
	// SigningSecret verifies the HS256 JWT in the Authorization header
	SigningSecret string
	// WebhookToken is compared with the Authorization header when no secret
	// is set. It is not the outbound API token.
	WebhookToken string
}

// MondayAuth verifies board webhook calls. The subscription challenge is
// unauthenticated and always let through. With neither credential set all
// calls are let through.
func MondayAuth(cfg MondayAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(WebhookSourceKey, "monday")
		if isMondayChallenge(c) {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")

		switch {
		case cfg.SigningSecret != "":
			claims, err := parseMondayToken(strings.TrimPrefix(header, "Bearer "), cfg.SigningSecret)
			if err != nil {
				code := dto.ErrCodeTokenInvalid
				if errors.Is(err, jwt.ErrTokenExpired) {
					code = dto.ErrCodeTokenExpired
				}
				abortUnauthorized(c, code, "Invalid webhook token")
				return
			}
			c.Set(MondayClaimsKey, claims)
		case cfg.WebhookToken != "":
			if !constantTimeEqual(strings.TrimPrefix(header, "Bearer "), cfg.WebhookToken) {
				abortUnauthorized(c, dto.ErrCodeUnauthorized, "Invalid webhook token")
				return
			}
		}
		c.Next()
	}
}

// isMondayChallenge peeks at the body for a subscription challenge and
// restores it for the handler
func isMondayChallenge(c *gin.Context) bool {
	if c.Request.Body == nil {
		return false
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return false
	}
	var hook struct {
		Challenge string          `json:"challenge"`
		Event     json.RawMessage `json:"event"`
	}
	if json.Unmarshal(body, &hook) != nil {
		return false
	}
	return hook.Challenge != "" && len(hook.Event) == 0
}

func parseMondayToken(raw, secret string) (*MondayClaims, error) {
	if raw == "" {
		return nil, jwt.ErrTokenMalformed
	}
	claims := &MondayClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// AdminAuth guards operator routes with a static bearer token
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !constantTimeEqual(c.GetHeader("Authorization"), "Bearer "+token) {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}
		c.Next()
	}
}

// DropboxSignature rejects notifications whose X-Dropbox-Signature is not
// the HMAC of the raw body under the app secret. The body is restored for
// the handler.
func DropboxSignature(appSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(WebhookSourceKey, "dropbox")
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponseWithRequestID(ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size", GetRequestID(c)))
			return
		}
		if !ValidDropboxSignature(appSecret, body, c.GetHeader(DropboxSignatureHeader)) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden, "Invalid request", GetRequestID(c)))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// ValidDropboxSignature reports whether signature is the hex HMAC-SHA256 of
// body keyed with secret
func ValidDropboxSignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return constantTimeEqual(hex.EncodeToString(mac.Sum(nil)), signature)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
