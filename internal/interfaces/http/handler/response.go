package handler

import "github.com/docsync/backend/internal/interfaces/http/dto"

// APIResponse is the envelope of every JSON response with a typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// CountData represents count data in response
type CountData struct {
	Count int `json:"count"`
}

// challengeBody is the challenge echo of board webhooks
type challengeBody struct {
	Challenge string `json:"challenge"`
}
