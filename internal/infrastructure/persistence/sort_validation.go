package persistence

import (
	"strings"

	"github.com/docsync/backend/internal/domain/shared"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC, defaulting to DESC
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is whitelisted, else defaultField
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" || !allowedFields[trimmed] {
		return defaultField
	}
	return trimmed
}

// FileEventSortFields contains allowed sort fields for file events
var FileEventSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"timestamp":  true,
	"status":     true,
	"event_type": true,
	"project_id": true,
	"po_number":  true,
	"file_name":  true,
}

// OutboxSortFields contains allowed sort fields for outbox entries
var OutboxSortFields = map[string]bool{
	"created_at":    true,
	"updated_at":    true,
	"event_type":    true,
	"retry_count":   true,
	"next_retry_at": true,
}

// orderClause builds a whitelisted ORDER BY clause
func orderClause(filter shared.Filter, allowed map[string]bool, defaultField string) string {
	return ValidateSortField(filter.OrderBy, allowed, defaultField) + " " + ValidateSortOrder(filter.OrderDir)
}
