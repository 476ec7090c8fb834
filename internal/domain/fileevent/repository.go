package fileevent

import (
	"context"
	"time"

	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository persists file events
type Repository interface {
	// Add inserts the event. When the dedup key is complete and a row already
	// exists, that row is marked duplicate and its id returned with true.
	Add(ctx context.Context, event *FileEvent) (uuid.UUID, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*FileEvent, error)
	FetchPending(ctx context.Context, limit int) ([]*FileEvent, error)
	// ClaimPending atomically moves pending events to processing
	ClaimPending(ctx context.Context, limit int) ([]*FileEvent, error)
	// ReleaseStale puts processing events last touched before the cutoff back
	// to pending and returns how many were released
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateEnrichment(ctx context.Context, id uuid.UUID, enrichment Enrichment) error
	List(ctx context.Context, status Status, filter shared.Filter) (shared.Paginated[*FileEvent], error)
}

// Enrichment is the output of the enrichment job for one event
type Enrichment struct {
	ShareLink  string
	OCRData    string
	OpenAIData string
	Status     Status
}
