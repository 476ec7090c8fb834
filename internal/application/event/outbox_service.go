// Package event exposes outbox delivery state to operators.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxStore is the dead letter side of the outbox table
type OutboxStore interface {
	FindDead(ctx context.Context, filter shared.Filter) (shared.Paginated[*shared.OutboxEntry], error)
	Requeue(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// OutboxService lists and requeues undeliverable domain events
type OutboxService struct {
	store  OutboxStore
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(store OutboxStore, logger *zap.Logger) *OutboxService {
	return &OutboxService{
		store:  store,
		logger: logger.With(zap.String("component", "outbox_service")),
	}
}

// DeadLetterDTO is a dead outbox entry without its payload
type DeadLetterDTO struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	EventType   string    `json:"event_type"`
	AggregateID uuid.UUID `json:"aggregate_id"`
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OutboxStatsDTO counts entries per delivery status
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// ListDead pages through dead letters, newest first
func (s *OutboxService) ListDead(ctx context.Context, page, pageSize int) (shared.Paginated[DeadLetterDTO], error) {
	filter := shared.DefaultFilter()
	if page > 0 {
		filter.Page = page
	}
	if pageSize > 0 && pageSize <= 100 {
		filter.PageSize = pageSize
	}

	res, err := s.store.FindDead(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list dead letters", zap.Error(err))
		return shared.Paginated[DeadLetterDTO]{}, shared.WrapDomainError("INTERNAL_ERROR", "failed to list dead letters", err)
	}
	items := make([]DeadLetterDTO, len(res.Items))
	for i, e := range res.Items {
		items[i] = toDeadLetterDTO(e)
	}
	return shared.NewPaginated(items, res.Total, res.Page, res.PageSize), nil
}

// Retry puts one dead letter back in the delivery queue
func (s *OutboxService) Retry(ctx context.Context, id uuid.UUID) error {
	err := s.store.Requeue(ctx, id)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return shared.NewDomainError("NOT_FOUND", "outbox entry not found")
	case err != nil:
		return shared.WrapDomainError("INVALID_STATE", "outbox entry cannot be retried", err)
	}
	s.logger.Info("Dead letter requeued", zap.String("id", id.String()))
	return nil
}

// RetryAll requeues every dead letter and returns how many were requeued
func (s *OutboxService) RetryAll(ctx context.Context) (int, error) {
	filter := shared.DefaultFilter()
	filter.PageSize = 100
	count := 0
	for {
		// requeued entries leave the dead set, so page 1 always holds the rest
		res, err := s.store.FindDead(ctx, filter)
		if err != nil {
			return count, shared.WrapDomainError("INTERNAL_ERROR", "failed to list dead letters", err)
		}
		if len(res.Items) == 0 {
			break
		}
		progressed := false
		for _, e := range res.Items {
			if err := s.store.Requeue(ctx, e.ID); err != nil {
				s.logger.Warn("Failed to requeue dead letter", zap.String("id", e.ID.String()), zap.Error(err))
				continue
			}
			count++
			progressed = true
		}
		if !progressed || len(res.Items) < filter.PageSize {
			break
		}
	}
	s.logger.Info("Dead letters requeued", zap.Int("count", count))
	return count, nil
}

// Stats counts outbox entries per status
func (s *OutboxService) Stats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, shared.WrapDomainError("INTERNAL_ERROR", "failed to count outbox entries", err)
	}
	out := &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	for _, c := range counts {
		out.Total += c
	}
	return out, nil
}

func toDeadLetterDTO(e *shared.OutboxEntry) DeadLetterDTO {
	return DeadLetterDTO{
		ID:          e.ID,
		EventID:     e.EventID,
		EventType:   e.EventType,
		AggregateID: e.AggregateID,
		RetryCount:  e.RetryCount,
		LastError:   e.LastError,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
