package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormFileEventRepository implements fileevent.Repository using GORM
type GormFileEventRepository struct {
	db *Database
}

// NewGormFileEventRepository creates a new GormFileEventRepository
func NewGormFileEventRepository(db *Database) *GormFileEventRepository {
	return &GormFileEventRepository{db: db}
}

// Add inserts the event, or marks the existing row with the same dedup key
// as duplicate and returns its id
func (r *GormFileEventRepository) Add(ctx context.Context, event *fileevent.FileEvent) (uuid.UUID, bool, error) {
	var (
		id  uuid.UUID
		dup bool
	)
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		if event.HasDedupKey() {
			existing, err := findByDedupKey(tx, event)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if existing != nil {
				id, dup = existing.ID, true
				return markDuplicate(tx, existing)
			}
		}
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		id = event.ID
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost an insert race against another writer on the same key
		return r.addDuplicate(ctx, event)
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to add file event: %w", err)
	}
	return id, dup, nil
}

func (r *GormFileEventRepository) addDuplicate(ctx context.Context, event *fileevent.FileEvent) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		existing, err := findByDedupKey(tx, event)
		if err != nil {
			return err
		}
		id = existing.ID
		return markDuplicate(tx, existing)
	})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to mark duplicate file event: %w", err)
	}
	return id, true, nil
}

func findByDedupKey(tx *gorm.DB, event *fileevent.FileEvent) (*fileevent.FileEvent, error) {
	var existing fileevent.FileEvent
	err := tx.Where("project_id = ? AND po_number = ? AND file_number = ? AND file_type = ?",
		event.Project(), event.PO(), event.Number(), string(event.Type())).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func markDuplicate(tx *gorm.DB, existing *fileevent.FileEvent) error {
	if existing.Status == fileevent.StatusDuplicate {
		return nil
	}
	return tx.Model(&fileevent.FileEvent{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{"status": fileevent.StatusDuplicate, "updated_at": time.Now().UTC()}).Error
}

// FindByID finds a file event by its ID
func (r *GormFileEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*fileevent.FileEvent, error) {
	var event fileevent.FileEvent
	if err := r.db.DB.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// FetchPending returns pending events, oldest first
func (r *GormFileEventRepository) FetchPending(ctx context.Context, limit int) ([]*fileevent.FileEvent, error) {
	var events []*fileevent.FileEvent
	if err := r.db.DB.WithContext(ctx).
		Where("status = ?", fileevent.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch pending file events: %w", err)
	}
	return events, nil
}

// ClaimPending moves up to limit pending events to processing and returns them
func (r *GormFileEventRepository) ClaimPending(ctx context.Context, limit int) ([]*fileevent.FileEvent, error) {
	var events []*fileevent.FileEvent
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		query := tx.Where("status = ?", fileevent.StatusPending).
			Order("created_at ASC").
			Limit(limit)
		if r.db.SupportsSkipLocked() {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		if err := tx.Model(&fileevent.FileEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": fileevent.StatusProcessing, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		for _, e := range events {
			e.Status = fileevent.StatusProcessing
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending file events: %w", err)
	}
	return events, nil
}

// ReleaseStale puts events stuck in processing since before the cutoff back
// to pending. Claims are stamped with updated_at.
func (r *GormFileEventRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	var released int64
	err := r.db.Write(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&fileevent.FileEvent{}).
			Where("status = ? AND updated_at < ?", fileevent.StatusProcessing, before.UTC()).
			Updates(map[string]any{"status": fileevent.StatusPending, "updated_at": time.Now().UTC()})
		released = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to release stale file events: %w", err)
	}
	return released, nil
}

// UpdateStatus sets the status of one event
func (r *GormFileEventRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status fileevent.Status) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_STATE", "unknown status: "+string(status))
	}
	return r.update(ctx, id, map[string]any{"status": status})
}

// UpdateEnrichment stores the enrichment job output
func (r *GormFileEventRepository) UpdateEnrichment(ctx context.Context, id uuid.UUID, e fileevent.Enrichment) error {
	if !e.Status.IsValid() {
		return shared.NewDomainError("INVALID_STATE", "unknown status: "+string(e.Status))
	}
	return r.update(ctx, id, map[string]any{
		"dropbox_share_link": e.ShareLink,
		"ocr_data":           e.OCRData,
		"openai_data":        e.OpenAIData,
		"status":             e.Status,
	})
}

func (r *GormFileEventRepository) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	values["updated_at"] = time.Now().UTC()
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&fileevent.FileEvent{}).Where("id = ?", id).Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// List returns events filtered by status (all when empty), paginated
func (r *GormFileEventRepository) List(ctx context.Context, status fileevent.Status, filter shared.Filter) (shared.Paginated[*fileevent.FileEvent], error) {
	query := r.db.DB.WithContext(ctx).Model(&fileevent.FileEvent{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if project, ok := filter.Filters["project_id"].(string); ok && project != "" {
		query = query.Where("project_id = ?", project)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[*fileevent.FileEvent]{}, fmt.Errorf("failed to count file events: %w", err)
	}

	var events []*fileevent.FileEvent
	if err := query.
		Order(orderClause(filter, FileEventSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&events).Error; err != nil {
		return shared.Paginated[*fileevent.FileEvent]{}, fmt.Errorf("failed to list file events: %w", err)
	}
	return shared.NewPaginated(events, total, filter.Page, filter.PageSize), nil
}
