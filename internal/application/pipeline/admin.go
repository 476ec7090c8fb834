package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventAdmin lists recorded file events and requeues failed ones for
// operators
type EventAdmin struct {
	events fileevent.Repository
	logger *zap.Logger
}

// NewEventAdmin creates an EventAdmin
func NewEventAdmin(events fileevent.Repository, logger *zap.Logger) *EventAdmin {
	return &EventAdmin{
		events: events,
		logger: logger.With(zap.String("component", "event_admin")),
	}
}

// FileEventDTO is a file event without its OCR and extraction payloads
type FileEventDTO struct {
	ID         uuid.UUID `json:"id"`
	EventType  string    `json:"event_type"`
	Status     string    `json:"status"`
	FileName   string    `json:"file_name"`
	Path       string    `json:"path"`
	OldPath    string    `json:"old_path,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	PONumber   string    `json:"po_number,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	FileNumber string    `json:"file_number,omitempty"`
	VendorName string    `json:"vendor_name,omitempty"`
	ShareLink  string    `json:"share_link,omitempty"`
	HasOCR     bool      `json:"has_ocr"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// List pages through events with the given status, all when empty
func (a *EventAdmin) List(ctx context.Context, status fileevent.Status, page, pageSize int) (shared.Paginated[FileEventDTO], error) {
	if status != "" && !status.IsValid() {
		return shared.Paginated[FileEventDTO]{}, shared.NewDomainError("INVALID_INPUT", "unknown status: "+string(status))
	}
	filter := shared.DefaultFilter()
	if page > 0 {
		filter.Page = page
	}
	if pageSize > 0 && pageSize <= 100 {
		filter.PageSize = pageSize
	}

	res, err := a.events.List(ctx, status, filter)
	if err != nil {
		return shared.Paginated[FileEventDTO]{}, fmt.Errorf("failed to list file events: %w", err)
	}
	items := make([]FileEventDTO, len(res.Items))
	for i, e := range res.Items {
		items[i] = toFileEventDTO(e)
	}
	return shared.NewPaginated(items, res.Total, res.Page, res.PageSize), nil
}

// Retry resets a failed event to pending so the poller picks it up again
func (a *EventAdmin) Retry(ctx context.Context, id uuid.UUID) (*FileEventDTO, error) {
	ev, err := a.events.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewDomainError("NOT_FOUND", "file event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file event: %w", err)
	}
	if err := ev.Retry(); err != nil {
		return nil, err
	}
	if err := a.events.UpdateStatus(ctx, ev.ID, ev.Status); err != nil {
		return nil, fmt.Errorf("failed to requeue file event: %w", err)
	}
	a.logger.Info("File event requeued", zap.String("event_id", id.String()), zap.String("file", ev.FileName))
	out := toFileEventDTO(ev)
	return &out, nil
}

func toFileEventDTO(e *fileevent.FileEvent) FileEventDTO {
	return FileEventDTO{
		ID:         e.ID,
		EventType:  string(e.EventType),
		Status:     string(e.Status),
		FileName:   e.FileName,
		Path:       e.Path,
		OldPath:    e.OldPath,
		ProjectID:  e.Project(),
		PONumber:   e.PO(),
		FileType:   string(e.Type()),
		FileNumber: e.Number(),
		VendorName: e.VendorName,
		ShareLink:  e.DropboxShareLink,
		HasOCR:     e.OCRData != "",
		Timestamp:  e.Timestamp,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}
