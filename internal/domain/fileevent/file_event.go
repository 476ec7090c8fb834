package fileevent

import (
	"time"

	"github.com/docsync/backend/internal/domain/shared"
)

// EventType is the kind of change observed in the storage change feed
type EventType string

const (
	EventTypeFileAdded     EventType = "file_added"
	EventTypeFolderAdded   EventType = "folder_added"
	EventTypeFileRenamed   EventType = "file_renamed"
	EventTypeFolderRenamed EventType = "folder_renamed"
	EventTypeFileMoved     EventType = "file_moved"
	EventTypeFolderMoved   EventType = "folder_moved"
	EventTypeFileDeleted   EventType = "file_deleted"
)

// IsValid checks if the type is a known event type
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeFileAdded, EventTypeFolderAdded, EventTypeFileRenamed, EventTypeFolderRenamed,
		EventTypeFileMoved, EventTypeFolderMoved, EventTypeFileDeleted:
		return true
	}
	return false
}

// Status is the processing status of a recorded event
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusDuplicate  Status = "duplicate"
)

// IsValid checks if the status is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed, StatusSkipped, StatusDuplicate:
		return true
	}
	return false
}

// IsTerminal reports whether the poller is done with the event
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusSkipped || s == StatusDuplicate
}

// FileEvent is one change recorded from the storage change feed
type FileEvent struct {
	shared.BaseEntity
	FileID           string    `gorm:"type:varchar(255);index"`
	FileName         string    `gorm:"type:varchar(512);not null"`
	Path             string    `gorm:"type:varchar(1024);not null"`
	OldPath          string    `gorm:"type:varchar(1024)"`
	EventType        EventType `gorm:"type:varchar(32)"`
	Timestamp        time.Time `gorm:"not null"`
	Status           Status    `gorm:"type:varchar(32);not null;default:pending;index"`
	ProjectID        *string   `gorm:"type:varchar(32);uniqueIndex:uq_file_events_dedup"`
	PONumber         *string   `gorm:"column:po_number;type:varchar(32);uniqueIndex:uq_file_events_dedup"`
	VendorName       string    `gorm:"type:varchar(255)"`
	VendorType       string    `gorm:"type:varchar(32)"`
	FileType         *string   `gorm:"type:varchar(32);uniqueIndex:uq_file_events_dedup"`
	FileNumber       *string   `gorm:"type:varchar(16);uniqueIndex:uq_file_events_dedup"`
	DropboxShareLink string    `gorm:"type:varchar(1024)"`
	FileStreamLink   string    `gorm:"type:varchar(1024)"`
	OCRData          string    `gorm:"column:ocr_data;type:text"`
	OpenAIData       string    `gorm:"column:openai_data;type:text"`
}

// TableName returns the table name for GORM
func (FileEvent) TableName() string {
	return "file_events"
}

// NewFileEvent creates a pending event for a path in the change feed
func NewFileEvent(eventType EventType, fileID, name, path string, ts time.Time) (*FileEvent, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "file name is required")
	}
	if path == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "path is required")
	}
	if !eventType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "unknown event type: "+string(eventType))
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &FileEvent{
		BaseEntity: shared.NewBaseEntity(),
		FileID:     fileID,
		FileName:   name,
		Path:       path,
		EventType:  eventType,
		Timestamp:  ts,
		Status:     StatusPending,
	}, nil
}

// ApplyFileInfo copies the identifiers parsed from a document file name
func (e *FileEvent) ApplyFileInfo(info FileInfo) {
	e.ProjectID = strPtr(info.ProjectID)
	e.PONumber = strPtr(info.PONumber)
	e.FileNumber = strPtr(info.FileNumber)
	e.FileType = strPtr(string(info.FileType))
	e.VendorName = info.VendorName
}

// ApplyFolderInfo copies the identifiers parsed from a PO folder path
func (e *FileEvent) ApplyFolderInfo(info FolderInfo) {
	e.ProjectID = strPtr(info.ProjectID)
	e.PONumber = strPtr(info.PONumber)
	e.VendorType = string(info.POType)
	if e.VendorName == "" {
		e.VendorName = info.VendorName
	}
}

// HasDedupKey reports whether all four unique identifiers are present
func (e *FileEvent) HasDedupKey() bool {
	return deref(e.ProjectID) != "" && deref(e.PONumber) != "" &&
		deref(e.FileNumber) != "" && deref(e.FileType) != ""
}

// Project returns the project id or an empty string
func (e *FileEvent) Project() string { return deref(e.ProjectID) }

// PO returns the PO number or an empty string
func (e *FileEvent) PO() string { return deref(e.PONumber) }

// Number returns the file number or an empty string
func (e *FileEvent) Number() string { return deref(e.FileNumber) }

// Type returns the document type or an empty string
func (e *FileEvent) Type() FileType { return FileType(deref(e.FileType)) }

// MarkStatus moves the event to a new status
func (e *FileEvent) MarkStatus(status Status) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_STATE", "unknown status: "+string(status))
	}
	e.Status = status
	e.Touch()
	return nil
}

// Retry puts a failed event back in the pending queue
func (e *FileEvent) Retry() error {
	if e.Status != StatusFailed {
		return shared.NewDomainError("INVALID_STATE", "only failed events can be retried, event is "+string(e.Status))
	}
	return e.MarkStatus(StatusPending)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
