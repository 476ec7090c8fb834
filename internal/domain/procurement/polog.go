package procurement

import (
	"time"

	"github.com/docsync/backend/internal/domain/shared"
)

// POLog tracks one import of a PO log file
type POLog struct {
	shared.BaseEntity
	ProjectNumber string      `gorm:"type:varchar(32);not null;index"`
	FilePath      string      `gorm:"type:varchar(1024);not null"`
	Status        POLogStatus `gorm:"type:varchar(16);not null;default:PENDING"`
	EntryCount    int
	MatchedCount  int
	Error         string `gorm:"type:text"`
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// TableName returns the table name for GORM
func (POLog) TableName() string {
	return "po_log"
}

// NewPOLog creates a pending import record
func NewPOLog(projectNumber, path string) *POLog {
	return &POLog{
		BaseEntity:    shared.NewBaseEntity(),
		ProjectNumber: projectNumber,
		FilePath:      path,
		Status:        POLogPending,
	}
}

// Start marks the import as started
func (l *POLog) Start() error {
	if l.Status != POLogPending {
		return shared.NewDomainError("INVALID_STATE", "po log already "+string(l.Status))
	}
	now := time.Now()
	l.Status = POLogStarted
	l.StartedAt = &now
	l.Touch()
	return nil
}

// Complete marks the import as finished
func (l *POLog) Complete(entries, matched int) {
	now := time.Now()
	l.Status = POLogCompleted
	l.EntryCount = entries
	l.MatchedCount = matched
	l.CompletedAt = &now
	l.Touch()
}

// Fail records the failure reason
func (l *POLog) Fail(err error) {
	now := time.Now()
	l.Status = POLogFailed
	l.Error = err.Error()
	l.CompletedAt = &now
	l.Touch()
}

// AuditLog records a notable change made by the pipeline
type AuditLog struct {
	shared.BaseEntity
	EntityType string `gorm:"type:varchar(45);not null;index:idx_audit_entity"`
	EntityID   string `gorm:"type:varchar(64);not null;index:idx_audit_entity"`
	Action     string `gorm:"type:varchar(45);not null"`
	Detail     string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (AuditLog) TableName() string {
	return "audit_log"
}

// NewAuditLog creates an audit record
func NewAuditLog(entityType, entityID, action, detail string) *AuditLog {
	return &AuditLog{
		BaseEntity: shared.NewBaseEntity(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Detail:     detail,
	}
}
