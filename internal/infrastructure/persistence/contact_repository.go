package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormContactRepository implements procurement.ContactRepository using GORM
type GormContactRepository struct {
	db *Database
}

// NewGormContactRepository creates a new GormContactRepository
func NewGormContactRepository(db *Database) *GormContactRepository {
	return &GormContactRepository{db: db}
}

// FindByName finds a contact by name, ignoring case and surrounding spaces
func (r *GormContactRepository) FindByName(ctx context.Context, name string) (*procurement.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "contact name cannot be empty")
	}
	var contact procurement.Contact
	if err := r.db.DB.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(name)).
		First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// FindByID finds a contact by id
func (r *GormContactRepository) FindByID(ctx context.Context, id uuid.UUID) (*procurement.Contact, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByPulseID finds a contact by its board item id
func (r *GormContactRepository) FindByPulseID(ctx context.Context, pulseID int64) (*procurement.Contact, error) {
	return r.first(ctx, "pulse_id = ?", pulseID)
}

func (r *GormContactRepository) first(ctx context.Context, query string, args ...any) (*procurement.Contact, error) {
	var contact procurement.Contact
	if err := r.db.DB.WithContext(ctx).Where(query, args...).First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// Save creates or updates a contact
func (r *GormContactRepository) Save(ctx context.Context, contact *procurement.Contact) error {
	return r.db.Write(ctx, func(tx *gorm.DB) error {
		return tx.Save(contact).Error
	})
}
