package procurement

import (
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// TaxForm is a W9 / W8 document received for a PO
type TaxForm struct {
	shared.BaseEntity
	ProjectNumber string        `gorm:"type:varchar(32);not null"`
	PONumber      string        `gorm:"column:po_number;type:varchar(32);not null"`
	ContactID     *uuid.UUID    `gorm:"type:char(36)"`
	Type          TaxFormType   `gorm:"type:varchar(16);not null"`
	Status        TaxFormStatus `gorm:"type:varchar(16);not null;default:PENDING"`
	EntityName    string        `gorm:"type:varchar(255)"`
	TaxID         string        `gorm:"type:varchar(45)"`
	FileLink      string        `gorm:"type:varchar(512);not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (TaxForm) TableName() string {
	return "tax_form"
}

// TaxAccount is a Xero tax account
type TaxAccount struct {
	shared.BaseEntity
	TaxCode     string `gorm:"type:varchar(45);not null;uniqueIndex"`
	Description string `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (TaxAccount) TableName() string {
	return "tax_account"
}

// AccountCode maps a budget account code to its tax account
type AccountCode struct {
	shared.BaseEntity
	Code         string     `gorm:"type:varchar(45);not null;uniqueIndex"`
	Description  string     `gorm:"type:varchar(255)"`
	TaxAccountID *uuid.UUID `gorm:"type:char(36)"`
}

// TableName returns the table name for GORM
func (AccountCode) TableName() string {
	return "account_code"
}
