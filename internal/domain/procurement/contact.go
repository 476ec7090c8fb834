package procurement

import (
	"strings"

	"github.com/docsync/backend/internal/domain/shared"
)

// Contact is a vendor or card holder that POs are issued to
type Contact struct {
	shared.BaseEntity
	PulseID        *int64       `gorm:"uniqueIndex"`
	Name           string       `gorm:"type:varchar(255);not null;index"`
	VendorType     VendorType   `gorm:"type:varchar(45)"`
	VendorStatus   VendorStatus `gorm:"type:varchar(20);not null;default:PENDING"`
	PaymentDetails string       `gorm:"type:varchar(255);not null;default:PENDING"`
	Email          string       `gorm:"type:varchar(100)"`
	Phone          string       `gorm:"type:varchar(45)"`
	TaxType        string       `gorm:"type:varchar(45);default:SSN"`
	TaxNumber      string       `gorm:"type:varchar(45)"`
	AddressLine1   string       `gorm:"type:varchar(255)"`
	AddressLine2   string       `gorm:"type:varchar(255)"`
	City           string       `gorm:"type:varchar(100)"`
	Zip            string       `gorm:"type:varchar(20)"`
	Region         string       `gorm:"type:varchar(45)"`
	Country        string       `gorm:"type:varchar(100)"`
	TaxFormLink    string       `gorm:"type:varchar(255)"`
	XeroID         string       `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (Contact) TableName() string {
	return "contact"
}

// NewContact creates a pending contact
func NewContact(name string) *Contact {
	return &Contact{
		BaseEntity:     shared.NewBaseEntity(),
		Name:           strings.TrimSpace(name),
		VendorStatus:   VendorStatusPending,
		PaymentDetails: "PENDING",
		TaxType:        "SSN",
	}
}

// HasCompleteTaxProfile reports whether the contact can be paid without a new tax form
func (c *Contact) HasCompleteTaxProfile() bool {
	if c == nil {
		return false
	}
	required := []string{c.TaxNumber, c.TaxFormLink, c.AddressLine1, c.City, c.Zip}
	for _, v := range required {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return c.VendorStatus == VendorStatusApproved || c.VendorStatus == VendorStatusVerified
}
