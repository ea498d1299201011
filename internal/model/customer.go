package model

import (
	"time"
)

// Customer is an external contact reaching the business phone number.
// Phone is immutable after creation.
type Customer struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	Phone     string    `json:"phone" gorm:"type:text;not null;uniqueIndex"`
	Name      *string   `json:"name"`
	IsBlocked bool      `json:"is_blocked" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (Customer) TableName() string { return "customers" }

// DisplayName returns the stored name or the phone number.
func (c *Customer) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Phone
}

// PlaceholderName synthesizes a name from the last four digits of phone.
func PlaceholderName(phone string) string {
	if len(phone) <= 4 {
		return "Customer " + phone
	}
	return "Customer " + phone[len(phone)-4:]
}

// BlockCustomerRequest toggles inbound processing for a phone number.
type BlockCustomerRequest struct {
	Phone     string `json:"phone"`
	IsBlocked *bool  `json:"is_blocked"`
}

// UpdateCustomerRequest edits a customer's display name.
type UpdateCustomerRequest struct {
	Name string `json:"name"`
}
