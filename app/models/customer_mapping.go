package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// CustomerMapping associates an internal user with the payment processor's
// external customer record. There is at most one row per user; the unique
// index on user_id is the backstop against concurrent creation.
type CustomerMapping struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;uniqueIndex:ux_customer_mappings_user" json:"user_id"`
	Provider           string    `gorm:"type:varchar(20);not null;default:'stripe';index:ux_customer_mappings_customer,unique,priority:1" json:"provider"`
	ExternalCustomerID string    `gorm:"type:varchar(191);not null;index:ux_customer_mappings_customer,unique,priority:2" json:"external_customer_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
