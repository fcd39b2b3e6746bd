package models

import "time"

// BillingReconciliationItem queues webhook events whose internal user could
// not be resolved. The event is acknowledged to the processor only after one
// of these rows has durably committed, so nothing is lost while redelivery
// is stopped.
type BillingReconciliationItem struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	ItemKey            string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_billing_reconciliation_key" json:"item_key"`
	Provider           string     `gorm:"type:varchar(20);not null" json:"provider"`
	ProviderEventID    string     `gorm:"type:varchar(191);not null;index" json:"provider_event_id"`
	EventType          string     `gorm:"type:varchar(100);not null" json:"event_type"`
	ExternalCustomerID string     `gorm:"type:varchar(191);not null;default:'';index" json:"external_customer_id"`
	Reason             string     `gorm:"type:text" json:"reason"`
	ResolvedAt         *time.Time `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
