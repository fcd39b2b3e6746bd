package models

import "time"

const (
	SubscriptionStatusNone     = "none"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusCanceled = "canceled"
)

// SubscriptionState mirrors the processor's view of a user's subscription.
// Mutated exclusively by the webhook ingestion pipeline; writes are fenced by
// last_event_timestamp so stale or reordered events are discarded.
type SubscriptionState struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;uniqueIndex:ux_subscription_states_user" json:"user_id"`
	Status             string    `gorm:"type:varchar(32);not null;default:'none';index" json:"status"`
	ExternalCustomerID string    `gorm:"type:varchar(191);not null;default:'';index" json:"external_customer_id"`
	CurrentPriceID     string    `gorm:"type:varchar(191);not null;default:''" json:"current_price_id"`
	LastEventTimestamp int64     `gorm:"not null;default:0" json:"last_event_timestamp"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Unlimited reports whether the status grants unmetered use. Trialing is
// deliberately treated the same as active.
func (s SubscriptionState) Unlimited() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}
