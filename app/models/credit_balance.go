package models

import "time"

// CreditBalance holds a user's remaining free-tier credits. The balance is
// only ever decremented through a single conditional UPDATE guarded by
// credits_remaining > 0, so it can never go negative.
type CreditBalance struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex:ux_credit_balances_user" json:"user_id"`
	CreditsRemaining int64     `gorm:"not null;default:0" json:"credits_remaining"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
