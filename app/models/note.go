package models

import (
	"time"

	"gorm.io/gorm"
)

// Note is a user's note plus its latest transformed output. The
// transformation itself runs against the external completion provider; this
// model only stores what came back.
type Note struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	Title       string         `gorm:"type:varchar(200)" json:"title" validate:"max=200"`
	Content     string         `gorm:"type:longtext" json:"content"`
	Transformed string         `gorm:"type:longtext" json:"transformed"`
	ViewCount   int64          `gorm:"not null;default:0" json:"view_count"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
