package models

import (
	"time"

	"gorm.io/gorm"
)

// School is the tenant root. Every schedule, screen and notice hangs off one.
type School struct {
	gorm.Model

	Name     string `gorm:"size:150;not null" json:"name"`
	Slug     string `gorm:"uniqueIndex" json:"slug"`
	LogoKey  string `json:"-"` // storage key, resolved to a URL at build time
	City     string `gorm:"size:100" json:"city"`
	IsActive bool   `gorm:"default:true;index" json:"is_active"`
}

// SchoolSettings carries per-school display configuration plus the durable
// copy of the schedule revision. Redis holds the hot copy; this column is the
// fallback when the store is flushed.
type SchoolSettings struct {
	gorm.Model

	SchoolID uint   `gorm:"uniqueIndex;not null" json:"school_id"`
	School   School `json:"-"`

	ScheduleRevision int64 `gorm:"default:0" json:"schedule_revision"`

	Theme              string  `gorm:"size:30;default:'indigo'" json:"theme"`
	SchoolType         string  `gorm:"size:10" json:"school_type"` // "boys", "girls" or ""
	DisplayAccentColor string  `gorm:"size:7" json:"display_accent_color"`
	TimezoneName       string  `gorm:"size:64;default:'Asia/Riyadh'" json:"timezone_name"`
	RefreshIntervalSec int     `gorm:"default:30" json:"refresh_interval_sec"`
	StandbyScrollSpeed float64 `gorm:"default:0.8" json:"standby_scroll_speed"`
	PeriodsScrollSpeed float64 `gorm:"default:0.5" json:"periods_scroll_speed"`
	FeaturedPanel      string  `gorm:"size:20;default:'excellence'" json:"featured_panel"`
}

// DisplayScreen represents one physical display (TV / kiosk browser).
// The token is the sole identity on the wire; bound_device_id enforces the
// one-device-per-screen rule.
type DisplayScreen struct {
	gorm.Model

	SchoolID uint   `gorm:"index;not null" json:"school_id"`
	School   School `json:"-"`

	Name  string `gorm:"size:100" json:"name"`
	Token string `gorm:"size:64;uniqueIndex;not null" json:"-"`

	BoundDeviceID *string    `gorm:"size:128;index" json:"-"`
	BoundAt       *time.Time `json:"-"`

	IsActive bool       `gorm:"default:true;index" json:"is_active"`
	LastSeen *time.Time `json:"last_seen"`
}

// StaffUser authenticates the admin recovery endpoints only; displays never
// log in, they present screen tokens.
type StaffUser struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Role         string         `gorm:"type:varchar(20);default:'support'" json:"role"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
