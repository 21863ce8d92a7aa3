package models

import (
	"gorm.io/gorm"
)

// Announcement is a rotating notice on the display.
type Announcement struct {
	gorm.Model

	SchoolID uint   `gorm:"index;not null" json:"school_id"`
	School   School `json:"-"`

	Title    string  `gorm:"size:200" json:"title"`
	Body     string  `gorm:"type:text" json:"body"`
	StartsOn *string `gorm:"size:10" json:"starts_on"` // YYYY-MM-DD, nil = immediately
	EndsOn   *string `gorm:"size:10" json:"ends_on"`   // YYYY-MM-DD, nil = forever
	IsActive bool    `gorm:"default:true;index" json:"is_active"`
}

// ExcellenceEntry is an honor-board card (student of the week etc).
type ExcellenceEntry struct {
	gorm.Model

	SchoolID uint   `gorm:"index;not null" json:"school_id"`
	School   School `json:"-"`

	StudentName string `gorm:"size:150" json:"name"`
	Reason      string `gorm:"size:250" json:"reason"`
	PhotoKey    string `json:"-"` // storage key, resolved to a URL at build time
	IsActive    bool   `gorm:"default:true;index" json:"is_active"`
}
