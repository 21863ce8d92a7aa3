package models

import (
	"gorm.io/gorm"
)

// Weekday convention follows the authoritative DB: Monday=1 .. Sunday=7.

// DaySchedule is one weekday's timetable for a school.
type DaySchedule struct {
	gorm.Model

	SettingsID uint           `gorm:"index:idx_day_settings_weekday;not null" json:"settings_id"`
	Settings   SchoolSettings `json:"-"`

	Weekday  int  `gorm:"index:idx_day_settings_weekday;not null" json:"weekday"`
	IsActive bool `gorm:"default:true" json:"is_active"`
}

// Period is a teaching block inside a DaySchedule.
type Period struct {
	gorm.Model

	DayID uint        `gorm:"index;not null" json:"day_id"`
	Day   DaySchedule `json:"-"`

	Index     int    `gorm:"column:period_index" json:"index"`
	Subject   string `gorm:"size:100" json:"subject"`
	ClassName string `gorm:"size:100" json:"class"`
	Teacher   string `gorm:"size:100" json:"teacher"`
	StartsAt  string `gorm:"size:5" json:"starts_at"` // HH:MM (24h format)
	EndsAt    string `gorm:"size:5" json:"ends_at"`   // HH:MM (24h format)
	IsActive  bool   `gorm:"default:true" json:"is_active"`
}

// Break is a non-teaching block (assembly, recess, prayer).
type Break struct {
	gorm.Model

	DayID uint        `gorm:"index;not null" json:"day_id"`
	Day   DaySchedule `json:"-"`

	Label       string `gorm:"size:100" json:"label"`
	StartsAt    string `gorm:"size:5" json:"starts_at"` // HH:MM
	DurationMin int    `json:"duration_min"`
}

// ClassLesson maps (weekday, period index) to the class/subject/teacher grid
// shown in the "period classes" panel.
type ClassLesson struct {
	gorm.Model

	SettingsID uint           `gorm:"index:idx_lesson_settings_weekday;not null" json:"settings_id"`
	Settings   SchoolSettings `json:"-"`

	Weekday     int    `gorm:"index:idx_lesson_settings_weekday;not null" json:"weekday"`
	PeriodIndex int    `gorm:"index" json:"period_index"`
	ClassName   string `gorm:"size:100" json:"class"`
	Subject     string `gorm:"size:100" json:"subject"`
	Teacher     string `gorm:"size:100" json:"teacher"`
}

// StandbyAssignment is a substitute-teacher assignment for a specific date.
// Dates are YYYY-MM-DD strings, same convention as the HH:MM period times.
type StandbyAssignment struct {
	gorm.Model

	SchoolID uint   `gorm:"index;not null" json:"school_id"`
	School   School `json:"-"`

	Date        string `gorm:"size:10;index" json:"date"` // YYYY-MM-DD
	PeriodIndex int    `json:"period_index"`
	ClassName   string `gorm:"size:100" json:"class"`
	Subject     string `gorm:"size:100" json:"subject"`
	Teacher     string `gorm:"size:100" json:"teacher"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
}

// DutyAssignment is a supervision/duty slot for a specific date.
type DutyAssignment struct {
	gorm.Model

	SchoolID uint   `gorm:"index;not null" json:"school_id"`
	School   School `json:"-"`

	Date      string `gorm:"size:10;index" json:"date"` // YYYY-MM-DD
	Teacher   string `gorm:"size:100" json:"teacher"`
	DutyType  string `gorm:"size:20;default:'supervision'" json:"duty_type"` // "supervision" or "duty"
	DutyLabel string `gorm:"size:100" json:"duty_label"`
	Location  string `gorm:"size:100" json:"location"`
	Priority  int    `gorm:"default:0" json:"priority"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`
}
