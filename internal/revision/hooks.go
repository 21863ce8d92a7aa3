package revision

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/azzam1122112-dot/school-display/internal/models"
)

// Signals turns upstream data mutations into debounced revision bumps plus a
// post-commit invalidation broadcast. Register installs gorm callbacks for
// the watched models, anchored after the commit step so the data is already
// visible to other connections when the bump fires. Code that mutates
// watched tables inside a caller-managed transaction must call Touch
// explicitly after its own commit instead of relying on the hook.
type Signals struct {
	registry *Registry

	// Notify runs after a successful bump, outside the caller's
	// transaction. The broadcaster hangs off this.
	Notify func(schoolID uint, rev int64)
}

func NewSignals(registry *Registry) *Signals {
	return &Signals{registry: registry}
}

const callbackName = "display:bump_revision"

// The builtin commit/rollback step runs dead last in each processor chain;
// anchoring after it keeps the bump outside the statement's implicit
// transaction. Hooking gorm:create/update/delete instead would fire inside
// the still-open transaction and broadcast a revision whose data other
// connections cannot see yet.
const commitCallback = "gorm:commit_or_rollback_transaction"

// Register installs create/update/delete hooks on db.
func (s *Signals) Register(db *gorm.DB) error {
	if err := db.Callback().Create().After(commitCallback).Register(callbackName, s.afterWrite); err != nil {
		return err
	}
	if err := db.Callback().Update().After(commitCallback).Register(callbackName, s.afterWrite); err != nil {
		return err
	}
	return db.Callback().Delete().After(commitCallback).Register(callbackName, s.afterWrite)
}

func (s *Signals) afterWrite(tx *gorm.DB) {
	if tx.Error != nil || tx.Statement == nil {
		return
	}
	schoolID := schoolIDForModel(tx, tx.Statement.Model)
	if schoolID == 0 {
		return
	}
	s.Touch(schoolID)
}

// Touch is the manual entry point for code paths that mutate upstream data
// without going through the hooked models (bulk SQL, admin repairs).
func (s *Signals) Touch(schoolID uint) {
	// Detached from the request context: the bump must survive the
	// caller returning, and must never surface an error to it.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		rev, bumped := s.registry.BumpDebounced(ctx, schoolID)
		if !bumped {
			return
		}
		log.Printf("🔁 School %d revision -> %d", schoolID, rev)
		if s.Notify != nil {
			s.Notify(schoolID, rev)
		}
	}()
}

// schoolIDForModel resolves the owning school for each watched model kind.
// Unwatched models return 0 and are ignored.
func schoolIDForModel(tx *gorm.DB, model any) uint {
	switch m := model.(type) {
	case *models.SchoolSettings:
		return m.SchoolID
	case *models.Announcement:
		return m.SchoolID
	case *models.ExcellenceEntry:
		return m.SchoolID
	case *models.StandbyAssignment:
		return m.SchoolID
	case *models.DutyAssignment:
		return m.SchoolID
	case *models.ClassLesson:
		return settingsSchoolID(tx, m.SettingsID)
	case *models.DaySchedule:
		return settingsSchoolID(tx, m.SettingsID)
	case *models.Period:
		return daySchoolID(tx, m.DayID)
	case *models.Break:
		return daySchoolID(tx, m.DayID)
	default:
		return 0
	}
}

func settingsSchoolID(tx *gorm.DB, settingsID uint) uint {
	if settingsID == 0 {
		return 0
	}
	var settings models.SchoolSettings
	if err := tx.Session(&gorm.Session{NewDB: true}).
		Select("school_id").First(&settings, settingsID).Error; err != nil {
		return 0
	}
	return settings.SchoolID
}

func daySchoolID(tx *gorm.DB, dayID uint) uint {
	if dayID == 0 {
		return 0
	}
	var day models.DaySchedule
	if err := tx.Session(&gorm.Session{NewDB: true}).
		Select("settings_id").First(&day, dayID).Error; err != nil {
		return 0
	}
	return settingsSchoolID(tx, day.SettingsID)
}
