package snapshot

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/azzam1122112-dot/school-display/internal/config"
	"github.com/azzam1122112-dot/school-display/internal/models"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Display.WSEnabled = true
	cfg.Display.DefaultTimezone = "Asia/Riyadh"
	return cfg
}

// setupBuilder seeds one school with a Sunday..Thursday timetable:
// two periods 08:00-08:45 / 08:50-09:35 and a break 09:35 (+20 min).
func setupBuilder(t *testing.T) (*Builder, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.School{}, &models.SchoolSettings{}, &models.DaySchedule{},
		&models.Period{}, &models.Break{}, &models.ClassLesson{},
		&models.StandbyAssignment{}, &models.DutyAssignment{},
		&models.Announcement{}, &models.ExcellenceEntry{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	school := models.School{Name: "مدرسة الاختبار", Slug: "test", IsActive: true}
	db.Create(&school)
	settings := models.SchoolSettings{
		SchoolID:           school.ID,
		Theme:              "default",
		TimezoneName:       "Asia/Riyadh",
		RefreshIntervalSec: 30,
		StandbyScrollSpeed: 0.8,
		PeriodsScrollSpeed: 0.5,
		FeaturedPanel:      "excellence",
	}
	db.Create(&settings)

	for weekday := 1; weekday <= 7; weekday++ {
		if weekday == 5 || weekday == 6 { // Fri, Sat off
			continue
		}
		day := models.DaySchedule{SettingsID: settings.ID, Weekday: weekday, IsActive: true}
		db.Create(&day)
		db.Create(&models.Period{DayID: day.ID, Index: 1, Subject: "رياضيات", ClassName: "1/أ", Teacher: "أ. سعد", StartsAt: "08:00", EndsAt: "08:45", IsActive: true})
		db.Create(&models.Period{DayID: day.ID, Index: 2, Subject: "علوم", ClassName: "1/أ", Teacher: "أ. فهد", StartsAt: "08:50", EndsAt: "09:35", IsActive: true})
		db.Create(&models.Break{DayID: day.ID, Label: "فسحة", StartsAt: "09:35", DurationMin: 20})
	}

	return NewBuilder(db, nil, testConfig()), db
}

// at pins the builder clock. 2026-02-08 is a Sunday.
func at(b *Builder, hhmm string) {
	loc, _ := time.LoadLocation("Asia/Riyadh")
	t, _ := time.Parse("15:04", hhmm)
	b.Now = func() time.Time {
		return time.Date(2026, 2, 8, t.Hour(), t.Minute(), 0, 0, loc)
	}
}

func TestBuildStateDerivation(t *testing.T) {
	builder, _ := setupBuilder(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		now           string
		wantType      string
		wantCurrent   bool
		wantNextIndex int
	}{
		{"Before first period", "07:45", StateBefore, false, 1},
		{"Inside first period", "08:15", StatePeriod, true, 2},
		{"Gap between periods", "08:47", StateBreak, false, 2},
		{"Inside second period", "09:00", StatePeriod, true, 0}, // next is the break
		{"Inside break", "09:40", StateBreak, false, 0},
		{"After last block, inside window", "10:05", StateAfter, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at(builder, tt.now)
			doc, err := builder.Build(ctx, 1, 10)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if doc.State.Type != tt.wantType {
				t.Fatalf("state.type = %q, want %q", doc.State.Type, tt.wantType)
			}
			if (doc.CurrentPeriod != nil) != tt.wantCurrent {
				t.Fatalf("current_period presence = %v, want %v", doc.CurrentPeriod != nil, tt.wantCurrent)
			}
			if tt.wantNextIndex > 0 {
				if doc.NextPeriod == nil || doc.NextPeriod.Index != tt.wantNextIndex {
					t.Fatalf("next_period = %+v, want index %d", doc.NextPeriod, tt.wantNextIndex)
				}
			}
			if doc.State.RemainingSeconds != nil && *doc.State.RemainingSeconds < 0 {
				t.Fatal("remaining_seconds must be clamped to >= 0")
			}
			if doc.Meta.ScheduleRevision != 10 {
				t.Fatalf("meta.schedule_revision = %d, want 10", doc.Meta.ScheduleRevision)
			}
		})
	}
}

func TestBuildRemainingSeconds(t *testing.T) {
	builder, _ := setupBuilder(t)
	at(builder, "08:15")

	doc, err := builder.Build(context.Background(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	// 08:15 → 08:45 = 30 minutes.
	if doc.State.RemainingSeconds == nil || *doc.State.RemainingSeconds != 1800 {
		t.Fatalf("remaining_seconds = %v, want 1800", doc.State.RemainingSeconds)
	}
}

func TestBuildOutsideActiveWindow(t *testing.T) {
	builder, _ := setupBuilder(t)
	ctx := context.Background()

	at(builder, "05:00")
	doc, err := builder.Build(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State.Type != StateOff {
		t.Fatalf("pre-window state = %q, want off", doc.State.Type)
	}
	if doc.Meta.IsActiveWindow {
		t.Fatal("pre-window must not report active window")
	}
	// Smart wake-up: poll again no later than the window opening, capped.
	if doc.Settings.RefreshIntervalSec > 900 {
		t.Fatalf("refresh_interval_sec = %d, want <= 900", doc.Settings.RefreshIntervalSec)
	}

	at(builder, "13:00")
	doc, err = builder.Build(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State.Type != StateOff {
		t.Fatalf("post-window state = %q, want off", doc.State.Type)
	}
}

func TestBuildHoliday(t *testing.T) {
	builder, _ := setupBuilder(t)
	// 2026-02-13 is a Friday: no DaySchedule row.
	loc, _ := time.LoadLocation("Asia/Riyadh")
	builder.Now = func() time.Time { return time.Date(2026, 2, 13, 9, 0, 0, 0, loc) }

	doc, err := builder.Build(context.Background(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State.Type != StateOff {
		t.Fatalf("holiday state = %q, want off", doc.State.Type)
	}
	if doc.Meta.IsSchoolDay {
		t.Fatal("holiday must not be a school day")
	}
	if doc.Settings.RefreshIntervalSec != 900 {
		t.Fatalf("holiday refresh = %d, want 900", doc.Settings.RefreshIntervalSec)
	}
	if len(doc.DayPath) != 0 {
		t.Fatal("holiday day_path must be empty")
	}
}

func TestBuildListsAndNormalization(t *testing.T) {
	builder, db := setupBuilder(t)
	at(builder, "08:15")

	today := "2026-02-08"
	db.Create(&models.StandbyAssignment{SchoolID: 1, Date: today, PeriodIndex: 2, ClassName: "2/ب", Subject: "علوم", Teacher: "أ. خالد", IsActive: true})
	db.Create(&models.DutyAssignment{SchoolID: 1, Date: today, Teacher: "أ. ماجد", DutyType: "supervision", DutyLabel: "الإشراف اليومي", Location: "الساحة", IsActive: true})
	db.Create(&models.Announcement{SchoolID: 1, Title: "تنبيه", Body: "اجتماع غدا", IsActive: true})
	db.Create(&models.ClassLesson{SettingsID: 1, Weekday: 7, PeriodIndex: 1, ClassName: "1/أ", Subject: "رياضيات", Teacher: "أ. سعد"})

	doc, err := builder.Build(context.Background(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(doc.Standby) != 1 || doc.Standby[0].Teacher != "أ. خالد" {
		t.Fatalf("standby = %+v", doc.Standby)
	}
	if len(doc.Duty.Items) != 1 || doc.Duty.Items[0].DutyType != "supervision" {
		t.Fatalf("duty = %+v", doc.Duty)
	}
	if len(doc.Announcements) != 1 || doc.Announcements[0].Title != "تنبيه" {
		t.Fatalf("announcements = %+v", doc.Announcements)
	}
	if len(doc.PeriodClasses) != 1 {
		t.Fatalf("period_classes = %+v", doc.PeriodClasses)
	}

	// "default" theme normalizes away.
	if doc.Settings.Theme != "indigo" {
		t.Fatalf("theme = %q, want indigo", doc.Settings.Theme)
	}
	if doc.Meta.LocalDate != "2026-02-08" {
		t.Fatalf("local_date = %q", doc.Meta.LocalDate)
	}
}

func TestBuildUnknownSchool(t *testing.T) {
	builder, _ := setupBuilder(t)
	at(builder, "08:15")

	if _, err := builder.Build(context.Background(), 999, 1); err == nil {
		t.Fatal("unknown school must fail the build")
	}
}
