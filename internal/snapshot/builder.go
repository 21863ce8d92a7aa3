package snapshot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/azzam1122112-dot/school-display/internal/config"
	"github.com/azzam1122112-dot/school-display/internal/models"
)

// AssetResolver turns a storage key into a URL the display can fetch.
type AssetResolver interface {
	PublicURL(key string) string
}

// Builder produces the full snapshot document for one school in a single
// pass. Read-only; every query projects only the fields the document uses.
type Builder struct {
	db     *gorm.DB
	assets AssetResolver
	cfg    *config.Config

	// Now is injectable so tests can pin the clock.
	Now func() time.Time
}

func NewBuilder(db *gorm.DB, assets AssetResolver, cfg *config.Config) *Builder {
	return &Builder{db: db, assets: assets, cfg: cfg, Now: time.Now}
}

type timelineBlock struct {
	kind    string // "period" or "break"
	index   int
	label   string
	class   string
	subject string
	teacher string
	start   time.Time
	end     time.Time
}

// Build assembles the document at the given revision. Partial upstream data
// degrades to empty lists, never to an error; only a missing school fails.
func (b *Builder) Build(ctx context.Context, schoolID uint, rev int64) (*Document, error) {
	var settings models.SchoolSettings
	err := b.db.WithContext(ctx).Preload("School").
		Where("school_id = ?", schoolID).First(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("load settings for school %d: %w", schoolID, err)
	}

	loc := b.location(settings.TimezoneName)
	now := b.Now().In(loc)
	today := now.Format("2006-01-02")
	weekday := isoWeekday(now)

	doc := &Document{
		Settings:      b.settingsPayload(&settings),
		DayPath:       []DayPathItem{},
		Standby:       []StandbyItem{},
		PeriodClasses: []PeriodClassItem{},
		Duty:          Duty{Items: []DutyItem{}},
		Announcements: []AnnouncementItem{},
		Excellence:    []ExcellenceItem{},
		DateInfo:      DateInfo{Gregorian: gregorianInfo(now), Hijri: hijriInfo(now)},
		Now:           now.Format(time.RFC3339),
		Meta: Meta{
			SchoolID:         schoolID,
			ScheduleRevision: rev,
			WSEnabled:        b.cfg.Display.WSEnabled,
			LocalDate:        today,
		},
	}

	timeline := b.loadTimeline(ctx, settings.ID, weekday, now, loc)
	if timeline == nil {
		// Holiday / no schedule: strict stop, slow polling.
		doc.State = offState("لا يوجد جدول لليوم")
		doc.Settings.RefreshIntervalSec = 900
		b.fillDateLists(ctx, doc, &settings, now, weekday)
		return doc, nil
	}
	doc.Meta.IsSchoolDay = true

	if len(timeline) == 0 {
		doc.State = offState("لا يوجد مسار زمني لليوم")
		doc.Settings.RefreshIntervalSec = 900
		b.fillDateLists(ctx, doc, &settings, now, weekday)
		return doc, nil
	}

	sort.Slice(timeline, func(i, j int) bool { return timeline[i].start.Before(timeline[j].start) })

	for _, block := range timeline {
		doc.DayPath = append(doc.DayPath, DayPathItem{
			From:  block.start.Format("15:04"),
			To:    block.end.Format("15:04"),
			Label: block.label,
			Kind:  block.kind,
		})
	}

	// Active window: first start - 30m .. last end + 30m. Outside it the
	// display sleeps and polls slowly, waking just before the day starts.
	first := timeline[0]
	var last timelineBlock
	for _, block := range timeline {
		if block.end.After(last.end) {
			last = block
		}
	}
	activeStart := first.start.Add(-30 * time.Minute)
	activeEnd := last.end.Add(30 * time.Minute)

	switch {
	case now.Before(activeStart):
		doc.State = offState("خارج وقت الدوام")
		wait := int(activeStart.Sub(now).Seconds())
		doc.Settings.RefreshIntervalSec = clampInt(wait, 10, 900)
	case now.After(activeEnd):
		doc.State = offState("انتهى الدوام")
		doc.Settings.RefreshIntervalSec = 900
	default:
		doc.Meta.IsActiveWindow = true
		b.deriveState(doc, timeline, now)
	}

	b.fillDateLists(ctx, doc, &settings, now, weekday)
	return doc, nil
}

// deriveState computes state/current_period/next_period within the window.
func (b *Builder) deriveState(doc *Document, timeline []timelineBlock, now time.Time) {
	var current, next *timelineBlock
	for i := range timeline {
		block := &timeline[i]
		if !now.Before(block.start) && now.Before(block.end) {
			current = block
			if i+1 < len(timeline) {
				next = &timeline[i+1]
			}
			break
		}
		if now.Before(block.start) {
			next = block
			break
		}
	}

	switch {
	case current != nil:
		remaining := remainingSeconds(now, current.end)
		doc.State = State{
			Type:             current.kind,
			Label:            current.label,
			From:             current.start.Format("15:04"),
			To:               current.end.Format("15:04"),
			RemainingSeconds: &remaining,
		}
		if current.kind == StatePeriod {
			doc.State.PeriodIndex = current.index
		}
		doc.CurrentPeriod = blockInfo(current)
		if doc.CurrentPeriod != nil && doc.CurrentPeriod.Kind != StatePeriod {
			// current_period is non-null only during a teaching block
			doc.CurrentPeriod = nil
		}
	case next != nil && now.Before(timeline[0].start):
		remaining := remainingSeconds(now, timeline[0].start)
		doc.State = State{
			Type:             StateBefore,
			Label:            "قبل بداية اليوم الدراسي",
			From:             timeline[0].start.Format("15:04"),
			To:               timeline[0].end.Format("15:04"),
			RemainingSeconds: &remaining,
		}
	case next != nil:
		// Unscheduled gap between two blocks: render it as a break that
		// counts down to the next block.
		remaining := remainingSeconds(now, next.start)
		doc.State = State{
			Type:             StateBreak,
			Label:            "بين الحصص",
			From:             now.Format("15:04"),
			To:               next.start.Format("15:04"),
			RemainingSeconds: &remaining,
		}
	default:
		// Past the last block but still inside the active window.
		var lastBlock timelineBlock
		for _, block := range timeline {
			if block.end.After(lastBlock.end) {
				lastBlock = block
			}
		}
		zero := 0
		doc.State = State{
			Type:             StateAfter,
			Label:            "انتهى اليوم الدراسي",
			From:             lastBlock.start.Format("15:04"),
			To:               lastBlock.end.Format("15:04"),
			RemainingSeconds: &zero,
		}
		next = nil
	}

	doc.NextPeriod = blockInfo(next)
}

// loadTimeline returns nil when no active day schedule exists, an empty slice
// when the day exists but has no blocks.
func (b *Builder) loadTimeline(ctx context.Context, settingsID uint, weekday int, now time.Time, loc *time.Location) []timelineBlock {
	var day models.DaySchedule
	err := b.db.WithContext(ctx).
		Where("settings_id = ? AND weekday = ? AND is_active = ?", settingsID, weekday, true).
		First(&day).Error
	if err != nil {
		return nil
	}

	timeline := []timelineBlock{}

	var periods []models.Period
	if err := b.db.WithContext(ctx).
		Select("period_index", "subject", "class_name", "teacher", "starts_at", "ends_at").
		Where("day_id = ? AND is_active = ?", day.ID, true).
		Find(&periods).Error; err != nil {
		log.Printf("⚠️ period fetch failed for day %d: %v", day.ID, err)
	}
	for _, p := range periods {
		start, ok1 := combineHHMM(now, p.StartsAt, loc)
		end, ok2 := combineHHMM(now, p.EndsAt, loc)
		if !ok1 || !ok2 || !end.After(start) {
			continue
		}
		label := p.Subject
		if label == "" {
			label = "حصة"
		}
		timeline = append(timeline, timelineBlock{
			kind:    StatePeriod,
			index:   p.Index,
			label:   label,
			class:   p.ClassName,
			subject: p.Subject,
			teacher: p.Teacher,
			start:   start,
			end:     end,
		})
	}

	var breaks []models.Break
	if err := b.db.WithContext(ctx).
		Select("label", "starts_at", "duration_min").
		Where("day_id = ?", day.ID).
		Find(&breaks).Error; err != nil {
		log.Printf("⚠️ break fetch failed for day %d: %v", day.ID, err)
	}
	for _, brk := range breaks {
		start, ok := combineHHMM(now, brk.StartsAt, loc)
		if !ok || brk.DurationMin <= 0 {
			continue
		}
		label := brk.Label
		if label == "" {
			label = "استراحة"
		}
		timeline = append(timeline, timelineBlock{
			kind:  StateBreak,
			label: label,
			start: start,
			end:   start.Add(time.Duration(brk.DurationMin) * time.Minute),
		})
	}

	return timeline
}

// fillDateLists loads the date-scoped panels: standby, period classes, duty,
// announcements, excellence.
func (b *Builder) fillDateLists(ctx context.Context, doc *Document, settings *models.SchoolSettings, now time.Time, weekday int) {
	today := now.Format("2006-01-02")

	var standby []models.StandbyAssignment
	if err := b.db.WithContext(ctx).
		Select("period_index", "class_name", "subject", "teacher").
		Where("school_id = ? AND date = ? AND is_active = ?", settings.SchoolID, today, true).
		Order("period_index").
		Find(&standby).Error; err == nil {
		for _, s := range standby {
			doc.Standby = append(doc.Standby, StandbyItem{
				PeriodIndex: s.PeriodIndex,
				Class:       s.ClassName,
				Subject:     s.Subject,
				Teacher:     s.Teacher,
			})
		}
	}

	var lessons []models.ClassLesson
	if err := b.db.WithContext(ctx).
		Select("period_index", "class_name", "subject", "teacher").
		Where("settings_id = ? AND weekday = ?", settings.ID, weekday).
		Order("period_index").
		Find(&lessons).Error; err == nil {
		for _, l := range lessons {
			doc.PeriodClasses = append(doc.PeriodClasses, PeriodClassItem{
				PeriodIndex: l.PeriodIndex,
				Class:       l.ClassName,
				Subject:     l.Subject,
				Teacher:     l.Teacher,
			})
		}
	}

	var duty []models.DutyAssignment
	if err := b.db.WithContext(ctx).
		Select("teacher", "duty_type", "duty_label", "location").
		Where("school_id = ? AND date = ? AND is_active = ?", settings.SchoolID, today, true).
		Order("priority, id desc").
		Find(&duty).Error; err == nil {
		for _, d := range duty {
			doc.Duty.Items = append(doc.Duty.Items, DutyItem{
				Teacher:   d.Teacher,
				DutyType:  d.DutyType,
				DutyLabel: d.DutyLabel,
				Location:  d.Location,
			})
		}
	}

	var notices []models.Announcement
	if err := b.db.WithContext(ctx).
		Select("id", "title", "body").
		Where("school_id = ? AND is_active = ?", settings.SchoolID, true).
		Where("starts_on IS NULL OR starts_on <= ?", today).
		Where("ends_on IS NULL OR ends_on >= ?", today).
		Order("id desc").
		Find(&notices).Error; err == nil {
		for _, n := range notices {
			doc.Announcements = append(doc.Announcements, AnnouncementItem{
				ID:    strconv.FormatUint(uint64(n.ID), 10),
				Title: n.Title,
				Body:  n.Body,
			})
		}
	}

	var excellence []models.ExcellenceEntry
	if err := b.db.WithContext(ctx).
		Select("student_name", "reason", "photo_key").
		Where("school_id = ? AND is_active = ?", settings.SchoolID, true).
		Order("id desc").
		Find(&excellence).Error; err == nil {
		for _, e := range excellence {
			item := ExcellenceItem{Name: e.StudentName, Reason: e.Reason}
			if e.PhotoKey != "" && b.assets != nil {
				item.Image = b.assets.PublicURL(e.PhotoKey)
			}
			doc.Excellence = append(doc.Excellence, item)
		}
	}
}

func (b *Builder) settingsPayload(settings *models.SchoolSettings) Settings {
	logoURL := ""
	if settings.School.LogoKey != "" && b.assets != nil {
		logoURL = b.assets.PublicURL(settings.School.LogoKey)
	}
	return Settings{
		Name:               settings.School.Name,
		LogoURL:            logoURL,
		Theme:              normalizeTheme(settings.Theme),
		SchoolType:         settings.SchoolType,
		DisplayAccentColor: settings.DisplayAccentColor,
		TimezoneName:       settings.TimezoneName,
		RefreshIntervalSec: orDefaultInt(settings.RefreshIntervalSec, 30),
		StandbyScrollSpeed: orDefaultFloat(settings.StandbyScrollSpeed, 0.8),
		PeriodsScrollSpeed: orDefaultFloat(settings.PeriodsScrollSpeed, 0.5),
		FeaturedPanel:      orDefaultStr(settings.FeaturedPanel, "excellence"),
	}
}

func (b *Builder) location(name string) *time.Location {
	if name == "" {
		name = b.cfg.Display.DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc, err = time.LoadLocation(b.cfg.Display.DefaultTimezone)
		if err != nil {
			return time.UTC
		}
	}
	return loc
}

// --- helpers ---

func blockInfo(block *timelineBlock) *PeriodInfo {
	if block == nil {
		return nil
	}
	return &PeriodInfo{
		Index:   block.index,
		Kind:    block.kind,
		Class:   block.class,
		Subject: block.subject,
		Teacher: block.teacher,
		Label:   block.label,
		From:    block.start.Format("15:04"),
		To:      block.end.Format("15:04"),
	}
}

func offState(label string) State {
	return State{Type: StateOff, Label: label}
}

// remainingSeconds clamps to >= 0 and rounds to the nearest second.
func remainingSeconds(now, until time.Time) int {
	secs := int(until.Sub(now).Round(time.Second).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

func combineHHMM(day time.Time, hhmm string, loc *time.Location) (time.Time, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), true
}

func normalizeTheme(raw string) string {
	switch raw {
	case "", "default", "dark", "light":
		return "indigo"
	}
	return raw
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
