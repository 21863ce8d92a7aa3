package revision

import (
	"context"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/azzam1122112-dot/school-display/internal/models"
	"github.com/azzam1122112-dot/school-display/internal/store"
)

const (
	// Any burst of edits within this window produces at most one bump.
	debounceTTL = 2 * time.Second

	// Long TTL; the school_settings column restores the value if Redis
	// is flushed.
	revTTL = 7 * 24 * time.Hour
)

// Registry is the authoritative per-school schedule revision counter.
// Redis carries the hot copy, the settings row the durable one.
type Registry struct {
	store *store.Client
	db    *gorm.DB
}

func New(st *store.Client, db *gorm.DB) *Registry {
	return &Registry{store: st, db: db}
}

// Get returns the current revision for a school. A cold store falls back to
// the database and repopulates the cache. Errors degrade to revision 0: the
// client treats any mismatch as "changed", so this is safe.
func (r *Registry) Get(ctx context.Context, schoolID uint) int64 {
	if schoolID == 0 {
		return 0
	}

	v, err := r.store.Get(ctx, store.RevKey(schoolID))
	if err == nil {
		if rev, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			return rev
		}
	}

	rev := r.dbRevision(schoolID)
	if err := r.store.Set(ctx, store.RevKey(schoolID), strconv.FormatInt(rev, 10), revTTL); err != nil {
		log.Printf("⚠️ rev cache repopulate failed for school %d: %v", schoolID, err)
	}
	return rev
}

// BumpDebounced increments the revision unless another bump for this school
// happened within the debounce window. Returns the new revision and whether
// this call performed the bump. Never returns an error: a registry failure
// must not break the upstream write.
func (r *Registry) BumpDebounced(ctx context.Context, schoolID uint) (int64, bool) {
	if schoolID == 0 {
		return 0, false
	}

	ok, err := r.store.SetNX(ctx, store.BumpLockKey(schoolID), "1", debounceTTL)
	if err != nil {
		log.Printf("⚠️ bump lock failed for school %d: %v", schoolID, err)
		return 0, false
	}
	if !ok {
		return 0, false
	}

	// Write-through: column first (durable), then cache.
	if err := r.db.Model(&models.SchoolSettings{}).
		Where("school_id = ?", schoolID).
		UpdateColumn("schedule_revision", gorm.Expr("schedule_revision + 1")).Error; err != nil {
		log.Printf("⚠️ durable revision bump failed for school %d: %v", schoolID, err)
	}
	durable := r.dbRevision(schoolID)

	// A flushed store must continue from the durable value, not restart the
	// counter at zero. We hold the bump lock, so SetNX-populating before the
	// INCR cannot race another bump.
	if durable > 0 {
		created, err := r.store.SetNX(ctx, store.RevKey(schoolID), strconv.FormatInt(durable, 10), revTTL)
		if err != nil {
			log.Printf("⚠️ rev repopulate failed for school %d: %v", schoolID, err)
		}
		if err == nil && created {
			return durable, true
		}
	}

	rev, err := r.store.Incr(ctx, store.RevKey(schoolID))
	if err != nil {
		log.Printf("⚠️ rev incr failed for school %d: %v", schoolID, err)
		// Fall back to the column we just bumped.
		return durable, true
	}
	// A stale (but present) cached value can still lag the column; never
	// hand out less than the durable revision.
	if rev < durable {
		if serr := r.store.Set(ctx, store.RevKey(schoolID), strconv.FormatInt(durable, 10), revTTL); serr != nil {
			log.Printf("⚠️ rev reconcile failed for school %d: %v", schoolID, serr)
		}
		rev = durable
	}
	if err := r.store.Expire(ctx, store.RevKey(schoolID), revTTL); err != nil {
		log.Printf("⚠️ rev expire failed for school %d: %v", schoolID, err)
	}
	return rev, true
}

// Set overwrites the revision. Administrative recovery only.
func (r *Registry) Set(ctx context.Context, schoolID uint, rev int64) error {
	if err := r.db.Model(&models.SchoolSettings{}).
		Where("school_id = ?", schoolID).
		UpdateColumn("schedule_revision", rev).Error; err != nil {
		return err
	}
	return r.store.Set(ctx, store.RevKey(schoolID), strconv.FormatInt(rev, 10), revTTL)
}

func (r *Registry) dbRevision(schoolID uint) int64 {
	var settings models.SchoolSettings
	err := r.db.Select("schedule_revision").
		Where("school_id = ?", schoolID).
		First(&settings).Error
	if err != nil {
		return 0
	}
	return settings.ScheduleRevision
}
