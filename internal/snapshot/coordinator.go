package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/store"
)

// ErrBuildUnavailable: cache miss, someone else holds the build lock, and no
// stale copy exists. The HTTP layer maps it to a 503 with no-store.
var ErrBuildUnavailable = errors.New("snapshot: build unavailable")

const (
	buildLockTTL = 10 * time.Second

	// How long a losing caller waits for the lock holder's write before
	// giving up.
	lockWaitTotal = 600 * time.Millisecond
	lockWaitStep  = 50 * time.Millisecond

	// Cache entries outlive their revision on purpose: they are the stale
	// fallback when a rebuild is blocked.
	snapTTL = 7 * 24 * time.Hour

	staleWarning = "البيانات المعروضة قد تكون غير محدثة"
)

// BuildFunc builds the document for (school, revision).
type BuildFunc func(ctx context.Context, schoolID uint, rev int64) (*Document, error)

// Result is a cache read ready for the HTTP layer.
type Result struct {
	Body     []byte
	ETag     string
	Revision int64
	Stale    bool
}

// cacheEntry is the stored envelope: canonical bytes plus their ETag, so a
// hit never re-serializes or re-hashes.
type cacheEntry struct {
	Revision int64           `json:"revision"`
	ETag     string          `json:"etag"`
	Body     json.RawMessage `json:"body"`
	BuiltAt  time.Time       `json:"built_at"`
}

// Coordinator serves snapshots from the store, building at most once per
// school at a time, and falls back to a stale revision when a build is
// already running elsewhere.
type Coordinator struct {
	store *store.Client
	build BuildFunc
}

func NewCoordinator(st *store.Client, build BuildFunc) *Coordinator {
	return &Coordinator{store: st, build: build}
}

// Get implements the read path: cache hit → single-flight build → stale
// fallback → short lock wait → ErrBuildUnavailable.
func (c *Coordinator) Get(ctx context.Context, schoolID uint, rev int64) (*Result, error) {
	key := store.SnapKey(schoolID, rev)

	if entry, err := c.read(ctx, key); err == nil {
		return entry.result(false), nil
	}

	acquired, err := c.store.SetNX(ctx, store.BuildLockKey(schoolID), "1", buildLockTTL)
	if err != nil {
		log.Printf("⚠️ build lock error for school %d: %v", schoolID, err)
	}

	if acquired {
		// Release on every exit path; a crash is covered by the TTL.
		defer func() {
			if derr := c.store.Del(context.WithoutCancel(ctx), store.BuildLockKey(schoolID)); derr != nil {
				log.Printf("⚠️ build lock release failed for school %d: %v", schoolID, derr)
			}
		}()
		return c.buildAndWrite(ctx, schoolID, rev, key)
	}

	// Someone else is building. Serve any stale revision rather than piling
	// onto the builder.
	if stale := c.staleLookup(ctx, schoolID, rev); stale != nil {
		return stale, nil
	}

	// No stale copy. Wait briefly for the lock holder's write, then re-read.
	if entry := c.waitFor(ctx, key); entry != nil {
		return entry.result(false), nil
	}
	return nil, ErrBuildUnavailable
}

// Invalidate drops the cache entry for one revision. Best-effort; used by
// the snapshot handler's debug-only nocache path.
func (c *Coordinator) Invalidate(ctx context.Context, schoolID uint, rev int64) {
	if err := c.store.Del(ctx, store.SnapKey(schoolID, rev)); err != nil {
		log.Printf("⚠️ snapshot invalidate failed for school %d rev %d: %v", schoolID, rev, err)
	}
}

func (c *Coordinator) buildAndWrite(ctx context.Context, schoolID uint, rev int64, key string) (*Result, error) {
	doc, err := c.build(ctx, schoolID, rev)
	if err != nil {
		return nil, fmt.Errorf("build school %d: %w", schoolID, err)
	}

	body, err := Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot school %d: %w", schoolID, err)
	}

	entry := cacheEntry{
		Revision: rev,
		ETag:     ETagFor(body),
		Body:     body,
		BuiltAt:  time.Now(),
	}
	raw, err := json.Marshal(&entry)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, string(raw), snapTTL); err != nil {
		// The doc is still good; the next caller rebuilds.
		log.Printf("⚠️ snapshot cache write failed for school %d: %v", schoolID, err)
	}

	return entry.result(false), nil
}

// staleLookup scans for any cached revision of this school and marks it
// stale. The newest available revision wins.
func (c *Coordinator) staleLookup(ctx context.Context, schoolID uint, wantRev int64) *Result {
	keys, err := c.store.ScanKeys(ctx, store.SnapPattern(schoolID))
	if err != nil || len(keys) == 0 {
		return nil
	}

	var best *cacheEntry
	for _, k := range keys {
		entry, rerr := c.read(ctx, k)
		if rerr != nil || entry.Revision == wantRev {
			continue
		}
		if best == nil || entry.Revision > best.Revision {
			best = entry
		}
	}
	if best == nil {
		return nil
	}

	// Re-mark the body: meta.is_stale travels inside the document, so the
	// ETag is recomputed over the mutated bytes.
	var doc Document
	if err := json.Unmarshal(best.Body, &doc); err != nil {
		return nil
	}
	doc.Meta.IsStale = true
	doc.Meta.StaleWarning = staleWarning
	body, err := Marshal(&doc)
	if err != nil {
		return nil
	}
	return &Result{
		Body:     body,
		ETag:     ETagFor(body),
		Revision: best.Revision,
		Stale:    true,
	}
}

func (c *Coordinator) waitFor(ctx context.Context, key string) *cacheEntry {
	deadline := time.Now().Add(lockWaitTotal)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(lockWaitStep):
		}
		if entry, err := c.read(ctx, key); err == nil {
			return entry
		}
	}
	return nil
}

func (c *Coordinator) read(ctx context.Context, key string) (*cacheEntry, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (e *cacheEntry) result(stale bool) *Result {
	return &Result{
		Body:     e.Body,
		ETag:     e.ETag,
		Revision: e.Revision,
		Stale:    stale,
	}
}
