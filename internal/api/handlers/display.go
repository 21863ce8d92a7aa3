package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/azzam1122112-dot/school-display/internal/binding"
	"github.com/azzam1122112-dot/school-display/internal/config"
	"github.com/azzam1122112-dot/school-display/internal/models"
	"github.com/azzam1122112-dot/school-display/internal/revision"
	"github.com/azzam1122112-dot/school-display/internal/snapshot"
)

// DisplayHandler serves the two hot endpoints every screen polls: status
// (cheap "did anything change?") and snapshot (the full document).
type DisplayHandler struct {
	registry    *revision.Registry
	coordinator *snapshot.Coordinator
	binding     *binding.Service
	cfg         *config.Config
}

func NewDisplayHandler(reg *revision.Registry, coord *snapshot.Coordinator, bind *binding.Service, cfg *config.Config) *DisplayHandler {
	return &DisplayHandler{registry: reg, coordinator: coord, binding: bind, cfg: cfg}
}

// Status handles GET /api/display/status/:token/?v=<rev>&dk=<device>.
// Never cached; the client sends a cache-buster query param on top.
func (h *DisplayHandler) Status(c *gin.Context) {
	setServerTime(c)
	c.Header("Cache-Control", "no-store")

	screen, ok := h.authenticate(c)
	if !ok {
		return
	}

	rev := h.registry.Get(c.Request.Context(), screen.SchoolID)
	c.Header("X-Schedule-Revision", strconv.FormatInt(rev, 10))

	clientRev, _ := strconv.ParseInt(c.DefaultQuery("v", "0"), 10, 64)
	if clientRev > 0 && clientRev == rev {
		c.Status(http.StatusNotModified)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedule_revision": rev,
		"fetch_required":    true,
	})
}

// Snapshot handles GET /api/display/snapshot/:token/?rev=&dk=&transition=&nocache=.
func (h *DisplayHandler) Snapshot(c *gin.Context) {
	setServerTime(c)

	screen, ok := h.authenticate(c)
	if !ok {
		c.Header("Cache-Control", "no-store")
		return
	}

	ctx := c.Request.Context()
	rev := h.registry.Get(ctx, screen.SchoolID)
	c.Header("X-Schedule-Revision", strconv.FormatInt(rev, 10))

	// nocache is a debug tool only; in production it is ignored so a
	// misbehaving client cannot force rebuild storms.
	if c.Query("nocache") == "1" && h.cfg.Server.Debug {
		h.coordinator.Invalidate(ctx, screen.SchoolID, rev)
	}

	result, err := h.coordinator.Get(ctx, screen.SchoolID, rev)
	if err != nil {
		// Empty body, no-store: nothing here may be cached or rendered.
		c.Header("Cache-Control", "no-store")
		if errors.Is(err, snapshot.ErrBuildUnavailable) {
			c.Header("Retry-After", "3")
		}
		c.Status(http.StatusServiceUnavailable)
		return
	}

	c.Header("ETag", result.ETag)

	// Fresh snapshots may sit on an edge cache for a few seconds; the token
	// in the path acts as the cache key. Stale and transition responses
	// must not.
	transition := c.Query("transition") == "1"
	if !result.Stale && !transition {
		c.Header("Cache-Control",
			fmt.Sprintf("public, max-age=0, s-maxage=%d", h.cfg.Display.SnapshotEdgeMaxAge))
	} else {
		c.Header("Cache-Control", "no-store")
	}

	if match := c.GetHeader("If-None-Match"); match != "" && match == result.ETag {
		c.Status(http.StatusNotModified)
		return
	}

	// Detached: the write must not be canceled with the request.
	go h.binding.TouchLastSeen(context.Background(), screen.ID)

	c.Data(http.StatusOK, "application/json; charset=utf-8", result.Body)
}

// authenticate resolves the screen token and enforces device binding. On
// failure it writes the typed 403 and returns ok=false.
func (h *DisplayHandler) authenticate(c *gin.Context) (*models.DisplayScreen, bool) {
	token := c.Param("token")
	deviceID := c.Query("dk")

	screen, err := h.binding.BindAtomic(c.Request.Context(), token, deviceID)
	if err == nil {
		return screen, true
	}

	c.Header("Cache-Control", "no-store")
	switch {
	case errors.Is(err, binding.ErrDeviceRequired):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "device_required"})
	case errors.Is(err, binding.ErrScreenUnknown):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "screen_unknown"})
	case errors.Is(err, binding.ErrScreenBound):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "screen_bound"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "bad_request"})
	}
	return nil, false
}

// setServerTime stamps every display response so clients can correct clock
// drift without fetching a body.
func setServerTime(c *gin.Context) {
	c.Header("X-Server-Time-MS", strconv.FormatInt(time.Now().UnixMilli(), 10))
}
