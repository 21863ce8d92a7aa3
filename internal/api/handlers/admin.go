package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/azzam1122112-dot/school-display/internal/binding"
	"github.com/azzam1122112-dot/school-display/internal/revision"
)

// AdminHandler exposes the recovery operations: force a revision, force a
// refresh, and unbind a screen from its device. All are JWT-protected.
type AdminHandler struct {
	registry *revision.Registry
	binding  *binding.Service
	signals  *revision.Signals
}

func NewAdminHandler(reg *revision.Registry, bind *binding.Service, signals *revision.Signals) *AdminHandler {
	return &AdminHandler{registry: reg, binding: bind, signals: signals}
}

type setRevisionRequest struct {
	SchoolID uint  `json:"school_id" binding:"required"`
	Revision int64 `json:"revision"`
}

// SetRevision overwrites a school's revision counter. Used after a store
// reset or when a school's displays must be forced to refetch.
func (h *AdminHandler) SetRevision(c *gin.Context) {
	var req setRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request"})
		return
	}

	if err := h.registry.Set(c.Request.Context(), req.SchoolID, req.Revision); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"school_id": req.SchoolID, "schedule_revision": req.Revision})
}

// ForceRefresh bumps a school through the normal debounced path, so its
// displays refetch without an upstream edit ("refresh button").
func (h *AdminHandler) ForceRefresh(c *gin.Context) {
	schoolID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request"})
		return
	}
	h.signals.Touch(uint(schoolID))
	c.JSON(http.StatusAccepted, gin.H{"school_id": schoolID})
}

// UnbindScreen releases a screen's device binding.
func (h *AdminHandler) UnbindScreen(c *gin.Context) {
	screenID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request"})
		return
	}

	if err := h.binding.Unbind(c.Request.Context(), uint(screenID)); err != nil {
		if errors.Is(err, binding.ErrScreenUnknown) {
			c.JSON(http.StatusNotFound, gin.H{"code": "screen_unknown"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"screen_id": screenID, "bound_device_id": nil})
}
