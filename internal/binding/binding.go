package binding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/azzam1122112-dot/school-display/internal/models"
)

// Typed failures; HTTP maps them to 403, WS to close codes 4403/4408/4400.
var (
	ErrScreenUnknown  = errors.New("binding: screen token not found or inactive")
	ErrScreenBound    = errors.New("binding: screen bound to another device")
	ErrDeviceRequired = errors.New("binding: device id required")
)

// Service enforces the one-device-per-screen-token rule atomically.
type Service struct {
	db               *gorm.DB
	allowMultiDevice bool
}

func New(db *gorm.DB, allowMultiDevice bool) *Service {
	return &Service{db: db, allowMultiDevice: allowMultiDevice}
}

// BindAtomic binds deviceID to the screen behind token, or verifies an
// existing binding. Under concurrent binds exactly one device wins; losers
// get ErrScreenBound. Idempotent for the winner.
func (s *Service) BindAtomic(ctx context.Context, token, deviceID string) (*models.DisplayScreen, error) {
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}

	var screen models.DisplayScreen
	err := s.db.WithContext(ctx).
		Where("token = ? AND is_active = ?", token, true).
		First(&screen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScreenUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("binding lookup: %w", err)
	}

	// Multi-device mode skips enforcement entirely; the device is not
	// recorded either.
	if s.allowMultiDevice {
		return &screen, nil
	}

	if screen.BoundDeviceID != nil && *screen.BoundDeviceID == deviceID {
		return &screen, nil
	}
	if screen.BoundDeviceID != nil {
		return nil, ErrScreenBound
	}

	// Conditional update: only wins if nobody bound it since our read.
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.DisplayScreen{}).
		Where("id = ? AND bound_device_id IS NULL", screen.ID).
		Updates(map[string]any{
			"bound_device_id": deviceID,
			"bound_at":        now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("binding update: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// Lost the race — unless the winner was another request from this
		// same device.
		if err := s.db.WithContext(ctx).First(&screen, screen.ID).Error; err != nil {
			return nil, fmt.Errorf("binding re-read: %w", err)
		}
		if screen.BoundDeviceID != nil && *screen.BoundDeviceID == deviceID {
			return &screen, nil
		}
		return nil, ErrScreenBound
	}

	screen.BoundDeviceID = &deviceID
	screen.BoundAt = &now
	log.Printf("🔗 Screen %d bound to device %.8s…", screen.ID, deviceID)
	return &screen, nil
}

// Unbind clears a screen's binding. Admin recovery only.
func (s *Service) Unbind(ctx context.Context, screenID uint) error {
	res := s.db.WithContext(ctx).Model(&models.DisplayScreen{}).
		Where("id = ?", screenID).
		Updates(map[string]any{
			"bound_device_id": nil,
			"bound_at":        nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrScreenUnknown
	}
	log.Printf("🔓 Screen %d unbound", screenID)
	return nil
}

// TouchLastSeen records screen activity. Best-effort, throttling is left to
// the caller.
func (s *Service) TouchLastSeen(ctx context.Context, screenID uint) {
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.DisplayScreen{}).
		Where("id = ?", screenID).
		UpdateColumn("last_seen", now).Error; err != nil {
		log.Printf("⚠️ last_seen update failed for screen %d: %v", screenID, err)
	}
}
