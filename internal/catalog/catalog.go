package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"barscan/internal/camera"
	"barscan/internal/logging"
)

// Probe resolution hint used while requesting permission.
const (
	probeWidth  = 640
	probeHeight = 480
)

var preferredKeywords = []string{"back", "rear", "environment"}

// Result is one discovery outcome. Preferred is always an element of Devices.
type Result struct {
	Devices   []camera.Device
	Preferred camera.Device
}

// Catalog enumerates devices through the platform collaborators.
type Catalog struct {
	permission camera.PermissionProvider
	enumerator camera.Enumerator
	override   string
	logger     *slog.Logger
}

// Option customizes a Catalog.
type Option func(*Catalog)

// WithOverride makes deviceID the preferred device whenever it is enumerated.
func WithOverride(deviceID string) Option {
	return func(c *Catalog) {
		c.override = strings.TrimSpace(deviceID)
	}
}

// New constructs a catalog.
func New(permission camera.PermissionProvider, enumerator camera.Enumerator, logger *slog.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		permission: permission,
		enumerator: enumerator,
		logger:     logging.NewComponentLogger(logger, "catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover requests access, enumerates inputs, and selects a preferred device.
func (c *Catalog) Discover(ctx context.Context) (Result, error) {
	probe, err := c.permission.RequestPermission(ctx, camera.Constraints{
		Facing:     camera.FacingEnvironment,
		Resolution: camera.Resolution{IdealWidth: probeWidth, IdealHeight: probeHeight},
	})
	if err != nil {
		return Result{}, fmt.Errorf("request camera permission: %w", err)
	}
	stopStream(probe)

	raw, err := c.enumerator.EnumerateVideoInputs(ctx)
	if err != nil {
		return Result{}, err
	}
	devices := make([]camera.Device, 0, len(raw))
	for _, r := range raw {
		if r.Kind != "" && r.Kind != camera.KindVideoInput {
			continue
		}
		label := strings.TrimSpace(r.Label)
		if label == "" {
			label = fmt.Sprintf("Camera %d", len(devices)+1)
		}
		devices = append(devices, camera.Device{ID: r.ID, Label: label})
	}
	if len(devices) == 0 {
		return Result{}, camera.ErrNoDevicesFound
	}

	preferred := SelectPreferred(devices)
	if c.override != "" {
		if dev, ok := Find(devices, c.override); ok {
			preferred = dev
		} else {
			c.logger.Warn("configured camera not present; using discovered default",
				logging.String(logging.FieldDeviceID, c.override),
				logging.String(logging.FieldEventType, "camera_override_missing"),
				logging.String(logging.FieldErrorHint, "check camera.device in config or run barscan devices"),
				logging.String("fallback_device", preferred.ID),
			)
		}
	}

	c.logger.Debug("cameras discovered",
		logging.Int("count", len(devices)),
		logging.String(logging.FieldDeviceID, preferred.ID),
	)
	return Result{Devices: devices, Preferred: preferred}, nil
}

// SelectPreferred applies the default-device heuristic: the first device whose
// label contains "back", "rear", or "environment" (case-insensitive); failing
// that the last device when there are several, since rear cameras tend to be
// enumerated last; otherwise the only device. The heuristic is best-effort:
// platforms do not reliably report which way a camera faces. devices must be
// non-empty.
func SelectPreferred(devices []camera.Device) camera.Device {
	fold := cases.Fold()
	for _, dev := range devices {
		label := fold.String(dev.Label)
		for _, keyword := range preferredKeywords {
			if strings.Contains(label, keyword) {
				return dev
			}
		}
	}
	if len(devices) > 1 {
		return devices[len(devices)-1]
	}
	return devices[0]
}

// Find returns the device with id.
func Find(devices []camera.Device, id string) (camera.Device, bool) {
	for _, dev := range devices {
		if dev.ID == id {
			return dev, true
		}
	}
	return camera.Device{}, false
}

func stopStream(s camera.Stream) {
	if s == nil {
		return
	}
	for _, track := range s.Tracks() {
		track.Stop()
	}
	s.Stop()
}
