package camera

import (
	"context"
	"errors"
	"image"
	"slices"
)

var (
	// ErrPermissionDenied reports that the platform refused camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNoDevicesFound reports an empty video input enumeration.
	ErrNoDevicesFound = errors.New("no cameras found")
	// ErrStream reports that a live stream could not be opened with any constraint set.
	ErrStream = errors.New("camera stream unavailable")
	// ErrSurfaceClosed is returned by Surface reads after the owning stream was released.
	ErrSurfaceClosed = errors.New("camera surface closed")
)

// Device is an enumerated video input. Identity is ID.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// RawDevice is a device descriptor as reported by the enumeration provider.
// Label may be empty when the platform withholds it.
type RawDevice struct {
	ID    string
	Label string
	Kind  string
}

// KindVideoInput marks capture-capable descriptors.
const KindVideoInput = "videoinput"

// Facing is a front/rear optics preference.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// FocusMode names a track focus mode.
type FocusMode string

const (
	FocusContinuous FocusMode = "continuous"
	FocusManual     FocusMode = "manual"
)

// Resolution carries ideal and lower-bound frame sizes. Zero values mean no preference.
type Resolution struct {
	IdealWidth  int
	IdealHeight int
	MinWidth    int
	MinHeight   int
}

// Constraints describes the capture session a provider should open.
type Constraints struct {
	DeviceID   string
	Facing     Facing
	Resolution Resolution
	FocusMode  FocusMode
}

// FullConstraints pins the device, facing, and resolution.
func FullConstraints(deviceID string, facing Facing, res Resolution) Constraints {
	return Constraints{DeviceID: deviceID, Facing: facing, Resolution: res}
}

// MinimalConstraints carries only the device and facing hint.
func MinimalConstraints(deviceID string, facing Facing) Constraints {
	return Constraints{DeviceID: deviceID, Facing: facing}
}

// Minimal reports whether no resolution preference is set.
func (c Constraints) Minimal() bool {
	return c.Resolution == Resolution{}
}

// Capabilities lists what a track can be configured to do.
type Capabilities struct {
	FocusModes []FocusMode
}

// Supports reports whether mode is advertised.
func (c Capabilities) Supports(mode FocusMode) bool {
	return slices.Contains(c.FocusModes, mode)
}

// FrameSink receives decoded frames from a live stream.
type FrameSink interface {
	Publish(img image.Image)
}

// Track is one media track of a live stream.
type Track interface {
	ID() string
	// Capabilities returns false when the track does not support introspection.
	Capabilities() (Capabilities, bool)
	ApplyConstraints(ctx context.Context, c Constraints) error
	Stop()
}

// Stream is a live capture handle. Stop must be idempotent.
type Stream interface {
	Tracks() []Track
	Attach(sink FrameSink)
	Stop()
	// Done is closed once capture has ended, through Stop or on its own.
	Done() <-chan struct{}
	// Err reports why capture ended on its own. It is nil while capture runs
	// and after Stop.
	Err() error
}

// PermissionProvider opens a minimal capture session to obtain access.
type PermissionProvider interface {
	RequestPermission(ctx context.Context, c Constraints) (Stream, error)
}

// Enumerator lists the video inputs currently present.
type Enumerator interface {
	EnumerateVideoInputs(ctx context.Context) ([]RawDevice, error)
}

// StreamProvider opens live streams.
type StreamProvider interface {
	OpenStream(ctx context.Context, c Constraints) (Stream, error)
}
