package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"barscan/internal/camera"
	"barscan/internal/logging"
	"barscan/internal/metrics"
)

const defaultReadyTimeout = 3 * time.Second

// ErrReleased reports that Release ran while Acquire was waiting for readiness.
var ErrReleased = errors.New("stream released during acquisition")

// Options configures a Controller.
type Options struct {
	Provider   camera.StreamProvider
	Resolution camera.Resolution
	// ReadyTimeout bounds the wait for the first frame before proceeding best-effort.
	ReadyTimeout time.Duration
	// LockDir holds per-device lock files. Empty disables cross-process locking.
	LockDir string
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Live is an acquired stream bound to its surface.
type Live struct {
	DeviceID    string
	Surface     *camera.Surface
	Constraints camera.Constraints
	// Fallback is set when only the minimal constraint set succeeded.
	Fallback bool
	// BestEffort is set when no frame arrived within the ready timeout.
	BestEffort bool
	Autofocus  bool

	stream   camera.Stream
	lock     *flock.Flock
	released sync.Once
	done     chan struct{}
	lost     error
}

// Done is closed once the stream has been released, either by Release or
// because capture ended on its own.
func (l *Live) Done() <-chan struct{} { return l.done }

// Err reports why capture ended on its own. It is nil while the stream is
// live and after a plain Release.
func (l *Live) Err() error {
	select {
	case <-l.done:
		return l.lost
	default:
		return nil
	}
}

// Controller holds at most one live stream.
type Controller struct {
	provider     camera.StreamProvider
	resolution   camera.Resolution
	readyTimeout time.Duration
	lockDir      string
	metrics      *metrics.Collector
	logger       *slog.Logger

	mu      sync.Mutex
	current *Live
}

// NewController constructs a stream controller.
func NewController(opts Options) *Controller {
	ready := opts.ReadyTimeout
	if ready <= 0 {
		ready = defaultReadyTimeout
	}
	return &Controller{
		provider:     opts.Provider,
		resolution:   opts.Resolution,
		readyTimeout: ready,
		lockDir:      strings.TrimSpace(opts.LockDir),
		metrics:      opts.Metrics,
		logger:       logging.NewComponentLogger(opts.Logger, "stream"),
	}
}

// Acquire releases any current stream, then opens deviceID. Cancelling ctx
// while waiting for readiness releases the new stream and returns ctx.Err().
func (c *Controller) Acquire(ctx context.Context, deviceID string, facing camera.Facing) (*Live, error) {
	c.Release()

	if strings.TrimSpace(deviceID) == "" {
		c.metrics.Acquisition(metrics.AcquireFailed)
		return nil, fmt.Errorf("%w: no camera selected", camera.ErrStream)
	}
	if facing == "" {
		facing = camera.FacingEnvironment
	}

	lock, err := c.lockDevice(deviceID)
	if err != nil {
		c.metrics.Acquisition(metrics.AcquireFailed)
		return nil, err
	}

	stream, constraints, fallback, err := c.open(ctx, deviceID, facing)
	if err != nil {
		unlock(lock)
		c.metrics.Acquisition(metrics.AcquireFailed)
		return nil, err
	}
	if fallback {
		c.metrics.Acquisition(metrics.AcquireFallback)
	} else {
		c.metrics.Acquisition(metrics.AcquireFull)
	}

	surface := camera.NewSurface()
	live := &Live{
		DeviceID:    deviceID,
		Surface:     surface,
		Constraints: constraints,
		Fallback:    fallback,
		Autofocus:   c.enableAutofocus(ctx, deviceID, stream),
		stream:      stream,
		lock:        lock,
		done:        make(chan struct{}),
	}
	stream.Attach(surface)

	c.mu.Lock()
	c.current = live
	c.mu.Unlock()
	go c.watch(live)

	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()
	select {
	case <-surface.Ready():
	case <-timer.C:
		live.BestEffort = true
		c.metrics.ReadyTimeout()
		c.logger.Warn("camera produced no frame before ready timeout; continuing best-effort",
			logging.String(logging.FieldDeviceID, deviceID),
			logging.Duration("ready_timeout", c.readyTimeout),
			logging.String(logging.FieldEventType, "stream_ready_timeout"),
			logging.String(logging.FieldErrorHint, "slow camera driver or covered lens"),
			logging.String(logging.FieldImpact, "decoding starts once frames arrive"),
		)
	case <-live.done:
		if err := live.Err(); err != nil {
			return nil, err
		}
		return nil, ErrReleased
	case <-ctx.Done():
		c.releaseLive(live, nil)
		return nil, ctx.Err()
	}

	c.logger.Info("camera stream acquired",
		logging.String(logging.FieldDeviceID, deviceID),
		logging.Bool("fallback", fallback),
		logging.Bool("autofocus", live.Autofocus),
		logging.Bool("best_effort", live.BestEffort),
	)
	return live, nil
}

// Release stops the current stream, if any. Safe to call repeatedly.
func (c *Controller) Release() {
	c.mu.Lock()
	live := c.current
	c.current = nil
	c.mu.Unlock()
	if live != nil {
		c.teardown(live, nil)
	}
}

// Current returns the live stream, or nil.
func (c *Controller) Current() *Live {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) releaseLive(live *Live, lost error) {
	c.mu.Lock()
	if c.current == live {
		c.current = nil
	}
	c.mu.Unlock()
	c.teardown(live, lost)
}

// watch releases live when its capture ends without a Release, closing the
// surface so readers stop waiting for frames.
func (c *Controller) watch(live *Live) {
	select {
	case <-live.done:
	case <-live.stream.Done():
		err := live.stream.Err()
		if err == nil {
			return
		}
		if !errors.Is(err, camera.ErrStream) {
			err = fmt.Errorf("%w: %w", camera.ErrStream, err)
		}
		c.metrics.StreamLost()
		logging.WarnWithContext(c.logger, "camera stream ended unexpectedly", "stream_lost",
			logging.String(logging.FieldDeviceID, live.DeviceID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reconnect the camera or close the application holding it"),
			logging.String(logging.FieldImpact, "scanning stopped"),
		)
		c.releaseLive(live, err)
	}
}

func (c *Controller) teardown(live *Live, lost error) {
	live.released.Do(func() {
		live.lost = lost
		for _, track := range live.stream.Tracks() {
			track.Stop()
		}
		live.stream.Stop()
		live.Surface.Close()
		unlock(live.lock)
		close(live.done)
		c.logger.Info("camera stream released", logging.String(logging.FieldDeviceID, live.DeviceID))
	})
}

func (c *Controller) open(ctx context.Context, deviceID string, facing camera.Facing) (camera.Stream, camera.Constraints, bool, error) {
	full := camera.FullConstraints(deviceID, facing, c.resolution)
	stream, err := c.provider.OpenStream(ctx, full)
	if err == nil {
		return stream, full, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, camera.Constraints{}, false, ctxErr
	}
	c.logger.Info("full constraints rejected; retrying with minimal constraints",
		logging.String(logging.FieldDeviceID, deviceID),
		logging.Error(err),
	)

	minimal := camera.MinimalConstraints(deviceID, facing)
	stream, err = c.provider.OpenStream(ctx, minimal)
	if err == nil {
		return stream, minimal, true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, camera.Constraints{}, false, ctxErr
	}
	if !errors.Is(err, camera.ErrStream) {
		err = fmt.Errorf("%w: %w", camera.ErrStream, err)
	}
	return nil, camera.Constraints{}, false, err
}

// enableAutofocus turns on continuous focus where advertised. Failures only
// cost sharpness, so they are logged at debug and otherwise ignored.
func (c *Controller) enableAutofocus(ctx context.Context, deviceID string, stream camera.Stream) bool {
	enabled := false
	for _, track := range stream.Tracks() {
		caps, ok := track.Capabilities()
		if !ok || !caps.Supports(camera.FocusContinuous) {
			continue
		}
		if err := track.ApplyConstraints(ctx, camera.Constraints{FocusMode: camera.FocusContinuous}); err != nil {
			c.logger.Debug("continuous autofocus not applied",
				logging.String(logging.FieldDeviceID, deviceID),
				logging.String("track", track.ID()),
				logging.Error(err),
			)
			continue
		}
		enabled = true
	}
	return enabled
}

func (c *Controller) lockDevice(deviceID string) (*flock.Flock, error) {
	if c.lockDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(c.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(c.lockDir, lockName(deviceID)))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is in use by another barscan process", camera.ErrStream, deviceID)
	}
	return lock, nil
}

func lockName(deviceID string) string {
	name := strings.Trim(strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(deviceID), "_")
	if name == "" {
		name = "camera"
	}
	return name + ".lock"
}

func unlock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}
