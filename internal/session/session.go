package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"barscan/internal/camera"
	"barscan/internal/catalog"
	"barscan/internal/decode"
	"barscan/internal/logging"
	"barscan/internal/metrics"
	"barscan/internal/records"
	"barscan/internal/stream"
)

const (
	defaultCooldown = 1500 * time.Millisecond
	defaultFeedback = 900 * time.Millisecond
)

// Discoverer enumerates cameras and picks a preferred one.
type Discoverer interface {
	Discover(ctx context.Context) (catalog.Result, error)
}

// StreamAcquirer owns the single live camera stream.
type StreamAcquirer interface {
	Acquire(ctx context.Context, deviceID string, facing camera.Facing) (*stream.Live, error)
	Release()
}

// DecodeRunner drives the decode loop against a live surface.
type DecodeRunner interface {
	Begin(ctx context.Context, deviceID string, surface *camera.Surface, handler decode.Handler) (*decode.Subscription, error)
	End()
}

// Deps are the collaborators a Session drives.
type Deps struct {
	Catalog Discoverer
	Streams StreamAcquirer
	Decoder DecodeRunner
	Store   records.Store
	Updates *UpdateHub
	Metrics *metrics.Collector
	Logger  *slog.Logger
	// Clock defaults to the system clock.
	Clock Clock
}

// Options tunes session policy.
type Options struct {
	Facing camera.Facing
	// Cooldown silences repeat reads of an already accepted value.
	Cooldown time.Duration
	// Feedback is how long transient statuses stay before reverting.
	Feedback time.Duration
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State        string          `json:"state"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
	Device       *camera.Device  `json:"device,omitempty"`
	Devices      []camera.Device `json:"devices"`
	Records      int             `json:"records"`
	Capturing    bool            `json:"capturing"`
	Fallback     bool            `json:"fallback,omitempty"`
	BestEffort   bool            `json:"best_effort,omitempty"`
	Autofocus    bool            `json:"autofocus,omitempty"`
	DecodeFaults int             `json:"decode_faults"`
}

// Session coordinates discovery, stream ownership, decoding, and the
// duplicate policy. All exported methods are safe for concurrent use.
type Session struct {
	catalog  Discoverer
	streams  StreamAcquirer
	decoder  DecodeRunner
	store    records.Store
	updates  *UpdateHub
	metrics  *metrics.Collector
	logger   *slog.Logger
	clock    Clock
	facing   camera.Facing
	cooldown time.Duration
	feedback time.Duration

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	// startMu serializes acquisition and teardown so a new stream is never
	// opened while an older one is still being torn down.
	startMu sync.Mutex

	mu       sync.Mutex
	state    State
	status   string
	errMsg   string
	devices  []camera.Device
	selected camera.Device
	live     *stream.Live
	closed   bool
	// epoch changes on every start, stop, and close. Work tagged with an
	// older epoch is stale and must not touch session state.
	epoch       uint64
	startCancel context.CancelFunc
	faults      int

	lastEventAt   time.Time
	hasLastEvent  bool
	feedbackTimer Timer
	feedbackToken uint64
}

// New constructs an idle session.
func New(deps Deps, opts Options) *Session {
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	facing := opts.Facing
	if facing == "" {
		facing = camera.FacingEnvironment
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	feedback := opts.Feedback
	if feedback <= 0 {
		feedback = defaultFeedback
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		catalog:    deps.Catalog,
		streams:    deps.Streams,
		decoder:    deps.Decoder,
		store:      deps.Store,
		updates:    deps.Updates,
		metrics:    deps.Metrics,
		logger:     logging.NewComponentLogger(deps.Logger, "session"),
		clock:      clock,
		facing:     facing,
		cooldown:   cooldown,
		feedback:   feedback,
		lifeCtx:    ctx,
		lifeCancel: cancel,
		state:      Idle,
		status:     StatusIdle,
	}
	s.metrics.SetState(Idle.String(), StateNames())
	return s
}

// Open constructs a session and runs the initial device discovery. The
// session is usable even when discovery fails; the error is also reflected
// in its snapshot.
func Open(ctx context.Context, deps Deps, opts Options) (*Session, error) {
	s := New(deps, opts)
	return s, s.Refresh(ctx)
}

// Refresh re-enumerates cameras. The current selection is kept when the
// device is still present, otherwise the catalog's preferred device wins.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Capturing() || s.state == LoadingDevices {
		s.mu.Unlock()
		return ErrBusy
	}
	s.setStateLocked(LoadingDevices, StatusLoading)
	s.mu.Unlock()

	result, err := s.catalog.Discover(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err != nil {
		if errors.Is(err, camera.ErrNoDevicesFound) {
			s.devices = nil
			s.selected = camera.Device{}
			s.publishLocked(Update{Kind: UpdateDevices})
		}
		s.failLocked("camera discovery failed", err)
		return err
	}
	s.devices = result.Devices
	if !slices.ContainsFunc(s.devices, func(d camera.Device) bool { return d.ID == s.selected.ID }) {
		s.selected = result.Preferred
	}
	s.errMsg = ""
	s.logger.Info("cameras discovered",
		logging.Int("count", len(s.devices)),
		logging.String(logging.FieldDeviceID, s.selected.ID),
		logging.String("label", s.selected.Label),
	)
	s.publishLocked(Update{Kind: UpdateDevices})
	s.setStateLocked(Idle, StatusIdle)
	return nil
}

// Start acquires the selected camera and begins decoding. Calling Start while
// already capturing restarts capture. A Stop that lands while the camera is
// still being acquired makes Start release it and return ErrCancelled.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	restart := s.state.Capturing()
	s.mu.Unlock()
	if restart {
		s.logger.Info("restarting capture")
		s.Stop()
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	needDevices := len(s.devices) == 0
	s.mu.Unlock()
	if needDevices {
		if err := s.Refresh(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != Idle && s.state != Stopped {
		s.mu.Unlock()
		return ErrBusy
	}
	device := s.selected
	s.epoch++
	epoch := s.epoch
	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.startCancel = cancel
	s.faults = 0
	s.errMsg = ""
	s.setStateLocked(Starting, StatusStarting)
	s.mu.Unlock()

	live, err := s.streams.Acquire(startCtx, device.ID, s.facing)

	s.mu.Lock()
	s.startCancel = nil
	if s.epoch != epoch {
		s.mu.Unlock()
		if err == nil {
			s.streams.Release()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.finishCancelledLocked()
	}
	if err != nil {
		if ctx.Err() != nil {
			s.setStateLocked(Stopped, StatusStopped)
			s.mu.Unlock()
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		s.failLocked("camera start failed", err)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	_, err = s.decoder.Begin(s.lifeCtx, device.ID, live.Surface, s.handlerFor(epoch))
	if err != nil {
		s.streams.Release()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			return s.finishCancelledLocked()
		}
		s.failLocked("decode loop failed to start", err)
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.decoder.End()
		s.streams.Release()
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.finishCancelledLocked()
	}
	s.live = live
	s.setStateLocked(Scanning, StatusReady)
	s.mu.Unlock()
	go s.watchStream(epoch, live)
	return nil
}

// watchStream fails the session when the stream of the given start ends on
// its own, for example because the camera was unplugged.
func (s *Session) watchStream(epoch uint64, live *stream.Live) {
	select {
	case <-s.lifeCtx.Done():
		return
	case <-live.Done():
	}
	err := live.Err()
	if err == nil {
		return
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()
	s.mu.Lock()
	if s.closed || s.epoch != epoch || s.state != Scanning {
		s.mu.Unlock()
		return
	}
	s.epoch++
	s.failLocked("camera stream lost", fmt.Errorf("%w: %w", ErrStreamLost, err))
	s.mu.Unlock()
	s.decoder.End()
	s.streams.Release()
}

func (s *Session) finishCancelledLocked() error {
	if s.closed {
		return ErrClosed
	}
	s.logger.Info("camera start cancelled by stop")
	s.setStateLocked(Stopped, StatusStopped)
	return ErrCancelled
}

// Stop ends capture. From Scanning it tears down the decode loop and then the
// stream before returning. From Starting it only records the request; the
// pending Start honours it once acquisition resolves.
func (s *Session) Stop() {
	s.mu.Lock()
	switch s.state {
	case Starting:
		s.epoch++
		if s.startCancel != nil {
			s.startCancel()
		}
		s.mu.Unlock()
	case Scanning:
		s.mu.Unlock()
		s.stopScanning()
	default:
		s.mu.Unlock()
	}
}

// stopScanning holds startMu for the whole teardown, so a Start racing with
// it cannot acquire until the old decode loop and stream are gone.
func (s *Session) stopScanning() {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.state != Scanning {
		s.mu.Unlock()
		return
	}
	s.epoch++
	s.live = nil
	s.cancelFeedbackLocked()
	s.setStateLocked(Stopped, StatusStopped)
	s.mu.Unlock()

	s.decoder.End()
	s.streams.Release()
}

// Close stops capture, waits for any in-flight start, and makes every later
// call fail with ErrClosed. It does not close the record store.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.epoch++
	if s.startCancel != nil {
		s.startCancel()
	}
	s.cancelFeedbackLocked()
	wasCapturing := s.state.Capturing()
	s.live = nil
	if wasCapturing {
		s.setStateLocked(Stopped, StatusStopped)
	}
	s.mu.Unlock()

	s.decoder.End()
	s.streams.Release()
	// Wait out a pending Start so its stream is released before returning.
	s.startMu.Lock()
	s.startMu.Unlock() //nolint:staticcheck

	s.lifeCancel()
	s.logger.Debug("session closed", logging.Bool("was_capturing", wasCapturing))
	return nil
}

// SelectDevice chooses the camera used by the next Start.
func (s *Session) SelectDevice(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state.Capturing() || s.state == LoadingDevices {
		return ErrBusy
	}
	idx := slices.IndexFunc(s.devices, func(d camera.Device) bool { return d.ID == deviceID })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	s.selected = s.devices[idx]
	s.logger.Info("camera selected",
		logging.String(logging.FieldDeviceID, s.selected.ID),
		logging.String("label", s.selected.Label),
	)
	s.publishLocked(Update{Kind: UpdateDevices})
	return nil
}

// Devices returns the last enumerated devices.
func (s *Session) Devices() []camera.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.devices)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:        s.state.String(),
		Status:       s.status,
		Error:        s.errMsg,
		Devices:      slices.Clone(s.devices),
		Capturing:    s.state.Capturing(),
		DecodeFaults: s.faults,
	}
	if s.devices == nil {
		snap.Devices = []camera.Device{}
	}
	if s.selected.ID != "" {
		device := s.selected
		snap.Device = &device
	}
	if s.live != nil {
		snap.Fallback = s.live.Fallback
		snap.BestEffort = s.live.BestEffort
		snap.Autofocus = s.live.Autofocus
	}
	if n, err := s.store.Len(s.lifeCtx); err == nil {
		snap.Records = n
	}
	return snap
}

// Records returns accepted records in acceptance order.
func (s *Session) Records(ctx context.Context) ([]records.Record, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.store.All(ctx)
}

// Remove deletes one accepted record.
func (s *Session) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info("scan record removed", logging.String(logging.FieldRecordID, id))
	s.publishLocked(Update{Kind: UpdateRemoved, RecordID: id})
	return nil
}

// Clear deletes every accepted record.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("scan records cleared")
	s.publishLocked(Update{Kind: UpdateCleared})
	return nil
}

// ExportText returns accepted texts joined by newlines.
func (s *Session) ExportText(ctx context.Context) (string, error) {
	recs, err := s.Records(ctx)
	if err != nil {
		return "", err
	}
	return records.ExportText(recs), nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) handlerFor(epoch uint64) decode.Handler {
	return func(ev decode.Event) {
		switch ev.Kind {
		case decode.Found:
			s.onFound(epoch, ev)
		case decode.Error:
			s.onFault(epoch)
		}
	}
}

// onFound applies the duplicate policy. The store is consulted at event time
// and is the only source of truth for whether a value was already accepted.
func (s *Session) onFound(epoch uint64, ev decode.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.state != Scanning {
		return
	}
	now := s.clock.Now()
	sinceLast := now.Sub(s.lastEventAt)
	hadEvent := s.hasLastEvent
	s.lastEventAt, s.hasLastEvent = now, true

	_, exists, err := s.store.Lookup(s.lifeCtx, ev.Text)
	if err != nil {
		logging.WarnWithContext(s.logger, "scan record lookup failed", "store_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "record store unavailable"),
			logging.String(logging.FieldImpact, "decoded value ignored"),
		)
		return
	}

	if !exists {
		rec := records.NewRecord(ev.Text, ev.Format, now)
		added, err := s.store.Append(s.lifeCtx, rec)
		if err != nil {
			logging.WarnWithContext(s.logger, "scan record append failed", "store_append_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "record store unavailable"),
				logging.String(logging.FieldImpact, "decoded value not recorded"),
			)
			return
		}
		if added {
			s.metrics.Accepted()
			s.logger.Info("scan accepted",
				logging.String(logging.FieldRecordID, rec.ID),
				logging.String("format", rec.Format),
				logging.String(logging.FieldDeviceID, ev.DeviceID),
			)
			s.publishLocked(Update{Kind: UpdateRecord, Record: &rec})
			s.flashLocked(StatusDetected)
			return
		}
	}

	if hadEvent && sinceLast < s.cooldown {
		s.metrics.Duplicate(metrics.DuplicateSuppressed)
		return
	}
	s.metrics.Duplicate(metrics.DuplicateNotified)
	s.logger.Debug("duplicate scan", logging.String("format", ev.Format))
	s.flashLocked(StatusAlreadyScanned)
}

func (s *Session) onFault(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.faults++
}

// flashLocked shows a transient status and schedules the revert to ready.
func (s *Session) flashLocked(status string) {
	s.cancelFeedbackLocked()
	s.status = status
	s.publishStateLocked()
	s.feedbackToken++
	token := s.feedbackToken
	s.feedbackTimer = s.clock.AfterFunc(s.feedback, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.feedbackToken != token || s.state != Scanning {
			return
		}
		s.feedbackTimer = nil
		s.status = StatusReady
		s.publishStateLocked()
	})
}

func (s *Session) cancelFeedbackLocked() {
	s.feedbackToken++
	if s.feedbackTimer != nil {
		s.feedbackTimer.Stop()
		s.feedbackTimer = nil
	}
}

func (s *Session) failLocked(msg string, err error) {
	hint := "retry; check the camera connection"
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		hint = "add the user to the video group or fix device permissions"
	case errors.Is(err, camera.ErrNoDevicesFound):
		hint = "connect a camera and refresh"
	case errors.Is(err, ErrStreamLost):
		hint = "reconnect the camera and start scanning again"
	case errors.Is(err, camera.ErrStream):
		hint = "close other applications using the camera"
	}
	logging.WarnWithContext(s.logger, msg, "session_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "session returned to idle"),
	)
	s.cancelFeedbackLocked()
	s.live = nil
	s.errMsg = UserMessage(err)
	s.setStateLocked(Failed, s.errMsg)
	s.setStateLocked(Idle, s.errMsg)
}

func (s *Session) setStateLocked(state State, status string) {
	prev := s.state
	s.state = state
	s.status = status
	if prev != state {
		s.logger.Debug("session state changed",
			logging.String("from", prev.String()),
			logging.String(logging.FieldSessionState, state.String()),
		)
		s.metrics.SetState(state.String(), StateNames())
	}
	s.publishStateLocked()
}

func (s *Session) publishStateLocked() {
	s.publishLocked(Update{Kind: UpdateState})
}

func (s *Session) publishLocked(u Update) {
	if s.updates == nil {
		return
	}
	u.State = s.state.String()
	u.Status = s.status
	u.Error = s.errMsg
	s.updates.Publish(u)
}
