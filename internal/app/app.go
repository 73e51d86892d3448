package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"barscan/internal/api"
	"barscan/internal/camera"
	"barscan/internal/camera/v4l2"
	"barscan/internal/catalog"
	"barscan/internal/config"
	"barscan/internal/decode"
	"barscan/internal/deps"
	"barscan/internal/forward"
	"barscan/internal/hotplug"
	"barscan/internal/logging"
	"barscan/internal/metrics"
	"barscan/internal/notifications"
	"barscan/internal/records"
	"barscan/internal/session"
	"barscan/internal/stream"
)

// Options controls which optional services Build wires.
type Options struct {
	// Device overrides cfg.Camera.Device for this run.
	Device string
	// Hotplug refreshes the device list on video4linux uevents.
	Hotplug bool
	// API serves the HTTP control surface when cfg.API.Bind is set.
	API bool

	// Camera backends; nil selects the V4L2 implementations.
	Permission camera.PermissionProvider
	Enumerator camera.Enumerator
	Provider   camera.StreamProvider
	Decoder    decode.Decoder
}

// App owns every long-lived component of a scanning process.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Session *session.Session
	Updates *session.UpdateHub
	Metrics *metrics.Collector

	store     records.Store
	decoder   *decode.Loop
	streams   *stream.Controller
	monitor   *hotplug.Monitor
	forwarder *forward.MQTT
	notifier  *notifications.Sink
	server    *api.Server
	started   bool
}

// Build wires the session and its collaborators from cfg. Initial device
// discovery failures are logged and reflected in the session snapshot
// rather than returned.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	logDependencySnapshot(logger, cfg)

	store, err := records.Open(ctx, cfg.Store.Backend)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Updates: session.NewUpdateHub(0),
		Metrics: metrics.New(),
		store:   store,
	}

	permission := opts.Permission
	if permission == nil {
		permission = v4l2.NewPermission()
	}
	enumerator := opts.Enumerator
	if enumerator == nil {
		enumerator = v4l2.NewEnumerator(logger)
	}
	provider := opts.Provider
	if provider == nil {
		provider = v4l2.NewProvider(v4l2.Options{
			FFmpegBinary:  cfg.Camera.FFmpegBinary,
			V4L2CtlBinary: cfg.Camera.V4L2CtlBinary,
			ProbeTimeout:  cfg.ProbeTimeout(),
			Logger:        logger,
		})
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = decode.NewZXing()
	}

	device := strings.TrimSpace(opts.Device)
	if device == "" {
		device = cfg.Camera.Device
	}
	var catalogOpts []catalog.Option
	if device != "" {
		catalogOpts = append(catalogOpts, catalog.WithOverride(device))
	}

	a.streams = stream.NewController(stream.Options{
		Provider: provider,
		Resolution: camera.Resolution{
			IdealWidth:  cfg.Camera.IdealWidth,
			IdealHeight: cfg.Camera.IdealHeight,
			MinWidth:    cfg.Camera.MinWidth,
			MinHeight:   cfg.Camera.MinHeight,
		},
		ReadyTimeout: cfg.ReadyTimeout(),
		LockDir:      cfg.Paths.RuntimeDir,
		Metrics:      a.Metrics,
		Logger:       logger,
	})
	a.decoder = decode.New(decode.Options{
		Decoder: decoder,
		Buffer:  cfg.Session.EventBuffer,
		Metrics: a.Metrics,
		Logger:  logger,
	})

	if cfg.MQTT.Enabled {
		fwd, err := forward.Connect(cfg.MQTT, cfg.MQTTConnectTimeout(), logger)
		if err != nil {
			logging.WarnWithContext(logger, "mqtt forwarding disabled", "mqtt_connect_failed",
				logging.Error(err),
				logging.String("broker", cfg.MQTT.Broker),
				logging.String(logging.FieldErrorHint, "check mqtt.broker and credentials"),
				logging.String(logging.FieldImpact, "accepted scans stay local"),
			)
		} else {
			a.forwarder = fwd
			a.Updates.AddSink(fwd)
		}
	}

	if cfg.Notify.NtfyTopic != "" {
		a.notifier = notifications.NewSink(notifications.NewService(cfg), cfg.Notify.Scans, logger)
		a.Updates.AddSink(a.notifier)
	}

	sess, err := session.Open(ctx, session.Deps{
		Catalog: catalog.New(permission, enumerator, logger, catalogOpts...),
		Streams: a.streams,
		Decoder: a.decoder,
		Store:   store,
		Updates: a.Updates,
		Metrics: a.Metrics,
		Logger:  logger,
	}, session.Options{
		Facing:   camera.Facing(cfg.Camera.Facing),
		Cooldown: cfg.Cooldown(),
		Feedback: cfg.Feedback(),
	})
	a.Session = sess
	if err != nil {
		logging.WarnWithContext(logger, "initial camera discovery failed", "camera_discovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, session.UserMessage(err)),
			logging.String(logging.FieldImpact, "scanning cannot start until a refresh succeeds"),
		)
	}

	if opts.Hotplug {
		a.monitor = hotplug.NewMonitor(sess, logger, 0)
	}
	if opts.API {
		server, err := api.New(api.Options{
			Bind:    cfg.API.Bind,
			Token:   cfg.API.Token,
			Session: sess,
			Updates: a.Updates,
			Metrics: a.Metrics.Handler(),
			Logger:  logger,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("create api server: %w", err)
		}
		a.server = server
	}
	return a, nil
}

// Start launches the background services: the hotplug monitor and the API
// listener. Both stop when ctx ends or Close runs.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	if err := a.monitor.Start(ctx); err != nil {
		return err
	}
	if err := a.server.Start(ctx); err != nil {
		a.monitor.Stop()
		return err
	}
	a.started = true
	return nil
}

// APIAddr returns the bound API address, or "" when the API is disabled.
func (a *App) APIAddr() string {
	return a.server.Addr()
}

// Close tears components down outside-in: inbound surfaces first, then the
// session (which releases the camera), then the outbound sinks and store.
func (a *App) Close() error {
	a.server.Stop()
	a.monitor.Stop()

	var errs []error
	if a.Session != nil {
		if err := a.Session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	if a.forwarder != nil {
		if err := a.forwarder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mqtt forwarder: %w", err))
		}
	}
	if a.notifier != nil {
		_ = a.notifier.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close record store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, s := range statuses {
		attrs = append(attrs, logging.Bool(strings.ReplaceAll(s.Name, "-", "_")+"_available", s.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, name := range deps.MissingRequired(statuses) {
		logging.WarnWithContext(logger, "required helper binary missing", "dependency_missing",
			logging.String("binary", name),
			logging.String(logging.FieldErrorHint, "install it or set its path in the [camera] config section"),
			logging.String(logging.FieldImpact, "camera capture will fail"),
		)
	}
}
