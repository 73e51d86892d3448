package hotplug

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"barscan/internal/logging"
	"barscan/internal/session"
)

const defaultSettle = 500 * time.Millisecond

// Refresher re-enumerates cameras.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Monitor listens for video4linux add/remove uevents and refreshes the camera
// list once a burst of events settles. Refreshes while capturing are skipped.
type Monitor struct {
	refresher Refresher
	logger    *slog.Logger
	settle    time.Duration

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	timer   *time.Timer
	done    sync.WaitGroup
}

// NewMonitor creates a hotplug monitor. A zero settle uses the default.
func NewMonitor(refresher Refresher, logger *slog.Logger, settle time.Duration) *Monitor {
	if refresher == nil {
		return nil
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Monitor{
		refresher: refresher,
		logger:    logging.NewComponentLogger(logger, "hotplug"),
		settle:    settle,
	}
}

// Start connects to the kernel uevent socket. Connection failures are logged
// and leave the monitor inactive; manual refresh still works.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; camera hotplug disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "netlink sockets may be blocked in containers"),
			logging.String(logging.FieldImpact, "refresh the camera list manually after plugging cameras"),
		)
		return nil
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	m.done.Add(1)
	go func() {
		defer m.done.Done()
		m.monitorLoop(ctx, conn, quit)
	}()

	m.logger.Info("hotplug monitor started", logging.String(logging.FieldEventType, "hotplug_monitor_started"))
	return nil
}

// Stop shuts down the monitor and cancels any pending refresh.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.quit)
	m.quit = nil
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.running = false
	m.mu.Unlock()

	m.done.Wait()
	m.logger.Info("hotplug monitor stopped", logging.String(logging.FieldEventType, "hotplug_monitor_stopped"))
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera hotplug may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=video4linux with ACTION=add|remove.
func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	m.logger.Debug("camera uevent",
		logging.String("action", string(uevent.Action)),
		logging.String(logging.FieldDeviceID, deviceName(uevent)),
	)
	m.schedule(ctx)
}

// schedule (re)arms the settle timer so a burst of uevents triggers a single
// refresh.
func (m *Monitor) schedule(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.settle, func() { m.refresh(ctx) })
}

func (m *Monitor) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := m.refresher.Refresh(ctx)
	switch {
	case err == nil:
		m.logger.Info("camera list refreshed after hotplug", logging.String(logging.FieldEventType, "hotplug_refresh"))
	case errors.Is(err, session.ErrBusy):
		m.logger.Debug("hotplug refresh skipped while capturing")
	case errors.Is(err, session.ErrClosed), errors.Is(err, context.Canceled):
	default:
		m.logger.Warn("hotplug refresh failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "hotplug_refresh_failed"),
			logging.String(logging.FieldErrorHint, session.UserMessage(err)),
			logging.String(logging.FieldImpact, "camera list may be stale"),
		)
	}
}

// deviceName returns the device node named by a uevent.
func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return "/dev/" + devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
