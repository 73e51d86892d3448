package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"barscan/internal/camera"
	"barscan/internal/records"
	"barscan/internal/session"
)

// scanConsole serializes terminal output between the command loop and the
// update follower.
type scanConsole struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool

	lastState string
	lastError string
}

func newScanConsole(out io.Writer, colorize bool) *scanConsole {
	return &scanConsole{out: out, colorize: colorize}
}

func (c *scanConsole) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *scanConsole) reportErr(err error) {
	if err == nil {
		return
	}
	c.println(renderStatusLine("Error", statusError, session.UserMessage(err), c.colorize))
}

// follow prints session updates from since until ctx ends.
func (c *scanConsole) follow(ctx context.Context, hub *session.UpdateHub, since uint64) {
	for {
		updates, next, err := hub.Fetch(ctx, since, 0, true)
		if err != nil {
			return
		}
		since = next
		for _, u := range updates {
			if line, ok := c.render(u); ok {
				c.println(line)
			}
		}
	}
}

// render turns an update into a console line. State updates are shown when
// the state or error changes and for duplicate feedback; the transient
// "detected" flash is covered by the record line.
func (c *scanConsole) render(u session.Update) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch u.Kind {
	case session.UpdateRecord:
		if u.Record == nil {
			return "", false
		}
		return renderStatusLine("Scanned", statusOK, fmt.Sprintf("%s (%s)", u.Record.Text, u.Record.Format), c.colorize), true
	case session.UpdateRemoved:
		return renderStatusLine("Removed", statusInfo, u.RecordID, c.colorize), true
	case session.UpdateCleared:
		return renderStatusLine("Cleared", statusInfo, "all scans removed", c.colorize), true
	case session.UpdateState:
		duplicate := u.Status == session.StatusAlreadyScanned
		changed := u.State != c.lastState || u.Error != c.lastError
		c.lastState, c.lastError = u.State, u.Error
		if !changed && !duplicate {
			return "", false
		}
		message := u.Status
		if u.Error != "" {
			message = u.Error
		}
		return renderStatusLine("Session", stateKind(u.State, u.Status, u.Error), message, c.colorize), true
	default:
		return "", false
	}
}

func (c *scanConsole) printDevices(snap session.Snapshot) {
	if len(snap.Devices) == 0 {
		message := snap.Error
		if message == "" {
			message = session.UserMessage(camera.ErrNoDevicesFound)
		}
		c.println(renderStatusLine("Cameras", statusWarn, message, c.colorize))
		return
	}
	c.println(devicesTable(snap))
}

func (c *scanConsole) printRecords(recs []records.Record) {
	if len(recs) == 0 {
		c.println(renderStatusLine("Scans", statusInfo, "none yet", c.colorize))
		return
	}
	rows := make([][]string, 0, len(recs))
	for i, rec := range recs {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			rec.Text,
			rec.Format,
			rec.Timestamp.Local().Format("15:04:05"),
		})
	}
	c.println(renderTable([]string{"#", "Value", "Format", "Time"}, rows, []columnAlignment{alignRight}))
}
