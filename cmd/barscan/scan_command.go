package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"barscan/internal/app"
	"barscan/internal/clipboard"
	"barscan/internal/export"
	"barscan/internal/records"
	"barscan/internal/session"
)

const scanHelp = `Commands:
  s          start scanning
  x          stop scanning
  r          refresh the camera list
  cam N      use camera N from the list
  l          list scans
  d N        delete scan N
  e          print scans, one per line
  c          clear all scans
  h          show this help
  q          quit`

type scanOptions struct {
	device   string
	start    bool
	copy     bool
	xlsxPath string
	serve    bool
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan interactively from the terminal",
		Long: "Open the preferred camera and print each new barcode as it is decoded.\n" +
			"Type commands on stdin to control the session; scans are exported when the command exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := ctx.buildApp(signalCtx, app.Options{
				Device:  opts.device,
				Hotplug: true,
				API:     opts.serve,
			})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Start(signalCtx); err != nil {
				return err
			}
			return runScan(signalCtx, cmd, a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.device, "device", "d", "", "Camera device to use (e.g. /dev/video2)")
	cmd.Flags().BoolVar(&opts.start, "start", true, "Start scanning immediately")
	cmd.Flags().BoolVar(&opts.copy, "copy", false, "Copy scans to the clipboard on exit")
	cmd.Flags().StringVar(&opts.xlsxPath, "xlsx", "", "Write scans to an Excel workbook on exit")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "Also serve the HTTP control API while scanning")
	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, a *app.App, opts scanOptions) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	console := newScanConsole(out, colorize)

	followCtx, stopFollow := context.WithCancel(ctx)
	followDone := make(chan struct{})
	since := a.Updates.Latest()
	go func() {
		defer close(followDone)
		console.follow(followCtx, a.Updates, since)
	}()
	defer func() {
		stopFollow()
		<-followDone
	}()

	if addr := a.APIAddr(); addr != "" {
		console.println(renderStatusLine("API", statusInfo, "listening on http://"+addr, colorize))
	}
	console.printDevices(a.Session.Snapshot())
	console.println(scanHelp)

	shell := &scanShell{console: console, sess: a.Session}
	if opts.start {
		shell.start(ctx)
	}

	done := make(chan struct{})
	lines := readLines(cmd.InOrStdin(), done)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if quit := shell.run(ctx, line); quit {
				break loop
			}
		}
	}
	close(done)
	shell.stop()

	// Records must be read before the deferred Close rejects them.
	recs, err := a.Session.Records(context.Background())
	if err != nil {
		return fmt.Errorf("read scans: %w", err)
	}
	stopFollow()
	<-followDone
	return finishScan(context.Background(), console, recs, opts, a)
}

// scanShell runs the interactive commands. Starts run in the background so
// a stop typed while the camera opens still reaches the session.
type scanShell struct {
	console *scanConsole
	sess    *session.Session
	starts  sync.WaitGroup
}

func (sh *scanShell) start(ctx context.Context) {
	sh.starts.Add(1)
	go func() {
		defer sh.starts.Done()
		sh.console.reportErr(sh.sess.Start(ctx))
	}()
}

// stop ends capture and waits for background starts. A start that had not
// yet reached the session when the first Stop ran is stopped again.
func (sh *scanShell) stop() {
	sh.sess.Stop()
	sh.starts.Wait()
	sh.sess.Stop()
}

func (sh *scanShell) run(ctx context.Context, line string) bool {
	console, sess := sh.console, sh.sess
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "q", "quit", "exit":
		return true
	case "s", "start":
		sh.start(ctx)
	case "x", "stop":
		sess.Stop()
	case "r", "refresh":
		if err := sess.Refresh(ctx); err != nil {
			console.reportErr(err)
			return false
		}
		console.printDevices(sess.Snapshot())
	case "cam":
		devices := sess.Devices()
		idx, ok := parseIndex(fields, len(devices))
		if !ok {
			console.println(renderStatusLine("Camera", statusWarn, fmt.Sprintf("expected a number between 1 and %d", len(devices)), console.colorize))
			return false
		}
		if err := sess.SelectDevice(devices[idx].ID); err != nil {
			console.reportErr(err)
			return false
		}
		console.printDevices(sess.Snapshot())
	case "l", "list":
		recs, err := sess.Records(ctx)
		if err != nil {
			console.reportErr(err)
			return false
		}
		console.printRecords(recs)
	case "d", "del", "delete":
		recs, err := sess.Records(ctx)
		if err != nil {
			console.reportErr(err)
			return false
		}
		idx, ok := parseIndex(fields, len(recs))
		if !ok {
			console.println(renderStatusLine("Delete", statusWarn, fmt.Sprintf("expected a number between 1 and %d", len(recs)), console.colorize))
			return false
		}
		console.reportErr(sess.Remove(ctx, recs[idx].ID))
	case "e", "export":
		text, err := sess.ExportText(ctx)
		if err != nil {
			console.reportErr(err)
			return false
		}
		console.println(text)
	case "c", "clear":
		console.reportErr(sess.Clear(ctx))
	case "h", "help", "?":
		console.println(scanHelp)
	default:
		console.println(renderStatusLine("Command", statusWarn, fmt.Sprintf("unknown command %q (h for help)", fields[0]), console.colorize))
	}
	return false
}

func finishScan(ctx context.Context, console *scanConsole, recs []records.Record, opts scanOptions, a *app.App) error {
	for _, line := range renderSectionHeader(fmt.Sprintf("Scans (%d)", len(recs)), console.colorize) {
		console.println(line)
	}
	if len(recs) > 0 {
		console.println(records.ExportText(recs))
	}

	var errs []error
	if path := strings.TrimSpace(opts.xlsxPath); path != "" {
		if err := export.WriteXLSX(path, recs); err != nil {
			errs = append(errs, err)
		} else {
			console.println(renderStatusLine("Workbook", statusOK, path, console.colorize))
		}
	}
	if opts.copy && len(recs) > 0 {
		terminal, _ := console.out.(*os.File)
		method, err := clipboard.New(terminal, a.Logger).Copy(ctx, records.ExportText(recs))
		if err != nil {
			errs = append(errs, err)
		} else {
			console.println(renderStatusLine("Clipboard", statusOK, "copied via "+string(method), console.colorize))
		}
	}
	return errors.Join(errs...)
}

// readLines streams stdin lines until EOF or until done is closed. A reader
// blocked in Read on an open stdin still lingers until the next line arrives.
func readLines(r io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// parseIndex reads a 1-based index from fields[1] and returns it 0-based.
func parseIndex(fields []string, n int) (int, bool) {
	if len(fields) < 2 {
		return 0, false
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}
