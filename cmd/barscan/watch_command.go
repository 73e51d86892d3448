package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"barscan/internal/api"
	"barscan/internal/records"
	"barscan/internal/session"
)

const watchRetryDelay = 2 * time.Second

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var start bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running `barscan serve` instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(addr) == "" {
				addr = cfg.API.Bind
			}
			client, err := api.NewClient(addr, cfg.API.Token)
			if err != nil {
				return fmt.Errorf("api address: %w", err)
			}
			if client == nil {
				return errors.New("api.bind is not configured; pass --addr")
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			console := newScanConsole(out, shouldColorize(out))
			status, err := client.Session(signalCtx)
			if err != nil {
				if api.IsUnavailable(err) {
					return fmt.Errorf("no barscan API at %s; start one with `barscan serve`", addr)
				}
				return err
			}
			console.println(renderStatusLine("Session", stateKind(status.State, status.Status, status.Error), statusMessage(status), console.colorize))
			var since uint64
			if resp, err := client.Updates(signalCtx, 0, 0, false); err == nil {
				since = resp.Next
			}
			if start && !status.Capturing {
				if _, err := client.Start(signalCtx); err != nil {
					return err
				}
			}
			return followRemote(signalCtx, client, console, since)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "API address (defaults to api.bind)")
	cmd.Flags().BoolVar(&start, "start", false, "Start scanning on the remote session first")
	return cmd
}

// followRemote prints remote updates after since until ctx ends, retrying when the
// server goes away.
func followRemote(ctx context.Context, client *api.Client, console *scanConsole, since uint64) error {
	for {
		resp, err := client.Updates(ctx, since, 0, true)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			console.println(renderStatusLine("API", statusWarn, err.Error(), console.colorize))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(watchRetryDelay):
			}
			continue
		}
		since = resp.Next
		for _, u := range resp.Updates {
			if line, ok := console.render(fromRemote(u)); ok {
				console.println(line)
			}
		}
	}
}

func fromRemote(u api.Update) session.Update {
	out := session.Update{
		Sequence: u.Sequence,
		Kind:     session.UpdateKind(u.Kind),
		State:    u.State,
		Status:   u.Status,
		Error:    u.Error,
		RecordID: u.RecordID,
	}
	if u.Record != nil {
		out.Record = &records.Record{ID: u.Record.ID, Text: u.Record.Text, Format: u.Record.Format}
	}
	return out
}

func statusMessage(status api.SessionStatus) string {
	message := status.Status
	if status.Error != "" {
		message = status.Error
	}
	if status.Device != nil {
		message = fmt.Sprintf("%s (%s, %d scans)", message, status.Device.Label, status.Records)
	}
	return message
}
