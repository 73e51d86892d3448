package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"barscan/internal/app"
	"barscan/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var device string
	var bind string
	var start bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run headless and serve the HTTP control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if b := strings.TrimSpace(bind); b != "" {
				cfg.API.Bind = b
			}
			if strings.TrimSpace(cfg.API.Bind) == "" {
				return errors.New("api.bind is not configured; set it in the config file or pass --bind")
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := ctx.buildApp(signalCtx, app.Options{Device: device, Hotplug: true, API: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Start(signalCtx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatusLine("API", statusOK, "listening on http://"+a.APIAddr(), shouldColorize(out)))
			if start {
				if err := a.Session.Start(signalCtx); err != nil {
					logging.WarnWithContext(a.Logger, "initial scan start failed", "session_start_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "start scanning via POST /api/session/start once the camera is available"),
						logging.String(logging.FieldImpact, "no frames are decoded until a start succeeds"),
					)
				}
			}

			<-signalCtx.Done()
			a.Logger.Info("barscan shutting down")
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Camera device to use (e.g. /dev/video2)")
	cmd.Flags().StringVar(&bind, "bind", "", "Override api.bind (host:port)")
	cmd.Flags().BoolVar(&start, "start", false, "Start scanning as soon as the server is up")
	return cmd
}
