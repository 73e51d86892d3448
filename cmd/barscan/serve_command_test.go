package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"barscan/internal/api"
)

func TestServeExposesSessionAPI(t *testing.T) {
	env := setupCLITestEnv(t, "USB Rear Camera")
	out := &syncBuffer{}
	cmd := newRootCommandWith(env.configure)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", env.configPath, "serve", "--bind", "127.0.0.1:0", "--start"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	waitFor(t, 3*time.Second, func() bool { return strings.Contains(out.String(), "listening on http://") })
	output := out.String()
	addr := output[strings.Index(output, "http://"):]
	addr = strings.TrimSpace(strings.SplitN(addr, "\n", 2)[0])

	var status api.SessionStatus
	waitFor(t, 3*time.Second, func() bool {
		resp, err := http.Get(addr + "/api/session")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}
		return status.State == "scanning" && status.Records == 1
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not exit after cancel")
	}
	if live := env.provider.LiveStreams(); live != 0 {
		t.Fatalf("live streams after shutdown = %d", live)
	}
}

func TestServeRequiresBind(t *testing.T) {
	env := setupCLITestEnv(t, "Camera")
	env.cfg.API.Bind = ""
	writeTestConfig(t, env.configPath, env.cfg)
	if _, err := runCLI(t, env, []string{"serve"}, ""); err == nil || !strings.Contains(err.Error(), "api.bind") {
		t.Fatalf("expected bind error, got %v", err)
	}
}

func TestWatchFollowsServe(t *testing.T) {
	env := setupCLITestEnv(t, "USB Rear Camera")
	serveOut := &syncBuffer{}
	serve := newRootCommandWith(env.configure)
	serve.SetOut(serveOut)
	serve.SetErr(io.Discard)
	serve.SetArgs([]string{"--config", env.configPath, "serve", "--bind", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- serve.ExecuteContext(ctx) }()
	waitFor(t, 3*time.Second, func() bool { return strings.Contains(serveOut.String(), "listening on http://") })
	output := serveOut.String()
	addr := strings.TrimSpace(strings.SplitN(output[strings.Index(output, "http://"):], "\n", 2)[0])

	watchOut := &syncBuffer{}
	watch := newRootCommandWith(env.configure)
	watch.SetOut(watchOut)
	watch.SetErr(io.Discard)
	watch.SetArgs([]string{"--config", env.configPath, "watch", "--addr", addr, "--start"})
	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan error, 1)
	go func() { watchDone <- watch.ExecuteContext(watchCtx) }()

	waitFor(t, 5*time.Second, func() bool { return strings.Contains(watchOut.String(), "PKG-001 (QR_CODE)") })
	requireContains(t, watchOut.String(), "Session:")

	stopWatch()
	if err := <-watchDone; err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()
	if err := <-serveDone; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestWatchWithoutServer(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env, []string{"watch", "--addr", "127.0.0.1:1"}, "")
	if err == nil || !strings.Contains(err.Error(), "barscan serve") {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
