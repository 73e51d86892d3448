package v4l2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sys/unix"

	"barscan/internal/camera"
)

// Permission verifies the process may open a capture node. Linux has no
// permission prompt; read/write access on the node is the grant.
type Permission struct {
	devRoot string
	access  func(path string, mode uint32) error
	open    func(path string) (io.Closer, error)
}

// NewPermission returns a provider checking nodes under /dev.
func NewPermission() *Permission {
	return &Permission{
		devRoot: "/dev",
		access:  unix.Access,
		open: func(path string) (io.Closer, error) {
			return os.OpenFile(path, os.O_RDWR, 0)
		},
	}
}

// RequestPermission opens c.DeviceID (or the first videoN node) once. The
// returned stream only holds the node open; Stop releases it.
func (p *Permission) RequestPermission(_ context.Context, c camera.Constraints) (camera.Stream, error) {
	path := c.DeviceID
	if path == "" {
		nodes, err := filepath.Glob(filepath.Join(p.devRoot, "video*"))
		if err != nil {
			return nil, fmt.Errorf("list video nodes: %w", err)
		}
		slices.Sort(nodes)
		if len(nodes) == 0 {
			return nil, camera.ErrNoDevicesFound
		}
		path = nodes[0]
	}

	if err := p.access(path, unix.R_OK|unix.W_OK); err != nil {
		return nil, classifyAccessError(path, err)
	}
	handle, err := p.open(path)
	if err != nil {
		return nil, classifyAccessError(path, err)
	}
	return &probeStream{handle: handle, done: make(chan struct{})}, nil
}

func classifyAccessError(path string, err error) error {
	switch {
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s: %w", camera.ErrPermissionDenied, path, err)
	case errors.Is(err, unix.ENOENT), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", camera.ErrNoDevicesFound, path)
	default:
		return fmt.Errorf("%w: %s: %w", camera.ErrStream, path, err)
	}
}

type probeStream struct {
	once   sync.Once
	handle io.Closer
	done   chan struct{}
}

func (s *probeStream) Tracks() []camera.Track { return nil }

func (s *probeStream) Attach(camera.FrameSink) {}

func (s *probeStream) Stop() {
	s.once.Do(func() {
		_ = s.handle.Close()
		close(s.done)
	})
}

func (s *probeStream) Done() <-chan struct{} { return s.done }

func (s *probeStream) Err() error { return nil }
