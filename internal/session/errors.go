package session

import (
	"context"
	"errors"

	"barscan/internal/camera"
)

var (
	// ErrBusy rejects device changes while the session is capturing.
	ErrBusy = errors.New("session is busy")
	// ErrCancelled reports a start superseded by a stop.
	ErrCancelled = errors.New("start cancelled")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")
	// ErrUnknownDevice rejects selecting a device that was not enumerated.
	ErrUnknownDevice = errors.New("unknown camera")
	// ErrStreamLost reports a camera that stopped delivering while scanning.
	ErrStreamLost = errors.New("camera stream lost")
)

// UserMessage renders err as a short message suitable for display.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, camera.ErrPermissionDenied):
		return "Camera access was denied. Grant access to the video device and try again."
	case errors.Is(err, camera.ErrNoDevicesFound):
		return "No cameras found. Connect a camera and refresh."
	case errors.Is(err, ErrStreamLost):
		return "The camera stopped sending video. Reconnect it and start scanning again."
	case errors.Is(err, camera.ErrStream):
		return "Could not start the camera. It may be in use by another application."
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "Camera start was cancelled."
	case errors.Is(err, ErrBusy):
		return "Stop scanning before changing cameras."
	case errors.Is(err, ErrUnknownDevice):
		return "That camera is no longer available. Refresh the camera list."
	case errors.Is(err, ErrClosed):
		return "The scanner has shut down."
	case errors.Is(err, context.DeadlineExceeded):
		return "The camera took too long to respond."
	default:
		return "Something went wrong with the camera. Check the logs for details."
	}
}
