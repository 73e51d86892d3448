// Package stream owns the single live camera stream of a scan session.
//
// Controller.Acquire opens a device with full constraints, retries once with
// minimal constraints, enables continuous autofocus where the track supports
// it, binds the stream to a fresh camera.Surface, and waits a bounded time
// for the first frame. A per-device file lock keeps two barscan processes off
// the same camera. Release tears everything down and never fails.
package stream
