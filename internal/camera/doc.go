// Package camera defines the capture device model shared by discovery,
// stream ownership, and decoding.
//
// Device and RawDevice describe enumerated inputs, Constraints carries the
// facing, resolution, and focus preferences handed to providers, and the
// PermissionProvider, Enumerator, StreamProvider, Stream, and Track interfaces
// describe the platform collaborators. Surface is the presentation surface a
// live stream publishes frames into and the decode loop reads from.
//
// Platform implementations live in subpackages (see camera/v4l2).
package camera
