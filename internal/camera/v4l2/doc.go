// Package v4l2 implements the camera collaborators for Linux Video4Linux2
// capture devices.
//
// Enumerator walks sysfs through the udev crawler and reports every primary
// videoN node with its driver-supplied name. Permission checks node access
// and opens it once, which is the closest Linux analogue to a permission
// prompt. Provider opens live streams by running ffmpeg against the node and
// splitting its MJPEG output into frames; the stream's single track exposes
// focus controls through v4l2-ctl.
package v4l2
