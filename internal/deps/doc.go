// Package deps reports which external helper binaries are installed.
//
// Capture shells out to ffmpeg, autofocus to v4l2-ctl, and clipboard
// export to wl-copy or xclip. CheckBinaries resolves each through PATH so
// the CLI can explain a failed start before the camera is touched.
package deps
