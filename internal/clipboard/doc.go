// Package clipboard copies exported scan text to the desktop clipboard.
//
// Native tools (wl-copy on Wayland, xclip or xsel on X11) are tried first.
// When none works and output is a terminal, the text is sent with the OSC 52
// escape sequence so terminals that support it can set the clipboard. If both
// paths fail, Copy returns ErrUnavailable and callers show a notice.
package clipboard
