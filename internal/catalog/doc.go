// Package catalog discovers capture devices and picks the one a scan session
// should default to.
//
// Discover obtains camera access through a short-lived permission probe,
// enumerates video inputs, synthesizes "Camera N" labels where the platform
// reports none, and applies the preferred-device heuristic documented on
// SelectPreferred. It keeps no state between calls.
package catalog
