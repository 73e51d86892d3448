// Package main hosts the barscan CLI entrypoint and command graph.
//
// The Cobra command tree covers interactive scanning from a terminal, a
// headless mode that serves the HTTP control API, camera listing, helper
// binary checks, and configuration scaffolding. Configuration loading and
// logger setup live in the shared command context; everything else is
// delegated to internal/app and the packages it wires.
package main
