// Package fileutil holds small filesystem helpers shared by the exporters and
// the config writer.
package fileutil
