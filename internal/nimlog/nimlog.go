// Package nimlog is the ambient logging setup shared by every component of
// the receiver control plane. It wraps charmbracelet/log the way the
// teacher wraps its own logger: one shared instance, per-component
// children tagged with a "component" field so diagnostics identify both
// the subsystem and the failing operation (spec.md §7).
package nimlog

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// For returns a child of the shared logger tagged with the given
// "component" field.
func For(component string) *log.Logger {
	return base.With("component", component)
}

// SetOutput redirects all future loggers returned by For.
func SetOutput(w io.Writer) { base.SetOutput(w) }

// SetLevel adjusts verbosity across every component logger.
func SetLevel(l log.Level) { base.SetLevel(l) }
