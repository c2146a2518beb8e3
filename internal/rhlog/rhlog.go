// Package rhlog supplies the Logger type a Table uses for its resize and
// large-probe diagnostics, aliased directly to go-kit/log's Logger so any
// go-kit logger (or a thin adapter around one) can be passed through
// robinhash.WithLogger without this package introducing its own interface.
package rhlog

import kitlog "github.com/go-kit/log"

// Logger is the structured logging sink a Table writes diagnostics to.
type Logger = kitlog.Logger

// NopLogger returns the Logger a freshly constructed Table uses until
// WithLogger overrides it: every call discarded, no allocation per line.
func NopLogger() Logger {
	return kitlog.NewNopLogger()
}
