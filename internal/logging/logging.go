// Package logging provides this repo's shared structured logger, the way
// wippyai-wasm-runtime's engine and linker packages each expose a
// package-level zap.Logger defaulting to a no-op and swappable via
// SetLogger before any real work starts.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// L returns the shared logger, defaulting to a no-op logger so that
// library code (internal/link, internal/interpret, internal/cache) can
// log unconditionally without forcing output on embedders that never
// called SetLogger.
func L() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger installs l as the shared logger. Must be called before any
// pipeline stage runs if its output is to be observed; cmd/owi calls this
// once, at startup, based on --debug.
func SetLogger(l *zap.Logger) {
	logger = l
}

// New builds the logger cmd/owi installs: a development (human-readable,
// debug-level) encoder when debug is set, otherwise a production JSON
// encoder at info level, matching the two-mode split wippyai-wasm-runtime's
// embedders use when deciding whether to trace engine internals.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
