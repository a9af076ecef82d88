package polycrop

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// loggerPtr stores the active logger. Accessed atomically so that SetLogger
// can be called while a session is running.
var loggerPtr atomic.Pointer[zap.Logger]

func init() {
	loggerPtr.Store(zap.NewNop())
}

// SetLogger configures the logger for polycrop and its backend packages. By
// default nothing is logged. Pass nil to restore the silent default.
//
// Levels used:
//   - Debug: ignored commits, per-crop region and timing
//   - Info: session lifecycle
//   - Warn: failed crops, rejected points
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Backend packages call this so they
// share the host's configuration.
func Logger() *zap.Logger {
	return loggerPtr.Load()
}
