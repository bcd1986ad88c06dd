// Package logging builds the logr.Logger used across the generator, backed by
// zap.
package logging

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logger.V().
const (
	DEFAULT = 2
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// NewLogger returns a logger that emits V(n) lines for n <= verbosity, and a
// sync func to flush it before exit. Development mode switches to the
// human-readable console encoder.
func NewLogger(verbosity int, development bool) (logr.Logger, func()) {
	level := zap.NewAtomicLevelAt(zapcore.Level(-1 * verbosity))

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level
	// The interactive shell owns stdout.
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	zl, err := cfg.Build(zap.AddCaller())
	if err != nil {
		zl = zap.NewNop()
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }
}

// NewTestLogger creates a development logger that prints everything up to
// TRACE.
func NewTestLogger() logr.Logger {
	logger, _ := NewLogger(TRACE, true)
	return logger
}

// Fatal calls logger.Error followed by os.Exit(1).
//
// This is a utility function and should not be used in library code!
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...any) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
