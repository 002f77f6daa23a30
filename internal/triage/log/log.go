// Package log installs the process-wide slog logger and recovers panics in
// long running goroutines.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"triage/internal/config"
	"triage/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	output      io.Closer
)

// Setup routes slog through a charm logger built from cfg, writing to logFile
// or to stderr when logFile is empty. Only the first call has an effect.
func Setup(logFile string, cfg config.Config) error {
	var setupErr error
	initOnce.Do(func() {
		w := io.Writer(os.Stderr)
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				setupErr = fmt.Errorf("open log file: %w", err)
			} else {
				w = f
				output = f
			}
		}

		lg := logging.New(w, cfg)
		lg.SetReportCaller(cfg.Debug())
		slog.SetDefault(slog.New(lg.Logger))
		initialized.Store(true)
	})
	return setupErr
}

func Initialized() bool {
	return initialized.Load()
}

// Close closes the log file opened by Setup, if any.
func Close() error {
	if output != nil {
		return output.Close()
	}
	return nil
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
