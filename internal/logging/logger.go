// Package logging provides structured logging with file output support.
// It uses TRIAGE_* environment variables for configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"triage/internal/config"
)

const filePrefix = "triage-"

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		// A malformed environment still gets a usable logger.
		cfg = config.Config{LogLevel: "info", LogPrefix: "triage ", LogDir: config.DefaultLogDir()}
	}
	return cfg
}

// ParseLevel maps a level name to a charm log level, info when unknown.
func ParseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer, configured
// from the TRIAGE_* environment.
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	return New(w, loadConfig())
}

// New creates a logger writing to w with the level and prefix of cfg.
func New(w io.Writer, cfg config.Config) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           ParseLevel(cfg.LogLevel),
	})

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(cfg.LogPrefix),
		closer: closer,
	}
}

// LogFileName returns the log file used for a run started at t.
func LogFileName(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s-debug.log", filePrefix, t.Format("20060102-150405")))
}

// OpenLogFile opens, creating dir when needed, the log file for time t in
// append mode.
func OpenLogFile(dir string, t time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(LogFileName(dir, t), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

// LatestLogFile returns the newest log file in dir. Names sort by timestamp.
func LatestLogFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read log dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), "-debug.log") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no log files in %s", dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
