package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// CheckDebug reports whether HORIZON_DEBUG asks for debug logging.
func CheckDebug() bool {
	debug := os.Getenv("HORIZON_DEBUG")
	return debug == "true" || debug == "1"
}

// InitLogging configures the global logrus logger. Timestamps carry
// millisecond precision. HORIZON_DEBUG forces the debug level.
func InitLogging(level string) error {
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("cannot parse log level %q: %w", level, err)
	}
	if CheckDebug() {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)
	return nil
}

// RedirectLogToFile sends log output to <dataDir>/debug.log. The terminal UI
// owns the screen, so it cannot share stderr with the logger. The returned
// closer restores stderr.
func RedirectLogToFile(dataDir string) (io.Closer, error) {
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - may contain conversation excerpts
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("could not open debug log at %s: %w", logPath, err)
	}

	log.SetOutput(f)
	log.WithField("path", logPath).Debug("debug logging started")
	return closerFunc(func() error {
		log.SetOutput(os.Stderr)
		return f.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
