package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where log records go and how verbose they are.
type Config struct {
	// Level is the minimum record level: debug, info, warn or error.
	Level string
	// FilePath receives JSON records through a rotating writer. Empty
	// means no file output.
	FilePath string
	// MaxSizeMB caps the live log file before rotation. Zero takes the
	// writer default.
	MaxSizeMB int
	// MaxFiles is how many rotated files to keep beside the live one.
	// Zero takes the writer default.
	MaxFiles int
	// WriteToStderr mirrors records to stderr in addition to the file.
	WriteToStderr bool
}

// DefaultConfig logs info and above to the per-user log file only.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		FilePath: DefaultLogPath(),
	}
}

// Setup builds a JSON slog.Logger for cfg. The returned cleanup closes
// the log file, if any, and is safe to call even when setup failed.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var sinks []io.Writer
	cleanup := func() {}

	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, w)
		cleanup = func() { _ = w.Close() }
	}
	if cfg.WriteToStderr || len(sinks) == 0 {
		sinks = append(sinks, os.Stderr)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(sinks...), &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(handler), cleanup, nil
}

// SetupDefault installs the configured logger as the slog default and
// returns the file cleanup.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return cleanup, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// parseLevel maps a config string to a slog level. Unknown strings fall
// back to info so a typo never silences the log.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
