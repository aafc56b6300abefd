package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.maktaba/logs, or a temp-dir equivalent when the
// home directory cannot be resolved.
func DefaultLogDir() string {
	base, err := os.UserHomeDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, ".maktaba", "logs")
}

// DefaultLogPath is the live log file inside DefaultLogDir.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "maktaba.log")
}
