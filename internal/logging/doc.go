// Package logging configures structured JSON logging for maktaba.
//
// All components log through log/slog with snake_case event names. File
// output goes through a size-rotating writer so long-running ingestion and
// sync workers cannot fill the disk.
package logging
