// Package logging builds the prefixed loggers used across the application.
// When a log file is configured, output goes through a size-rotated file;
// otherwise it goes to stderr.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output lands.
type Options struct {
	// File is the rotated log file path. Empty means stderr.
	File string
	// MaxSizeMB is the rotation threshold. Defaults to 10.
	MaxSizeMB int
	// MaxBackups is how many rotated files to keep. Defaults to 3.
	MaxBackups int
	// Quiet drops all output. Used by tests and --quiet.
	Quiet bool
}

// New returns a logger with the given bracketed prefix, e.g. "[sync] ".
func New(prefix string, opts Options) *log.Logger {
	return log.New(writer(opts), prefix, log.LstdFlags)
}

func writer(opts Options) io.Writer {
	if opts.Quiet {
		return io.Discard
	}
	if opts.File == "" {
		return os.Stderr
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}
