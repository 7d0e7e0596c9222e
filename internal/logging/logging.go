// Package logging builds the application logger: a rotating file log,
// optionally mirrored to stderr for foreground runs.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the log destination and rotation policy.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Stderr mirrors log output to stderr in addition to the file.
	Stderr bool
}

// New returns a logger writing to a size-rotated file. The returned closer
// releases the file handle.
func New(opts Options) (*log.Logger, io.Closer) {
	rotor := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	var w io.Writer = rotor
	if opts.Stderr {
		w = io.MultiWriter(os.Stderr, rotor)
	}
	return log.New(w, "[closet] ", log.LstdFlags), rotor
}

// Discard returns a logger that drops everything. Used by tests and by
// commands that have no log destination.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
