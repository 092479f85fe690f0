package store

import (
	"log/slog"
	"time"
)

// Option configures a JSON collection
type Option func(*jsonCollection)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) Option {
	return func(c *jsonCollection) {
		c.fs = fs
	}
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) Option {
	return func(c *jsonCollection) {
		c.lockFactory = factory
	}
}

// WithTimeFunc sets the clock used for file metadata
func WithTimeFunc(fn func() time.Time) Option {
	return func(c *jsonCollection) {
		c.timeFunc = fn
	}
}

// WithLogger sets the logger used for load and save events
func WithLogger(logger *slog.Logger) Option {
	return func(c *jsonCollection) {
		c.logger = logger
	}
}
