package cache

import (
	"errors"
	"log/slog"
	"time"
)

// Option configures a [Store].
type Option func(*options) error

type options struct {
	logger   *slog.Logger
	indexTTL time.Duration
}

// WithLogger sets the logger used by the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		opts.logger = logger
		return nil
	}
}

// WithIndexTTL sets how long lookup results are memoized.
func WithIndexTTL(d time.Duration) Option {
	return func(opts *options) error {
		if d <= 0 {
			return errors.New("index ttl must be positive")
		}
		opts.indexTTL = d
		return nil
	}
}
