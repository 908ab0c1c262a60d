package download

import (
	"errors"
	"hash"
	"sync/atomic"
)

// Option defines optional settings for [Handle].
type Option func(*options) error

type options struct {
	checksum     *checksumVerifier
	counter      *atomic.Int64
	skipExisting bool
}

// WithChecksum enables checksum validation of the downloaded file.
// h is a hash.Hash instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		// The option may be reused across Handle calls.
		h.Reset()
		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

// WithCounter adds the number of bytes written to n as they arrive.
func WithCounter(n *atomic.Int64) Option {
	return func(opts *options) error {
		if n == nil {
			return errors.New("counter must not be nil")
		}
		opts.counter = n
		return nil
	}
}

// WithSkipExisting causes Handle to return nil immediately when
// the destination file already exists.
func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}
