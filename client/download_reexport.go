package client

import (
	"hash"

	"github.com/adamwoolhether/rest/client/download"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from [download].
// ————————————————————————————————————————————————————————————————————

type (
	// DownloadOption configures the file writer behind [FileHandler].
	DownloadOption = download.Option

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error

	// DownloadResult represents an in-flight or completed async download.
	DownloadResult = download.Result
)

// ————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————

var (
	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled

	// ErrQueueShutdown indicates the batch download queue was shut down.
	ErrQueueShutdown = download.ErrQueueShutdown
)

// ————————————————————————————————————————————————————————————————————
// Download option forwarding functions
// ————————————————————————————————————————————————————————————————————

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithSkipExisting causes a file download to return immediately when
// the destination file already exists.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }
