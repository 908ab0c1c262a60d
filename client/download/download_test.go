package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestHandle(t *testing.T) {
	const payload = "the quick brown fox"

	tests := []struct {
		name          string
		contentLength int64
		opts          func() []Option
		wantErr       error
		wantFile      bool
	}{
		{
			name:          "plain",
			contentLength: int64(len(payload)),
			wantFile:      true,
		},
		{
			name:          "unknownLength",
			contentLength: -1,
			wantFile:      true,
		},
		{
			name:          "checksumMatch",
			contentLength: int64(len(payload)),
			opts: func() []Option {
				return []Option{WithChecksum(sha256.New(), strings.ToUpper(sha256Hex(payload)))}
			},
			wantFile: true,
		},
		{
			name:          "checksumMismatch",
			contentLength: int64(len(payload)),
			opts: func() []Option {
				return []Option{WithChecksum(sha256.New(), sha256Hex("other"))}
			},
			wantErr: ErrChecksumMismatch,
		},
		{
			name:          "lengthMismatch",
			contentLength: 100,
			wantErr:       ErrContentLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			dest := filepath.Join(dir, "out.txt")

			var opts []Option
			if tt.opts != nil {
				opts = tt.opts()
			}

			err := Handle(t.Context(), strings.NewReader(payload), tt.contentLength, dest, nil, opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, readErr := os.ReadFile(dest)
			if tt.wantFile {
				if readErr != nil {
					t.Fatalf("reading dest: %v", readErr)
				}
				if string(got) != payload {
					t.Errorf("content = %q, want %q", got, payload)
				}
			} else if !errors.Is(readErr, os.ErrNotExist) {
				t.Errorf("expected no destination file, got err %v", readErr)
			}

			entries, _ := os.ReadDir(dir)
			for _, e := range entries {
				if IsTemp(e.Name()) {
					t.Errorf("temp file %s left behind", e.Name())
				}
			}
		})
	}
}

func TestHandle_Counter(t *testing.T) {
	var n atomic.Int64
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := Handle(t.Context(), strings.NewReader("12345678"), 8, dest, nil, WithCounter(&n)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := n.Load(); got != 8 {
		t.Errorf("counter = %d, want 8", got)
	}
}

func TestHandle_SkipExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(dest, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Handle(t.Context(), strings.NewReader("new"), 3, dest, nil, WithSkipExisting()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Errorf("existing file overwritten: %q", got)
	}
}

func TestHandle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	dest := filepath.Join(t.TempDir(), "out.txt")
	err := Handle(ctx, strings.NewReader("data"), 4, dest, nil)
	if !errors.Is(err, ErrDownloadCancelled) {
		t.Fatalf("expected ErrDownloadCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected wrapped context.Canceled, got %v", err)
	}
}

func TestHandle_InvalidOption(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.txt")

	err := Handle(t.Context(), strings.NewReader("x"), 1, dest, nil, WithChecksum(nil, "abc"))
	if err == nil {
		t.Fatal("expected option error")
	}
}

func TestHandle_ChecksumOptionReused(t *testing.T) {
	dir := t.TempDir()
	opt := WithChecksum(sha256.New(), sha256Hex("good"))

	if err := Handle(t.Context(), strings.NewReader("evil"), 4, filepath.Join(dir, "a"), nil, opt); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	if err := Handle(t.Context(), strings.NewReader("good"), 4, filepath.Join(dir, "b"), nil, opt); err != nil {
		t.Fatalf("second write with the same option: %v", err)
	}
}
