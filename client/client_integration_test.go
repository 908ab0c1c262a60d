//go:build integration

package client_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adamwoolhether/rest/client"
	"github.com/adamwoolhether/rest/client/cache"
	"github.com/adamwoolhether/rest/client/progress"
)

const remoteVersionURL = "https://go.dev/VERSION?m=text"

func TestIntegration_DownloadFile_Remote(t *testing.T) {
	c, err := client.Build()
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "VERSION")

	var snapshots atomic.Int64
	got, err := c.DownloadFile(t.Context(), remoteVersionURL, dest,
		client.WithProgress(func(progress.Progress) { snapshots.Add(1) }),
	)
	if err != nil {
		t.Fatalf("downloading: %v", err)
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if !strings.HasPrefix(string(data), "go") {
		t.Errorf("unexpected content %q", data)
	}
	if snapshots.Load() == 0 {
		t.Error("expected at least the final progress snapshot")
	}
}

func TestIntegration_DownloadBytes_RemoteCached(t *testing.T) {
	store, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	c, err := client.Build(client.WithCacheStore(store))
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	first, err := c.DownloadBytes(t.Context(), remoteVersionURL)
	if err != nil {
		t.Fatalf("downloading: %v", err)
	}

	if _, ok := store.Lookup(remoteVersionURL); !ok {
		t.Fatal("expected the download in the cache")
	}

	second, err := c.DownloadBytes(t.Context(), remoteVersionURL)
	if err != nil {
		t.Fatalf("reading from cache: %v", err)
	}
	if string(first) != string(second) {
		t.Error("cached bytes differ from the download")
	}
}

func TestIntegration_Get_RemoteCancel(t *testing.T) {
	c, err := client.Build()
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond)
	defer cancel()

	_, err = c.Get(ctx, "https://go.dev/dl/")
	if !errors.Is(err, client.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}
