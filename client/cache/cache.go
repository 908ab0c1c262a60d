// Package cache stores downloaded files on disk, keyed by the file
// name in the URL or, when the URL has none, by a UUID derived from
// the URL itself.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/adamwoolhether/rest/client/download"
)

// DefaultIndexTTL is how long a lookup result is trusted before the
// file system is consulted again.
const DefaultIndexTTL = 5 * time.Minute

var (
	ErrEmptyRoot  = errors.New("cache root must not be empty")
	ErrInvalidURL = errors.New("invalid cache url")
)

// Entry describes one cached file.
type Entry struct {
	Key     string
	Path    string
	Size    int64
	ModTime time.Time
}

// Store is a download cache rooted at a directory. It is safe for
// concurrent use.
type Store struct {
	root   string
	index  *ttlcache.Cache[string, Entry]
	logger *slog.Logger
}

// New returns a Store rooted at root, creating the directory if needed.
func New(root string, optFns ...Option) (*Store, error) {
	if root == "" {
		return nil, ErrEmptyRoot
	}

	opts := options{indexTTL: DefaultIndexTTL}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying cache option: %w", err)
		}
	}

	s := &Store{
		root:   filepath.Clean(root),
		index:  ttlcache.New[string, Entry](ttlcache.WithTTL[string, Entry](opts.indexTTL)),
		logger: slog.Default(),
	}
	if opts.logger != nil {
		s.logger = opts.logger
	}

	if err := s.ValidateDirectory(); err != nil {
		return nil, err
	}

	return s, nil
}

// Root returns the cache directory.
func (s *Store) Root() string { return s.root }

// ValidateDirectory makes sure the cache directory exists and is a directory.
func (s *Store) ValidateDirectory() error {
	info, err := os.Stat(s.root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(s.root, 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("stat cache directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("cache root %s is not a directory", s.root)
	}

	return nil
}

// Key returns the cache key for rawURL: the last path segment when it
// has an extension, otherwise a SHA-1 name-based UUID of the URL.
func (s *Store) Key(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" && u.Path == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	name := path.Base(u.Path)
	if path.Ext(name) != "" && validName(name) {
		return name, nil
	}

	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String(), nil
}

func validName(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Path returns where rawURL is, or would be, cached.
func (s *Store) Path(rawURL string) (string, error) {
	key, err := s.Key(rawURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, key), nil
}

// Lookup returns the cached file for rawURL, if present.
func (s *Store) Lookup(rawURL string) (string, bool) {
	key, err := s.Key(rawURL)
	if err != nil {
		return "", false
	}

	if item := s.index.Get(key); item != nil {
		entry := item.Value()
		if _, err := os.Stat(entry.Path); err == nil {
			return entry.Path, true
		}
		s.index.Delete(key)
	}

	entry, err := s.stat(key)
	if err != nil {
		return "", false
	}

	s.index.Set(key, entry, ttlcache.DefaultTTL)

	return entry.Path, true
}

// Write stores r as the cached copy of rawURL and returns its path.
// The file only becomes visible once fully written. contentLength may
// be -1 when unknown.
func (s *Store) Write(ctx context.Context, rawURL string, r io.Reader, contentLength int64, optFns ...download.Option) (string, error) {
	key, err := s.Key(rawURL)
	if err != nil {
		return "", err
	}

	if err := s.ValidateDirectory(); err != nil {
		return "", err
	}

	dest := filepath.Join(s.root, key)
	if err := download.Handle(ctx, r, contentLength, dest, s.logger, optFns...); err != nil {
		return "", fmt.Errorf("caching %s: %w", key, err)
	}

	entry, err := s.stat(key)
	if err != nil {
		return "", err
	}
	s.index.Set(key, entry, ttlcache.DefaultTTL)

	s.logger.Debug("cached download", "key", key, "size", entry.Size)

	return dest, nil
}

// Delete removes the cached copy of rawURL. It reports whether a file
// was removed.
func (s *Store) Delete(rawURL string) (bool, error) {
	key, err := s.Key(rawURL)
	if err != nil {
		return false, err
	}

	s.index.Delete(key)

	err = os.Remove(filepath.Join(s.root, key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("removing cached file: %w", err)
	}

	return true, nil
}

// Clear removes every cached file and recreates the directory.
func (s *Store) Clear() error {
	s.index.DeleteAll()

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	return s.ValidateDirectory()
}

// Entries lists the cached files, skipping in-progress temp files.
func (s *Store) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || download.IsTemp(de.Name()) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			s.logger.Warn("skipping cache entry", "name", de.Name(), "error", err)
			continue
		}

		entries = append(entries, Entry{
			Key:     de.Name(),
			Path:    filepath.Join(s.root, de.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return entries, nil
}

func (s *Store) stat(key string) (Entry, error) {
	p := filepath.Join(s.root, key)

	info, err := os.Stat(p)
	if err != nil {
		return Entry{}, err
	}
	if info.IsDir() {
		return Entry{}, fmt.Errorf("cache entry %s is a directory", key)
	}

	return Entry{Key: key, Path: p, Size: info.Size(), ModTime: info.ModTime()}, nil
}
