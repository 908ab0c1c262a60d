package client

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"os"

	"github.com/adamwoolhether/rest/client/cache"
	"github.com/adamwoolhether/rest/client/download"
)

// DownloadFile downloads rawURL to destPath and returns the path of the
// file. With an empty destPath the file is written to the download
// cache. When caching is enabled, a cached copy is used instead of
// the network and fresh downloads are added to the cache.
func (c *Client) DownloadFile(ctx context.Context, rawURL, destPath string, opts ...ParamOption) (string, error) {
	params, err := NewParameters(opts...)
	if err != nil {
		return "", fmt.Errorf("applying parameter option: %w", err)
	}

	useCache := params.Cache && c.cache != nil

	var cachePath string
	if c.cache != nil {
		if cachePath, err = c.cache.Path(rawURL); err != nil {
			return "", err
		}
	}

	if destPath == "" {
		if c.cache == nil {
			return "", ErrNoCache
		}
		destPath = cachePath
	}

	if useCache {
		if cached, ok := c.cache.Lookup(rawURL); ok {
			switch {
			case cached == destPath && len(params.FileOptions) > 0:
				// The file options can only be checked while writing.
				c.logger.Debug("download cache bypassed for file options", "url", rawURL, "path", cached)
			case cached == destPath:
				c.logger.Debug("download cache hit", "url", rawURL, "path", cached)
				return cached, nil
			default:
				err := c.copyFile(ctx, cached, destPath, params.FileOptions...)
				if err == nil {
					return destPath, nil
				}
				c.logger.Warn("copying cached download failed, fetching", "url", rawURL, "error", err)
			}
		}
	}

	params.Handler = &FileHandler{Path: destPath, Options: params.FileOptions}
	if _, err := c.fetch(ctx, rawURL, params); err != nil {
		return "", err
	}

	if useCache && destPath != cachePath {
		f, err := os.Open(destPath)
		if err != nil {
			c.logger.Warn("opening download for caching", "path", destPath, "error", err)
			return destPath, nil
		}
		defer f.Close()

		if _, err := c.cache.Write(ctx, rawURL, f, -1); err != nil {
			c.logger.Warn("caching download", "url", rawURL, "error", err)
		}
	}

	return destPath, nil
}

// DownloadBytes downloads rawURL into memory.
func (c *Client) DownloadBytes(ctx context.Context, rawURL string, opts ...ParamOption) ([]byte, error) {
	params, err := NewParameters(opts...)
	if err != nil {
		return nil, fmt.Errorf("applying parameter option: %w", err)
	}

	if data, ok := c.cached(rawURL, params); ok {
		return data, nil
	}

	params.Handler = &BufferHandler{}
	resp, err := c.fetch(ctx, rawURL, params)
	if err != nil {
		return nil, err
	}

	c.store(ctx, rawURL, params, resp.Data)

	return resp.Data, nil
}

// DownloadTexture downloads rawURL and decodes it as an image.
func (c *Client) DownloadTexture(ctx context.Context, rawURL string, opts ...ParamOption) (image.Image, error) {
	h := &TextureHandler{}
	if err := c.downloadMedia(ctx, rawURL, h, opts); err != nil {
		return nil, err
	}
	return h.Image, nil
}

// DownloadAudio downloads rawURL as an audio clip.
func (c *Client) DownloadAudio(ctx context.Context, rawURL string, opts ...ParamOption) (AudioClip, error) {
	h := &AudioHandler{}
	if err := c.downloadMedia(ctx, rawURL, h, opts); err != nil {
		return AudioClip{}, err
	}
	return h.Clip, nil
}

// mediaHandler is a download handler that decodes the whole body.
type mediaHandler interface {
	DownloadHandler
	decode(data []byte) error
	bytes() []byte
}

func (c *Client) downloadMedia(ctx context.Context, rawURL string, h mediaHandler, opts []ParamOption) error {
	params, err := NewParameters(opts...)
	if err != nil {
		return fmt.Errorf("applying parameter option: %w", err)
	}

	if data, ok := c.cached(rawURL, params); ok {
		if err := h.decode(data); err == nil {
			return nil
		}
		c.logger.Warn("cached download is unusable, fetching", "url", rawURL)
	}

	params.Handler = h
	if _, err := c.fetch(ctx, rawURL, params); err != nil {
		return err
	}

	c.store(ctx, rawURL, params, h.bytes())

	return nil
}

// DownloadAsync downloads every URL on a pool of at most the
// client's batch limit workers. The files are written to dir, or to the
// download cache when dir is empty. Each result reports its own file;
// [download.Result.Wait] waits for the whole batch.
func (c *Client) DownloadAsync(ctx context.Context, dir string, urls []string, opts ...ParamOption) ([]*DownloadResult, error) {
	store := c.cache
	if dir != "" {
		var err error
		if store, err = cache.New(dir, cache.WithLogger(c.logger)); err != nil {
			return nil, fmt.Errorf("preparing download directory: %w", err)
		}
	}
	if store == nil {
		return nil, ErrNoCache
	}

	q, err := download.NewQueue(c.batchLimit)
	if err != nil {
		return nil, err
	}

	results := make([]*DownloadResult, len(urls))
	for i, u := range urls {
		results[i] = q.Start(ctx, func(ctx context.Context) (string, error) {
			dest, err := store.Path(u)
			if err != nil {
				return "", err
			}
			return c.DownloadFile(ctx, u, dest, opts...)
		})
	}

	go func() {
		if err := q.Release(); err != nil {
			c.logger.Debug("batch download finished with errors", "error", err)
		}
	}()

	return results, nil
}

// fetch sends a GET for rawURL and validates the response.
func (c *Client) fetch(ctx context.Context, rawURL string, params *Parameters) (*Response, error) {
	req, err := newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Send(req, params, nil)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(resp, params.Debug); err != nil {
		return nil, err
	}

	return resp, nil
}

// cached returns the cached bytes of rawURL when caching is enabled.
func (c *Client) cached(rawURL string, params *Parameters) ([]byte, bool) {
	if !params.Cache || c.cache == nil {
		return nil, false
	}

	p, ok := c.cache.Lookup(rawURL)
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(p)
	if err != nil {
		c.logger.Warn("reading cached download", "path", p, "error", err)
		return nil, false
	}

	c.logger.Debug("download cache hit", "url", rawURL, "path", p)

	return data, true
}

// store writes data to the cache when caching is enabled. Failures are
// logged, the download itself already succeeded.
func (c *Client) store(ctx context.Context, rawURL string, params *Parameters, data []byte) {
	if !params.Cache || c.cache == nil {
		return
	}

	if _, err := c.cache.Write(ctx, rawURL, bytes.NewReader(data), int64(len(data))); err != nil {
		c.logger.Warn("caching download", "url", rawURL, "error", err)
	}
}

// copyFile copies the cached file src to dst through a temp file,
// applying opts as a fresh download would.
func (c *Client) copyFile(ctx context.Context, src, dst string, opts ...DownloadOption) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	return download.Handle(ctx, f, info.Size(), dst, c.logger, opts...)
}
