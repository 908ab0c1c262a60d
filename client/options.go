package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/rest/client/cache"
	"github.com/adamwoolhether/rest/client/throttle"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	tracerProvider    trace.TracerProvider
	cache             *cache.Store
	pollInterval      time.Duration
	batchLimit        *int
}

// WithClient replaces the default [http.Client] used by the [Client].
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return WithThrottleConfig(throttle.Config{RPS: rps, Burst: burst})
}

// WithThrottleConfig enables token-bucket rate limiting, optionally per host.
func WithThrottleConfig(cfg throttle.Config) Option {
	return func(c *options) error {
		if !cfg.Enabled() {
			return fmt.Errorf("rps[%d] and burst[%d] %w", cfg.RPS, cfg.Burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &cfg
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithTracerProvider sets the provider of the tracer recording one
// span per exchange. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *options) error {
		if tp == nil {
			return errors.New("tracer provider must not be nil")
		}
		c.tracerProvider = tp
		return nil
	}
}

// WithCacheStore enables the download cache used by the download helpers.
func WithCacheStore(store *cache.Store) Option {
	return func(c *options) error {
		if store == nil {
			return errors.New("cache store must not be nil")
		}
		c.cache = store
		return nil
	}
}

// WithPollInterval sets how often progress is sampled and streamed
// events are parsed while an exchange runs.
func WithPollInterval(d time.Duration) Option {
	return func(c *options) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		c.pollInterval = d
		return nil
	}
}

// WithBatchLimit sets how many downloads [Client.DownloadAsync] runs at
// once. If n <= 0, concurrency is unlimited.
func WithBatchLimit(n int) Option {
	return func(c *options) error {
		c.batchLimit = &n
		return nil
	}
}

// DoOption is a functional option for [Client.Do].
type DoOption func(options *doOpts) error

type doOpts struct {
	responseBody any
	useJSONNum   bool
}

// WithDestination decodes the HTTP response body into bodyTemplate.
// bodyTemplate must be a pointer.
func WithDestination[T any](bodyTemplate *T) DoOption {
	return func(opts *doOpts) error {
		opts.responseBody = bodyTemplate

		return nil
	}
}

// WithJSONNumb tells the JSON decoder to use [json.Decoder.UseNumber],
// preserving number precision as [json.Number] instead of float64.
func WithJSONNumb() DoOption {
	return func(opts *doOpts) error {
		opts.useJSONNum = true

		return nil
	}
}

// RequestOption is a functional option for [Request].
type RequestOption func(options *requestOpts) error

type requestOpts struct {
	body        any
	raw         []byte
	contentType *string
	cookies     []*http.Cookie
	headers     map[string][]string
}

// WithPayload sets the JSON-encoded request body.
func WithPayload(body any) RequestOption {
	return func(opts *requestOpts) error {
		opts.body = body

		return nil
	}
}

// WithRawPayload sets the request body to b, sent without encoding.
func WithRawPayload(b []byte) RequestOption {
	return func(opts *requestOpts) error {
		if b == nil {
			b = []byte{}
		}
		opts.raw = b

		return nil
	}
}

// WithContentType overrides the default "application/json" Content-Type header.
func WithContentType(contentType string) RequestOption {
	return func(opts *requestOpts) error {
		if contentType == "" {
			return errors.New("cannot use empty content type")
		}

		opts.contentType = &contentType

		return nil
	}
}

// WithHeaders adds custom headers to the outgoing request.
func WithHeaders(headers map[string][]string) RequestOption {
	return func(opts *requestOpts) error {
		opts.headers = headers

		return nil
	}
}

// WithCookies attaches the given cookies to the outgoing request.
func WithCookies(cookies ...*http.Cookie) RequestOption {
	return func(opts *requestOpts) error {
		opts.cookies = cookies

		return nil
	}
}

// URLOption is a functional option for [URL].
type URLOption func(options *urlOpts)

type urlOpts struct {
	queryStrings map[string]string
	port         *int
}

// WithQueryStrings appends query parameters to the URL.
func WithQueryStrings(queryKV map[string]string) URLOption {
	return func(opts *urlOpts) {
		opts.queryStrings = queryKV
	}
}

// WithPort sets the port number on the URL's host.
func WithPort(port int) URLOption {
	return func(opts *urlOpts) {
		opts.port = &port
	}
}
