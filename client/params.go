package client

import (
	"crypto/x509"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/adamwoolhether/rest/client/progress"
	"github.com/adamwoolhether/rest/client/sse"
)

// CertificateHandler replaces TLS peer verification for one exchange.
// It receives the certificates presented by the server, leaf first.
// Returning an error aborts the handshake.
type CertificateHandler func(certs []*x509.Certificate) error

// Parameters configures a single exchange. A nil *Parameters passed to
// [Client.Send] behaves like [NewParameters] with no options.
//
// The events parsed from a server-sent event stream are appended to the
// Parameters of the exchange that produced them and can be read with
// [Parameters.Events] once Send returns.
type Parameters struct {
	// Headers are set on the request, replacing existing values.
	Headers map[string]string
	// Progress receives transfer snapshots while the exchange runs and
	// a final complete snapshot once it ends.
	Progress progress.Sink
	// Timeout bounds the whole exchange when positive.
	Timeout time.Duration
	// CertificateHandler replaces TLS verification when set.
	CertificateHandler CertificateHandler
	// DisposeCertificateHandler closes the connections verified by
	// CertificateHandler once the exchange ends.
	DisposeCertificateHandler bool
	// Cache lets download helpers read from and write to the client's
	// download cache.
	Cache bool
	// Debug logs the full response once the exchange ends.
	Debug bool
	// Handler decides what happens with the response body. Nil means
	// a fresh [BufferHandler].
	Handler DownloadHandler
	// FileOptions are passed to the file writer of download helpers.
	FileOptions []DownloadOption

	mu     sync.Mutex
	events []sse.Event
}

// ParamOption is a functional option for [NewParameters].
type ParamOption func(*Parameters) error

// NewParameters returns Parameters with caching enabled, adjusted by opts.
func NewParameters(opts ...ParamOption) (*Parameters, error) {
	p := &Parameters{Cache: true}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Events returns a copy of the events received so far.
func (p *Parameters) Events() []sse.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.events)
}

func (p *Parameters) appendEvents(events ...sse.Event) {
	if len(events) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, events...)
}

// Clone returns a copy of p without its events. The handler is shared.
func (p *Parameters) Clone() *Parameters {
	return &Parameters{
		Headers:                   maps.Clone(p.Headers),
		Progress:                  p.Progress,
		Timeout:                   p.Timeout,
		CertificateHandler:        p.CertificateHandler,
		DisposeCertificateHandler: p.DisposeCertificateHandler,
		Cache:                     p.Cache,
		Debug:                     p.Debug,
		Handler:                   p.Handler,
		FileOptions:               slices.Clone(p.FileOptions),
	}
}

// handler resolves the download handler for one exchange.
func (p *Parameters) handler() DownloadHandler {
	if p.Handler == nil {
		return &BufferHandler{}
	}
	return p.Handler
}

// WithRequestHeaders sets headers on the request. Later calls add to
// earlier ones.
func WithRequestHeaders(headers map[string]string) ParamOption {
	return func(p *Parameters) error {
		if p.Headers == nil {
			p.Headers = make(map[string]string, len(headers))
		}
		maps.Copy(p.Headers, headers)
		return nil
	}
}

// WithProgress sets the sink receiving transfer snapshots.
func WithProgress(sink progress.Sink) ParamOption {
	return func(p *Parameters) error {
		if sink == nil {
			return errors.New("progress sink must not be nil")
		}
		p.Progress = sink
		return nil
	}
}

// WithRequestTimeout bounds the exchange with a deadline.
func WithRequestTimeout(d time.Duration) ParamOption {
	return func(p *Parameters) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		p.Timeout = d
		return nil
	}
}

// WithCertificateHandler replaces TLS verification with fn. With
// dispose set, connections verified by fn are closed once the exchange
// ends.
func WithCertificateHandler(fn CertificateHandler, dispose bool) ParamOption {
	return func(p *Parameters) error {
		if fn == nil {
			return errors.New("certificate handler must not be nil")
		}
		p.CertificateHandler = fn
		p.DisposeCertificateHandler = dispose
		return nil
	}
}

// WithCache enables or disables the download cache for the exchange.
func WithCache(enabled bool) ParamOption {
	return func(p *Parameters) error {
		p.Cache = enabled
		return nil
	}
}

// WithDebug logs the full response once the exchange ends.
func WithDebug() ParamOption {
	return func(p *Parameters) error {
		p.Debug = true
		return nil
	}
}

// WithDownloadHandler sets what happens with the response body.
func WithDownloadHandler(h DownloadHandler) ParamOption {
	return func(p *Parameters) error {
		if h == nil {
			return errors.New("download handler must not be nil")
		}
		p.Handler = h
		return nil
	}
}

// WithFileOptions passes opts to the file writer used by download helpers.
func WithFileOptions(opts ...DownloadOption) ParamOption {
	return func(p *Parameters) error {
		p.FileOptions = append(p.FileOptions, opts...)
		return nil
	}
}
