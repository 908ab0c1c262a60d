package throttle

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle is an http.RoundTripper, using the time/rate token
// bucket limiter to restrict outbound calls.
type throttle struct {
	cfg   Config
	next  http.RoundTripper
	logFn func() *slog.Logger

	mu      sync.Mutex
	global  *rate.Limiter
	perHost map[string]*rate.Limiter
}

// NewRoundTripper returns an http.RoundTripper that throttles outbound
// requests using a token bucket rate limiter. logFn lazily resolves the
// logger at request time, making option ordering irrelevant. A
// nil-returning logFn disables the exhaustion logs.
func NewRoundTripper(cfg Config, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", cfg.RPS, cfg.Burst, ErrMustNotBeZero)
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	t := &throttle{
		cfg:   cfg,
		next:  next,
		logFn: logFn,
	}

	if cfg.PerHost {
		t.perHost = make(map[string]*rate.Limiter)
	} else {
		t.global = t.newLimiter()
	}

	return t, nil
}

func (t *throttle) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(t.cfg.RPS), t.cfg.Burst)
}

// limiter returns the bucket that governs requests to host.
func (t *throttle) limiter(host string) *rate.Limiter {
	if t.global != nil {
		return t.global
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.perHost[host]
	if !ok {
		l = t.newLimiter()
		t.perHost[host] = l
	}

	return l
}

func (t *throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	limiter := t.limiter(r.URL.Host)

	var waited time.Duration
	logger := t.logFn()
	// Tokens only peeks at the bucket; Wait below takes the token.
	if logger != nil && limiter.Tokens() < 1 {
		logger.Info("throttle tokens exhausted", "rate", t.cfg.RPS, "burst", t.cfg.Burst, "host", r.URL.Host, "path", r.URL.Path)

		defer func() {
			logger.Info("throttle wait complete", "waited", waited.String(), "host", r.URL.Host)
		}()
	}

	start := time.Now()

	err := limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return t.next.RoundTrip(r)
}
