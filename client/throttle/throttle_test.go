package throttle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// countingTransport answers every request with 200 and counts the calls.
func countingTransport(calls *atomic.Int32) http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})
}

func discardLogFn() func() *slog.Logger {
	logger := slog.New(slog.DiscardHandler)
	return func() *slog.Logger { return logger }
}

func send(ctx context.Context, rt http.RoundTripper, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	_, err = rt.RoundTrip(req)
	return err
}

func TestNewRoundTripper_Validation(t *testing.T) {
	testCases := map[string]struct {
		cfg    Config
		expErr error
	}{
		"zeroRPS":       {cfg: Config{RPS: 0, Burst: 10}, expErr: ErrMustNotBeZero},
		"negativeRPS":   {cfg: Config{RPS: -5, Burst: 10}, expErr: ErrMustNotBeZero},
		"zeroBurst":     {cfg: Config{RPS: 10, Burst: 0}, expErr: ErrMustNotBeZero},
		"negativeBurst": {cfg: Config{RPS: 10, Burst: -5, PerHost: true}, expErr: ErrMustNotBeZero},
		"global":        {cfg: Config{RPS: 10, Burst: 20}},
		"perHost":       {cfg: Config{RPS: 10, Burst: 20, PerHost: true}},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			rt, err := NewRoundTripper(tc.cfg, nil, nil)

			if tc.expErr != nil {
				if !errors.Is(err, tc.expErr) {
					t.Errorf("exp err %v; got: %v", tc.expErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("exp nil err, got: %v", err)
			}
			if rt == nil {
				t.Error("exp non-nil RoundTripper")
			}
		})
	}
}

func TestThrottle_BurstAdmitsAtOnce(t *testing.T) {
	const burst = 4

	testCases := map[string]func() *slog.Logger{
		"withLogger":    discardLogFn(),
		"withoutLogger": nil,
	}

	for name, logFn := range testCases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			rt, err := NewRoundTripper(Config{RPS: 1, Burst: burst}, logFn, countingTransport(&calls))
			if err != nil {
				t.Fatal(err)
			}

			start := time.Now()

			var wg sync.WaitGroup
			errs := make([]error, burst)
			for i := range burst {
				wg.Go(func() {
					errs[i] = send(t.Context(), rt, "http://a.example/")
				})
			}
			wg.Wait()

			if took := time.Since(start); took > 300*time.Millisecond {
				t.Errorf("a burst of %d should pass at once, took %v", burst, took)
			}
			if err := errors.Join(errs...); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// The bucket is now empty and refills once per second.
			ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
			defer cancel()

			if err := send(ctx, rt, "http://a.example/"); !errors.Is(err, ErrWaitingFailed) {
				t.Errorf("expected ErrWaitingFailed past the burst, got %v", err)
			}
			if got := calls.Load(); got != burst {
				t.Errorf("expected %d calls to reach the transport, got %d", burst, got)
			}
		})
	}
}

func TestThrottle_RateAfterBurst(t *testing.T) {
	var calls atomic.Int32
	rt, err := NewRoundTripper(Config{RPS: 20, Burst: 2}, discardLogFn(), countingTransport(&calls))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	for range 5 {
		if err := send(t.Context(), rt, "http://a.example/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	took := time.Since(start)

	// Two requests use the burst, three wait 50ms each.
	if took < 140*time.Millisecond || took > 600*time.Millisecond {
		t.Errorf("expected about 150ms for 5 requests at 20 rps, took %v", took)
	}
}

func TestThrottle_GlobalBucketSpansHosts(t *testing.T) {
	var calls atomic.Int32
	rt, err := NewRoundTripper(Config{RPS: 1, Burst: 1}, nil, countingTransport(&calls))
	if err != nil {
		t.Fatal(err)
	}

	if err := send(t.Context(), rt, "http://a.example/"); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	if err := send(ctx, rt, "http://b.example/"); !errors.Is(err, ErrWaitingFailed) {
		t.Errorf("expected the shared bucket to throttle b, got %v", err)
	}
}

func TestThrottle_PerHost(t *testing.T) {
	var calls atomic.Int32
	rt, err := NewRoundTripper(Config{RPS: 1, Burst: 1, PerHost: true}, nil, countingTransport(&calls))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	// Each host has its own single-token bucket.
	if err := send(ctx, rt, "http://a.example/one"); err != nil {
		t.Fatalf("first request to a: %v", err)
	}
	if err := send(ctx, rt, "http://b.example/one"); err != nil {
		t.Fatalf("first request to b: %v", err)
	}

	// A second call to the same host needs a token one second away.
	if err := send(ctx, rt, "http://a.example/two"); !errors.Is(err, ErrWaitingFailed) {
		t.Errorf("expected ErrWaitingFailed, got %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 calls to reach the transport, got %d", got)
	}
}

func TestThrottle_PreCancelledContext(t *testing.T) {
	var calls atomic.Int32
	rt, err := NewRoundTripper(Config{RPS: 20, Burst: 10}, nil, countingTransport(&calls))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err = send(ctx, rt, "http://a.example/")
	if !errors.Is(err, ErrContextEnded) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected ErrContextEnded wrapping context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("a cancelled request must not reach the transport")
	}
}

func TestThrottle_LogsExhaustion(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var calls atomic.Int32
	rt, err := NewRoundTripper(Config{RPS: 20, Burst: 1}, func() *slog.Logger { return logger }, countingTransport(&calls))
	if err != nil {
		t.Fatal(err)
	}

	if err := send(t.Context(), rt, "http://a.example/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("a request within the burst must not log, got %q", buf.String())
	}

	for range 2 {
		if err := send(t.Context(), rt, "http://a.example/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for _, want := range []string{"throttle tokens exhausted", "throttle wait complete"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %q in the log, got %q", want, buf.String())
		}
	}
}
