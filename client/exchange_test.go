package client_test

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/rest/client"
	"github.com/adamwoolhether/rest/client/progress"
	"github.com/adamwoolhether/rest/client/sse"
)

func newTestClient(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()

	opts = append([]client.Option{
		client.WithLogger(slog.New(slog.DiscardHandler)),
		client.WithPollInterval(5 * time.Millisecond),
	}, opts...)

	c, err := client.Build(opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

// sseServer writes frames one by one, flushing after each.
func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer does not flush")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		for _, f := range frames {
			_, _ = io.WriteString(w, f)
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}))
	t.Cleanup(ts.Close)

	return ts
}

type gotEvent struct {
	Kind string
	Text string
	Data string
}

func summarize(events []sse.Event) []gotEvent {
	out := make([]gotEvent, len(events))
	for i, ev := range events {
		out[i] = gotEvent{Kind: ev.Kind.String(), Text: ev.Text(), Data: ev.DataText()}
	}
	return out
}

func TestSend_StreamsEventsInOrder(t *testing.T) {
	ts := sseServer(t,
		"data: one\n\n",
		"event: update\ndata: {\"n\":2}\n\n",
		": keepalive\n\n",
		"data: a\ndata: ",
		"b\n\n",
		"data: [DONE]\n\n",
		"data: never\n\n",
	)

	c := newTestClient(t)

	var (
		mu        sync.Mutex
		delivered []sse.Event
	)
	onEvent := func(ctx context.Context, ev sse.Event) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, ev)
		return nil
	}

	resp, err := c.Stream(t.Context(), http.MethodGet, ts.URL, nil, onEvent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Successful {
		t.Fatalf("expected success, got %q", resp.Error)
	}

	want := []gotEvent{
		{Kind: "data", Text: "one"},
		{Kind: "event", Text: "update", Data: `{"n":2}`},
		{Kind: "comment", Text: "keepalive"},
		{Kind: "data", Text: "a", Data: "a\nb"},
	}

	if diff := cmp.Diff(want, summarize(delivered)); diff != "" {
		t.Errorf("delivered events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, summarize(resp.Events())); diff != "" {
		t.Errorf("recorded events mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(resp.Body, "data: never") {
		t.Error("expected the raw stream in the response body")
	}
}

func TestSend_FlushesTrailingFrame(t *testing.T) {
	ts := sseServer(t, "data: first\n\n", "data: tail")

	c := newTestClient(t)

	var texts []string
	resp, err := c.Stream(t.Context(), http.MethodGet, ts.URL, nil, func(ctx context.Context, ev sse.Event) error {
		texts = append(texts, ev.Text())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{"first", "tail"}, texts); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if got := len(resp.Events()); got != 2 {
		t.Errorf("expected 2 recorded events, got %d", got)
	}
}

func TestSend_HandlerErrorsDoNotStopDelivery(t *testing.T) {
	ts := sseServer(t, "data: 1\n\n", "data: 2\n\n", "data: 3\n\n")

	c := newTestClient(t)

	var calls int
	resp, err := c.Stream(t.Context(), http.MethodGet, ts.URL, nil, func(ctx context.Context, ev sse.Event) error {
		calls++
		if calls == 1 {
			panic("first event")
		}
		return errors.New("handler failed")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Successful {
		t.Errorf("expected success, got %q", resp.Error)
	}
	if calls != 3 {
		t.Errorf("expected 3 handler calls, got %d", calls)
	}
}

func TestSend_StreamRequiresBufferHandler(t *testing.T) {
	c := newTestClient(t)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://example.invalid", nil)
	if err != nil {
		t.Fatal(err)
	}

	params := &client.Parameters{Handler: &client.FileHandler{Path: t.TempDir() + "/x"}}
	_, err = c.Send(req, params, func(context.Context, sse.Event) error { return nil })
	if !errors.Is(err, client.ErrStreamHandler) {
		t.Errorf("expected ErrStreamHandler, got %v", err)
	}
}

func TestSend_ReportsProgress(t *testing.T) {
	const size = 64 << 10

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Length", "65536")
		half := strings.Repeat("x", size/2)
		_, _ = io.WriteString(w, half)
		w.(http.Flusher).Flush()
		time.Sleep(30 * time.Millisecond)
		_, _ = io.WriteString(w, half)
	}))
	defer ts.Close()

	c := newTestClient(t)

	var (
		mu   sync.Mutex
		seen []progress.Progress
	)
	sink := func(p progress.Progress) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
	}

	resp, err := c.Post(t.Context(), ts.URL, map[string]int{"a": 1}, client.WithProgress(sink))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Data) != size {
		t.Fatalf("expected %d bytes, got %d", size, len(resp.Data))
	}

	mu.Lock()
	defer mu.Unlock()

	if len(seen) < 2 {
		t.Fatalf("expected intermediate and final snapshots, got %d", len(seen))
	}

	last := seen[len(seen)-1]
	if last.Percentage != 100 || last.Position != size || last.Length != size {
		t.Errorf("unexpected final snapshot %+v", last)
	}

	for _, p := range seen {
		if p.Percentage < 0 || p.Percentage > 100 {
			t.Errorf("percentage out of range: %+v", p)
		}
	}
}

func TestSend_AppliesParameters(t *testing.T) {
	var gotContentType, gotToken string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotToken = r.Header.Get("X-Token")
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		_, _ = io.WriteString(w, "ok")
	}))
	defer ts.Close()

	c := newTestClient(t)

	resp, err := c.Post(t.Context(), ts.URL, `{"a":1}`,
		client.WithRequestHeaders(map[string]string{
			"Content-Type": `application/json; charset="utf-8"`,
			"X-Token":      "secret",
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotContentType != "application/json; charset=utf-8" {
		t.Errorf("expected quotes stripped from Content-Type, got %q", gotContentType)
	}
	if gotToken != "secret" {
		t.Errorf("expected X-Token header, got %q", gotToken)
	}
	if resp.Headers["X-Multi"] != "a, b" {
		t.Errorf("expected joined header values, got %q", resp.Headers["X-Multi"])
	}
	if resp.RequestBody != `{"a":1}` {
		t.Errorf("expected request body to be recorded, got %q", resp.RequestBody)
	}
	if resp.Body != "ok" || string(resp.Data) != "ok" {
		t.Errorf("unexpected body %q / %q", resp.Body, resp.Data)
	}
	if resp.RequestID == "" {
		t.Error("expected a request id")
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	testCases := map[string]struct {
		status   int
		wantAuth bool
	}{
		"notFound":     {status: http.StatusNotFound},
		"serverError":  {status: http.StatusInternalServerError},
		"unauthorized": {status: http.StatusUnauthorized, wantAuth: true},
		"forbidden":    {status: http.StatusForbidden, wantAuth: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer ts.Close()

			c := newTestClient(t)

			resp, err := c.Get(t.Context(), ts.URL)
			if err != nil {
				t.Fatalf("transport outcome must not be an error, got %v", err)
			}

			if resp.Successful {
				t.Fatal("expected failed response")
			}
			if resp.Code != tc.status {
				t.Errorf("code = %d, want %d", resp.Code, tc.status)
			}
			if resp.Body != "" || resp.Data != nil {
				t.Errorf("failed response must not carry a body, got %q", resp.Body)
			}
			if !strings.Contains(resp.Error, http.StatusText(tc.status)) || !strings.Contains(resp.Error, "nope") {
				t.Errorf("error %q should mention the status and the body", resp.Error)
			}

			err = c.Validate(resp, false)

			var respErr *client.ResponseError
			if !errors.As(err, &respErr) || respErr.Response != resp {
				t.Fatalf("expected *ResponseError for this response, got %v", err)
			}
			if !errors.Is(err, client.ErrRequestFailed) {
				t.Errorf("expected ErrRequestFailed, got %v", err)
			}
			if got := errors.Is(err, client.ErrAuthFailure); got != tc.wantAuth {
				t.Errorf("errors.Is(err, ErrAuthFailure) = %v, want %v", got, tc.wantAuth)
			}
		})
	}
}

func TestSend_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	c := newTestClient(t)

	resp, err := c.Get(t.Context(), addr)
	if err != nil {
		t.Fatalf("transport failure must not be an error, got %v", err)
	}
	if resp.Successful || resp.Code != 0 || resp.Error == "" {
		t.Errorf("expected failed response without status, got %+v", resp)
	}
}

func TestSend_Cancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	c := newTestClient(t)

	t.Run("callerCancel", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		resp, err := c.Get(ctx, ts.URL)
		if !errors.Is(err, client.ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected ErrCancelled wrapping the context error, got %v", err)
		}
		if resp == nil || resp.Successful {
			t.Errorf("expected a failed response alongside the error, got %+v", resp)
		}
	})

	t.Run("parameterTimeout", func(t *testing.T) {
		resp, err := c.Get(t.Context(), ts.URL, client.WithRequestTimeout(50*time.Millisecond))
		if err != nil {
			t.Fatalf("a parameter timeout is a transport failure, got error %v", err)
		}
		if resp.Successful {
			t.Error("expected failed response")
		}
	})

	t.Run("streamCancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		time.AfterFunc(50*time.Millisecond, cancel)

		_, err := c.Stream(ctx, http.MethodGet, ts.URL, nil, func(context.Context, sse.Event) error { return nil })
		if !errors.Is(err, client.ErrCancelled) || !errors.Is(err, context.Canceled) {
			t.Errorf("expected ErrCancelled wrapping context.Canceled, got %v", err)
		}
	})
}

func TestSend_CertificateHandler(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "secure")
	}))
	defer ts.Close()

	c := newTestClient(t)

	t.Run("untrusted", func(t *testing.T) {
		resp, err := c.Get(t.Context(), ts.URL)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Successful {
			t.Error("expected verification failure without a handler")
		}
	})

	t.Run("accepted", func(t *testing.T) {
		var leaf *x509.Certificate
		accept := func(certs []*x509.Certificate) error {
			leaf = certs[0]
			return nil
		}

		resp, err := c.Get(t.Context(), ts.URL, client.WithCertificateHandler(accept, true))
		if err != nil {
			t.Fatal(err)
		}
		if !resp.Successful || resp.Body != "secure" {
			t.Fatalf("expected success, got %q", resp.Error)
		}
		if leaf == nil || !leaf.Equal(ts.Certificate()) {
			t.Error("handler did not receive the server certificate")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		reject := func([]*x509.Certificate) error { return errors.New("pinned key mismatch") }

		resp, err := c.Get(t.Context(), ts.URL, client.WithCertificateHandler(reject, false))
		if err != nil {
			t.Fatal(err)
		}
		if resp.Successful || !strings.Contains(resp.Error, "pinned key mismatch") {
			t.Errorf("expected rejection, got successful=%v error=%q", resp.Successful, resp.Error)
		}
	})
}

type recordingProvider struct {
	noop.TracerProvider

	mu    sync.Mutex
	spans []string
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return recordingTracer{p: p}
}

type recordingTracer struct {
	noop.Tracer
	p *recordingProvider
}

func (t recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.p.mu.Lock()
	t.p.spans = append(t.p.spans, name)
	t.p.mu.Unlock()

	return t.Tracer.Start(ctx, name, opts...)
}

func TestSend_RecordsSpan(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	tp := &recordingProvider{}
	c := newTestClient(t, client.WithTracerProvider(tp))

	if _, err := c.Delete(t.Context(), ts.URL); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"rest DELETE"}, tp.spans); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_DebugLogsResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer ts.Close()

	var buf strings.Builder
	var mu sync.Mutex
	logger := slog.New(slog.NewJSONHandler(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}), nil))

	c := newTestClient(t, client.WithLogger(logger))

	resp, err := c.Get(t.Context(), ts.URL, client.WithDebug())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(resp, true); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()

	for _, want := range []string{`"msg":"rest debug"`, `"msg":"rest response"`, resp.RequestID, `\"ok\":true`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output missing %s:\n%s", want, buf.String())
		}
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
