package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/adamwoolhether/rest/client/download"
	"github.com/adamwoolhether/rest/client/progress"
	"github.com/adamwoolhether/rest/client/sse"
)

// exchange holds the state shared between the transport, the progress
// sampler and the event parser of one request.
type exchange struct {
	params *Parameters

	uploaded      atomic.Int64
	uploadTotal   int64
	downloaded    atomic.Int64
	downloadTotal atomic.Int64
	hasBody       bool

	// mu guards buf, parser and the events appended to params.
	mu     sync.Mutex
	buf    bytes.Buffer
	parser *sse.Parser
	queue  *sse.Queue
}

// Write appends response bytes to the buffer.
func (ex *exchange) Write(p []byte) (int, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	n, err := ex.buf.Write(p)
	ex.downloaded.Add(int64(n))
	return n, err
}

func (ex *exchange) transfer() progress.Transfer {
	return progress.Transfer{
		Uploaded:      ex.uploaded.Load(),
		UploadTotal:   ex.uploadTotal,
		Downloaded:    ex.downloaded.Load(),
		DownloadTotal: ex.downloadTotal.Load(),
		HasBody:       ex.hasBody,
	}
}

// parse runs one incremental pass over the buffer. It is a no-op when
// the exchange does not stream events.
func (ex *exchange) parse() {
	ex.scan(false)
}

// flush parses a trailing frame left without a blank line. Events are
// never produced after it.
func (ex *exchange) flush() {
	ex.scan(true)
}

func (ex *exchange) scan(final bool) {
	if ex.parser == nil {
		return
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()

	var events []sse.Event
	if final {
		events = ex.parser.Flush(ex.buf.Bytes())
	} else {
		events = ex.parser.Parse(ex.buf.Bytes())
	}

	ex.params.appendEvents(events...)
	ex.queue.Push(events...)
}

// Send executes req and returns the record of the exchange.
//
// A transport failure or an error status does not make Send return an
// error: the returned [Response] is marked unsuccessful instead, and
// [Response.Validate] turns it into an error. Send only returns an
// error for invalid input, or, together with the failed Response, when
// the context of req ends first (wrapping [ErrCancelled]).
//
// With onEvent set, the response body is parsed as a server-sent event
// stream while it arrives and every event is passed to onEvent, one at
// a time and in order. Send returns once all events were delivered.
func (c *Client) Send(req *http.Request, params *Parameters, onEvent sse.Handler) (*Response, error) {
	if req == nil {
		return nil, errors.New("request must not be nil")
	}
	if params == nil {
		params = &Parameters{Cache: true}
	}

	handler := params.handler()
	if _, ok := handler.(*BufferHandler); onEvent != nil && !ok {
		return nil, fmt.Errorf("%w: got %T", ErrStreamHandler, handler)
	}

	callerCtx := req.Context()
	ctx := callerCtx
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "rest "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
			attribute.String("rest.request_id", requestID),
		),
	)
	defer span.End()

	if params.CertificateHandler != nil {
		ctx = withCertPolicy(ctx, certPolicy{handler: params.CertificateHandler, dispose: params.DisposeCertificateHandler})
	}

	req = req.Clone(ctx)
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	ex := &exchange{params: params}
	ex.downloadTotal.Store(-1)

	if req.Body != nil && req.Body != http.NoBody {
		if ct := req.Header.Get("Content-Type"); ct != "" {
			req.Header.Set("Content-Type", strings.ReplaceAll(ct, `"`, ""))
		}
		ex.hasBody = true
		ex.uploadTotal = req.ContentLength
		req.Body = &countingBody{ReadCloser: req.Body, n: &ex.uploaded}
	}

	if onEvent != nil {
		ex.parser = sse.NewParser(c.logger)
		ex.queue = sse.NewQueue(c.logger)
	}

	logger := c.logger.With("request_id", requestID)
	logger.Debug("rest request", "method", req.Method, "url", req.URL.String())

	var g errgroup.Group
	samplerCtx, stopSampler := context.WithCancel(ctx)
	defer stopSampler()

	if params.Progress != nil || onEvent != nil {
		sampler := progress.NewSampler(ex.transfer,
			progress.WithInterval(c.pollInterval),
			progress.WithSink(params.Progress),
			progress.WithTick(ex.parse),
		)
		g.Go(func() error { return sampler.Run(samplerCtx) })
	}

	if onEvent != nil {
		g.Go(func() error { return ex.queue.Run(callerCtx, onEvent) })
	}

	start := time.Now()
	out := c.roundTrip(ctx, req, ex, handler)

	stopSampler()
	ex.flush()
	if ex.queue != nil {
		ex.queue.Close()
	}
	loopErr := g.Wait()

	if params.Progress != nil {
		params.Progress(progress.Complete(ex.transfer()))
	}

	resp := &Response{
		RequestID:   requestID,
		URL:         req.URL.String(),
		Method:      req.Method,
		RequestBody: requestBody(req),
		Code:        out.status,
		Headers:     out.headers,
		Parameters:  params,
		Elapsed:     time.Since(start),
	}

	resp.Successful = !failed(out.status, out.transportErr) && out.handlerErr == nil
	if resp.Successful {
		if _, ok := handler.(*BufferHandler); ok {
			ex.mu.Lock()
			resp.Data = bytes.Clone(ex.buf.Bytes())
			ex.mu.Unlock()
			resp.Body = string(resp.Data)
		}
	} else {
		resp.Error = describeFailure(out)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", out.status))
	if !resp.Successful {
		span.SetStatus(codes.Error, resp.Error)
	}

	logger.Debug("rest response",
		"code", resp.Code,
		"successful", resp.Successful,
		"elapsed", resp.Elapsed.String(),
	)
	if params.Debug {
		logger.Info("rest debug", "response", resp)
	}

	if err := callerCtx.Err(); err != nil {
		return resp, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if loopErr != nil {
		logger.Warn("rest background loop", "error", loopErr)
	}

	return resp, nil
}

// outcome is what the transport and the download handler produced.
type outcome struct {
	status       int
	headers      map[string]string
	transportErr error
	handlerErr   error
	excerpt      string
}

// roundTrip performs the HTTP exchange and feeds the body to handler.
func (c *Client) roundTrip(ctx context.Context, req *http.Request, ex *exchange, handler DownloadHandler) outcome {
	var out outcome

	resp, err := c.c.Do(req)
	if err != nil {
		out.transportErr = err
		return out
	}
	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			c.logger.Debug("discarding unused body", "error", err)
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	out.status = resp.StatusCode
	out.headers = flattenHeaders(resp.Header)
	ex.downloadTotal.Store(resp.ContentLength)

	if resp.StatusCode >= http.StatusBadRequest {
		b, err := io.ReadAll(io.LimitReader(&countingReader{r: resp.Body, n: &ex.downloaded}, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}
		out.excerpt = string(b)
		return out
	}

	// A body that cannot be fully consumed fails the exchange whatever
	// the status.
	if err := c.consume(ctx, resp, ex, handler); err != nil {
		out.handlerErr = err
	}

	return out
}

// consume feeds the body into the download handler variant.
func (c *Client) consume(ctx context.Context, resp *http.Response, ex *exchange, handler DownloadHandler) error {
	switch h := handler.(type) {
	case *BufferHandler:
		if _, err := io.Copy(ex, resp.Body); err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		return nil

	case *FileHandler:
		if h.Path == "" {
			return errors.New("file handler path must not be empty")
		}
		opts := append([]DownloadOption{download.WithCounter(&ex.downloaded)}, h.Options...)
		return download.Handle(ctx, resp.Body, resp.ContentLength, h.Path, c.logger, opts...)

	case *TextureHandler:
		data, err := readAll(resp.Body, &ex.downloaded)
		if err != nil {
			return err
		}
		return h.decode(data)

	case *AudioHandler:
		data, err := readAll(resp.Body, &ex.downloaded)
		if err != nil {
			return err
		}
		return h.decode(data)

	default:
		return fmt.Errorf("unknown download handler %T", handler)
	}
}

func readAll(r io.Reader, n *atomic.Int64) ([]byte, error) {
	b, err := io.ReadAll(&countingReader{r: r, n: n})
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return b, nil
}

// failed reports whether an exchange counts as failed: the transport
// reported an error or an error status, and no status below 400 was
// received. Statuses such as 1xx and 3xx therefore succeed.
func failed(status int, transportErr error) bool {
	return (transportErr != nil || status >= http.StatusBadRequest) &&
		(status == 0 || status >= http.StatusBadRequest)
}

func describeFailure(out outcome) string {
	var parts []string
	if out.status > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", out.status, http.StatusText(out.status)))
	}
	if out.transportErr != nil {
		parts = append(parts, out.transportErr.Error())
	}
	if out.handlerErr != nil {
		parts = append(parts, out.handlerErr.Error())
	}
	if body := strings.TrimSpace(out.excerpt); body != "" {
		parts = append(parts, body)
	}
	if len(parts) == 0 {
		return "unknown error"
	}
	return strings.Join(parts, ": ")
}

// requestBody returns the replayable request payload as text.
func requestBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}

	body, err := req.GetBody()
	if err != nil {
		return ""
	}
	defer body.Close()

	b, err := io.ReadAll(io.LimitReader(body, maxErrBodySize))
	if err != nil {
		return ""
	}

	return string(b)
}
