package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/adamwoolhether/rest/client/sse"
)

// Response records one HTTP exchange. It is built once, after the
// transport completes or fails, and never mutated afterwards.
type Response struct {
	RequestID string
	URL       string
	Method    string
	// RequestBody is the request payload as text, when it could be
	// replayed.
	RequestBody string

	Successful bool
	Code       int
	// Headers maps each response header to its values joined with ", ".
	Headers map[string]string
	// Body and Data are only set for a successful exchange using the
	// [BufferHandler].
	Body string
	Data []byte
	// Error describes why the exchange failed. Empty on success.
	Error string

	Parameters *Parameters
	Elapsed    time.Duration
}

// Events returns the server-sent events received during the exchange.
func (r *Response) Events() []sse.Event {
	if r.Parameters == nil {
		return nil
	}
	return r.Parameters.Events()
}

// Validate returns a *[ResponseError] when r is not successful. With
// debug set, a successful response is logged with [slog.Default].
func (r *Response) Validate(debug bool) error {
	return r.validate(slog.Default(), debug)
}

func (r *Response) validate(logger *slog.Logger, debug bool) error {
	if r == nil {
		return errors.New("nil response")
	}

	if !r.Successful {
		return newResponseError(r)
	}

	if debug {
		logger.Info("rest response", "response", r)
	}

	return nil
}

// DecodeOption is a functional option for [Response.Decode].
type DecodeOption func(*json.Decoder)

// WithJSONNumber tells the JSON decoder to use [json.Decoder.UseNumber],
// preserving number precision as [json.Number] instead of float64.
func WithJSONNumber() DecodeOption {
	return func(d *json.Decoder) { d.UseNumber() }
}

// Decode unmarshals the JSON body into dest. dest must be a pointer.
func (r *Response) Decode(dest any, opts ...DecodeOption) error {
	if err := r.Validate(false); err != nil {
		return err
	}

	d := json.NewDecoder(bytes.NewReader(r.Data))
	for _, opt := range opts {
		opt(d)
	}

	if err := d.Decode(dest); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}

	return nil
}

// LogValue renders the structured debug dump of r.
func (r *Response) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("request_id", r.RequestID),
		slog.String("method", r.Method),
		slog.String("url", r.URL),
		slog.Int("code", r.Code),
		slog.Bool("successful", r.Successful),
		slog.Duration("elapsed", r.Elapsed),
	}

	if r.RequestBody != "" {
		attrs = append(attrs, slog.String("request_body", r.RequestBody))
	}

	if len(r.Headers) > 0 {
		keys := slices.Sorted(maps.Keys(r.Headers))
		headers := make([]any, 0, len(keys))
		for _, k := range keys {
			headers = append(headers, slog.String(k, r.Headers[k]))
		}
		attrs = append(attrs, slog.Group("headers", headers...))
	}

	if r.Body != "" {
		attrs = append(attrs, slog.String("body", r.Body))
	}

	if events := r.Events(); len(events) > 0 {
		lines := make([]string, len(events))
		for i, ev := range events {
			lines[i] = ev.String()
		}
		attrs = append(attrs, slog.Any("events", lines))
	}

	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}

	return slog.GroupValue(attrs...)
}

// flattenHeaders joins multi-valued headers with ", ".
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
