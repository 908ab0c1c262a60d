package client

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrBodySize caps the amount of response body read when
// building an error for a failed exchange. This prevents
// unbounded memory usage when a large response arrives with an
// error status.
const maxErrBodySize = 4 << 10 // 4KB

var (
	// ErrRequestFailed is the sentinel wrapped by [ResponseError].
	ErrRequestFailed = errors.New("request failed")
	// ErrAuthFailure is joined with [ErrRequestFailed] when the server
	// responds with 401 Unauthorized or 403 Forbidden.
	ErrAuthFailure = errors.New("auth failure")
	// ErrCancelled is returned by [Client.Send] when the caller's
	// context ends before the exchange completes.
	ErrCancelled = errors.New("request cancelled")
	// ErrUnexpectedStatusCode is the sentinel wrapped by [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrStreamHandler is returned when server-sent events are requested
	// together with a download handler other than [BufferHandler].
	ErrStreamHandler = errors.New("server-sent events require the buffer download handler")
	// ErrNoCache is returned by download helpers that need a cache
	// store when the client was built without one.
	ErrNoCache = errors.New("no download cache configured")
	// ErrUnsupportedMedia is returned when downloaded bytes cannot be
	// turned into the requested media type.
	ErrUnsupportedMedia = errors.New("unsupported media")
)

// ResponseError is returned by Validate for an unsuccessful [Response].
type ResponseError struct {
	Response *Response
	Err      error
}

func (e *ResponseError) Error() string {
	r := e.Response
	return fmt.Sprintf("%s %s: %d: %s", r.Method, r.URL, r.Code, r.Error)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

func newResponseError(r *Response) *ResponseError {
	err := ErrRequestFailed
	if r.Code == http.StatusUnauthorized || r.Code == http.StatusForbidden {
		err = errors.Join(ErrRequestFailed, ErrAuthFailure)
	}

	return &ResponseError{Response: r, Err: err}
}

// UnexpectedStatusError is returned by [Client.Do] when the HTTP
// response status code does not match the expected value.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}
