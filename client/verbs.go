package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/adamwoolhether/rest/client/sse"
)

// Get sends a GET request to rawURL.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...ParamOption) (*Response, error) {
	return c.call(ctx, http.MethodGet, rawURL, nil, nil, opts)
}

// Post sends payload to rawURL. See [Client.Stream] for how payload is encoded.
func (c *Client) Post(ctx context.Context, rawURL string, payload any, opts ...ParamOption) (*Response, error) {
	return c.call(ctx, http.MethodPost, rawURL, payload, nil, opts)
}

// Put sends payload to rawURL with the PUT method.
func (c *Client) Put(ctx context.Context, rawURL string, payload any, opts ...ParamOption) (*Response, error) {
	return c.call(ctx, http.MethodPut, rawURL, payload, nil, opts)
}

// Patch sends payload to rawURL with the PATCH method.
func (c *Client) Patch(ctx context.Context, rawURL string, payload any, opts ...ParamOption) (*Response, error) {
	return c.call(ctx, http.MethodPatch, rawURL, payload, nil, opts)
}

// Delete sends a DELETE request to rawURL.
func (c *Client) Delete(ctx context.Context, rawURL string, opts ...ParamOption) (*Response, error) {
	return c.call(ctx, http.MethodDelete, rawURL, nil, nil, opts)
}

// Stream sends a request and delivers the server-sent events of the
// response to onEvent while they arrive.
//
// A string, []byte or io.Reader payload is sent as is, anything else
// is JSON-encoded. A nil payload sends no body.
func (c *Client) Stream(ctx context.Context, method, rawURL string, payload any, onEvent sse.Handler, opts ...ParamOption) (*Response, error) {
	if onEvent == nil {
		return nil, fmt.Errorf("%w: nil event handler", ErrStreamHandler)
	}
	return c.call(ctx, method, rawURL, payload, onEvent, opts)
}

func (c *Client) call(ctx context.Context, method, rawURL string, payload any, onEvent sse.Handler, opts []ParamOption) (*Response, error) {
	params, err := NewParameters(opts...)
	if err != nil {
		return nil, fmt.Errorf("applying parameter option: %w", err)
	}

	req, err := newRequest(ctx, method, rawURL, payload)
	if err != nil {
		return nil, err
	}

	if onEvent != nil {
		req.Header.Set("Accept", "text/event-stream")
	}

	return c.Send(req, params, onEvent)
}

func newRequest(ctx context.Context, method, rawURL string, payload any) (*http.Request, error) {
	var body io.Reader
	switch p := payload.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(p)
	case []byte:
		body = bytes.NewReader(p)
	case io.Reader:
		body = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}
