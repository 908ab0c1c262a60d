package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/rest/client/cache"
	"github.com/adamwoolhether/rest/client/progress"
	"github.com/adamwoolhether/rest/client/throttle"
)

const tracerName = "github.com/adamwoolhether/rest/client"

// DefaultBatchLimit is the number of concurrent downloads run by
// [Client.DownloadAsync] unless set with [WithBatchLimit].
const DefaultBatchLimit = 4

// Client wraps the std-lib *http.Client
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs.
type Client struct {
	c            *http.Client
	logger       *slog.Logger
	tracer       trace.Tracer
	cache        *cache.Store
	pollInterval time.Duration
	batchLimit   int
}

// Build creates a Client from optFns.
func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	client := &Client{
		c:            &http.Client{},
		logger:       slog.Default(),
		cache:        opts.cache,
		pollInterval: progress.DefaultInterval,
		batchLimit:   DefaultBatchLimit,
	}

	if opts.client != nil {
		client.c = opts.client
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	tp := opts.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	client.tracer = tp.Tracer(tracerName)

	if opts.pollInterval > 0 {
		client.pollInterval = opts.pollInterval
	}

	if opts.batchLimit != nil {
		client.batchLimit = *opts.batchLimit
	}

	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	transport = certTransport{base: transport}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(*opts.throttle, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	client.c.Transport = transport

	return client, nil
}

// Cache returns the download cache, nil when none was configured.
func (c *Client) Cache() *cache.Store {
	return c.cache
}

// Validate returns a *[ResponseError] when resp is not successful. With
// debug set, a successful response is logged with the client's logger.
func (c *Client) Validate(resp *Response, debug bool) error {
	return resp.validate(c.logger, debug)
}

// Do sends req and requires the response status to be expCode. The
// JSON body is decoded into the destination set with [WithDestination].
func (c *Client) Do(req *http.Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return err
		}
	}

	resp, err := c.Send(req, nil, nil)
	if err != nil {
		return fmt.Errorf("exec send: %w", err)
	}

	if resp.Code == 0 {
		return fmt.Errorf("exec http do: %w", newResponseError(resp))
	}

	if resp.Code != expCode {
		body := resp.Body
		if !resp.Successful {
			body = resp.Error
		}

		return &UnexpectedStatusError{
			StatusCode: resp.Code,
			Body:       body,
			Err:        ErrUnexpectedStatusCode,
		}
	}

	if settings.responseBody == nil {
		return nil
	}

	var decodeOpts []DecodeOption
	if settings.useJSONNum {
		decodeOpts = append(decodeOpts, WithJSONNumber())
	}

	return resp.Decode(settings.responseBody, decodeOpts...)
}

// Request instantiates an *http.Request with the provided information.
// It's just a convenience method that wraps the public Request func.
func (c *Client) Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	return Request(ctx, reqURL, method, opts...)
}

// URL creates a url.URL for use in Request.
// It's just a convenience method that wraps the public URL func.
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

// Request instantiates an *http.Request with the provided information.
// A payload set with [WithPayload] is JSON-encoded, one set with
// [WithRawPayload] is sent as is. Content-Type defaults to
// `application/json` if unspecified via WithContentType.
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return nil, err
		}
	}

	var body io.Reader
	switch {
	case settings.raw != nil:
		body = bytes.NewReader(settings.raw)
	case settings.body != nil:
		var payload bytes.Buffer
		if err := json.NewEncoder(&payload).Encode(settings.body); err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		body = &payload
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for _, cookie := range settings.cookies {
		req.AddCookie(cookie)
	}

	contentType := "application/json"
	if settings.contentType != nil {
		contentType = *settings.contentType
	}

	req.Header.Set("Content-Type", contentType)
	for k, v := range settings.headers {
		for _, element := range v {
			req.Header.Add(k, element)
		}
	}

	return req, nil
}

// URL creates a url.URL for use in Request.
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != nil {
		host = fmt.Sprintf("%s:%d", host, *settings.port)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		endpoint.RawQuery = queryParams.Encode()
	}

	return &endpoint
}
