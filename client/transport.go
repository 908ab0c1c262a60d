package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

type certKey struct{}

type certPolicy struct {
	handler CertificateHandler
	dispose bool
}

func withCertPolicy(ctx context.Context, p certPolicy) context.Context {
	return context.WithValue(ctx, certKey{}, p)
}

// certTransport is the innermost http.RoundTripper. Requests carrying a
// certificate handler in their context go through a clone of the base
// transport whose TLS verification is replaced by the handler.
type certTransport struct {
	base http.RoundTripper
}

func (ct certTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	policy, ok := r.Context().Value(certKey{}).(certPolicy)
	if !ok {
		return ct.base.RoundTrip(r)
	}

	base, ok := ct.base.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("certificate handler needs an *http.Transport, got %T", ct.base)
	}

	tr := base.Clone()
	if tr.TLSClientConfig == nil {
		tr.TLSClientConfig = &tls.Config{}
	}
	tr.TLSClientConfig.InsecureSkipVerify = true
	tr.TLSClientConfig.VerifyPeerCertificate = verifyWith(policy.handler)

	resp, err := tr.RoundTrip(r)
	if err != nil {
		tr.CloseIdleConnections()
		return nil, err
	}

	if policy.dispose {
		resp.Body = &onCloseBody{ReadCloser: resp.Body, fn: tr.CloseIdleConnections}
	}

	return resp, nil
}

func verifyWith(h CertificateHandler) func([][]byte, [][]*x509.Certificate) error {
	return func(raw [][]byte, _ [][]*x509.Certificate) error {
		certs := make([]*x509.Certificate, 0, len(raw))
		for _, b := range raw {
			cert, err := x509.ParseCertificate(b)
			if err != nil {
				return fmt.Errorf("parsing peer certificate: %w", err)
			}
			certs = append(certs, cert)
		}

		return h(certs)
	}
}

// onCloseBody runs fn once after the body is closed.
type onCloseBody struct {
	io.ReadCloser
	fn   func()
	once sync.Once
}

func (b *onCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.fn)
	return err
}

// countingBody counts the request bytes read by the transport.
type countingBody struct {
	io.ReadCloser
	n *atomic.Int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n.Add(int64(n))
	return n, err
}

// countingReader counts response bytes read by a download handler.
type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n.Add(int64(n))
	return n, err
}
