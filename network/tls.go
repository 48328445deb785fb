// The fingerprint transport leverages refraction-networking/utls to emulate
// Chrome's Client Hello signature. Some origin CDNs reject the standard Go TLS
// stack while serving identical requests from browsers; presenting a browser
// fingerprint keeps segment fetches working against them.
//
// Protocol negotiation: an HTTP/2 connection is attempted first (preferred by
// modern CDNs). If the handshake fails or the server only speaks HTTP/1.1, the
// request transparently falls back to an H1 transport with forced protocol
// advertisement.
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

const fingerprintTimeout = 30 * time.Second

// h2FingerprintTransport is the shared HTTP/2 transport for servers that
// negotiate h2.
var (
	h2FingerprintTransport *http2.Transport
	h2FingerprintOnce      sync.Once
)

func getH2FingerprintTransport() *http2.Transport {
	h2FingerprintOnce.Do(func() {
		h2FingerprintTransport = &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialFingerprintTLS(ctx, network, addr, nil)
			},
		}
	})
	return h2FingerprintTransport
}

// h1FingerprintTransport is the shared HTTP/1.1 fallback transport.
var h1FingerprintTransport = &http.Transport{
	DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialFingerprintTLS(ctx, network, addr, []string{"http/1.1"})
	},
}

// fingerprintRoundTripper routes each request through the H2 transport first and
// retries over H1 when the H2 attempt fails.
type fingerprintRoundTripper struct{}

func (fingerprintRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := getH2FingerprintTransport().RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, fmt.Errorf("reset request body for h1 fallback: %w", bodyErr)
		}
		retry.Body = body
	}

	return h1FingerprintTransport.RoundTrip(retry)
}

// FingerprintClient returns an HTTP client presenting a Chrome TLS fingerprint.
func FingerprintClient() *http.Client {
	return &http.Client{
		Timeout:   fingerprintTimeout,
		Transport: fingerprintRoundTripper{},
	}
}

// dialFingerprintTLS creates a TLS connection mimicking Chrome 120's Client
// Hello. A nil protos list advertises both h2 and http/1.1, Chrome's natural
// behavior.
func dialFingerprintTLS(ctx context.Context, network, addr string, protos []string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	dialer := &net.Dialer{Timeout: fingerprintTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		NextProtos: protos,
	}, utls.HelloChrome_120)

	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
