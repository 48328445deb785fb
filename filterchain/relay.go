package filterchain

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/tubeflow-cli/tubeflow/log"
)

// relayPathPrefix namespaces relayed exchanges on the local listener.
const relayPathPrefix = "/relay/"

// Relay is a local HTTP bridge for engines that cannot run the filters on their
// own traffic. Media URLs inside a staged manifest are rewritten to point at the
// relay; every request arriving there is rebuilt against the original target,
// passed through the request filters, executed, and its response passed through
// the response filters before being answered.
//
// The rewritten form keeps the target's path as a relay sub-path, so relative
// segment references inside playlists and manifests still resolve to relay URLs.
type Relay struct {
	chain    *Chain
	listener net.Listener
	server   *http.Server
}

// NewRelay creates a relay over the given chain. Start must be called before
// Rewrite produces usable URLs.
func NewRelay(chain *Chain) *Relay {
	return &Relay{chain: chain}
}

// Start binds the relay to an ephemeral loopback port and begins serving.
func (r *Relay) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("bind relay listener: %w", err)
	}

	r.listener = listener
	r.server = &http.Server{Handler: http.HandlerFunc(r.handle)}
	go func() {
		if err := r.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Warnf("relay server stopped: %v", err)
		}
	}()

	return nil
}

// Close shuts the relay down. In-flight exchanges are aborted.
func (r *Relay) Close() error {
	if r.server == nil {
		return nil
	}
	return r.server.Close()
}

// Addr returns the relay's listen address.
func (r *Relay) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Rewrite maps an absolute http(s) URL onto the relay. Anything else is
// returned unchanged.
func (r *Relay) Rewrite(target string) string {
	if r.listener == nil {
		return target
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return target
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return target
	}

	rewritten := url.URL{
		Scheme:   "http",
		Host:     r.Addr(),
		Path:     relayPathPrefix + parsed.Scheme + "/" + parsed.Host + parsed.Path,
		RawQuery: parsed.RawQuery,
	}
	return rewritten.String()
}

// handle rebuilds the original target from the relay path, runs the exchange
// through both filter directions and answers with the repaired response.
func (r *Relay) handle(w http.ResponseWriter, incoming *http.Request) {
	target, ok := targetFromRelayPath(incoming.URL)
	if !ok {
		http.Error(w, "unknown relay path", http.StatusBadGateway)
		return
	}

	kind := classifyExchange(target)
	req := &Request{
		Method:  incoming.Method,
		URL:     target,
		Headers: incoming.Header.Clone(),
	}
	if err := r.chain.FilterRequest(kind, req); err != nil {
		log.Warnf("relay request filter: %v", RootCause(err))
		http.Error(w, "request filter failed", http.StatusBadGateway)
		return
	}

	outbound, err := http.NewRequestWithContext(
		incoming.Context(), req.Method, req.URL.String(), bytes.NewReader(req.Body))
	if err != nil {
		http.Error(w, "bad relay target", http.StatusBadGateway)
		return
	}
	outbound.Header = req.Headers

	upstream, err := r.chain.http.Do(outbound)
	if err != nil {
		log.Warnf("relay upstream request: %v", err)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer upstream.Body.Close()

	body, err := io.ReadAll(upstream.Body)
	if err != nil {
		http.Error(w, "upstream read failed", http.StatusBadGateway)
		return
	}

	resp := &Response{URL: upstream.Request.URL, Headers: upstream.Header, Body: body}
	if err := r.chain.FilterResponse(kind, resp); err != nil {
		log.Warnf("relay response filter: %v", RootCause(err))
		http.Error(w, "response filter failed", http.StatusBadGateway)
		return
	}

	for name, values := range resp.Headers {
		if name == "Content-Length" {
			continue
		}
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(upstream.StatusCode)
	_, _ = w.Write(resp.Body)
}

// targetFromRelayPath inverts Rewrite: /relay/{scheme}/{host}/{path} plus the
// incoming query becomes the original absolute URL.
func targetFromRelayPath(relayURL *url.URL) (*url.URL, bool) {
	trimmed, ok := strings.CutPrefix(relayURL.Path, relayPathPrefix)
	if !ok {
		return nil, false
	}

	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, false
	}

	target := &url.URL{
		Scheme:   parts[0],
		Host:     parts[1],
		RawQuery: relayURL.RawQuery,
	}
	if len(parts) == 3 {
		target.Path = "/" + parts[2]
	}
	return target, true
}

// classifyExchange picks the filter kind for a relayed target from its URL shape.
func classifyExchange(target *url.URL) Kind {
	switch {
	case strings.HasSuffix(target.Path, ".mpd"):
		return KindManifest
	case strings.HasSuffix(target.Path, ".m3u8"), strings.Contains(target.Path, "playlist"):
		return KindPlaylist
	case strings.HasSuffix(target.Path, "/api/timedtext"), target.Path == "/api/timedtext":
		return KindSubtitle
	default:
		return KindSegment
	}
}
