// Package filterchain rewrites the media engine's segment-level network exchanges:
// request shape fixes for throttling origins, application-level redirect payloads,
// and cosmetic payload repairs for proxied playlists and auto-generated captions.
package filterchain

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/tubeflow-cli/tubeflow/log"
	"github.com/tubeflow-cli/tubeflow/network"
)

// Kind classifies one network exchange of the media engine.
type Kind string

const (
	KindManifest Kind = "manifest"
	KindSegment  Kind = "segment"
	KindSubtitle Kind = "subtitle"
	KindPlaylist Kind = "playlist"
)

// maxRedirectDepth bounds the application-level redirect unwrapping. A payload
// redirect can resolve to another redirect, but never legitimately this deep.
const maxRedirectDepth = 10

// rangePostBody is the fixed body sent with rewritten segment requests. The origin
// rejects empty POST bodies.
var rangePostBody = []byte{0x78, 0x00}

// autoCaptionDirective is the line-positioning suffix emitted on auto-generated
// caption cues.
var autoCaptionDirective = []byte(" align:start position:0%")

// Request is a mutable outbound exchange about to be issued by the media engine.
type Request struct {
	Method  string
	URL     *url.URL
	Headers http.Header
	Body    []byte
}

// Response is a mutable inbound exchange, replaced in place by response filters.
type Response struct {
	URL     *url.URL
	Headers http.Header
	Body    []byte
}

// Chain holds the host knowledge the filters need: which hosts serve origin
// segments and which host is the stripping proxy gateway.
type Chain struct {
	originHosts []string
	gateway     string
	http        *http.Client
}

// New creates a filter chain. A nil httpClient falls back to the shared
// application client.
func New(originHosts []string, gatewayHost string, httpClient *http.Client) *Chain {
	if httpClient == nil {
		httpClient = network.Client
	}
	return &Chain{
		originHosts: originHosts,
		gateway:     gatewayHost,
		http:        httpClient,
	}
}

// FilterRequest rewrites an outbound exchange in place before the engine issues it.
//
// Segment requests against an origin host carrying a Range header are rewritten
// from GET-with-Range to POST-with-fixed-body, with the byte range moved into a
// query parameter. The origin throttles Range-header requests but serves the same
// range untouched when asked via the query string.
func (c *Chain) FilterRequest(kind Kind, req *Request) error {
	if kind != KindSegment || !c.isOriginHost(req.URL.Host) {
		return nil
	}

	byteRange := req.Headers.Get("Range")
	if byteRange == "" {
		return nil
	}

	query := req.URL.Query()
	query.Set("range", strings.TrimPrefix(byteRange, "bytes="))
	req.URL.RawQuery = query.Encode()
	req.Headers.Del("Range")
	req.Method = http.MethodPost
	req.Body = rangePostBody

	return nil
}

// FilterResponse repairs an inbound exchange in place after the engine receives it.
func (c *Chain) FilterResponse(kind Kind, resp *Response) error {
	if err := c.resolveRedirects(kind, resp); err != nil {
		return err
	}

	switch kind {
	case KindSubtitle:
		stripCaptionDirectives(resp)
	case KindPlaylist:
		c.repairProxiedPlaylist(resp)
	}

	return nil
}

// resolveRedirects repeatedly follows application-level redirects: a payload whose
// first four bytes spell "http" is a URL string pointing at the real resource.
func (c *Chain) resolveRedirects(kind Kind, resp *Response) error {
	for depth := 0; bytes.HasPrefix(resp.Body, []byte("http")); depth++ {
		target := strings.TrimSpace(string(resp.Body))
		if depth >= maxRedirectDepth {
			return &FilterError{Kind: kind, Err: &RedirectResolutionError{
				URL: target,
				Err: fmt.Errorf("more than %d nested redirects", maxRedirectDepth),
			}}
		}

		log.Debugf("following payload redirect to %s", target)
		if err := c.fetchInto(target, resp); err != nil {
			return &FilterError{Kind: kind, Err: &RedirectResolutionError{URL: target, Err: err}}
		}
	}

	return nil
}

// fetchInto issues a secondary request and replaces the response's data, headers
// and uri with its result.
func (c *Chain) fetchInto(target string, resp *Response) error {
	parsed, err := url.Parse(target)
	if err != nil {
		return err
	}

	secondary, err := c.http.Get(target)
	if err != nil {
		return err
	}
	defer secondary.Body.Close()

	if secondary.StatusCode != http.StatusOK {
		return fmt.Errorf("redirect target returned %d", secondary.StatusCode)
	}

	body, err := io.ReadAll(secondary.Body)
	if err != nil {
		return err
	}

	resp.URL = parsed
	resp.Headers = secondary.Header
	resp.Body = body
	return nil
}

// stripCaptionDirectives removes the trailing line-positioning directive from
// auto-generated caption cues. Purely cosmetic, so it applies only when the URL
// provably is the auto-caption endpoint; anything else passes through untouched.
func stripCaptionDirectives(resp *Response) {
	if resp.URL.Path != "/api/timedtext" || resp.URL.Query().Get("kind") != "asr" {
		return
	}
	resp.Body = bytes.ReplaceAll(resp.Body, autoCaptionDirective, nil)
}

// repairProxiedPlaylist fixes media playlists fetched through the proxy gateway.
// The gateway strips path-style parameters from the final uri, which breaks
// relative segment resolution; they are rebuilt from the query string it kept.
// Audio-only itags 233 and 234 additionally declare a generic container extension
// while the true content is raw AAC.
func (c *Chain) repairProxiedPlaylist(resp *Response) {
	if c.gateway == "" || resp.URL.Host != c.gateway {
		return
	}

	query := resp.URL.Query()
	if len(query) == 0 {
		return
	}

	path := strings.TrimSuffix(resp.URL.Path, "/")
	for _, name := range sortedKeys(query) {
		path += "/" + name + "/" + query.Get(name)
	}

	repaired := *resp.URL
	repaired.Path = path
	repaired.RawQuery = ""
	resp.URL = &repaired

	if itag := query.Get("itag"); itag == "233" || itag == "234" {
		resp.Body = fixSegmentExtensions(resp.Body)
	}
}

// fixSegmentExtensions rewrites .ts segment references to .aac, line by line so
// that no unrelated payload bytes are touched.
func fixSegmentExtensions(body []byte) []byte {
	lines := bytes.Split(body, []byte("\n"))
	for i, line := range lines {
		if bytes.HasPrefix(line, []byte("#")) {
			continue
		}
		trimmed := bytes.TrimRight(line, "\r")
		if bytes.HasSuffix(trimmed, []byte(".ts")) {
			lines[i] = append(trimmed[:len(trimmed)-len(".ts")], []byte(".aac")...)
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

func (c *Chain) isOriginHost(host string) bool {
	return lo.Contains(c.originHosts, host)
}

func sortedKeys(values url.Values) []string {
	keys := lo.Keys(values)
	sort.Strings(keys)
	return keys
}
