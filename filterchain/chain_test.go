package filterchain

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func mustParse(rawURL string) *url.URL {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestFilterRequest(t *testing.T) {
	Convey("Given a chain knowing the origin video host", t, func() {
		chain := New([]string{"video.origin.example"}, "", http.DefaultClient)

		Convey("A ranged segment request to the origin is rewritten to POST", func() {
			req := &Request{
				Method:  http.MethodGet,
				URL:     mustParse("https://video.origin.example/videoplayback?itag=248"),
				Headers: http.Header{"Range": []string{"bytes=0-1023"}},
			}

			So(chain.FilterRequest(KindSegment, req), ShouldBeNil)
			So(req.Method, ShouldEqual, http.MethodPost)
			So(req.Headers.Get("Range"), ShouldBeEmpty)
			So(req.URL.Query().Get("range"), ShouldEqual, "0-1023")
			So(req.URL.Query().Get("itag"), ShouldEqual, "248")
			So(req.Body, ShouldResemble, rangePostBody)
		})

		Convey("A ranged request to an unrelated host passes through untouched", func() {
			req := &Request{
				Method:  http.MethodGet,
				URL:     mustParse("https://cdn.elsewhere.example/seg.mp4"),
				Headers: http.Header{"Range": []string{"bytes=0-1023"}},
			}

			So(chain.FilterRequest(KindSegment, req), ShouldBeNil)
			So(req.Method, ShouldEqual, http.MethodGet)
			So(req.Headers.Get("Range"), ShouldEqual, "bytes=0-1023")
		})

		Convey("An origin request without a range passes through untouched", func() {
			req := &Request{
				Method:  http.MethodGet,
				URL:     mustParse("https://video.origin.example/videoplayback"),
				Headers: http.Header{},
			}

			So(chain.FilterRequest(KindSegment, req), ShouldBeNil)
			So(req.Method, ShouldEqual, http.MethodGet)
		})

		Convey("Manifest requests are never rewritten", func() {
			req := &Request{
				Method:  http.MethodGet,
				URL:     mustParse("https://video.origin.example/manifest.mpd"),
				Headers: http.Header{"Range": []string{"bytes=0-1023"}},
			}

			So(chain.FilterRequest(KindManifest, req), ShouldBeNil)
			So(req.Method, ShouldEqual, http.MethodGet)
		})
	})
}

func TestResolveRedirects(t *testing.T) {
	Convey("Given a server behind two payload redirects", t, func() {
		mux := http.NewServeMux()
		server := httptest.NewServer(mux)
		defer server.Close()

		mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "segment-bytes")
		})
		mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, server.URL+"/final")
		})

		chain := New(nil, "", server.Client())

		Convey("The payload is unwrapped hop by hop to the terminal data", func() {
			resp := &Response{
				URL:  mustParse("https://video.origin.example/videoplayback"),
				Body: []byte(server.URL + "/hop"),
			}

			So(chain.FilterResponse(KindSegment, resp), ShouldBeNil)
			So(string(resp.Body), ShouldEqual, "segment-bytes")
			So(resp.URL.Path, ShouldEqual, "/final")
		})

		Convey("A non-redirect payload passes through untouched", func() {
			resp := &Response{
				URL:  mustParse("https://video.origin.example/videoplayback"),
				Body: []byte{0x00, 0x01, 0x02, 0x03},
			}

			So(chain.FilterResponse(KindSegment, resp), ShouldBeNil)
			So(resp.Body, ShouldResemble, []byte{0x00, 0x01, 0x02, 0x03})
		})

		Convey("A failing redirect target surfaces a wrapped resolution error", func() {
			mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			})
			resp := &Response{
				URL:  mustParse("https://video.origin.example/videoplayback"),
				Body: []byte(server.URL + "/broken"),
			}

			err := chain.FilterResponse(KindSegment, resp)

			var filterErr *FilterError
			So(errors.As(err, &filterErr), ShouldBeTrue)
			var redirectErr *RedirectResolutionError
			So(errors.As(err, &redirectErr), ShouldBeTrue)
		})

		Convey("A redirect loop stops at the depth bound", func() {
			mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, server.URL+"/loop")
			})
			resp := &Response{
				URL:  mustParse("https://video.origin.example/videoplayback"),
				Body: []byte(server.URL + "/loop"),
			}

			So(chain.FilterResponse(KindSegment, resp), ShouldNotBeNil)
		})
	})
}

func TestStripCaptionDirectives(t *testing.T) {
	Convey("Given an auto-caption response", t, func() {
		chain := New(nil, "", http.DefaultClient)
		cues := "WEBVTT\n\n00:00.000 --> 00:02.000 align:start position:0%\nhello\n"

		Convey("The positioning directive is stripped", func() {
			resp := &Response{
				URL:  mustParse("https://captions.example/api/timedtext?kind=asr&lang=en"),
				Body: []byte(cues),
			}

			So(chain.FilterResponse(KindSubtitle, resp), ShouldBeNil)
			So(string(resp.Body), ShouldEqual, "WEBVTT\n\n00:00.000 --> 00:02.000\nhello\n")
		})

		Convey("Manually-authored caption responses pass through untouched", func() {
			resp := &Response{
				URL:  mustParse("https://captions.example/api/timedtext?lang=en"),
				Body: []byte(cues),
			}

			So(chain.FilterResponse(KindSubtitle, resp), ShouldBeNil)
			So(string(resp.Body), ShouldEqual, cues)
		})

		Convey("Other endpoints pass through untouched even with matching payloads", func() {
			resp := &Response{
				URL:  mustParse("https://captions.example/other/path?kind=asr"),
				Body: []byte(cues),
			}

			So(chain.FilterResponse(KindSubtitle, resp), ShouldBeNil)
			So(string(resp.Body), ShouldEqual, cues)
		})
	})
}

func TestRepairProxiedPlaylist(t *testing.T) {
	Convey("Given a chain with a proxy gateway", t, func() {
		chain := New(nil, "gateway.example", http.DefaultClient)

		Convey("Stripped path parameters are rebuilt from the query string", func() {
			resp := &Response{
				URL:  mustParse("https://gateway.example/videoplayback?expire=123&itag=248"),
				Body: []byte("#EXTM3U\nseg0.mp4\n"),
			}

			So(chain.FilterResponse(KindPlaylist, resp), ShouldBeNil)
			So(resp.URL.Path, ShouldEqual, "/videoplayback/expire/123/itag/248")
			So(resp.URL.RawQuery, ShouldBeEmpty)
		})

		Convey("Audio-only itags get their segment extension corrected", func() {
			resp := &Response{
				URL:  mustParse("https://gateway.example/videoplayback?itag=234"),
				Body: []byte("#EXTM3U\n#EXTINF:5.0,\nseg0.ts\nseg1.ts\n#EXT-X-ENDLIST\n"),
			}

			So(chain.FilterResponse(KindPlaylist, resp), ShouldBeNil)
			So(string(resp.Body), ShouldEqual, "#EXTM3U\n#EXTINF:5.0,\nseg0.aac\nseg1.aac\n#EXT-X-ENDLIST\n")
		})

		Convey("Video itags keep their container extension", func() {
			body := "#EXTM3U\nseg0.ts\n"
			resp := &Response{
				URL:  mustParse("https://gateway.example/videoplayback?itag=248"),
				Body: []byte(body),
			}

			So(chain.FilterResponse(KindPlaylist, resp), ShouldBeNil)
			So(string(resp.Body), ShouldEqual, body)
		})

		Convey("Playlists from other hosts pass through untouched", func() {
			resp := &Response{
				URL:  mustParse("https://origin.example/playlist.m3u8?itag=234"),
				Body: []byte("#EXTM3U\nseg0.ts\n"),
			}

			So(chain.FilterResponse(KindPlaylist, resp), ShouldBeNil)
			So(resp.URL.Host, ShouldEqual, "origin.example")
			So(string(resp.Body), ShouldContainSubstring, "seg0.ts")
		})
	})
}

func TestRootCause(t *testing.T) {
	Convey("Given nested filter wrappers", t, func() {
		inner := errors.New("connection reset")
		wrapped := &FilterError{
			Kind: KindSegment,
			Err: &RedirectResolutionError{
				URL: "https://cdn.example/hop",
				Err: &FilterError{Kind: KindSegment, Err: inner},
			},
		}

		Convey("RootCause unwraps to the innermost error", func() {
			So(RootCause(wrapped), ShouldEqual, inner)
		})

		Convey("A plain error is returned as is", func() {
			So(RootCause(inner), ShouldEqual, inner)
		})

		Convey("A nil error stays nil", func() {
			So(RootCause(nil), ShouldBeNil)
		})
	})
}
