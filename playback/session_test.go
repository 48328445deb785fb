package playback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
	"github.com/tubeflow-cli/tubeflow/filesystem"
	"github.com/tubeflow-cli/tubeflow/filterchain"
	"github.com/tubeflow-cli/tubeflow/media"
	"golang.org/x/text/language"
)

const testManifest = `<?xml version="1.0" encoding="UTF-8"?>
<MPD mediaPresentationDuration="PT60S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <Representation id="v1" codecs="avc1.64001f" bandwidth="1000000"/>
    </AdaptationSet>
  </Period>
</MPD>`

type loadCall struct {
	Src       string
	StartTime float64
	MimeType  string
}

// fakeEngine is a scripted engine recording every call the session makes.
type fakeEngine struct {
	loads    []loadCall
	unloads  int
	destroys int

	variants   []media.Variant
	textTracks []media.TextTrack

	selectedVariants []string
	selectedText     []string
	addedCaptions    []string
	visibility       []bool
	seeks            []float64

	paused   bool
	position float64

	loadErrs []error // shifted off per Load call; nil entries succeed
}

func (f *fakeEngine) Load(_ context.Context, src string, startTime float64, mimeType string) error {
	f.loads = append(f.loads, loadCall{Src: src, StartTime: startTime, MimeType: mimeType})
	if len(f.loadErrs) > 0 {
		err := f.loadErrs[0]
		f.loadErrs = f.loadErrs[1:]
		return err
	}
	return nil
}

func (f *fakeEngine) Unload(context.Context) error {
	f.unloads++
	return nil
}

func (f *fakeEngine) VariantTracks() []media.Variant     { return f.variants }
func (f *fakeEngine) AudioTracks() []media.AudioTrack    { return nil }
func (f *fakeEngine) TextTracks() []media.TextTrack      { return f.textTracks }
func (f *fakeEngine) SeekRange() media.SeekRange         { return media.SeekRange{End: 60} }
func (f *fakeEngine) SetFilters(*filterchain.Chain)      {}
func (f *fakeEngine) Paused() (bool, error)              { return f.paused, nil }
func (f *fakeEngine) Position() (float64, error)         { return f.position, nil }

func (f *fakeEngine) SelectVariant(id string) error {
	f.selectedVariants = append(f.selectedVariants, id)
	for i := range f.variants {
		f.variants[i].Active = f.variants[i].ID == id
	}
	return nil
}

func (f *fakeEngine) SelectTextTrack(id string) error {
	f.selectedText = append(f.selectedText, id)
	return nil
}

func (f *fakeEngine) SetTextTrackVisibility(visible bool) error {
	f.visibility = append(f.visibility, visible)
	return nil
}

func (f *fakeEngine) Seek(seconds float64) error {
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakeEngine) Pause() error  { f.paused = true; return nil }
func (f *fakeEngine) Resume() error { f.paused = false; return nil }

func (f *fakeEngine) AddTextTrack(_ context.Context, url, _, _ string) error {
	f.addedCaptions = append(f.addedCaptions, url)
	return nil
}

func (f *fakeEngine) Destroy(context.Context) error {
	f.destroys++
	return nil
}

func testVariants() []media.Variant {
	return []media.Variant{
		{ID: "1", Width: 1920, Height: 1080, Bitrate: 4_000_000, AudioBandwidth: 128_000},
		{ID: "2", Width: 1280, Height: 720, Bitrate: 2_500_000, AudioBandwidth: 128_000},
		{ID: "3", Width: 640, Height: 360, Bitrate: 800_000, AudioBandwidth: 96_000},
	}
}

func testLegacyFormats() []media.LegacyFormat {
	return []media.LegacyFormat{
		{URL: "https://cdn.example/v-1080.mp4", MimeType: "video/mp4", Width: 1920, Height: 1080, Bitrate: 4_000_000},
		{URL: "https://cdn.example/v-720.mp4", MimeType: "video/mp4", Width: 1280, Height: 720, Bitrate: 2_500_000},
		{URL: "https://cdn.example/v-360.mp4", MimeType: "video/mp4", Width: 640, Height: 360, Bitrate: 800_000},
	}
}

const baseURLManifest = `<?xml version="1.0" encoding="UTF-8"?>
<MPD mediaPresentationDuration="PT60S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <Representation id="v1" codecs="avc1.64001f" bandwidth="1000000">
        <BaseURL>https://cdn.example/video/</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestSessionFilterRelay(t *testing.T) {
	filesystem.SetMemMapFs()

	Convey("Given a session carrying a filter chain", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, baseURLManifest)
		}))
		defer server.Close()

		fake := &fakeEngine{variants: testVariants()}
		session := NewSession(Options{
			Engine:  fake,
			Filters: filterchain.New(nil, "", server.Client()),
			HTTP:    server.Client(),
		})

		Convey("Staged manifests route media URLs through the relay", func() {
			So(session.Start(context.Background(), Request{ManifestURL: server.URL}, FormatDash), ShouldBeNil)
			So(session.relay, ShouldNotBeNil)

			staged, err := afero.ReadFile(filesystem.API(), fake.loads[0].Src)
			So(err, ShouldBeNil)
			So(string(staged), ShouldContainSubstring,
				"http://"+session.relay.Addr()+"/relay/https/cdn.example/video/")

			Convey("Destroy shuts the relay down", func() {
				_, err := session.Destroy(context.Background())
				So(err, ShouldBeNil)

				_, err = http.Get("http://" + session.relay.Addr() + "/relay/https/cdn.example/video/x")
				So(err, ShouldNotBeNil)
			})
		})

		Convey("Without filters the manifest keeps its direct URLs", func() {
			plain := NewSession(Options{Engine: fake, HTTP: server.Client()})
			So(plain.Start(context.Background(), Request{ManifestURL: server.URL}, FormatDash), ShouldBeNil)

			staged, err := afero.ReadFile(filesystem.API(), fake.loads[len(fake.loads)-1].Src)
			So(err, ShouldBeNil)
			So(string(staged), ShouldContainSubstring, "<BaseURL>https://cdn.example/video/</BaseURL>")
		})
	})
}

func TestSessionStart(t *testing.T) {
	filesystem.SetMemMapFs()

	Convey("Given a manifest server and a fake engine", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, testManifest)
		}))
		defer server.Close()

		fake := &fakeEngine{variants: testVariants()}
		session := NewSession(Options{
			Engine:  fake,
			Locale:  language.English,
			Quality: "720",
			HTTP:    server.Client(),
		})
		request := Request{
			VideoID:     "abc123",
			ManifestURL: server.URL + "/manifest.mpd",
			StartTime:   30,
		}

		Convey("Starting in dash loads the repaired manifest and selects the target variant", func() {
			So(session.Start(context.Background(), request, FormatDash), ShouldBeNil)

			So(session.Phase(), ShouldEqual, PhaseLoaded)
			So(session.Format(), ShouldEqual, FormatDash)
			So(fake.loads, ShouldHaveLength, 1)
			So(fake.loads[0].StartTime, ShouldEqual, 30)
			So(fake.loads[0].MimeType, ShouldEqual, dashMimeType)
			So(fake.selectedVariants, ShouldResemble, []string{"2"})

			variant, ok := session.ActiveVariant().Get()
			So(ok, ShouldBeTrue)
			So(variant.Height, ShouldEqual, 720)
		})

		Convey("Starting with auto quality leaves selection to the engine", func() {
			auto := NewSession(Options{Engine: fake, Locale: language.English, HTTP: server.Client()})

			So(auto.Start(context.Background(), request, FormatDash), ShouldBeNil)

			So(fake.selectedVariants, ShouldBeEmpty)
			So(auto.ActiveVariant().IsAbsent(), ShouldBeTrue)
		})

		Convey("Starting in legacy picks a format and loads its file directly", func() {
			request.LegacyFormats = testLegacyFormats()

			So(session.Start(context.Background(), request, FormatLegacy), ShouldBeNil)

			So(session.Format(), ShouldEqual, FormatLegacy)
			So(fake.loads, ShouldHaveLength, 1)
			So(fake.loads[0].Src, ShouldEqual, "https://cdn.example/v-720.mp4")

			legacy, ok := session.ActiveLegacyFormat().Get()
			So(ok, ShouldBeTrue)
			So(legacy.Height, ShouldEqual, 720)
		})

		Convey("A malformed manifest surfaces a parse error", func() {
			broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<MPD><Period></MPD>")
			}))
			defer broken.Close()

			var surfaced []error
			failing := NewSession(Options{
				Engine:  fake,
				HTTP:    broken.Client(),
				OnError: func(err error) { surfaced = append(surfaced, err) },
			})

			err := failing.Start(context.Background(), Request{ManifestURL: broken.URL}, FormatDash)

			var parseErr *ManifestParseError
			So(errors.As(err, &parseErr), ShouldBeTrue)
			So(surfaced, ShouldHaveLength, 1)
			So(failing.Phase(), ShouldEqual, PhaseUnloaded)
		})
	})
}

func TestSessionFormatSwitch(t *testing.T) {
	filesystem.SetMemMapFs()

	Convey("Given a session started in dash at 720", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, testManifest)
		}))
		defer server.Close()

		fake := &fakeEngine{variants: testVariants()}
		session := NewSession(Options{
			Engine:         fake,
			Locale:         language.English,
			Quality:        "720",
			ResumeOnSwitch: true,
			HTTP:           server.Client(),
		})
		request := Request{
			VideoID:       "abc123",
			ManifestURL:   server.URL + "/manifest.mpd",
			LegacyFormats: testLegacyFormats(),
		}
		So(session.Start(context.Background(), request, FormatDash), ShouldBeNil)

		Convey("Switching to legacy preserves the position and quality tier", func() {
			fake.position = 42.5

			So(session.SwitchFormat(context.Background(), FormatLegacy), ShouldBeNil)

			So(fake.unloads, ShouldEqual, 1)
			So(session.Format(), ShouldEqual, FormatLegacy)
			So(fake.loads, ShouldHaveLength, 2)
			So(fake.loads[1].Src, ShouldEqual, "https://cdn.example/v-720.mp4")
			So(fake.loads[1].StartTime, ShouldEqual, 42.5)

			Convey("Switching back to dash restores the closest variant to 720", func() {
				So(session.SwitchFormat(context.Background(), FormatDash), ShouldBeNil)

				So(session.Format(), ShouldEqual, FormatDash)
				variant, ok := session.ActiveVariant().Get()
				So(ok, ShouldBeTrue)
				So(variant.Height, ShouldEqual, 720)
			})
		})

		Convey("Switching preserves the paused state", func() {
			So(fake.Pause(), ShouldBeNil)

			So(session.SwitchFormat(context.Background(), FormatLegacy), ShouldBeNil)

			So(fake.paused, ShouldBeTrue)
		})

		Convey("Switching resumes playback when it was playing", func() {
			fake.paused = false

			So(session.SwitchFormat(context.Background(), FormatLegacy), ShouldBeNil)

			So(fake.paused, ShouldBeFalse)
		})

		Convey("Switching with resume disabled restarts from the beginning", func() {
			noResume := NewSession(Options{
				Engine:  fake,
				Quality: "720",
				HTTP:    server.Client(),
			})
			So(noResume.Start(context.Background(), request, FormatDash), ShouldBeNil)
			fake.position = 42.5

			So(noResume.SwitchFormat(context.Background(), FormatLegacy), ShouldBeNil)

			So(fake.loads[len(fake.loads)-1].StartTime, ShouldEqual, 0)
		})

		Convey("Switching to the current format is a no-op", func() {
			So(session.SwitchFormat(context.Background(), FormatDash), ShouldBeNil)

			So(fake.loads, ShouldHaveLength, 1)
			So(fake.unloads, ShouldEqual, 0)
		})
	})

	Convey("Given a session whose initial load failed", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, testManifest)
		}))
		defer server.Close()

		fake := &fakeEngine{
			variants: testVariants(),
			loadErrs: []error{errors.New("engine rejected manifest")},
		}
		var surfaced []error
		session := NewSession(Options{
			Engine:  fake,
			HTTP:    server.Client(),
			OnError: func(err error) { surfaced = append(surfaced, err) },
		})
		request := Request{
			ManifestURL:   server.URL + "/manifest.mpd",
			LegacyFormats: testLegacyFormats(),
			StartTime:     10,
		}
		So(session.Start(context.Background(), request, FormatDash), ShouldNotBeNil)

		Convey("A fallback switch behaves as a fresh initial load", func() {
			So(session.SwitchFormat(context.Background(), FormatLegacy), ShouldBeNil)

			So(session.Phase(), ShouldEqual, PhaseLoaded)
			So(session.Format(), ShouldEqual, FormatLegacy)
			// No restore capture happened: the start position is used.
			So(fake.loads[len(fake.loads)-1].StartTime, ShouldEqual, 10)
			So(fake.unloads, ShouldEqual, 0)
		})

		Convey("Two consecutive load failures surface exactly one error event", func() {
			fake.loadErrs = []error{errors.New("legacy load failed too")}

			So(session.SwitchFormat(context.Background(), FormatLegacy), ShouldNotBeNil)

			So(surfaced, ShouldHaveLength, 1)
		})
	})
}

func TestSessionCaptions(t *testing.T) {
	filesystem.SetMemMapFs()

	Convey("Given a request with caption tracks", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, testManifest)
		}))
		defer server.Close()

		fake := &fakeEngine{
			variants: testVariants(),
			textTracks: []media.TextTrack{
				{ID: "10", Language: "en"},
				{ID: "11", Language: "de"},
			},
		}
		session := NewSession(Options{Engine: fake, ResumeOnSwitch: true, HTTP: server.Client()})
		request := Request{
			ManifestURL: server.URL + "/manifest.mpd",
			Captions: []CaptionTrack{
				{URL: "https://captions.example/en.vtt", Language: "en", Label: "English"},
				{URL: "https://captions.example/de.vtt", Language: "de", Label: "German"},
			},
		}

		Convey("All caption tracks are attached on load", func() {
			So(session.Start(context.Background(), request, FormatDash), ShouldBeNil)

			So(fake.addedCaptions, ShouldHaveLength, 2)
			So(fake.selectedText, ShouldBeEmpty)
		})

		Convey("ShowCaptions turns the first track on after load", func() {
			eager := NewSession(Options{Engine: fake, ShowCaptions: true, HTTP: server.Client()})

			So(eager.Start(context.Background(), request, FormatDash), ShouldBeNil)

			So(fake.selectedText, ShouldResemble, []string{"10"})
			So(fake.visibility, ShouldResemble, []bool{true})
		})

		Convey("A visible caption survives a format switch", func() {
			request.LegacyFormats = testLegacyFormats()
			So(session.Start(context.Background(), request, FormatDash), ShouldBeNil)
			fake.textTracks[1].Active = true

			So(session.SwitchFormat(context.Background(), FormatLegacy), ShouldBeNil)

			So(fake.selectedText, ShouldResemble, []string{"11"})
			So(fake.visibility, ShouldResemble, []bool{true})
		})
	})
}

func TestSessionDestroy(t *testing.T) {
	filesystem.SetMemMapFs()

	Convey("Given a loaded session", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, testManifest)
		}))
		defer server.Close()

		fake := &fakeEngine{variants: testVariants()}
		session := NewSession(Options{Engine: fake, HTTP: server.Client()})
		So(session.Start(context.Background(), Request{ManifestURL: server.URL}, FormatDash), ShouldBeNil)
		session.SetUIState(UIState{Fullscreen: true})

		Convey("Destroy awaits the engine and returns the UI state", func() {
			ui, err := session.Destroy(context.Background())

			So(err, ShouldBeNil)
			So(ui.Fullscreen, ShouldBeTrue)
			So(fake.destroys, ShouldEqual, 1)
			So(session.Phase(), ShouldEqual, PhaseDestroyed)

			Convey("A destroyed session refuses further loads", func() {
				So(session.Start(context.Background(), Request{}, FormatDash), ShouldNotBeNil)

				Convey("And destroying again is idempotent", func() {
					_, err := session.Destroy(context.Background())

					So(err, ShouldBeNil)
					So(fake.destroys, ShouldEqual, 1)
				})
			})
		})
	})
}

func TestParseQuality(t *testing.T) {
	Convey("Quality strings resolve to target metrics", t, func() {
		cases := map[string]int{
			"720":      720,
			"720p":     720,
			"1080p60":  1080,
			" 480P ":   480,
		}
		for input, want := range cases {
			metric, ok := parseQuality(input)
			So(ok, ShouldBeTrue)
			So(metric, ShouldEqual, want)
		}

		for _, input := range []string{"auto", "", "p60", "best"} {
			_, ok := parseQuality(input)
			So(ok, ShouldBeFalse)
		}
	})
}
