package manifest

import (
	"strings"
	"testing"

	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/text/language"
)

const liveManifest = `<?xml version="1.0" encoding="UTF-8"?>
<MPD type="dynamic" minimumUpdatePeriod="PT2S">
  <Period id="0">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <Representation id="128" bandwidth="500000"/>
      <Representation id="128" bandwidth="900000"/>
      <Representation id="256" bandwidth="2000000"/>
    </AdaptationSet>
  </Period>
</MPD>`

const proxiedManifest = `<?xml version="1.0" encoding="UTF-8"?>
<MPD type="static">
  <Period id="0">
    <AdaptationSet mimeType="audio/mp4" codecs="mp4a.40.2" label="128kbps">
      <Role schemeIdUri="urn:mpeg:dash:role:2011" value="main"/>
      <Representation id="140" bandwidth="128000">
        <BaseURL>https://origin.example/videoplayback?xtags=lang%3Dfr%3Aacont%3Ddubbed</BaseURL>
      </Representation>
    </AdaptationSet>
    <AdaptationSet mimeType="audio/mp4" codecs="mp4a.40.2" label="256kbps">
      <Role schemeIdUri="urn:mpeg:dash:role:2011" value="main"/>
      <Representation id="141" bandwidth="256000">
        <BaseURL>https://origin.example/videoplayback?xtags=lang%3Den%3Aacont%3Doriginal</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func parseString(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := Parse(strings.NewReader(s))
	So(err, ShouldBeNil)
	return doc
}

func TestRepairLive(t *testing.T) {
	Convey("Repair in live mode", t, func() {
		doc := parseString(t, liveManifest)
		So(Repair(doc, ModeLive, language.English), ShouldBeNil)

		Convey("Should double the update period into the presentation delay", func() {
			delay, ok := doc.Attr(doc.Root(), "suggestedPresentationDelay")
			So(ok, ShouldBeTrue)
			So(delay, ShouldEqual, "PT4S")
		})

		Convey("Should rename colliding representation ids", func() {
			reps := doc.DescendantsNamed(doc.Root(), "Representation")
			ids := lo.Map(reps, func(rep int, _ int) string {
				return doc.AttrOr(rep, "id", "")
			})
			So(ids, ShouldResemble, []string{"128", "128-ft-fix-0", "256"})
			So(len(lo.Uniq(ids)), ShouldEqual, len(ids))
		})

		Convey("Should survive a manifest without an update period", func() {
			static := parseString(t, `<MPD type="static"><Period/></MPD>`)
			So(Repair(static, ModeLive, language.English), ShouldBeNil)
			_, ok := static.Attr(static.Root(), "suggestedPresentationDelay")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRepairStaticProxied(t *testing.T) {
	Convey("Repair in static-proxied mode", t, func() {
		doc := parseString(t, proxiedManifest)
		So(Repair(doc, ModeStaticProxied, language.English), ShouldBeNil)

		period := doc.FirstChildNamed(doc.Root(), "Period")
		sets := doc.ChildrenNamed(period, "AdaptationSet")
		So(len(sets), ShouldEqual, 2)

		french := sets[0]
		english := sets[1]

		Convey("Should infer roles from the acont content type", func() {
			frRole := doc.FirstChildNamed(french, "Role")
			enRole := doc.FirstChildNamed(english, "Role")
			So(doc.AttrOr(frRole, "value", ""), ShouldEqual, "dub")
			So(doc.AttrOr(enRole, "value", ""), ShouldEqual, "main")
		})

		Convey("Should replace bitrate labels with language labels", func() {
			So(doc.AttrOr(french, "label", ""), ShouldEqual, "French")
			So(doc.AttrOr(english, "label", ""), ShouldEqual, "English original")
		})

		Convey("Should attach the inferred language", func() {
			So(doc.AttrOr(french, "lang", ""), ShouldEqual, "fr")
			So(doc.AttrOr(english, "lang", ""), ShouldEqual, "en")
		})

		Convey("Should leave exactly one Role child per set", func() {
			So(len(doc.ChildrenNamed(french, "Role")), ShouldEqual, 1)
			So(len(doc.ChildrenNamed(english, "Role")), ShouldEqual, 1)
		})
	})

	Convey("Role inference", t, func() {
		cases := map[string]string{
			"original":      "main",
			"dubbed":        "dub",
			"dubbed-auto":   "dub",
			"descriptive":   "description",
			"secondary":     "alternate",
			"unknown-value": "alternate",
		}
		for content, want := range cases {
			So(roleForContent(content), ShouldEqual, want)
		}
	})
}

func TestSortAdaptationSets(t *testing.T) {
	Convey("Adaptation set ordering", t, func() {
		doc := parseString(t, `<MPD><Period>
			<AdaptationSet mimeType="text/vtt" codecs=""/>
			<AdaptationSet mimeType="video/mp4" codecs="avc1.64001f"/>
			<AdaptationSet mimeType="video/mp4" codecs="av01.0.08M.08"/>
			<AdaptationSet mimeType="audio/webm" codecs="opus"/>
		</Period></MPD>`)
		So(Repair(doc, ModeLive, language.English), ShouldBeNil)

		period := doc.FirstChildNamed(doc.Root(), "Period")
		mimes := lo.Map(doc.ChildrenNamed(period, "AdaptationSet"), func(set int, _ int) string {
			return doc.AttrOr(set, "mimeType", "") + "|" + doc.AttrOr(set, "codecs", "")
		})

		Convey("Should order audio/video by codec priority with captions last", func() {
			So(mimes, ShouldResemble, []string{
				"audio/webm|opus",
				"video/mp4|av01.0.08M.08",
				"video/mp4|avc1.64001f",
				"text/vtt|",
			})
		})
	})

	Convey("Audio representation ordering", t, func() {
		doc := parseString(t, `<MPD><Period>
			<AdaptationSet mimeType="audio/mp4" codecs="mp4a.40.2">
				<AudioChannelConfiguration schemeIdUri="urn:mpeg:dash:23003:3:audio_channel_configuration:2011" value="2"/>
				<Representation id="a" bandwidth="64000"/>
				<Representation id="b" bandwidth="192000"/>
				<Representation id="c" bandwidth="128000"/>
			</AdaptationSet>
		</Period></MPD>`)
		So(Repair(doc, ModeLive, language.English), ShouldBeNil)

		period := doc.FirstChildNamed(doc.Root(), "Period")
		set := doc.FirstChildNamed(period, "AdaptationSet")
		children := doc.Children(set)

		Convey("Should pin the channel configuration first", func() {
			So(doc.Name(children[0]), ShouldEqual, "AudioChannelConfiguration")
		})

		Convey("Should sort representations by descending bandwidth", func() {
			ids := lo.Map(doc.ChildrenNamed(set, "Representation"), func(rep int, _ int) string {
				return doc.AttrOr(rep, "id", "")
			})
			So(ids, ShouldResemble, []string{"b", "c", "a"})
		})
	})
}

func TestRewriteURLs(t *testing.T) {
	Convey("Given a manifest with absolute and relative references", t, func() {
		doc := parseString(t, `<MPD><Period><AdaptationSet>
			<Representation id="a"><BaseURL>https://cdn.example/video/</BaseURL></Representation>
			<SegmentTemplate media="https://cdn.example/seg-$Number$.m4s" initialization="init.mp4"/>
		</AdaptationSet></Period></MPD>`)

		RewriteURLs(doc, func(u string) string { return "http://127.0.0.1:9/bridge/" + u })
		out := doc.String()

		Convey("Absolute media URLs are rewritten", func() {
			So(out, ShouldContainSubstring, "http://127.0.0.1:9/bridge/https://cdn.example/video/")
			So(out, ShouldContainSubstring, "http://127.0.0.1:9/bridge/https://cdn.example/seg-$Number$.m4s")
		})

		Convey("Relative references resolve against the rewritten BaseURL and stay untouched", func() {
			So(out, ShouldContainSubstring, `initialization="init.mp4"`)
		})
	})
}

func TestParseRoundTrip(t *testing.T) {
	Convey("Parse and serialize", t, func() {
		doc := parseString(t, proxiedManifest)

		Convey("Should preserve structure through a round trip", func() {
			out := doc.String()
			again, err := Parse(strings.NewReader(out))
			So(err, ShouldBeNil)
			So(again.Len(), ShouldEqual, doc.Len())
			So(again.String(), ShouldEqual, out)
		})

		Convey("Should escape attribute entities so the output stays parseable", func() {
			withEntities, err := Parse(strings.NewReader(
				`<MPD><SegmentTemplate media="seg?a=1&amp;b=2" init='a"b'/></MPD>`))
			So(err, ShouldBeNil)

			out := withEntities.String()
			So(out, ShouldContainSubstring, "seg?a=1&amp;b=2")

			again, err := Parse(strings.NewReader(out))
			So(err, ShouldBeNil)
			template := again.FirstChildNamed(again.Root(), "SegmentTemplate")
			So(again.AttrOr(template, "media", ""), ShouldEqual, "seg?a=1&b=2")
			So(again.AttrOr(template, "init", ""), ShouldEqual, `a"b`)
		})

		Convey("Should emit the XML header from both serialization entry points", func() {
			var b strings.Builder
			So(doc.WriteTo(&b), ShouldBeNil)
			So(doc.String(), ShouldEqual, b.String())
			So(strings.HasPrefix(doc.String(), "<?xml"), ShouldBeTrue)
		})

		Convey("Should reject malformed input", func() {
			_, err := Parse(strings.NewReader("<MPD><Period></MPD>"))
			So(err, ShouldNotBeNil)
		})

		Convey("Should reject empty input", func() {
			_, err := Parse(strings.NewReader(""))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDuration(t *testing.T) {
	Convey("ISO 8601 durations", t, func() {
		Convey("Should parse second-only durations", func() {
			So(lo.Must(ParseDuration("PT2S")), ShouldEqual, 2.0)
			So(lo.Must(ParseDuration("PT1.5S")), ShouldEqual, 1.5)
		})

		Convey("Should parse composite durations", func() {
			So(lo.Must(ParseDuration("PT1M30S")), ShouldEqual, 90.0)
			So(lo.Must(ParseDuration("PT1H2M3S")), ShouldEqual, 3723.0)
			So(lo.Must(ParseDuration("P1DT1S")), ShouldEqual, 86401.0)
		})

		Convey("Should reject garbage", func() {
			for _, bad := range []string{"", "PT", "P", "2S", "PTXS"} {
				_, err := ParseDuration(bad)
				So(err, ShouldNotBeNil)
			}
		})

		Convey("Should format seconds back to the same syntax", func() {
			So(FormatDuration(4), ShouldEqual, "PT4S")
			So(FormatDuration(1.5), ShouldEqual, "PT1.5S")
			So(lo.Must(ParseDuration(FormatDuration(2.25))), ShouldEqual, 2.25)
		})
	})
}
