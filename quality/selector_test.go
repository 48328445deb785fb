package quality

import (
	"testing"

	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/tubeflow-cli/tubeflow/media"
)

// landscape builds a 16:9 variant for the given height.
func landscape(height, bitrate int) media.Variant {
	return media.Variant{
		Width:   height * 16 / 9,
		Height:  height,
		Bitrate: bitrate,
	}
}

func TestSelectVariant(t *testing.T) {
	Convey("SelectVariant", t, func() {
		variants := []media.Variant{
			landscape(144, 100_000),
			landscape(360, 500_000),
			landscape(720, 2_500_000),
		}

		Convey("Should prefer an exact metric match", func() {
			picked, err := SelectVariant(variants, 360, Options{})
			So(err, ShouldBeNil)
			So(picked.Height, ShouldEqual, 360)
		})

		Convey("Should fall back to the closest lower metric", func() {
			picked, err := SelectVariant(variants, 480, Options{})
			So(err, ShouldBeNil)
			So(picked.Height, ShouldEqual, 360)
		})

		Convey("Should be monotonic in the target metric", func() {
			low, err := SelectVariant(variants, 360, Options{})
			So(err, ShouldBeNil)
			high, err := SelectVariant(variants, 720, Options{})
			So(err, ShouldBeNil)
			So(low.Height, ShouldBeLessThanOrEqualTo, high.Height)
		})

		Convey("Should break metric ties by descending bitrate", func() {
			tied := []media.Variant{
				{Width: 1280, Height: 720, Bitrate: 1_000_000},
				{Width: 1280, Height: 720, Bitrate: 3_000_000},
			}
			picked, err := SelectVariant(tied, 720, Options{})
			So(err, ShouldBeNil)
			So(picked.Bitrate, ShouldEqual, 3_000_000)
		})

		Convey("Should compare by width for portrait content", func() {
			portrait := []media.Variant{
				{Width: 360, Height: 640, Bitrate: 400_000},
				{Width: 720, Height: 1280, Bitrate: 1_500_000},
			}
			picked, err := SelectVariant(portrait, 720, Options{})
			So(err, ShouldBeNil)
			So(picked.Width, ShouldEqual, 720)
		})

		Convey("Should signal ErrNoMatchingVariant when nothing undercuts the target", func() {
			_, err := SelectVariant(variants, 100, Options{})
			So(err, ShouldEqual, ErrNoMatchingVariant)
		})

		Convey("With an audio bandwidth hint", func() {
			tier := []media.Variant{
				{Width: 1280, Height: 720, Bitrate: 3_000_000, AudioBandwidth: 64_000},
				{Width: 1280, Height: 720, Bitrate: 2_000_000, AudioBandwidth: 96_000},
				{Width: 1280, Height: 720, Bitrate: 1_000_000, AudioBandwidth: 128_000},
			}

			Convey("Should pick the nearest audio bandwidth in the top tier", func() {
				picked, err := SelectVariant(tier, 720, Options{
					PreferredAudioBandwidth: mo.Some(100_000),
				})
				So(err, ShouldBeNil)
				So(picked.AudioBandwidth, ShouldEqual, 96_000)
			})

			Convey("Should not leave the top resolution tier", func() {
				mixed := append(tier, media.Variant{
					Width: 640, Height: 360, Bitrate: 500_000, AudioBandwidth: 100_000,
				})
				picked, err := SelectVariant(mixed, 720, Options{
					PreferredAudioBandwidth: mo.Some(100_000),
				})
				So(err, ShouldBeNil)
				So(picked.Height, ShouldEqual, 720)
				So(picked.AudioBandwidth, ShouldEqual, 96_000)
			})
		})

		Convey("With a preferred label", func() {
			multi := []media.Variant{
				{Width: 1280, Height: 720, Bitrate: 2_000_000, Label: "English original"},
				{Width: 1280, Height: 720, Bitrate: 2_000_000, Label: "French dubbed"},
			}

			Convey("Should narrow to the matching label", func() {
				picked, err := SelectVariant(multi, 720, Options{
					PreferredLabel: mo.Some("French dubbed"),
				})
				So(err, ShouldBeNil)
				So(picked.Label, ShouldEqual, "French dubbed")
			})

			Convey("Should fall back to the full pool for an unknown label", func() {
				picked, err := SelectVariant(multi, 720, Options{
					PreferredLabel: mo.Some("Klingon"),
				})
				So(err, ShouldBeNil)
				So(picked.Label, ShouldNotBeEmpty)
			})
		})

		Convey("Without a label hint on multi-audio content", func() {
			multi := []media.Variant{
				{Width: 1280, Height: 720, Bitrate: 2_500_000, Label: "French dubbed", AudioRoles: []string{"dub"}},
				{Width: 1280, Height: 720, Bitrate: 2_000_000, Label: "English original", AudioRoles: []string{"main"}},
			}

			Convey("Should prefer streams tagged with the main role", func() {
				picked, err := SelectVariant(multi, 720, Options{})
				So(err, ShouldBeNil)
				So(picked.Label, ShouldEqual, "English original")
			})

			Convey("Should fall back when no stream is tagged main", func() {
				untagged := []media.Variant{
					{Width: 1280, Height: 720, Bitrate: 2_500_000, Label: "A"},
					{Width: 1280, Height: 720, Bitrate: 2_000_000, Label: "B"},
				}
				picked, err := SelectVariant(untagged, 720, Options{})
				So(err, ShouldBeNil)
				So(picked.Bitrate, ShouldEqual, 2_500_000)
			})
		})

		Convey("Should reject an empty candidate list", func() {
			_, err := SelectVariant(nil, 720, Options{})
			So(err, ShouldEqual, ErrNoMatchingVariant)
		})
	})
}

func TestSelectLegacyFormat(t *testing.T) {
	Convey("SelectLegacyFormat", t, func() {
		formats := []media.LegacyFormat{
			{QualityLabel: "144p", Width: 256, Height: 144, Bitrate: 100_000},
			{QualityLabel: "360p", Width: 640, Height: 360, Bitrate: 500_000},
			{QualityLabel: "720p", Width: 1280, Height: 720, Bitrate: 2_500_000},
		}

		Convey("Should prefer an exact metric match", func() {
			picked, err := SelectLegacyFormat(formats, 720)
			So(err, ShouldBeNil)
			So(picked.QualityLabel, ShouldEqual, "720p")
		})

		Convey("Should fall back to the closest lower metric", func() {
			picked, err := SelectLegacyFormat(formats, 480)
			So(err, ShouldBeNil)
			So(picked.QualityLabel, ShouldEqual, "360p")
		})

		Convey("Should break ties by descending bitrate", func() {
			tied := []media.LegacyFormat{
				{QualityLabel: "720p low", Width: 1280, Height: 720, Bitrate: 1_000_000},
				{QualityLabel: "720p high", Width: 1280, Height: 720, Bitrate: 2_000_000},
			}
			picked, err := SelectLegacyFormat(tied, 720)
			So(err, ShouldBeNil)
			So(picked.QualityLabel, ShouldEqual, "720p high")
		})

		Convey("Should reject an empty format list", func() {
			_, err := SelectLegacyFormat(nil, 720)
			So(err, ShouldEqual, ErrNoMatchingVariant)
		})
	})
}

func TestLowest(t *testing.T) {
	Convey("Lowest", t, func() {
		Convey("Should return the smallest-metric variant", func() {
			variants := []media.Variant{landscape(720, 1), landscape(144, 1), landscape(360, 1)}
			picked, err := Lowest(variants)
			So(err, ShouldBeNil)
			So(picked.Height, ShouldEqual, 144)
		})

		Convey("Should reject an empty list", func() {
			_, err := Lowest(nil)
			So(err, ShouldEqual, ErrNoMatchingVariant)
		})
	})
}
