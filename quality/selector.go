// Package quality implements deterministic track and format selection over the candidates
// exposed by the media engine.
//
// Selection is metric-driven: landscape content compares by height, portrait content by
// width. The target metric normally comes from configuration; "auto" is handled by the
// caller, which delegates to the engine's adaptive bitrate logic instead of calling into
// this package.
package quality

import (
	"errors"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/tubeflow-cli/tubeflow/media"
	"github.com/tubeflow-cli/tubeflow/util"
)

// ErrNoMatchingVariant signals an empty candidate list after filtering.
// Callers must fall back to selecting from the full unfiltered list.
var ErrNoMatchingVariant = errors.New("no variant matches the requested quality")

// Auto is the sentinel target metric that delegates selection to the engine.
const Auto = "auto"

// MainRole is the DASH audio role identifying the primary audio stream.
const MainRole = "main"

// Options carries the optional hints applied during variant selection.
type Options struct {
	// Audio bandwidth of a previously active variant; selection picks the
	// nearest match within the top resolution tier.
	PreferredAudioBandwidth mo.Option[int]
	// Audio track label of a previously active variant (multi-audio content).
	PreferredLabel mo.Option[string]
}

// SelectVariant picks the variant closest to targetMetric from the engine's candidate list.
//
// The comparison metric is orientation-aware: width for portrait content, height
// otherwise. Variants whose metric equals the target exactly are preferred; failing
// that, the highest metric strictly below the target wins. Ties break by descending
// bitrate. When an audio bandwidth hint is supplied, the top same-resolution tier is
// searched for the nearest audio bandwidth instead of taking the first candidate.
func SelectVariant(variants []media.Variant, targetMetric int, opts Options) (media.Variant, error) {
	if len(variants) == 0 {
		return media.Variant{}, ErrNoMatchingVariant
	}

	pool := filterAudio(variants, opts.PreferredLabel)

	portrait := pool[0].Portrait()
	metric := func(v media.Variant) int {
		if portrait {
			return v.Width
		}
		return v.Height
	}

	candidates := lo.Filter(pool, func(v media.Variant, _ int) bool {
		return metric(v) == targetMetric
	})
	if len(candidates) == 0 {
		candidates = lo.Filter(pool, func(v media.Variant, _ int) bool {
			return metric(v) < targetMetric
		})
	}
	if len(candidates) == 0 {
		return media.Variant{}, ErrNoMatchingVariant
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if metric(candidates[i]) != metric(candidates[j]) {
			return metric(candidates[i]) > metric(candidates[j])
		}
		return candidates[i].Bitrate > candidates[j].Bitrate
	})

	if bandwidth, ok := opts.PreferredAudioBandwidth.Get(); ok {
		best := candidates[0]
		tier := lo.Filter(candidates, func(v media.Variant, _ int) bool {
			return v.Width == best.Width && v.Height == best.Height
		})
		return lo.MinBy(tier, func(a media.Variant, b media.Variant) bool {
			return util.AbsDiff(a.AudioBandwidth, bandwidth) < util.AbsDiff(b.AudioBandwidth, bandwidth)
		}), nil
	}

	return candidates[0], nil
}

// SelectLegacyFormat applies the same metric and tie-break rules over progressive
// single-file formats.
func SelectLegacyFormat(formats []media.LegacyFormat, targetMetric int) (media.LegacyFormat, error) {
	if len(formats) == 0 {
		return media.LegacyFormat{}, ErrNoMatchingVariant
	}

	portrait := formats[0].Portrait()
	metric := func(f media.LegacyFormat) int {
		if portrait {
			return f.Width
		}
		return f.Height
	}

	candidates := lo.Filter(formats, func(f media.LegacyFormat, _ int) bool {
		return metric(f) == targetMetric
	})
	if len(candidates) == 0 {
		candidates = lo.Filter(formats, func(f media.LegacyFormat, _ int) bool {
			return metric(f) < targetMetric
		})
	}
	if len(candidates) == 0 {
		return media.LegacyFormat{}, ErrNoMatchingVariant
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if metric(candidates[i]) != metric(candidates[j]) {
			return metric(candidates[i]) > metric(candidates[j])
		}
		return candidates[i].Bitrate > candidates[j].Bitrate
	})

	return candidates[0], nil
}

// Lowest returns the variant with the smallest metric, used as the terminal fallback
// when no candidate matches or undercuts the target.
func Lowest(variants []media.Variant) (media.Variant, error) {
	if len(variants) == 0 {
		return media.Variant{}, ErrNoMatchingVariant
	}

	portrait := variants[0].Portrait()
	return lo.MinBy(variants, func(a media.Variant, b media.Variant) bool {
		if portrait {
			return a.Width < b.Width
		}
		return a.Height < b.Height
	}), nil
}

// filterAudio narrows the pool to the preferred audio track.
//
// With a label hint, exact matches win; a case-insensitive fuzzy pass covers
// engines that decorate labels with codec or bitrate suffixes. Without a hint,
// multi-audio content narrows to streams tagged with the "main" role. Every
// narrowing step falls back to the unfiltered pool when it would empty it.
func filterAudio(variants []media.Variant, preferredLabel mo.Option[string]) []media.Variant {
	if label, ok := preferredLabel.Get(); ok && label != "" {
		exact := lo.Filter(variants, func(v media.Variant, _ int) bool {
			return v.Label == label
		})
		if len(exact) > 0 {
			return exact
		}

		loose := lo.Filter(variants, func(v media.Variant, _ int) bool {
			return fuzzy.MatchFold(label, v.Label)
		})
		if len(loose) > 0 {
			return loose
		}

		return variants
	}

	labels := lo.Uniq(lo.FilterMap(variants, func(v media.Variant, _ int) (string, bool) {
		return v.Label, v.Label != ""
	}))
	if len(labels) < 2 {
		return variants
	}

	main := lo.Filter(variants, func(v media.Variant, _ int) bool {
		return lo.Contains(v.AudioRoles, MainRole)
	})
	if len(main) > 0 {
		return main
	}

	return variants
}
