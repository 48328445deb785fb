// Package skip implements the crowd-sourced skip-segment client and the evaluation
// engine that turns playback time updates into seek commands.
package skip

import (
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/tubeflow-cli/tubeflow/key"
)

// Segment is one crowd-sourced time range eligible for skipping. Immutable once
// fetched for a session; the per-session list is sorted ascending by StartTime and
// never re-sorted afterwards.
type Segment struct {
	UUID          string  `json:"uuid"`
	Category      string  `json:"category"`
	StartTime     float64 `json:"startTime"`
	EndTime       float64 `json:"endTime"`
	VideoDuration float64 `json:"videoDuration"`
}

// Policy is the configured reaction to a segment category.
type Policy string

const (
	// PolicyAutoSkip seeks past the segment without user interaction.
	PolicyAutoSkip Policy = "autoSkip"
	// PolicyPromptToSkip surfaces a clickable toast that seeks on activation.
	PolicyPromptToSkip Policy = "promptToSkip"
	// PolicyShowInSeekBar only exposes the segment for seek-bar marking.
	PolicyShowInSeekBar Policy = "showInSeekBar"
	// PolicyDoNothing ignores the category entirely.
	PolicyDoNothing Policy = "doNothing"
)

// Known segment categories of the skip-segment service.
const (
	CategorySponsor       = "sponsor"
	CategorySelfPromo     = "selfpromo"
	CategoryInteraction   = "interaction"
	CategoryIntro         = "intro"
	CategoryOutro         = "outro"
	CategoryPreview       = "preview"
	CategoryFiller        = "filler"
	CategoryMusicOfftopic = "music_offtopic"
)

// categoryKeys maps each category onto its configuration key.
var categoryKeys = map[string]string{
	CategorySponsor:       key.SkipSponsor,
	CategorySelfPromo:     key.SkipSelfPromo,
	CategoryInteraction:   key.SkipInteraction,
	CategoryIntro:         key.SkipIntro,
	CategoryOutro:         key.SkipOutro,
	CategoryPreview:       key.SkipPreview,
	CategoryFiller:        key.SkipFiller,
	CategoryMusicOfftopic: key.SkipMusicOfftopic,
}

// PoliciesFromConfig reads the per-category policies from the global configuration.
// Unknown values degrade to PolicyDoNothing.
func PoliciesFromConfig() map[string]Policy {
	policies := make(map[string]Policy, len(categoryKeys))
	for category, k := range categoryKeys {
		switch p := Policy(viper.GetString(k)); p {
		case PolicyAutoSkip, PolicyPromptToSkip, PolicyShowInSeekBar:
			policies[category] = p
		default:
			policies[category] = PolicyDoNothing
		}
	}
	return policies
}

// ActiveCategories returns the categories whose policy requires fetching segments,
// sorted for deterministic request URLs.
func ActiveCategories(policies map[string]Policy) []string {
	categories := lo.Keys(lo.OmitByValues(policies, []Policy{PolicyDoNothing}))
	sort.Strings(categories)
	return categories
}
