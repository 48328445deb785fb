package manifest

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Mode selects the repair pass applied to a manifest before the engine parses it.
type Mode string

const (
	// ModeLive repairs manifests fetched directly from the origin for live content.
	ModeLive Mode = "live"
	// ModeStaticProxied repairs static manifests that passed through a gateway which
	// loses per-track labeling.
	ModeStaticProxied Mode = "static-proxied"
	// ModeStatic applies only the ordering pass shared by all modes.
	ModeStatic Mode = "static"
)

// Element and attribute names of the manifest vocabulary touched by the repairer.
const (
	elemPeriod         = "Period"
	elemAdaptationSet  = "AdaptationSet"
	elemRepresentation = "Representation"
	elemRole           = "Role"
	elemBaseURL        = "BaseURL"

	attrID       = "id"
	attrLabel    = "label"
	attrLang     = "lang"
	attrMimeType = "mimeType"
	attrCodecs   = "codecs"

	roleScheme = "urn:mpeg:dash:role:2011"
)

// codecPriority is the fixed preference order applied when sorting adaptation sets.
// Downstream auto-selection picks the first entries, so ordering acts as an implicit
// preference signal.
var codecPriority = []string{"opus", "mp4a", "ec-3", "ac-3", "av01", "vp09", "vp9", "avc1"}

// Repair mutates the document in place so that strict manifest parsers accept it and
// downstream track selection sees sane labels and ordering. The locale controls the
// display language names attached to relabeled audio tracks.
func Repair(doc *Document, mode Mode, locale language.Tag) error {
	switch mode {
	case ModeLive:
		repairPresentationDelay(doc)
		dedupRepresentationIDs(doc)
	case ModeStaticProxied:
		relabelAudioSets(doc, locale)
	case ModeStatic:
	default:
		return fmt.Errorf("unknown repair mode %q", mode)
	}

	sortAdaptationSets(doc)
	return nil
}

// repairPresentationDelay doubles the manifest's update period into the suggested
// presentation delay. Upstream live manifests update faster than clients should
// re-buffer; the doubled delay smooths refresh-induced stalls.
func repairPresentationDelay(doc *Document) {
	raw, ok := doc.Attr(doc.Root(), "minimumUpdatePeriod")
	if !ok {
		return
	}
	period, err := ParseDuration(raw)
	if err != nil {
		return
	}
	doc.SetAttr(doc.Root(), "suggestedPresentationDelay", FormatDuration(2*period))
}

// dedupRepresentationIDs renames colliding representation ids within each period.
// Duplicate ids across caption streams are rejected by strict manifest parsers.
func dedupRepresentationIDs(doc *Document) {
	for _, period := range doc.DescendantsNamed(doc.Root(), elemPeriod) {
		seen := make(map[string]struct{})
		counter := 0

		for _, rep := range doc.DescendantsNamed(period, elemRepresentation) {
			id, ok := doc.Attr(rep, attrID)
			if !ok {
				continue
			}
			if _, taken := seen[id]; taken {
				id = fmt.Sprintf("%s-ft-fix-%d", id, counter)
				counter++
				doc.SetAttr(rep, attrID, id)
			}
			seen[id] = struct{}{}
		}
	}
}

// relabelAudioSets rebuilds the labeling of audio adaptation sets that lost it in a
// gateway: pre-existing labels are bitrate annotations that would be misread as
// distinct audio tracks, and the upstream Role element tags the first stream "main"
// regardless of its actual role. The real language and content type survive in the
// base URL's xtags query parameter.
func relabelAudioSets(doc *Document, locale language.Tag) {
	for _, set := range doc.DescendantsNamed(doc.Root(), elemAdaptationSet) {
		if !strings.HasPrefix(mimeOf(doc, set), "audio/") {
			continue
		}

		doc.DeleteAttr(set, attrLabel)
		for _, role := range doc.ChildrenNamed(set, elemRole) {
			doc.RemoveChild(set, role)
		}

		lang, content := xtagsOf(doc, set)
		if lang == "" {
			continue
		}

		doc.SetAttr(set, attrLang, lang)
		doc.SetAttr(set, attrLabel, audioLabel(lang, content, locale))

		role := doc.CreateElement(elemRole)
		doc.SetAttr(role, "schemeIdUri", roleScheme)
		doc.SetAttr(role, "value", roleForContent(content))
		doc.PrependChild(set, role)
	}
}

// xtagsOf extracts the lang and acont values from the first representation's base URL.
func xtagsOf(doc *Document, set int) (lang, content string) {
	rep := doc.FirstChildNamed(set, elemRepresentation)
	if rep == None {
		return "", ""
	}
	base := doc.FirstChildNamed(rep, elemBaseURL)
	if base == None {
		return "", ""
	}

	parsed, err := url.Parse(doc.Text(base))
	if err != nil {
		return "", ""
	}

	// xtags is a colon-separated key=value list, e.g. "lang=fr:acont=dubbed".
	for _, pair := range strings.Split(parsed.Query().Get("xtags"), ":") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		switch key {
		case "lang":
			lang = value
		case "acont":
			content = value
		}
	}
	return lang, content
}

// roleForContent maps the audio content type advertised in xtags onto a DASH role.
func roleForContent(content string) string {
	switch content {
	case "original", "":
		return "main"
	case "dubbed", "dubbed-auto":
		return "dub"
	case "descriptive":
		return "description"
	case "secondary":
		return "alternate"
	default:
		return "alternate"
	}
}

// audioLabel builds a human-readable track label from the resolved display language
// name and a descriptive suffix for non-default content types.
func audioLabel(lang, content string, locale language.Tag) string {
	name := lang
	if tag, err := language.Parse(lang); err == nil {
		if resolved := display.Languages(locale).Name(tag); resolved != "" {
			name = resolved
		}
	}

	switch content {
	case "original":
		return name + " original"
	case "descriptive":
		return name + " descriptive"
	case "secondary":
		return name + " secondary"
	case "dubbed", "dubbed-auto", "":
		return name
	default:
		return name + " alternative"
	}
}

// sortAdaptationSets orders each period's adaptation sets by codec preference with
// non-audio/video sets (captions, images) last, and sorts representations within
// audio sets by descending bandwidth. Channel-configuration metadata children stay
// pinned ahead of the representations.
func sortAdaptationSets(doc *Document) {
	for _, period := range doc.DescendantsNamed(doc.Root(), elemPeriod) {
		sets := doc.ChildrenNamed(period, elemAdaptationSet)
		if len(sets) > 1 {
			ranked := lo.Map(sets, func(set int, _ int) lo.Tuple2[int, int] {
				return lo.T2(set, setRank(doc, set))
			})
			sort.SliceStable(ranked, func(i, j int) bool {
				return ranked[i].B < ranked[j].B
			})

			// Rebuild the period's child list with the sets reordered in place,
			// leaving any non-AdaptationSet children where they were.
			ordered := doc.Children(period)
			next := 0
			for i, child := range ordered {
				if doc.Name(child) == elemAdaptationSet {
					ordered[i] = ranked[next].A
					next++
				}
			}
			doc.SetChildren(period, ordered)
		}

		for _, set := range doc.ChildrenNamed(period, elemAdaptationSet) {
			if strings.HasPrefix(mimeOf(doc, set), "audio/") {
				sortAudioRepresentations(doc, set)
			}
		}
	}
}

// setRank computes the ordering key of an adaptation set: audio/video sets sort by
// codec priority, everything else sorts after them.
func setRank(doc *Document, set int) int {
	mime := mimeOf(doc, set)
	if !strings.HasPrefix(mime, "audio/") && !strings.HasPrefix(mime, "video/") {
		return len(codecPriority) + 1
	}

	codec := codecOf(doc, set)
	for i, prefix := range codecPriority {
		if strings.HasPrefix(codec, prefix) {
			return i
		}
	}
	return len(codecPriority)
}

// sortAudioRepresentations reorders an audio set's representation children by
// descending bandwidth, keeping metadata children first.
func sortAudioRepresentations(doc *Document, set int) {
	var pinned, reps []int
	for _, child := range doc.Children(set) {
		if doc.Name(child) == elemRepresentation {
			reps = append(reps, child)
		} else {
			pinned = append(pinned, child)
		}
	}
	if len(reps) < 2 {
		return
	}

	bandwidth := func(rep int) int {
		n, _ := strconv.Atoi(doc.AttrOr(rep, "bandwidth", "0"))
		return n
	}
	sort.SliceStable(reps, func(i, j int) bool {
		return bandwidth(reps[i]) > bandwidth(reps[j])
	})

	doc.SetChildren(set, append(pinned, reps...))
}

// mimeOf resolves an adaptation set's mime type, falling back to the first
// representation when the set itself is untyped.
func mimeOf(doc *Document, set int) string {
	if mime, ok := doc.Attr(set, attrMimeType); ok {
		return mime
	}
	if rep := doc.FirstChildNamed(set, elemRepresentation); rep != None {
		return doc.AttrOr(rep, attrMimeType, "")
	}
	return ""
}

// codecOf resolves an adaptation set's codec string, falling back to the first
// representation.
func codecOf(doc *Document, set int) string {
	if codec, ok := doc.Attr(set, attrCodecs); ok {
		return codec
	}
	if rep := doc.FirstChildNamed(set, elemRepresentation); rep != None {
		return doc.AttrOr(rep, attrCodecs, "")
	}
	return ""
}
