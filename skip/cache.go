package skip

import (
	"strings"
	"time"

	"github.com/metafates/gache"
	"github.com/tubeflow-cli/tubeflow/filesystem"
	"github.com/tubeflow-cli/tubeflow/where"
)

// cacher provides a disk-backed registry of fetched segments so that replaying a
// video within the lifetime window does not re-query the service.
var cacher = gache.New[map[string][]Segment](
	&gache.Options{
		Path:       where.SkipSegments(),
		Lifetime:   time.Hour * 6,
		FileSystem: &filesystem.GacheFs{},
	},
)

// cacheKey identifies one fetch: a video id plus the category set it covered.
func cacheKey(videoID string, categories []string) string {
	return videoID + "|" + strings.Join(categories, ",")
}

// cachedSegments returns the cached segments for a fetch, if still fresh.
func cachedSegments(videoID string, categories []string) ([]Segment, bool) {
	cached, expired, err := cacher.Get()
	if err != nil || expired || cached == nil {
		return nil, false
	}
	segments, ok := cached[cacheKey(videoID, categories)]
	return segments, ok
}

// storeSegments persists the result of a fetch. Failures are ignored; the cache is
// an optimization, never a requirement.
func storeSegments(videoID string, categories []string, segments []Segment) {
	cached, _, err := cacher.Get()
	if err != nil || cached == nil {
		cached = make(map[string][]Segment)
	}
	if segments == nil {
		segments = []Segment{}
	}
	cached[cacheKey(videoID, categories)] = segments
	_ = cacher.Set(cached)
}
