package playback

import (
	"fmt"
	"net/url"
	"strings"
)

// ManifestParseError reports a manifest that could not be parsed into a tree.
type ManifestParseError struct {
	URL string
	Err error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %s", e.URL, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestLoadError reports a failure to fetch a manifest or hand it to the
// media engine.
type ManifestLoadError struct {
	Format Format
	Err    error
}

func (e *ManifestLoadError) Error() string {
	return fmt.Sprintf("loading %s media: %s", e.Format, e.Err)
}

func (e *ManifestLoadError) Unwrap() error {
	return e.Err
}

// isKnownUnsupportedCaption reports whether a caption track URL points at the
// auto-translated caption endpoint the engine cannot consume. Failures on it are
// expected and filtered from error reporting entirely.
func isKnownUnsupportedCaption(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !strings.HasSuffix(parsed.Path, "/api/timedtext") {
		return false
	}
	return parsed.Query().Has("tlang")
}
