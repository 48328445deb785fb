// Package media defines the domain models for playable tracks, delivery formats and seekable ranges.
package media

import "fmt"

// Variant represents one playable video+audio combination the media engine can select.
// Variants are owned by the engine; the controller only reads and selects them.
type Variant struct {
	// Engine-assigned identifier.
	ID string `json:"id"`
	// Encoded frame dimensions in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Frames per second.
	FrameRate float64 `json:"frameRate"`
	// Total bitrate in bits per second.
	Bitrate int `json:"bitrate"`
	// Bandwidth of the audio rendition in bits per second.
	AudioBandwidth int `json:"audioBandwidth"`
	// Codec identifiers (e.g. "avc1.64001f", "mp4a.40.2").
	VideoCodec string `json:"videoCodec"`
	AudioCodec string `json:"audioCodec"`
	// Human-readable audio track label (multi-audio content).
	Label string `json:"label"`
	// DASH roles of the audio rendition (e.g. "main", "dub").
	AudioRoles []string `json:"audioRoles"`
	// BCP-47 language tag of the audio rendition.
	Language string `json:"language"`
	// Whether the engine currently plays this variant.
	Active bool `json:"active"`
}

// String returns a compact "1920x1080@60 (2500 kbps)" representation for display and logs.
func (v *Variant) String() string {
	return fmt.Sprintf("%dx%d@%g (%d kbps)", v.Width, v.Height, v.FrameRate, v.Bitrate/1000)
}

// Portrait reports whether the variant describes portrait-oriented content.
func (v *Variant) Portrait() bool {
	return v.Height > v.Width
}

// LegacyFormat represents a single-file progressive alternative to adaptive variants.
// Immutable, supplied at session start.
type LegacyFormat struct {
	// Direct URL to the file.
	URL string `json:"url"`
	// Container mime type (e.g. "video/mp4").
	MimeType string `json:"mimeType"`
	// Quality label (e.g. "1080p", "720p").
	QualityLabel string `json:"qualityLabel"`
	// Frame dimensions in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Frames per second.
	FPS int `json:"fps"`
	// Total bitrate in bits per second.
	Bitrate int `json:"bitrate"`
}

// String returns the quality label or URL for display.
func (f *LegacyFormat) String() string {
	if f.QualityLabel != "" {
		return f.QualityLabel
	}
	return f.URL
}

// Portrait reports whether the format describes portrait-oriented content.
func (f *LegacyFormat) Portrait() bool {
	return f.Height > f.Width
}

// AudioTrack represents one selectable audio rendition of the active media.
type AudioTrack struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Language string   `json:"language"`
	Roles    []string `json:"roles"`
	Active   bool     `json:"active"`
}

// TextTrack represents one caption or subtitle rendition of the active media.
type TextTrack struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Language string `json:"language"`
	Kind     string `json:"kind"`
	Active   bool   `json:"active"`
}

// SeekRange is the currently seekable window of the media.
// For live content this is distinct from the total duration.
type SeekRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
