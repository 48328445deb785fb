// Package engine defines the abstraction layer over media playback backends.
// The primary implementation drives mpv through its JSON-IPC interface.
package engine

import (
	"context"

	"github.com/tubeflow-cli/tubeflow/filterchain"
	"github.com/tubeflow-cli/tubeflow/media"
)

// Engine encapsulates the capabilities a playback session requires from a backend.
// An engine instance is exclusively owned by one session at a time.
type Engine interface {
	// Load starts playback of src at the given position. The mime type is a hint;
	// backends that probe the container themselves may ignore it.
	Load(ctx context.Context, src string, startTime float64, mimeType string) error

	// Unload stops playback and discards the active media, keeping the backend
	// alive for a subsequent Load.
	Unload(ctx context.Context) error

	// VariantTracks lists the selectable video renditions of the active media.
	VariantTracks() []media.Variant

	// AudioTracks lists the selectable audio renditions of the active media.
	AudioTracks() []media.AudioTrack

	// TextTracks lists the caption and subtitle renditions of the active media.
	TextTracks() []media.TextTrack

	// SelectVariant switches playback to the variant with the given id.
	SelectVariant(id string) error

	// SelectTextTrack activates the text track with the given id.
	SelectTextTrack(id string) error

	// SetTextTrackVisibility shows or hides the active text track.
	SetTextTrackVisibility(visible bool) error

	// SeekRange reports the currently seekable window.
	SeekRange() media.SeekRange

	// Seek moves playback to an absolute position in seconds.
	Seek(seconds float64) error

	// Pause suspends playback.
	Pause() error

	// Resume continues suspended playback.
	Resume() error

	// Paused reports the current suspension state.
	Paused() (bool, error)

	// Position reports the current absolute playback position in seconds.
	Position() (float64, error)

	// AddTextTrack side-loads an external caption track.
	AddTextTrack(ctx context.Context, url, lang, label string) error

	// SetFilters installs the request/response filter chain applied to the
	// backend's network exchanges.
	SetFilters(chain *filterchain.Chain)

	// Destroy tears the backend down, awaiting its full shutdown.
	Destroy(ctx context.Context) error
}

// Builder constructs a fresh, unloaded engine.
type Builder func() Engine

// Builders is the registry of available backends, keyed by the name used in
// configuration. Constructed once at composition time.
func Builders() map[string]Builder {
	return map[string]Builder{
		"mpv": func() Engine { return NewMPV() },
	}
}
