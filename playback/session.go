// Package playback implements the orchestrating session state machine: initial
// load, format switching with state restoration, skip evaluation wiring and
// session teardown.
package playback

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/spf13/afero"
	"github.com/tubeflow-cli/tubeflow/engine"
	"github.com/tubeflow-cli/tubeflow/filesystem"
	"github.com/tubeflow-cli/tubeflow/filterchain"
	"github.com/tubeflow-cli/tubeflow/log"
	"github.com/tubeflow-cli/tubeflow/manifest"
	"github.com/tubeflow-cli/tubeflow/media"
	"github.com/tubeflow-cli/tubeflow/network"
	"github.com/tubeflow-cli/tubeflow/quality"
	"github.com/tubeflow-cli/tubeflow/skip"
	"github.com/tubeflow-cli/tubeflow/toast"
	"github.com/tubeflow-cli/tubeflow/where"
	"golang.org/x/text/language"
)

// Format is the active delivery format of a session.
type Format string

const (
	FormatDash   Format = "dash"
	FormatLegacy Format = "legacy"
	FormatAudio  Format = "audio"
)

const dashMimeType = "application/dash+xml"

// Phase is the lifecycle state of a session.
type Phase string

const (
	PhaseUnloaded        Phase = "unloaded"
	PhaseLoading         Phase = "loading"
	PhaseLoaded          Phase = "loaded"
	PhaseSwitchingFormat Phase = "switching-format"
	PhaseDestroyed       Phase = "destroyed"
)

// CaptionTrack is one side-loadable caption rendition of a play request.
type CaptionTrack struct {
	URL      string
	Language string
	Label    string
}

// Request is one play request: everything a session needs to start a video.
type Request struct {
	VideoID          string
	Title            string
	ManifestURL      string
	AudioManifestURL string
	LegacyFormats    []media.LegacyFormat
	StartTime        float64
	Live             bool
	Proxied          bool
	Captions         []CaptionTrack
}

// UIState is the presentation state handed back on teardown so a successor
// session can restore it.
type UIState struct {
	Fullscreen       bool
	FullWindow       bool
	PictureInPicture bool
}

// restoreState is the typed capture passed into a reload during a format switch.
type restoreState struct {
	Paused          bool
	PositionSeconds float64
	CaptionIndex    mo.Option[int]
	VariantMetric   mo.Option[int]
	AudioLabel      mo.Option[string]
	AudioBandwidth  mo.Option[int]
}

// Options configures a session at creation time.
type Options struct {
	Engine   engine.Engine
	Skip     *skip.Engine
	Notifier toast.Notifier
	Locale   language.Tag

	// Quality is the preferred target quality: "auto" or a metric like "720"
	// or "1080p".
	Quality string

	// AudioLanguage is the preferred audio track, matched against track labels.
	AudioLanguage string

	// ShowCaptions turns the first text track on as soon as tracks attach.
	ShowCaptions bool

	// ResumeOnSwitch restores position and captions across format switches.
	ResumeOnSwitch bool

	// Filters, when set, routes segment and playlist traffic through a local
	// relay so the chain applies to exchanges the engine issues itself.
	Filters *filterchain.Chain

	HTTP *http.Client

	// OnError receives surfaced (non-deduplicated-away) session errors.
	OnError func(error)
}

// Session owns the media engine for the lifetime of one video and drives it
// through the load, switch and teardown sequences. Only one load or switch is
// ever in flight; async steps re-check ownership on resumption.
type Session struct {
	id             uuid.UUID
	engine         engine.Engine
	skip           *skip.Engine
	notifier       toast.Notifier
	locale         language.Tag
	quality        string
	audioLanguage  string
	showCaptions   bool
	resumeOnSwitch bool
	filters        *filterchain.Chain
	relay          *filterchain.Relay
	http           *http.Client
	onError        func(error)

	request       Request
	phase         Phase
	format        Format
	activeVariant mo.Option[media.Variant]
	activeLegacy  mo.Option[media.LegacyFormat]

	// ignoreTransientErrors suppresses duplicate error events while a caller
	// walks through fallback formats for the same video.
	ignoreTransientErrors bool

	// generation invalidates in-flight async work when a newer load supersedes it.
	generation uint64
	destroyed  bool

	ui UIState
}

// NewSession creates an unloaded session owning the given engine.
func NewSession(opts Options) *Session {
	if opts.Notifier == nil {
		opts.Notifier = toast.Discard{}
	}
	if opts.HTTP == nil {
		opts.HTTP = network.Client
	}
	if opts.Quality == "" {
		opts.Quality = quality.Auto
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	return &Session{
		id:             uuid.New(),
		engine:         opts.Engine,
		skip:           opts.Skip,
		notifier:       opts.Notifier,
		locale:         opts.Locale,
		quality:        opts.Quality,
		audioLanguage:  opts.AudioLanguage,
		showCaptions:   opts.ShowCaptions,
		resumeOnSwitch: opts.ResumeOnSwitch,
		filters:        opts.Filters,
		http:           opts.HTTP,
		onError:        opts.OnError,
		phase:          PhaseUnloaded,
	}
}

// ID returns the session identity.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Phase returns the current lifecycle state.
func (s *Session) Phase() Phase {
	return s.phase
}

// Format returns the active delivery format.
func (s *Session) Format() Format {
	return s.format
}

// ActiveVariant returns the explicitly selected variant, if any.
func (s *Session) ActiveVariant() mo.Option[media.Variant] {
	return s.activeVariant
}

// ActiveLegacyFormat returns the selected legacy format, if any.
func (s *Session) ActiveLegacyFormat() mo.Option[media.LegacyFormat] {
	return s.activeLegacy
}

// Start begins playback of a new play request in the given format.
func (s *Session) Start(ctx context.Context, req Request, format Format) error {
	if s.destroyed {
		return fmt.Errorf("session %s is destroyed", s.id)
	}

	s.request = req
	s.phase = PhaseLoading
	// A new video resets error deduplication; fallback switches do not.
	s.ignoreTransientErrors = false
	gen := s.begin()

	restore := restoreState{PositionSeconds: req.StartTime}
	if err := s.loadFormat(ctx, format, restore, gen); err != nil {
		if !s.abandoned(gen) {
			s.phase = PhaseUnloaded
		}
		s.surface(err)
		return err
	}
	if s.abandoned(gen) {
		return nil
	}

	s.phase = PhaseLoaded
	return nil
}

// SwitchFormat moves a loaded session to another delivery format, preserving
// position, pause state, caption selection and audio identity. A switch before
// the first successful load is treated as a fresh initial load: there is no
// state worth restoring, the caller is retrying a failed format.
func (s *Session) SwitchFormat(ctx context.Context, format Format) error {
	if s.destroyed {
		return fmt.Errorf("session %s is destroyed", s.id)
	}
	if format == s.format && s.phase == PhaseLoaded {
		return nil
	}

	if s.phase != PhaseLoaded {
		gen := s.begin()
		s.phase = PhaseLoading
		restore := restoreState{PositionSeconds: s.request.StartTime}
		if err := s.loadFormat(ctx, format, restore, gen); err != nil {
			if !s.abandoned(gen) {
				s.phase = PhaseUnloaded
			}
			s.surface(err)
			return err
		}
		if !s.abandoned(gen) {
			s.phase = PhaseLoaded
		}
		return nil
	}

	restore := s.captureRestore()
	if !s.resumeOnSwitch {
		restore.Paused = false
		restore.PositionSeconds = 0
		restore.CaptionIndex = mo.None[int]()
	}
	s.phase = PhaseSwitchingFormat
	gen := s.begin()

	if err := s.engine.Pause(); err != nil {
		log.Warnf("pausing before format switch: %v", err)
	}
	// Unload failures are not actionable; the reload replaces the media anyway.
	if err := s.engine.Unload(ctx); err != nil {
		log.Debugf("unload before format switch: %v", err)
	}
	if s.abandoned(gen) {
		return nil
	}

	if err := s.loadFormat(ctx, format, restore, gen); err != nil {
		if !s.abandoned(gen) {
			s.phase = PhaseUnloaded
		}
		s.surface(err)
		return err
	}
	if s.abandoned(gen) {
		return nil
	}

	if restore.Paused {
		if err := s.engine.Pause(); err != nil {
			log.Warnf("restoring paused state: %v", err)
		}
	} else {
		if err := s.engine.Resume(); err != nil {
			log.Warnf("restoring playing state: %v", err)
		}
	}

	s.phase = PhaseLoaded
	return nil
}

// captureRestore snapshots the state a reload must bring back.
func (s *Session) captureRestore() restoreState {
	restore := restoreState{}

	if paused, err := s.engine.Paused(); err == nil {
		restore.Paused = paused
	}
	if position, err := s.engine.Position(); err == nil {
		restore.PositionSeconds = position
	}

	// The caption index survives only if captions are actually showing.
	for i, track := range s.engine.TextTracks() {
		if track.Active {
			restore.CaptionIndex = mo.Some(i)
			break
		}
	}

	if variant, ok := s.activeVariant.Get(); ok {
		restore.VariantMetric = mo.Some(variantMetric(variant))
		if variant.Label != "" {
			restore.AudioLabel = mo.Some(variant.Label)
		}
		if variant.AudioBandwidth > 0 {
			restore.AudioBandwidth = mo.Some(variant.AudioBandwidth)
		}
	}
	if legacy, ok := s.activeLegacy.Get(); ok {
		restore.VariantMetric = mo.Some(legacyMetric(legacy))
	}

	return restore
}

// loadFormat reconfigures the engine for the target format at the restore
// position and re-applies selection from the restore hints.
func (s *Session) loadFormat(ctx context.Context, format Format, restore restoreState, gen uint64) error {
	switch format {
	case FormatDash, FormatAudio:
		if err := s.loadManifest(ctx, format, restore, gen); err != nil {
			return err
		}
	case FormatLegacy:
		if err := s.loadLegacy(ctx, restore, gen); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if s.abandoned(gen) {
		return nil
	}

	s.format = format
	s.attachCaptions(ctx, restore.CaptionIndex, gen)
	return nil
}

// loadManifest fetches, repairs and loads an adaptive manifest, then applies
// variant selection.
func (s *Session) loadManifest(ctx context.Context, format Format, restore restoreState, gen uint64) error {
	manifestURL := s.request.ManifestURL
	if format == FormatAudio && s.request.AudioManifestURL != "" {
		manifestURL = s.request.AudioManifestURL
	}
	if manifestURL == "" {
		return &ManifestLoadError{Format: format, Err: fmt.Errorf("no manifest URL in play request")}
	}

	doc, err := s.fetchManifest(ctx, manifestURL)
	if err != nil {
		return err
	}
	if s.abandoned(gen) {
		return nil
	}

	mode := manifest.ModeStatic
	switch {
	case s.request.Live:
		mode = manifest.ModeLive
	case s.request.Proxied:
		mode = manifest.ModeStaticProxied
	}
	if err := manifest.Repair(doc, mode, s.locale); err != nil {
		return &ManifestLoadError{Format: format, Err: err}
	}
	s.routeThroughRelay(doc)

	staged, err := s.stageManifest(doc)
	if err != nil {
		return &ManifestLoadError{Format: format, Err: err}
	}

	if err := s.engine.Load(ctx, staged, restore.PositionSeconds, dashMimeType); err != nil {
		return &ManifestLoadError{Format: format, Err: err}
	}
	if s.abandoned(gen) {
		return nil
	}

	s.activeLegacy = mo.None[media.LegacyFormat]()
	s.applyVariantSelection(restore)
	return nil
}

// fetchManifest downloads and parses a manifest document.
func (s *Session) fetchManifest(ctx context.Context, manifestURL string) (*manifest.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, &ManifestLoadError{Err: err}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &ManifestLoadError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ManifestLoadError{Err: fmt.Errorf("manifest fetch returned %d", resp.StatusCode)}
	}

	doc, err := manifest.Parse(resp.Body)
	if err != nil {
		return nil, &ManifestParseError{URL: manifestURL, Err: err}
	}
	return doc, nil
}

// stageManifest writes a repaired manifest where the engine can read it. The
// file lives only for the duration of one load.
func (s *Session) stageManifest(doc *manifest.Document) (string, error) {
	staged, err := afero.TempFile(filesystem.API(), where.Temp(), "manifest-*.mpd")
	if err != nil {
		return "", err
	}
	defer staged.Close()

	if err := doc.WriteTo(staged); err != nil {
		return "", err
	}
	return staged.Name(), nil
}

// routeThroughRelay points the manifest's media URLs at the filter relay, so
// the engine's segment and playlist exchanges pass through the chain. Without
// filters, or if the relay cannot bind, the manifest keeps its direct URLs.
func (s *Session) routeThroughRelay(doc *manifest.Document) {
	if s.filters == nil {
		return
	}

	if s.relay == nil {
		relay := filterchain.NewRelay(s.filters)
		if err := relay.Start(); err != nil {
			log.Warnf("filter relay unavailable, segment filters disabled: %v", err)
			return
		}
		s.relay = relay
	}

	manifest.RewriteURLs(doc, s.relay.Rewrite)
}

// loadLegacy selects a legacy format and loads its single file.
func (s *Session) loadLegacy(ctx context.Context, restore restoreState, gen uint64) error {
	target := s.targetMetric(restore)

	selected, err := quality.SelectLegacyFormat(s.request.LegacyFormats, target)
	if err != nil {
		return &ManifestLoadError{Format: FormatLegacy, Err: err}
	}

	if err := s.engine.Load(ctx, selected.URL, restore.PositionSeconds, selected.MimeType); err != nil {
		return &ManifestLoadError{Format: FormatLegacy, Err: err}
	}
	if s.abandoned(gen) {
		return nil
	}

	s.activeVariant = mo.None[media.Variant]()
	s.activeLegacy = mo.Some(selected)
	return nil
}

// applyVariantSelection picks an explicit variant from the engine's track list.
// With an auto preference and no restore hint, selection stays with the engine's
// own adaptive logic.
func (s *Session) applyVariantSelection(restore restoreState) {
	target, explicit := s.explicitTarget(restore)
	if !explicit {
		s.activeVariant = mo.None[media.Variant]()
		return
	}

	variants := s.engine.VariantTracks()
	if len(variants) == 0 {
		return
	}

	opts := quality.Options{
		PreferredAudioBandwidth: restore.AudioBandwidth,
		PreferredLabel:          restore.AudioLabel,
	}
	if opts.PreferredLabel.IsAbsent() && s.audioLanguage != "" {
		opts.PreferredLabel = mo.Some(s.audioLanguage)
	}
	selected, err := quality.SelectVariant(variants, target, opts)
	if err != nil {
		// Never leave the session with zero active variant while candidates
		// exist.
		selected, err = quality.Lowest(variants)
		if err != nil {
			s.surface(err)
			return
		}
	}

	if err := s.engine.SelectVariant(selected.ID); err != nil {
		log.Warnf("selecting variant %s: %v", selected.ID, err)
		return
	}
	s.activeVariant = mo.Some(selected)
}

// explicitTarget resolves the metric to select explicitly, preferring the
// restore hint over the configured quality. The second return is false when
// selection should stay with the engine's adaptive logic.
func (s *Session) explicitTarget(restore restoreState) (int, bool) {
	if metric, ok := restore.VariantMetric.Get(); ok {
		return metric, true
	}
	if metric, ok := parseQuality(s.quality); ok {
		return metric, true
	}
	// No hint and auto preference: an explicit pick would just fight the
	// engine's adaptive logic.
	return 0, false
}

// targetMetric resolves the metric for legacy-format selection, where there is
// no adaptive logic to delegate to.
func (s *Session) targetMetric(restore restoreState) int {
	if metric, ok := restore.VariantMetric.Get(); ok {
		return metric
	}
	if metric, ok := parseQuality(s.quality); ok {
		return metric
	}
	// Auto over single files means the best one available.
	return int(^uint(0) >> 1)
}

// attachCaptions side-loads the request's caption tracks and re-selects the
// pending restore index once tracks are attached. Caption failures never fail
// playback.
func (s *Session) attachCaptions(ctx context.Context, restoreIndex mo.Option[int], gen uint64) {
	for _, track := range s.request.Captions {
		if err := s.engine.AddTextTrack(ctx, track.URL, track.Language, track.Label); err != nil {
			if isKnownUnsupportedCaption(track.URL) {
				continue
			}
			log.Warnf("adding caption track %q: %v", track.Label, err)
		}
		if s.abandoned(gen) {
			return
		}
	}

	index, ok := restoreIndex.Get()
	if !ok {
		if !s.showCaptions {
			return
		}
		index = 0
	}

	tracks := s.engine.TextTracks()
	if index >= len(tracks) {
		return
	}
	if err := s.engine.SelectTextTrack(tracks[index].ID); err != nil {
		log.Warnf("restoring caption track: %v", err)
		return
	}
	if err := s.engine.SetTextTrackVisibility(true); err != nil {
		log.Warnf("showing captions: %v", err)
	}
}

// OnTimeUpdate feeds a playback position into skip evaluation. Called at
// sub-second cadence; must stay cheap.
func (s *Session) OnTimeUpdate(currentTime float64) {
	if s.destroyed || s.phase != PhaseLoaded || s.skip == nil {
		return
	}
	s.skip.HandleTimeUpdate(currentTime, s.engine.SeekRange().End)
}

// NoteManualSeek marks a user-initiated seek, suspending auto-skip for one
// evaluation cycle.
func (s *Session) NoteManualSeek() {
	if s.skip != nil {
		s.skip.NoteManualSeek()
	}
}

// SetEnded propagates the end-of-media state into skip evaluation.
func (s *Session) SetEnded(ended bool) {
	if s.skip != nil {
		s.skip.SetEnded(ended)
	}
}

// SetUIState records the presentation state returned on teardown.
func (s *Session) SetUIState(ui UIState) {
	s.ui = ui
}

// Destroy tears the session down, fully awaiting the engine's own shutdown, and
// returns the captured UI state for a successor session.
func (s *Session) Destroy(ctx context.Context) (UIState, error) {
	if s.destroyed {
		return s.ui, nil
	}

	s.destroyed = true
	s.phase = PhaseDestroyed
	s.begin()

	if s.relay != nil {
		_ = s.relay.Close()
	}

	err := s.engine.Destroy(ctx)
	return s.ui, err
}

// begin starts a new load generation, invalidating in-flight async work.
func (s *Session) begin() uint64 {
	s.generation++
	return s.generation
}

// abandoned reports whether work started at gen lost ownership of the session.
func (s *Session) abandoned(gen uint64) bool {
	return s.destroyed || gen != s.generation
}

// surface reports an error event once; repeats are only logged until the next
// play request resets deduplication.
func (s *Session) surface(err error) {
	if err == nil {
		return
	}
	if s.ignoreTransientErrors {
		log.Debugf("suppressed session error: %v", err)
		return
	}

	s.ignoreTransientErrors = true
	log.Errorf("session %s: %v", s.id, err)
	s.notifier.Show(err.Error(), 0, nil)
	s.onError(err)
}

// variantMetric is the orientation-aware comparison metric of a variant.
func variantMetric(v media.Variant) int {
	if v.Portrait() {
		return v.Width
	}
	return v.Height
}

// legacyMetric is the orientation-aware comparison metric of a legacy format.
func legacyMetric(f media.LegacyFormat) int {
	if f.Portrait() {
		return f.Width
	}
	return f.Height
}

// parseQuality turns a configured quality like "720", "720p" or "1080p60" into
// a target metric. "auto" and unparseable values report false.
func parseQuality(value string) (int, bool) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" || value == quality.Auto {
		return 0, false
	}

	digits := value
	if i := strings.IndexFunc(value, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
		digits = value[:i]
	}

	metric, err := strconv.Atoi(digits)
	if err != nil || metric <= 0 {
		return 0, false
	}
	return metric, true
}
