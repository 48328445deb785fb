package skip

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tubeflow-cli/tubeflow/log"
	"github.com/tubeflow-cli/tubeflow/toast"
	"github.com/tubeflow-cli/tubeflow/util"
)

const (
	// chainGapSeconds merges segments whose start lies within this window after an
	// already-computed skip target, so consecutive segments skip in one seek.
	chainGapSeconds = 0.150

	// endGuardSeconds treats a skip target this close to the seekable end as
	// "already at the end".
	endGuardSeconds = 1.0

	// toastLifetime is how long a skip notification stays visible. Re-triggering
	// the same segment resets the timer instead of stacking a second toast.
	toastLifetime = 2000 * time.Millisecond
)

// SeekFunc issues an absolute seek on the media engine.
type SeekFunc func(seconds float64)

// Decision is the outcome of one evaluation cycle.
type Decision struct {
	ShouldSkip bool
	TargetTime float64
	Triggered  []Segment
}

// Engine evaluates playback time against a session's segment list. It runs
// synchronously inside the engine's periodic time-update notification and is
// bounded by the segment-list size.
type Engine struct {
	segments []Segment
	policies map[string]Policy
	notifier toast.Notifier
	seek     SeekFunc

	// suspended disables auto-skip after a manual seek until one evaluation
	// cycle passes with no active skip, guarding against seek loops.
	suspended bool
	ended     bool

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewEngine creates an evaluation engine over an immutable, ascending-sorted
// segment list.
func NewEngine(segments []Segment, policies map[string]Policy, notifier toast.Notifier, seek SeekFunc) *Engine {
	if notifier == nil {
		notifier = toast.Discard{}
	}
	return &Engine{
		segments: segments,
		policies: policies,
		notifier: notifier,
		seek:     seek,
		timers:   make(map[string]*time.Timer),
	}
}

// Segments returns the session's segment list.
func (e *Engine) Segments() []Segment {
	return e.segments
}

// SeekBarSegments returns the segments whose policy asks for seek-bar marking.
func (e *Engine) SeekBarSegments() []Segment {
	return lo.Filter(e.segments, func(s Segment, _ int) bool {
		return e.policies[s.Category] == PolicyShowInSeekBar
	})
}

// NoteManualSeek suspends auto-skip for the next evaluation cycle. Without this a
// user seeking back into a skipped segment would immediately be thrown out again.
func (e *Engine) NoteManualSeek() {
	e.suspended = true
}

// SetEnded marks whether the media has ended; no skip fires on ended media.
func (e *Engine) SetEnded(ended bool) {
	e.ended = ended
}

// Evaluate computes the skip decision for the current playback position without
// side effects.
//
// A segment triggers when playback has not passed it yet and either playback is
// inside it, or it chains onto an already-triggered segment: its start lies at or
// before the computed target (within the chain gap) and its end extends the target
// further. The final target is the maximum end among triggered segments.
func (e *Engine) Evaluate(currentTime, seekRangeEnd float64) Decision {
	var triggered []Segment
	target := currentTime
	found := false

	for _, s := range e.segments {
		if e.policies[s.Category] != PolicyAutoSkip {
			continue
		}
		if currentTime >= s.EndTime {
			continue
		}

		inside := s.StartTime <= currentTime
		chains := found && s.StartTime <= target+chainGapSeconds && s.EndTime > target
		if !inside && !chains {
			continue
		}

		triggered = append(triggered, s)
		target = util.Max(target, s.EndTime)
		found = true
	}

	if !found {
		// A quiet cycle re-arms auto-skip after a manual seek.
		e.suspended = false
		return Decision{}
	}

	if e.suspended || e.ended {
		return Decision{}
	}

	if target >= seekRangeEnd-endGuardSeconds {
		// Already at the end; seeking now would stall or loop playback.
		return Decision{}
	}
	target = util.Min(target, seekRangeEnd)

	return Decision{ShouldSkip: true, TargetTime: target, Triggered: triggered}
}

// HandleTimeUpdate runs one evaluation cycle and applies its side effects: the
// merged seek for auto-skip segments and prompt toasts for prompt-to-skip ones.
func (e *Engine) HandleTimeUpdate(currentTime, seekRangeEnd float64) Decision {
	decision := e.Evaluate(currentTime, seekRangeEnd)

	if decision.ShouldSkip {
		log.Infof("skipping %s: %.3f -> %.3f", util.Quantify(len(decision.Triggered), "segment", "segments"), currentTime, decision.TargetTime)
		e.seek(decision.TargetTime)
		for _, s := range decision.Triggered {
			e.announce(s, fmt.Sprintf("Skipped %s", util.Capitalize(s.Category)), nil)
		}
	}

	e.promptInside(currentTime, seekRangeEnd)
	return decision
}

// promptInside surfaces a clickable toast for prompt-to-skip segments containing
// the current position.
func (e *Engine) promptInside(currentTime, seekRangeEnd float64) {
	for _, s := range e.segments {
		if e.policies[s.Category] != PolicyPromptToSkip {
			continue
		}
		if currentTime < s.StartTime || currentTime >= s.EndTime {
			continue
		}

		target := util.Min(s.EndTime, seekRangeEnd)
		e.announce(s, fmt.Sprintf("Skip %s?", util.Capitalize(s.Category)), func() {
			e.seek(target)
		})
	}
}

// announce shows a toast for a segment, resetting the expiry timer when the same
// segment re-triggers before the previous toast expired.
func (e *Engine) announce(s Segment, message string, onClick func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if timer, ok := e.timers[s.UUID]; ok {
		timer.Reset(toastLifetime)
		return
	}

	e.notifier.Show(message, toastLifetime, onClick)
	uuid := s.UUID
	e.timers[uuid] = time.AfterFunc(toastLifetime, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.timers, uuid)
	})
}
