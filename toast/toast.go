// Package toast defines the fire-and-forget notification collaborator used to surface
// playback events (skips, prompts, errors) to whatever UI hosts the controller.
package toast

import (
	"fmt"
	"time"

	"github.com/tubeflow-cli/tubeflow/log"
)

// Notifier is the outbound notification interface. Implementations must not block:
// Show is called from the engine's time-update path.
type Notifier interface {
	// Show displays a transient message for the given duration. A non-nil onClick
	// is invoked if the user activates the toast before it expires.
	Show(message string, duration time.Duration, onClick func())
}

// Console prints toasts to stdout and mirrors them to the log. Click callbacks are
// unreachable on a plain console and are ignored.
type Console struct{}

// Show implements Notifier.
func (Console) Show(message string, duration time.Duration, onClick func()) {
	log.Debugf("toast (%s): %s", duration, message)
	fmt.Println(message)
}

// Discard swallows every notification. Used in tests and headless runs.
type Discard struct{}

// Show implements Notifier.
func (Discard) Show(string, time.Duration, func()) {}
