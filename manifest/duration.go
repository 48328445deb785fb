package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrBadDuration reports a value that is not an ISO 8601 duration.
var ErrBadDuration = errors.New("invalid ISO 8601 duration")

var durationRe = regexp.MustCompile(
	`^(-)?P(?:(\d+(?:\.\d+)?)Y)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)W)?(?:(\d+(?:\.\d+)?)D)?` +
		`(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
)

// Seconds-per-unit factors. Calendar units follow the nominal DASH interpretation
// (a year of 365 days, a month of 30 days); live manifests only ever carry T units.
const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	secondsPerWeek   = 7 * secondsPerDay
	secondsPerMonth  = 30 * secondsPerDay
	secondsPerYear   = 365 * secondsPerDay
)

// ParseDuration converts an ISO 8601 duration string (e.g. "PT2S", "PT1M30.5S")
// into seconds.
func ParseDuration(value string) (float64, error) {
	match := durationRe.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil || value == "P" || value == "PT" {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, value)
	}

	factors := []float64{
		secondsPerYear, secondsPerMonth, secondsPerWeek, secondsPerDay,
		secondsPerHour, secondsPerMinute, 1,
	}

	var total float64
	var any bool
	for i, factor := range factors {
		group := match[i+2]
		if group == "" {
			continue
		}
		n, err := strconv.ParseFloat(group, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadDuration, value)
		}
		total += n * factor
		any = true
	}
	if !any {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, value)
	}

	if match[1] == "-" {
		total = -total
	}
	return total, nil
}

// FormatDuration renders seconds back into the duration syntax manifests use
// for update periods and presentation delays ("PT4S", "PT1.5S").
func FormatDuration(seconds float64) string {
	return "PT" + strconv.FormatFloat(seconds, 'f', -1, 64) + "S"
}
