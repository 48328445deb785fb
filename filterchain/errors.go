package filterchain

import (
	"errors"
	"fmt"
)

// RedirectResolutionError reports a failure while following an application-level
// redirect payload.
type RedirectResolutionError struct {
	URL string
	Err error
}

func (e *RedirectResolutionError) Error() string {
	return fmt.Sprintf("resolving redirect to %s: %s", e.URL, e.Err)
}

func (e *RedirectResolutionError) Unwrap() error {
	return e.Err
}

// FilterError reports a failure inside a request or response filter.
type FilterError struct {
	Kind Kind
	Err  error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filtering %s exchange: %s", e.Kind, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// RootCause strips nested filter and redirect wrappers and returns the innermost
// error. Filters run inside each other, so a terminal failure can arrive wrapped
// several layers deep; logs should name the original cause, not the wrapping.
func RootCause(err error) error {
	for {
		var redirect *RedirectResolutionError
		var filter *FilterError

		switch {
		case errors.As(err, &redirect) && redirect.Err != nil:
			err = redirect.Err
		case errors.As(err, &filter) && filter.Err != nil:
			err = filter.Err
		default:
			return err
		}
	}
}
