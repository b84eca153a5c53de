package models

import (
	"errors"
	"fmt"
)

// ErrRefreshEmpty is returned when no configured path produced a single model
var ErrRefreshEmpty = errors.New("catalog refresh returned no models")

// ValidationError rejects a request before any automation happens
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ModelNotFoundError means the model is unknown even after a catalog refresh
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q does not exist", e.Model)
}

// AutomationTimeoutError means no reply text was observed before the deadline
type AutomationTimeoutError struct {
	Group string
	After string
}

func (e *AutomationTimeoutError) Error() string {
	return fmt.Sprintf("no response from %s within %s", e.Group, e.After)
}

// AutomationFailure wraps an unrecoverable page interaction error
type AutomationFailure struct {
	Group string
	Step  string
	Err   error
}

func (e *AutomationFailure) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Group, e.Step, e.Err)
}

func (e *AutomationFailure) Unwrap() error { return e.Err }

// UpstreamFetchError reports a failed catalog fetch for one remote path
type UpstreamFetchError struct {
	Group string
	Err   error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Group, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// IsAutomationFailure reports whether err should invalidate the session that produced it
func IsAutomationFailure(err error) bool {
	var af *AutomationFailure
	return errors.As(err, &af)
}
