// Package summary – errors.go defines the error taxonomy for the
// summarization core. Authentication, not-found and ambiguity errors are
// surfaced verbatim to the user; storage and upstream errors are logged
// in full and surfaced as a generic failure line.
package summary

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when a cross-session request carries a missing
	// or mismatched password, when no password is configured at all, or
	// when the request originates from a group conversation.
	ErrAuth = errors.New("not authorized for cross-session summary")

	// ErrSessionNotFound is returned when a target pattern matches no
	// stored session.
	ErrSessionNotFound = errors.New("no matching session found")

	// ErrNoRecords is returned when the resolved window holds no records.
	ErrNoRecords = errors.New("no chat records in the requested window")

	// ErrSelectionExpired is returned when a follow-up selection arrives
	// with no pending disambiguation, or with an out-of-range index.
	ErrSelectionExpired = errors.New("selection expired or invalid")

	// ErrUpstream is returned when every completion call failed.
	ErrUpstream = errors.New("completion service failed")
)

// AmbiguousError reports that a target pattern matched more than one
// stored session. The candidate list is kept in pending state so a
// follow-up selection command can consume it.
type AmbiguousError struct {
	Pattern    string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("pattern %q matched %d sessions", e.Pattern, len(e.Candidates))
}
