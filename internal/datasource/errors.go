package datasource

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("dataset not found")
	ErrFetch      = errors.New("dataset fetch failed")
	ErrConnection = errors.New("dataset connection failed")
	ErrClosed     = errors.New("data source is closed")
	ErrQuery      = errors.New("query failed")
)

// Phase names the step in which an error occurred.
type Phase string

const (
	PhaseResolve     Phase = "resolve"
	PhaseOpen        Phase = "open"
	PhaseFilterSetup Phase = "filter_setup"
	PhaseExecute     Phase = "execute"
	PhaseJoin        Phase = "join"
	PhaseCleanup     Phase = "cleanup"
)

// Error annotates a failure with its kind (one of the Err* sentinels) and the
// phase it happened in. Cleanup carries a scratch-table cleanup failure that
// followed the primary error; it never replaces Err.
type Error struct {
	Kind    error
	Phase   Phase
	Err     error
	Cleanup error
}

func NewError(kind error, phase Phase, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Phase, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Cleanup != nil {
		msg += " (cleanup: " + e.Cleanup.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// PhaseOf reports the phase recorded on err, if any.
func PhaseOf(err error) (Phase, bool) {
	var dsErr *Error
	if errors.As(err, &dsErr) {
		return dsErr.Phase, true
	}
	return "", false
}

func scratchLeaked(err error) bool {
	var dsErr *Error
	if !errors.As(err, &dsErr) {
		return false
	}
	return dsErr.Phase == PhaseCleanup || dsErr.Cleanup != nil
}
