package engine

// ValidationError marks a turn rejected locally, before any network call.
// Callers decide how to surface it; it is never fatal.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Sentinel precondition failures. Compared by identity via errors.Is.
var (
	ErrNoMission     = &ValidationError{"no active mission"}
	ErrEmptyInput    = &ValidationError{"player input is empty"}
	ErrBusy          = &ValidationError{"a turn is already in flight"}
	ErrNothingToRedo = &ValidationError{"no pending player input to regenerate"}
)
