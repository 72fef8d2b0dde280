package api

import (
	"errors"
	"fmt"
)

// ErrMissionNotFound is returned by GetMission when the backend reports 404
// for the requested mission id.
var ErrMissionNotFound = errors.New("mission not found")

// Phases at which a TransportError can occur.
const (
	// PhaseRequest covers failures before any fragment was yielded:
	// connection errors and non-2xx HTTP statuses.
	PhaseRequest = "request"
	// PhaseMidStream covers read failures after the response body was opened.
	// Fragments already yielded remain valid for the caller.
	PhaseMidStream = "mid-stream"
)

// TransportError reports a failed or interrupted call to the gamemaster
// backend.
type TransportError struct {
	Status int    // HTTP status code; 0 when no response was received
	Body   string // response body for non-2xx statuses
	Phase  string // PhaseRequest or PhaseMidStream
	Err    error  // underlying error, if any
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend request failed (%s): status %d: %s", e.Phase, e.Status, e.Body)
	}
	return fmt.Sprintf("backend request failed (%s): %v", e.Phase, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a turn stream ended without producing a single
// decodable fragment. Individual malformed lines inside an otherwise healthy
// stream are skipped, not surfaced.
type DecodeError struct {
	Malformed int // number of lines that failed to decode
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("turn stream produced no decodable fragments (%d malformed lines)", e.Malformed)
}
