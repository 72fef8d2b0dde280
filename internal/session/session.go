// Package session holds the client-side state of a gamemaster session: the
// active mission, the committed interaction history, and the pending turn
// fields the player can still edit or regenerate.
package session

// Interaction is an immutable record of one completed turn.
type Interaction struct {
	PlayerInput string `json:"player_input"`
	ModelOutput string `json:"model_output"`
}

// Session is the active working state. The turn currently being composed or
// generated lives in the pending/draft fields, not in History; it enters
// History only when a later turn is committed.
type Session struct {
	// MissionID is nil when no mission is active; the session is then inert
	// and all player-facing interaction is disabled.
	MissionID    *int64        `json:"mission_id,omitempty"`
	MissionTitle string        `json:"mission_title,omitempty"`
	History      []Interaction `json:"history"`

	// PendingPlayerInput and PendingModelOutput hold the previous turn.
	// PendingModelOutput is mutated incrementally while a turn streams.
	PendingPlayerInput string `json:"pending_player_input"`
	PendingModelOutput string `json:"pending_model_output"`

	// DraftInput is the text box for the next submission; cleared on submit.
	DraftInput string `json:"draft_input"`
}

// Active reports whether a mission is loaded.
func (s Session) Active() bool {
	return s.MissionID != nil
}

// Clone returns a deep copy. History is copied as a new slice so a snapshot
// cannot be mutated through the original.
func (s Session) Clone() Session {
	c := s
	if s.MissionID != nil {
		id := *s.MissionID
		c.MissionID = &id
	}
	c.History = make([]Interaction, len(s.History))
	copy(c.History, s.History)
	return c
}
