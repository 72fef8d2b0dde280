package session

import (
	"log/slog"
	"sync"
)

// Persister mirrors session state to durable storage so a process restart can
// recover the mission, history, and pending fields.
type Persister interface {
	Save(Session) error
	// Load returns the stored session, or ok=false when nothing usable is
	// stored (absent or corrupt entries fall back to defaults).
	Load() (s Session, ok bool, err error)
	Delete() error
}

// Store is the single mutable holder of Session state. Only the engine and
// the mission lifecycle manager write to it. Every mutation is mirrored to
// the Persister best-effort (failures are logged, never surfaced) and then
// published to subscribers.
type Store struct {
	mu      sync.Mutex
	s       Session
	persist Persister // may be nil (tests)
	subs    []func(Session)
	log     *slog.Logger
}

// NewStore returns a Store hydrated from p, or an empty inert session when
// nothing usable is stored. A nil Persister disables durability.
func NewStore(p Persister) *Store {
	st := &Store{persist: p, log: slog.Default()}
	if p != nil {
		if s, ok, err := p.Load(); err != nil {
			st.log.Warn("could not recover session state", "err", err)
		} else if ok {
			st.s = s
		}
	}
	return st
}

// Subscribe registers fn to be called with a session copy after every
// mutation. Callbacks run synchronously under the store lock, in mutation
// order; they must not call back into the Store.
func (st *Store) Subscribe(fn func(Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subs = append(st.subs, fn)
}

// Snapshot returns a deep copy of the current session, suitable for rollback.
func (st *Store) Snapshot() Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.Clone()
}

// Restore replaces the whole session with a previously taken snapshot.
func (st *Store) Restore(snap Session) {
	st.Update(func(s *Session) { *s = snap.Clone() })
}

// Update applies fn to the session atomically, then persists and publishes
// the result. All named mutators below are built on it.
func (st *Store) Update(fn func(*Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
	st.flushLocked()
}

// AppendHistory pushes one committed interaction.
func (st *Store) AppendHistory(it Interaction) {
	st.Update(func(s *Session) { s.History = append(s.History, it) })
}

// SetPendingPlayerInput overwrites the pending player text.
func (st *Store) SetPendingPlayerInput(text string) {
	st.Update(func(s *Session) { s.PendingPlayerInput = text })
}

// SetPendingModelOutput overwrites the pending model text. The engine calls
// this once per streamed fragment with the accumulated value.
func (st *Store) SetPendingModelOutput(text string) {
	st.Update(func(s *Session) { s.PendingModelOutput = text })
}

// SetDraftInput overwrites the next-submission text box.
func (st *Store) SetDraftInput(text string) {
	st.Update(func(s *Session) { s.DraftInput = text })
}

// LoadFrom replaces the session with a freshly loaded mission. DraftInput is
// cleared.
func (st *Store) LoadFrom(missionID int64, title string, history []Interaction, pendingPlayerInput, pendingModelOutput string) {
	st.Update(func(s *Session) {
		id := missionID
		*s = Session{
			MissionID:          &id,
			MissionTitle:       title,
			History:            append([]Interaction(nil), history...),
			PendingPlayerInput: pendingPlayerInput,
			PendingModelOutput: pendingModelOutput,
		}
	})
}

// Clear resets to the empty inert session and removes the durable mirror.
func (st *Store) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = Session{}
	if st.persist != nil {
		if err := st.persist.Delete(); err != nil {
			st.log.Warn("could not delete persisted session state", "err", err)
		}
	}
	st.notifyLocked()
}

// flushLocked mirrors the current state to durable storage and notifies
// subscribers. Persistence failures are non-fatal by contract.
func (st *Store) flushLocked() {
	if st.persist != nil {
		if err := st.persist.Save(st.s); err != nil {
			st.log.Warn("could not persist session state", "err", err)
		}
	}
	st.notifyLocked()
}

func (st *Store) notifyLocked() {
	if len(st.subs) == 0 {
		return
	}
	snap := st.s.Clone()
	for _, fn := range st.subs {
		fn(snap)
	}
}
