// Package engine orchestrates a single logical turn against the gamemaster
// backend: it captures a pre-turn snapshot, applies the optimistic mutation,
// streams fragments into the session store, and finalizes the turn by commit
// or rollback. The engine is the only component that may run a turn; at most
// one is in flight per session, enforced by the engine's own state flag.
//
// States: Idle → Sending → (Committed | RolledBack) → Idle.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/stdkoehler/gamemaister-cli/internal/api"
	"github.com/stdkoehler/gamemaister-cli/internal/session"
)

// Stream is a lazy, finite sequence of model text fragments.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Transport issues turn requests against the backend. CancelTurn is
// fire-and-forget; stopping the local read loop is the engine's job.
type Transport interface {
	StreamTurn(ctx context.Context, tr api.TurnRequest) (Stream, error)
	CancelTurn(missionID int64)
}

// NewAPITransport adapts an api.Client to the Transport interface.
func NewAPITransport(c *api.Client) Transport {
	return apiTransport{c}
}

type apiTransport struct {
	c *api.Client
}

func (t apiTransport) StreamTurn(ctx context.Context, tr api.TurnRequest) (Stream, error) {
	s, err := t.c.StreamTurn(ctx, tr)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (t apiTransport) CancelTurn(missionID int64) {
	t.c.CancelTurn(missionID)
}

// Engine is the streaming interaction controller.
type Engine struct {
	store *session.Store
	tp    Transport
	log   *slog.Logger

	mu        sync.Mutex
	sending   bool
	stopped   bool  // Stop() was called for the in-flight turn
	missionID int64 // mission of the in-flight turn, for CancelTurn
}

// New returns an Engine writing to store and streaming via tp.
func New(store *session.Store, tp Transport) *Engine {
	return &Engine{store: store, tp: tp, log: slog.Default()}
}

// Sending reports whether a turn is currently in flight.
func (e *Engine) Sending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sending
}

// Submit sends a new player input as a turn. The previous pending turn, with
// the gamemaster's closing question stripped, is optimistically folded into
// history; on a failure where nothing was streamed the whole session is
// restored from the pre-turn snapshot.
func (e *Engine) Submit(ctx context.Context, playerText string) error {
	sess := e.store.Snapshot()
	if !sess.Active() {
		return ErrNoMission
	}
	if strings.TrimSpace(playerText) == "" {
		return ErrEmptyInput
	}
	if err := e.begin(*sess.MissionID); err != nil {
		return err
	}
	defer e.end()

	log := e.log.With("turn", uuid.New().String(), "mission", *sess.MissionID)

	// The previous turn forms context only when both halves are non-empty
	// after stripping.
	strippedPrev := StripTrailingQuestion(sess.PendingModelOutput)
	var prev *api.PrevInteraction
	if sess.PendingPlayerInput != "" && strippedPrev != "" {
		prev = &api.PrevInteraction{
			UserInput:   sess.PendingPlayerInput,
			ModelOutput: strippedPrev,
		}
	}

	// sess is the pre-turn snapshot; everything past this point must either
	// commit or restore it.
	e.store.Update(func(s *session.Session) {
		if prev != nil {
			s.History = append(s.History, session.Interaction{
				PlayerInput: prev.UserInput,
				ModelOutput: prev.ModelOutput,
			})
		}
		s.PendingPlayerInput = playerText
		s.PendingModelOutput = ""
		s.DraftInput = ""
	})

	req := api.TurnRequest{
		MissionID:       *sess.MissionID,
		Prompt:          playerText,
		PrevInteraction: prev,
	}
	committed, err := e.stream(ctx, req, log)
	if err != nil && !committed {
		e.store.Restore(sess)
		log.Warn("turn failed before streaming, session restored", "err", err)
	}
	return err
}

// Regenerate streams a fresh model output for the current pending player
// input, sending the pending pair as context and no new prompt. There is no
// optimistic history mutation to undo; on a failure where nothing was
// streamed the previous pending output is put back.
func (e *Engine) Regenerate(ctx context.Context) error {
	sess := e.store.Snapshot()
	if !sess.Active() {
		return ErrNoMission
	}
	if sess.PendingPlayerInput == "" {
		return ErrNothingToRedo
	}
	if err := e.begin(*sess.MissionID); err != nil {
		return err
	}
	defer e.end()

	log := e.log.With("turn", uuid.New().String(), "mission", *sess.MissionID, "regenerate", true)

	prevOut := sess.PendingModelOutput
	e.store.SetPendingModelOutput("")

	req := api.TurnRequest{
		MissionID: *sess.MissionID,
		PrevInteraction: &api.PrevInteraction{
			UserInput:   sess.PendingPlayerInput,
			ModelOutput: prevOut,
		},
	}
	committed, err := e.stream(ctx, req, log)
	if err != nil && !committed {
		e.store.SetPendingModelOutput(prevOut)
		log.Warn("regenerate failed before streaming, previous output kept", "err", err)
	}
	return err
}

// Stop terminates the in-flight turn: it sends a best-effort server-side
// cancel and signals the local read loop to stop after the current fragment,
// committing whatever has accumulated. Idempotent; a no-op when idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.sending || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	missionID := e.missionID
	e.mu.Unlock()

	go e.tp.CancelTurn(missionID)
}

// EditPendingPlayerInput overwrites the pending player text. Rejected while a
// turn is in flight.
func (e *Engine) EditPendingPlayerInput(text string) error {
	if e.Sending() {
		return ErrBusy
	}
	e.store.SetPendingPlayerInput(text)
	return nil
}

// EditPendingModelOutput overwrites the pending model text. Rejected while a
// turn is in flight.
func (e *Engine) EditPendingModelOutput(text string) error {
	if e.Sending() {
		return ErrBusy
	}
	e.store.SetPendingModelOutput(text)
	return nil
}

// EditDraft overwrites the next-submission text box. Rejected while a turn is
// in flight.
func (e *Engine) EditDraft(text string) error {
	if e.Sending() {
		return ErrBusy
	}
	e.store.SetDraftInput(text)
	return nil
}

// begin transitions Idle → Sending, rejecting a concurrent turn.
func (e *Engine) begin(missionID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sending {
		return ErrBusy
	}
	e.sending = true
	e.stopped = false
	e.missionID = missionID
	return nil
}

// end transitions back to Idle.
func (e *Engine) end() {
	e.mu.Lock()
	e.sending = false
	e.mu.Unlock()
}

func (e *Engine) stopRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// stream consumes the turn stream, republishing the accumulated output after
// every fragment. committed reports whether a final value (possibly partial)
// was written; the caller must roll back on err when committed is false.
func (e *Engine) stream(ctx context.Context, req api.TurnRequest, log *slog.Logger) (committed bool, err error) {
	st, err := e.tp.StreamTurn(ctx, req)
	if err != nil {
		return false, err
	}
	defer st.Close()

	var acc strings.Builder
	for {
		if e.stopRequested() {
			log.Info("turn stopped, keeping partial output", "len", acc.Len())
			break
		}
		frag, rerr := st.Recv()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if e.stopRequested() {
				// Already terminated locally; the read failure is moot.
				break
			}
			var derr *api.DecodeError
			if errors.As(rerr, &derr) {
				// Not a single fragment ever decoded: treat like a failed
				// request so the caller rolls back.
				return false, rerr
			}
			// Mid-stream drop: keep what the player already saw, but still
			// surface the error for UI notification.
			e.commit(acc.String())
			return true, rerr
		}
		acc.WriteString(frag)
		e.store.SetPendingModelOutput(acc.String())
	}

	e.commit(acc.String())
	return true, nil
}

// commit finalizes the accumulated model text as authoritative state.
func (e *Engine) commit(text string) {
	e.store.SetPendingModelOutput(strings.TrimSpace(text))
}
