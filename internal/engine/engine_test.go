package engine_test

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/stdkoehler/gamemaister-cli/internal/api"
	"github.com/stdkoehler/gamemaister-cli/internal/engine"
	"github.com/stdkoehler/gamemaister-cli/internal/session"
)

// fakeStream yields scripted fragments, then finalErr (io.EOF when nil).
// onRecv, if set, runs before each Recv returns; it lets tests trigger
// Stop() at a deterministic point in the read loop.
type fakeStream struct {
	frags    []string
	finalErr error
	onRecv   func(n int)
	recvs    int
	closed   bool
}

func (s *fakeStream) Recv() (string, error) {
	s.recvs++
	if s.onRecv != nil {
		s.onRecv(s.recvs)
	}
	if len(s.frags) == 0 {
		if s.finalErr != nil {
			return "", s.finalErr
		}
		return "", io.EOF
	}
	f := s.frags[0]
	s.frags = s.frags[1:]
	return f, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeTransport records requests and serves scripted streams.
type fakeTransport struct {
	mu       sync.Mutex
	requests []api.TurnRequest
	stream   *fakeStream
	err      error // returned by StreamTurn instead of a stream
	cancels  chan int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{cancels: make(chan int64, 4)}
}

func (t *fakeTransport) StreamTurn(ctx context.Context, tr api.TurnRequest) (engine.Stream, error) {
	t.mu.Lock()
	t.requests = append(t.requests, tr)
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return t.stream, nil
}

func (t *fakeTransport) CancelTurn(missionID int64) {
	t.cancels <- missionID
}

func (t *fakeTransport) requestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *fakeTransport) lastRequest() api.TurnRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests[len(t.requests)-1]
}

// newActiveStore returns a store with mission 42 loaded and no history.
func newActiveStore() *session.Store {
	st := session.NewStore(nil)
	st.LoadFrom(42, "The Rusted Key", nil, "", "")
	return st
}

func TestSubmitEndToEnd(t *testing.T) {
	store := newActiveStore()
	tp := newFakeTransport()
	tp.stream = &fakeStream{frags: []string{"You find ", "a rusted key."}}
	eng := engine.New(store, tp)

	if err := eng.Submit(context.Background(), "I search the room."); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := store.Snapshot()
	if s.PendingModelOutput != "You find a rusted key." {
		t.Errorf("pending output = %q, want %q", s.PendingModelOutput, "You find a rusted key.")
	}
	if s.PendingPlayerInput != "I search the room." {
		t.Errorf("pending input = %q, want %q", s.PendingPlayerInput, "I search the room.")
	}
	if s.DraftInput != "" {
		t.Errorf("draft = %q, want empty", s.DraftInput)
	}
	// Pending fields were empty before the turn, so no context pair formed.
	if len(s.History) != 0 {
		t.Errorf("history length = %d, want 0", len(s.History))
	}
	req := tp.lastRequest()
	if req.MissionID != 42 || req.Prompt != "I search the room." || req.PrevInteraction != nil {
		t.Errorf("unexpected request: %+v", req)
	}
	if !tp.stream.closed {
		t.Error("stream was not closed")
	}
}

func TestSubmitFoldsPreviousTurnIntoHistory(t *testing.T) {
	store := newActiveStore()
	store.SetPendingPlayerInput("I enter the tavern.")
	store.SetPendingModelOutput("The tavern is loud. What do you want to do?")
	tp := newFakeTransport()
	tp.stream = &fakeStream{frags: []string{"You order an ale."}}
	eng := engine.New(store, tp)

	if err := eng.Submit(context.Background(), "I order a drink."); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := store.Snapshot()
	if len(s.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(s.History))
	}
	// The closing question is stripped before the pair enters history.
	want := session.Interaction{
		PlayerInput: "I enter the tavern.",
		ModelOutput: "The tavern is loud. ",
	}
	if s.History[0] != want {
		t.Errorf("history[0] = %+v, want %+v", s.History[0], want)
	}
	req := tp.lastRequest()
	if req.PrevInteraction == nil || req.PrevInteraction.ModelOutput != "The tavern is loud. " {
		t.Errorf("prev interaction not sent stripped: %+v", req.PrevInteraction)
	}
}

// Property: after N successful submits with non-empty content the most recent
// turn is always pending, never in history.
func TestContextPairingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newActiveStore()
		tp := newFakeTransport()
		eng := engine.New(store, tp)

		n := rapid.IntRange(1, 8).Draw(t, "turns")
		inputs := make([]string, n)
		outputs := make([]string, n)
		for i := 0; i < n; i++ {
			inputs[i] = rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "input")
			outputs[i] = rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "output")
			tp.stream = &fakeStream{frags: []string{outputs[i]}}
			if err := eng.Submit(context.Background(), inputs[i]); err != nil {
				t.Fatalf("Submit %d: %v", i, err)
			}
		}

		s := store.Snapshot()
		if len(s.History) != n-1 {
			t.Fatalf("history length = %d, want %d", len(s.History), n-1)
		}
		for i, it := range s.History {
			if it.PlayerInput != inputs[i] || it.ModelOutput != outputs[i] {
				t.Fatalf("history[%d] = %+v, want {%q %q}", i, it, inputs[i], outputs[i])
			}
		}
		if s.PendingPlayerInput != inputs[n-1] || s.PendingModelOutput != outputs[n-1] {
			t.Fatalf("pending = {%q %q}, want {%q %q}",
				s.PendingPlayerInput, s.PendingModelOutput, inputs[n-1], outputs[n-1])
		}
	})
}

// Property: the committed output equals trim of the fragment concatenation,
// in arrival order.
func TestConcatenationCorrectness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newActiveStore()
		tp := newFakeTransport()
		frags := rapid.SliceOfN(rapid.StringN(0, 20, -1), 0, 12).Draw(t, "frags")
		tp.stream = &fakeStream{frags: append([]string(nil), frags...)}
		eng := engine.New(store, tp)

		if err := eng.Submit(context.Background(), "go"); err != nil {
			t.Fatalf("Submit: %v", err)
		}

		want := strings.TrimSpace(strings.Join(frags, ""))
		if got := store.Snapshot().PendingModelOutput; got != want {
			t.Fatalf("committed output = %q, want %q", got, want)
		}
	})
}

// Property: a failure before any fragment restores the session exactly —
// history, pending fields, and draft.
func TestRollbackAtomicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newActiveStore()
		store.SetPendingPlayerInput(rapid.StringMatching(`[a-z ]{1,20}`).Draw(t, "pin"))
		store.SetPendingModelOutput(rapid.StringMatching(`[a-z ]{1,20}`).Draw(t, "pout"))
		store.SetDraftInput(rapid.StringMatching(`[a-z ]{0,20}`).Draw(t, "draft"))
		for i := 0; i < rapid.IntRange(0, 4).Draw(t, "histlen"); i++ {
			store.AppendHistory(session.Interaction{PlayerInput: "p", ModelOutput: "m"})
		}
		before := store.Snapshot()

		tp := newFakeTransport()
		tp.err = &api.TransportError{Status: 500, Body: "boom", Phase: api.PhaseRequest}
		eng := engine.New(store, tp)

		err := eng.Submit(context.Background(), "onward")
		if err == nil {
			t.Fatal("expected an error from Submit")
		}

		after := store.Snapshot()
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("session not restored:\nbefore %+v\nafter  %+v", before, after)
		}
	})
}

func TestSubmitMissionGating(t *testing.T) {
	store := session.NewStore(nil) // inert
	tp := newFakeTransport()
	eng := engine.New(store, tp)

	if err := eng.Submit(context.Background(), "hello"); !errors.Is(err, engine.ErrNoMission) {
		t.Fatalf("Submit error = %v, want ErrNoMission", err)
	}
	if err := eng.Regenerate(context.Background()); !errors.Is(err, engine.ErrNoMission) {
		t.Fatalf("Regenerate error = %v, want ErrNoMission", err)
	}
	if tp.requestCount() != 0 {
		t.Errorf("network calls made: %d, want 0", tp.requestCount())
	}
	if store.Snapshot().Active() {
		t.Error("session mutated by rejected calls")
	}
}

func TestSubmitEmptyInput(t *testing.T) {
	store := newActiveStore()
	tp := newFakeTransport()
	eng := engine.New(store, tp)

	if err := eng.Submit(context.Background(), "   "); !errors.Is(err, engine.ErrEmptyInput) {
		t.Fatalf("Submit error = %v, want ErrEmptyInput", err)
	}
	if tp.requestCount() != 0 {
		t.Errorf("network calls made: %d, want 0", tp.requestCount())
	}
}

func TestConcurrentSubmitRejected(t *testing.T) {
	store := newActiveStore()
	tp := newFakeTransport()
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	tp.stream = &fakeStream{
		frags: []string{"slow"},
		onRecv: func(n int) {
			once.Do(func() { close(started) })
			if n > 1 {
				<-release
			}
		},
	}
	eng := engine.New(store, tp)

	done := make(chan error, 1)
	go func() { done <- eng.Submit(context.Background(), "first") }()
	<-started

	if err := eng.Submit(context.Background(), "second"); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("second Submit error = %v, want ErrBusy", err)
	}
	if err := eng.EditDraft("nope"); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("EditDraft error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if tp.requestCount() != 1 {
		t.Errorf("network calls made: %d, want 1", tp.requestCount())
	}
}

func TestStopIdleIsNoOp(t *testing.T) {
	store := newActiveStore()
	before := store.Snapshot()
	tp := newFakeTransport()
	eng := engine.New(store, tp)

	eng.Stop()
	eng.Stop()

	if !reflect.DeepEqual(before, store.Snapshot()) {
		t.Error("Stop while idle mutated the session")
	}
	select {
	case id := <-tp.cancels:
		t.Errorf("Stop while idle sent a cancel for mission %d", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopCommitsPartialOutput(t *testing.T) {
	store := newActiveStore()
	tp := newFakeTransport()
	eng := engine.New(store, tp)
	tp.stream = &fakeStream{
		frags: []string{"You sneak ", "past the guard. ", "never delivered"},
		onRecv: func(n int) {
			if n == 2 {
				// Stop lands while the second fragment is being received:
				// it is still appended, but nothing after it may be.
				eng.Stop()
				eng.Stop() // idempotent
			}
		},
	}

	if err := eng.Submit(context.Background(), "I sneak in."); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := store.Snapshot()
	if s.PendingModelOutput != "You sneak past the guard." {
		t.Errorf("pending output = %q, want partial up to the stop", s.PendingModelOutput)
	}

	select {
	case id := <-tp.cancels:
		if id != 42 {
			t.Errorf("cancel sent for mission %d, want 42", id)
		}
	case <-time.After(time.Second):
		t.Error("no server-side cancel was sent")
	}
	select {
	case <-tp.cancels:
		t.Error("cancel sent more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMidStreamErrorCommitsPartial(t *testing.T) {
	store := newActiveStore()
	tp := newFakeTransport()
	wireErr := &api.TransportError{Phase: api.PhaseMidStream, Err: io.ErrUnexpectedEOF}
	tp.stream = &fakeStream{frags: []string{"The bridge ", "collapses"}, finalErr: wireErr}
	eng := engine.New(store, tp)

	err := eng.Submit(context.Background(), "I cross the bridge.")
	if err == nil {
		t.Fatal("expected the mid-stream error to surface")
	}
	var terr *api.TransportError
	if !errors.As(err, &terr) || terr.Phase != api.PhaseMidStream {
		t.Fatalf("error = %v, want mid-stream TransportError", err)
	}
	// Partial output is committed, not rolled back.
	if got := store.Snapshot().PendingModelOutput; got != "The bridge collapses" {
		t.Errorf("pending output = %q, want the partial text", got)
	}
	if got := store.Snapshot().PendingPlayerInput; got != "I cross the bridge." {
		t.Errorf("pending input = %q, want the submitted text", got)
	}
}

func TestUndecodableStreamRollsBack(t *testing.T) {
	store := newActiveStore()
	store.SetPendingPlayerInput("before")
	store.SetPendingModelOutput("kept output")
	before := store.Snapshot()

	tp := newFakeTransport()
	tp.stream = &fakeStream{finalErr: &api.DecodeError{Malformed: 3}}
	eng := engine.New(store, tp)

	err := eng.Submit(context.Background(), "go")
	var derr *api.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("error = %v, want DecodeError", err)
	}
	if !reflect.DeepEqual(before, store.Snapshot()) {
		t.Error("session not restored after undecodable stream")
	}
}

func TestRegenerate(t *testing.T) {
	store := newActiveStore()
	store.SetPendingPlayerInput("I pick the lock.")
	store.SetPendingModelOutput("The lock resists. What would you like to try?")
	tp := newFakeTransport()
	tp.stream = &fakeStream{frags: []string{"The lock clicks open."}}
	eng := engine.New(store, tp)

	if err := eng.Regenerate(context.Background()); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	s := store.Snapshot()
	if s.PendingModelOutput != "The lock clicks open." {
		t.Errorf("pending output = %q", s.PendingModelOutput)
	}
	if len(s.History) != 0 {
		t.Errorf("regenerate must not touch history, got %d entries", len(s.History))
	}
	req := tp.lastRequest()
	if req.Prompt != "" {
		t.Errorf("regenerate sent a prompt: %q", req.Prompt)
	}
	// Context carries the previous pair unstripped.
	if req.PrevInteraction == nil ||
		req.PrevInteraction.UserInput != "I pick the lock." ||
		req.PrevInteraction.ModelOutput != "The lock resists. What would you like to try?" {
		t.Errorf("unexpected prev interaction: %+v", req.PrevInteraction)
	}
}

func TestRegenerateWithoutPendingInput(t *testing.T) {
	store := newActiveStore()
	tp := newFakeTransport()
	eng := engine.New(store, tp)

	if err := eng.Regenerate(context.Background()); !errors.Is(err, engine.ErrNothingToRedo) {
		t.Fatalf("Regenerate error = %v, want ErrNothingToRedo", err)
	}
}

func TestRegenerateFailureKeepsPreviousOutput(t *testing.T) {
	store := newActiveStore()
	store.SetPendingPlayerInput("I pick the lock.")
	store.SetPendingModelOutput("The lock resists.")
	tp := newFakeTransport()
	tp.err = &api.TransportError{Status: 502, Phase: api.PhaseRequest}
	eng := engine.New(store, tp)

	if err := eng.Regenerate(context.Background()); err == nil {
		t.Fatal("expected an error from Regenerate")
	}
	if got := store.Snapshot().PendingModelOutput; got != "The lock resists." {
		t.Errorf("pending output = %q, want the previous output restored", got)
	}
}

func TestEditsWhileIdle(t *testing.T) {
	store := newActiveStore()
	eng := engine.New(store, newFakeTransport())

	if err := eng.EditPendingPlayerInput("a"); err != nil {
		t.Fatalf("EditPendingPlayerInput: %v", err)
	}
	if err := eng.EditPendingModelOutput("b"); err != nil {
		t.Fatalf("EditPendingModelOutput: %v", err)
	}
	if err := eng.EditDraft("c"); err != nil {
		t.Fatalf("EditDraft: %v", err)
	}
	s := store.Snapshot()
	if s.PendingPlayerInput != "a" || s.PendingModelOutput != "b" || s.DraftInput != "c" {
		t.Errorf("edits not applied: %+v", s)
	}
}
