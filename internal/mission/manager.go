// Package mission wraps the turn engine with mission-level lifecycle
// operations: new, save, list, load, and the one-time startup validation of a
// recovered mission. Lifecycle operations must not run while a turn is in
// flight; callers stop the engine first.
package mission

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/stdkoehler/gamemaister-cli/internal/api"
	"github.com/stdkoehler/gamemaister-cli/internal/session"
)

// Service is the backend mission API consumed by the Manager.
type Service interface {
	CreateMission(ctx context.Context, params api.CreateMissionParams) (api.MissionSummary, error)
	SaveMission(ctx context.Context, id int64, customName string) error
	ListMissions(ctx context.Context) ([]api.MissionSummary, error)
	LoadMission(ctx context.Context, id int64) (api.MissionLoad, error)
	GetMission(ctx context.Context, id int64) (api.MissionSummary, error)
}

// Manager governs mission lifecycle state. Service errors propagate to the
// caller unwrapped; there are no automatic retries.
type Manager struct {
	store *session.Store
	svc   Service
	log   *slog.Logger

	validateOnce sync.Once
}

// NewManager returns a Manager mutating store via svc.
func NewManager(store *session.Store, svc Service) *Manager {
	return &Manager{store: store, svc: svc, log: slog.Default()}
}

// New clears the session and requests a fresh mission. The clear-then-fetch
// ordering means a create failure leaves an empty inert session; that is the
// intended behavior, not a leak of partial state.
func (m *Manager) New(ctx context.Context, params api.CreateMissionParams) (api.MissionSummary, error) {
	m.store.Clear()
	sum, err := m.svc.CreateMission(ctx, params)
	if err != nil {
		return api.MissionSummary{}, err
	}
	m.store.LoadFrom(sum.ID, sum.Title, nil, "", "")
	return sum, nil
}

// Save stores the active mission under an optional custom name. A no-op when
// no mission is active.
func (m *Manager) Save(ctx context.Context, customName string) error {
	s := m.store.Snapshot()
	if !s.Active() {
		return nil
	}
	return m.svc.SaveMission(ctx, *s.MissionID, customName)
}

// List returns all missions known to the backend. No local state changes.
func (m *Manager) List(ctx context.Context) ([]api.MissionSummary, error) {
	return m.svc.ListMissions(ctx)
}

// Load replaces the session with the given mission. The most recent
// interaction becomes the editable pending turn; everything before it becomes
// history.
func (m *Manager) Load(ctx context.Context, id int64) error {
	m.store.Clear()
	ml, err := m.svc.LoadMission(ctx, id)
	if err != nil {
		return err
	}
	history, pendingIn, pendingOut := splitInteractions(ml.Interactions)
	m.store.LoadFrom(ml.Mission.ID, ml.Mission.Title, history, pendingIn, pendingOut)
	return nil
}

// ValidateOnStartup checks once per process that a mission recovered from
// durable storage still exists server-side, clearing the session when it does
// not. Subsequent calls are no-ops.
func (m *Manager) ValidateOnStartup(ctx context.Context) error {
	var err error
	m.validateOnce.Do(func() {
		s := m.store.Snapshot()
		if !s.Active() {
			return
		}
		_, gerr := m.svc.GetMission(ctx, *s.MissionID)
		if errors.Is(gerr, api.ErrMissionNotFound) {
			m.log.Info("stored mission no longer exists, clearing session", "mission", *s.MissionID)
			m.store.Clear()
			return
		}
		err = gerr
	})
	return err
}

// splitInteractions peels off the last interaction as the pending turn.
func splitInteractions(in []api.MissionInteraction) (history []session.Interaction, pendingIn, pendingOut string) {
	if len(in) == 0 {
		return nil, "", ""
	}
	last := in[len(in)-1]
	for _, it := range in[:len(in)-1] {
		history = append(history, session.Interaction{
			PlayerInput: it.PlayerInput,
			ModelOutput: it.ModelOutput,
		})
	}
	return history, last.PlayerInput, last.ModelOutput
}
