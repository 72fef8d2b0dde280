// Package api is the HTTP client for the gamemaster backend: mission CRUD
// plus the streamed turn endpoint. It knows nothing about session state or
// game semantics; callers accumulate fragments themselves.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// MissionSummary identifies a mission on the backend.
type MissionSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// MissionInteraction is one completed turn as returned by LoadMission.
type MissionInteraction struct {
	PlayerInput string `json:"playerInput"`
	ModelOutput string `json:"modelOutput"`
}

// MissionLoad is the full mission payload returned by LoadMission.
type MissionLoad struct {
	Mission      MissionSummary       `json:"mission"`
	Interactions []MissionInteraction `json:"interactions"`
}

// CreateMissionParams are the options for a new mission.
type CreateMissionParams struct {
	MissionType string `json:"missionType,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Client talks to the gamemaster backend over HTTP.
type Client struct {
	base     string
	clientID string
	http     *http.Client
	log      *slog.Logger
}

// NewClient returns a Client for the backend at baseURL. clientID is sent as
// X-Client-ID on every request so the backend can correlate a session across
// reloads.
func NewClient(baseURL, clientID string) *Client {
	return &Client{
		base:     strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		http:     &http.Client{}, // no client-wide timeout: turn streams are long-lived
		log:      slog.Default(),
	}
}

// CreateMission asks the backend for a fresh mission.
func (c *Client) CreateMission(ctx context.Context, params CreateMissionParams) (MissionSummary, error) {
	var out MissionSummary
	if err := c.doJSON(ctx, http.MethodPost, "/api/missions", params, &out); err != nil {
		return MissionSummary{}, fmt.Errorf("creating mission: %w", err)
	}
	return out, nil
}

// SaveMission stores the mission under an optional custom name.
func (c *Client) SaveMission(ctx context.Context, id int64, customName string) error {
	body := struct {
		Name string `json:"name,omitempty"`
	}{Name: customName}
	path := fmt.Sprintf("/api/missions/%d/save", id)
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("saving mission %d: %w", id, err)
	}
	return nil
}

// ListMissions returns all missions known to the backend.
func (c *Client) ListMissions(ctx context.Context) ([]MissionSummary, error) {
	var out []MissionSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/missions", nil, &out); err != nil {
		return nil, fmt.Errorf("listing missions: %w", err)
	}
	return out, nil
}

// GetMission fetches a single mission summary.
// Returns ErrMissionNotFound if the backend reports 404.
func (c *Client) GetMission(ctx context.Context, id int64) (MissionSummary, error) {
	var out MissionSummary
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/missions/%d", id), nil, &out)
	if err != nil {
		var terr *TransportError
		if errors.As(err, &terr) && terr.Status == http.StatusNotFound {
			return MissionSummary{}, ErrMissionNotFound
		}
		return MissionSummary{}, fmt.Errorf("fetching mission %d: %w", id, err)
	}
	return out, nil
}

// LoadMission fetches the mission plus its full interaction history.
func (c *Client) LoadMission(ctx context.Context, id int64) (MissionLoad, error) {
	var out MissionLoad
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/missions/%d/load", id), nil, &out); err != nil {
		return MissionLoad{}, fmt.Errorf("loading mission %d: %w", id, err)
	}
	return out, nil
}

// CancelTurn asks the backend to stop generating the current turn. It is
// fire-and-forget: the response is discarded and failures are only logged.
// Stopping the local read loop is the caller's job.
func (c *Client) CancelTurn(missionID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/api/missions/%d/cancel", missionID), nil)
	if err != nil {
		c.log.Warn("cancel request could not be built", "mission", missionID, "err", err)
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("cancel request failed", "mission", missionID, "err", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// newRequest builds a request with the standard headers set.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Client-ID", c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON performs a JSON request/response round trip. A nil out discards the
// response body. Non-2xx statuses become a *TransportError.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Phase: PhaseRequest, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
			Phase:  PhaseRequest,
		}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
