package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TurnRequest is the payload for the streamed turn endpoint.
type TurnRequest struct {
	MissionID       int64            `json:"missionId"`
	Prompt          string           `json:"prompt,omitempty"`
	PrevInteraction *PrevInteraction `json:"prevInteraction,omitempty"`
}

// PrevInteraction carries the previous turn as model context.
// The wire format uses "userInput", unlike the history payloads.
type PrevInteraction struct {
	UserInput   string `json:"userInput"`
	ModelOutput string `json:"modelOutput"`
}

// turnFrame is one newline-delimited JSON object on the turn stream.
type turnFrame struct {
	Text string `json:"text"`
}

// TurnStream is a lazy, finite, non-restartable sequence of text fragments.
// It is not safe for concurrent use.
type TurnStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	fragments int // successfully decoded frames so far
	malformed int // skipped undecodable lines so far
	client    *Client
}

// StreamTurn opens a turn stream. A non-2xx status fails with a
// *TransportError before any fragment is yielded; the caller then owns
// nothing. On success the caller must drain or Close the returned stream.
func (c *Client) StreamTurn(ctx context.Context, tr TurnRequest) (*TurnStream, error) {
	data, err := json.Marshal(tr)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/missions/%d/turn", tr.MissionID)
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Phase: PhaseRequest, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &TransportError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
			Phase:  PhaseRequest,
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	// Model fragments are short, but nothing stops the backend from sending a
	// whole paragraph in one frame.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TurnStream{body: resp.Body, scanner: scanner, client: c}, nil
}

// Recv returns the next text fragment in wire order. It returns io.EOF when
// the stream is exhausted. Malformed lines are logged and skipped; a single
// corrupt line never aborts the stream. If the stream ends without one
// decodable fragment but with at least one malformed line, Recv returns a
// *DecodeError instead of io.EOF.
func (s *TurnStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame turnFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			s.malformed++
			s.client.log.Warn("skipping malformed stream line", "err", err)
			continue
		}
		s.fragments++
		return frame.Text, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", &TransportError{Phase: PhaseMidStream, Err: err}
	}
	if s.fragments == 0 && s.malformed > 0 {
		return "", &DecodeError{Malformed: s.malformed}
	}
	return "", io.EOF
}

// Fragments reports how many fragments have been decoded so far.
func (s *TurnStream) Fragments() int { return s.fragments }

// Close releases the underlying response body. Safe to call more than once.
func (s *TurnStream) Close() error {
	return s.body.Close()
}
