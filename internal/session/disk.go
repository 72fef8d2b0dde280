package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const stateFile = "state.json"

// diskPersister is the concrete Persister that writes to the XDG data
// directory.
type diskPersister struct {
	path string // full path to state.json
	log  *slog.Logger
}

// NewDiskPersister returns a Persister backed by the XDG data directory.
// Path: $XDG_DATA_HOME/gamemaister/state.json or
// ~/.local/share/gamemaister/state.json
func NewDiskPersister() (Persister, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskPersister{path: filepath.Join(dir, stateFile), log: slog.Default()}, nil
}

// StatePath returns the location of the durable session file, for watchers.
func StatePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, stateFile), nil
}

// dataDir returns the gamemaister-specific XDG data directory.
func dataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "gamemaister"), nil
}

// Save marshals s to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskPersister) Save(s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}

	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	return nil
}

// Load reads and unmarshals the state file. Absent or corrupt files are not
// errors: the session falls back to the empty default.
func (d *diskPersister) Load() (Session, bool, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("failed to read session state: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		d.log.Warn("discarding corrupt session state", "path", d.path, "err", err)
		return Session{}, false, nil
	}
	return s, true, nil
}

// Delete removes the state file from disk.
func (d *diskPersister) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}
