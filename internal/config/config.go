package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds all configurable gamemaister settings.
type Config struct {
	BackendURL            string `json:"backend_url"`             // base URL of the gamemaster backend
	MissionType           string `json:"mission_type"`            // default scenario type for `mission new`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"` // 0 means no deadline on a turn
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		BackendURL:  "http://localhost:8000",
		MissionType: "shadowrun",
	}
}

// LoadGlobal reads ~/.config/gamemaister/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "gamemaister", "config.json")
	return loadFile(path, true)
}

// LoadProject reads .gamemaisterconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".gamemaisterconfig", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()

	// Apply global values over defaults.
	if global != nil {
		if global.BackendURL != "" {
			result.BackendURL = global.BackendURL
		}
		if global.MissionType != "" {
			result.MissionType = global.MissionType
		}
		if global.RequestTimeoutSeconds > 0 {
			result.RequestTimeoutSeconds = global.RequestTimeoutSeconds
		}
	}

	// Apply project values over global.
	if project != nil {
		if project.BackendURL != "" {
			result.BackendURL = project.BackendURL
		}
		if project.MissionType != "" {
			result.MissionType = project.MissionType
		}
		if project.RequestTimeoutSeconds > 0 {
			result.RequestTimeoutSeconds = project.RequestTimeoutSeconds
		}
	}

	return result
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
