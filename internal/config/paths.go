package config

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultBaseDir = ".roombot"

// Paths holds resolved filesystem paths for roombot data.
type Paths struct {
	Base        string // ~/.roombot
	Config      string // ~/.roombot/config.yaml
	Credentials string // ~/.roombot/credentials
	Data        string // ~/.roombot/data
	Logs        string // ~/.roombot/logs
	Traces      string // ~/.roombot/logs/reasoning
}

// ResolvePaths computes all standard paths from the home directory.
// If ROOMBOT_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("ROOMBOT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	logs := filepath.Join(base, "logs")
	return Paths{
		Base:        base,
		Config:      filepath.Join(base, "config.yaml"),
		Credentials: filepath.Join(base, "credentials"),
		Data:        filepath.Join(base, "data"),
		Logs:        logs,
		Traces:      filepath.Join(logs, "reasoning"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Credentials, p.Data, p.Logs, p.Traces} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DatabasePath returns the sqlite file used when store.path is unset.
func (p Paths) DatabasePath(cfg *Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return filepath.Join(p.Data, "roombot.db")
}

// TraceDir returns the directory the audit trace writes into.
func (p Paths) TraceDir(cfg *Config) string {
	if cfg.Trace.Dir != "" {
		return cfg.Trace.Dir
	}
	return p.Traces
}

// CalendarTokenPath returns where the Google OAuth token is cached.
func (p Paths) CalendarTokenPath(cfg *Config) string {
	if cfg.Calendar.TokenFile != "" {
		return cfg.Calendar.TokenFile
	}
	return filepath.Join(p.Credentials, "calendar-token.json")
}

// ParseConfigPath splits a dot-separated config path into segments.
// Returns an error if any segment is empty.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
	}
	return parts, nil
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value in a nested map, creating intermediate maps as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		m, ok := current[key].(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}

// UnsetValueAtPath removes a value at the given path. Returns true if removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	current := root
	for _, key := range path[:len(path)-1] {
		m, ok := current[key].(map[string]any)
		if !ok {
			return false
		}
		current = m
	}
	last := path[len(path)-1]
	if _, ok := current[last]; !ok {
		return false
	}
	delete(current, last)
	return true
}
