// Package session owns the process-wide session token pair: load at startup,
// read before every request, replace wholesale on refresh, clear on refresh
// failure. Exactly one valid pair exists at a time.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tokens is the persisted session token pair. Absence means logged out.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RefreshFunc exchanges a refresh token for a new pair. The API client
// supplies the HTTP call; the manager decides when it runs.
type RefreshFunc func(ctx context.Context, refresh string) (Tokens, error)

// DefaultPath returns the default session file location under the user home.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".delivery-intake", "session.json"), nil
}

// Manager guards the token pair and coalesces concurrent refreshes: when a
// refresh is in flight, later callers wait for its outcome instead of issuing
// a second refresh. One refresh per token generation.
type Manager struct {
	path string

	mu       sync.Mutex
	tokens   *Tokens
	inflight chan struct{} // closed when the in-flight refresh finishes
	lastErr  error
}

// NewManager creates a manager persisting to path. Pass "" for the default
// location. The file is not read until Load.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return &Manager{path: path}, nil
}

// Load reads the token pair from disk. A missing file is not an error: it
// leaves the manager logged out.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		log.Debug().Str("path", m.path).Msg("No session file, starting logged out")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}

	var t Tokens
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("parse session file: %w", err)
	}

	m.mu.Lock()
	m.tokens = &t
	m.mu.Unlock()
	log.Debug().Str("path", m.path).Msg("Session tokens loaded")
	return nil
}

// Set replaces the stored pair and persists it.
func (m *Manager) Set(t Tokens) error {
	m.mu.Lock()
	m.tokens = &t
	m.mu.Unlock()
	return m.save(&t)
}

// Clear drops the pair in memory and on disk, forcing re-login.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.tokens = nil
	m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", m.path).Msg("Failed to remove session file")
	}
	log.Info().Msg("Session tokens cleared")
}

// Current returns a copy of the pair and whether one exists.
func (m *Manager) Current() (Tokens, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		return Tokens{}, false
	}
	return *m.tokens, true
}

// Refresh runs fn with the current refresh token, replacing the pair on
// success and clearing it on failure. Concurrent callers share one in-flight
// exchange: whoever arrives while fn runs waits and reuses its outcome.
func (m *Manager) Refresh(ctx context.Context, fn RefreshFunc) (Tokens, error) {
	m.mu.Lock()
	if ch := m.inflight; ch != nil {
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return Tokens{}, ctx.Err()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.lastErr != nil {
			return Tokens{}, m.lastErr
		}
		if m.tokens == nil {
			return Tokens{}, fmt.Errorf("session cleared during refresh")
		}
		return *m.tokens, nil
	}

	if m.tokens == nil || m.tokens.Refresh == "" {
		m.mu.Unlock()
		return Tokens{}, fmt.Errorf("no refresh token")
	}
	refresh := m.tokens.Refresh
	ch := make(chan struct{})
	m.inflight = ch
	m.mu.Unlock()

	fresh, err := fn(ctx, refresh)

	m.mu.Lock()
	m.lastErr = err
	if err != nil {
		m.tokens = nil
	} else {
		t := fresh
		m.tokens = &t
	}
	m.inflight = nil
	close(ch)
	m.mu.Unlock()

	if err != nil {
		if rmErr := os.Remove(m.path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", m.path).Msg("Failed to remove session file")
		}
		log.Warn().Err(err).Msg("Token refresh failed, session cleared")
		return Tokens{}, err
	}

	if err := m.save(&fresh); err != nil {
		// The in-memory pair is authoritative for this session.
		log.Warn().Err(err).Msg("Failed to persist refreshed tokens")
	}
	log.Debug().Msg("Session tokens refreshed")
	return fresh, nil
}

// save writes the pair to the session file, creating the directory if needed.
func (m *Manager) save(t *Tokens) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
