// Package session controls the lifetime of client-side state: starting a new
// anonymous session is rate limited by a persisted timestamp.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/confession-feed/internal/kv"
)

// CooldownKey is the only key the engine persists.
const CooldownKey = "session.last_started"

// ErrCooldown is returned by StartNew inside the cooldown window.
var ErrCooldown = errors.New("session: new session cooldown active")

// Resetter drops client-side state, e.g. caches and pagination scopes.
type Resetter interface {
	Reset()
}

// Manager is safe for concurrent use if its store is.
type Manager struct {
	store    kv.Store
	cooldown time.Duration
	now      func() time.Time
	targets  []Resetter
}

// NewManager creates a manager resetting targets on session changes.
func NewManager(store kv.Store, cooldown time.Duration, targets ...Resetter) *Manager {
	return &Manager{store: store, cooldown: cooldown, now: time.Now, targets: targets}
}

// Remaining returns how long until a new session may start.
func (m *Manager) Remaining(ctx context.Context) (time.Duration, error) {
	raw, err := m.store.Get(ctx, CooldownKey)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// Unreadable timestamp: treat as no cooldown.
		return 0, nil
	}
	left := last.Add(m.cooldown).Sub(m.now())
	if left < 0 {
		return 0, nil
	}
	return left, nil
}

// StartNew resets client state and records the start time. It fails with
// ErrCooldown while the previous start is too recent.
func (m *Manager) StartNew(ctx context.Context) error {
	left, err := m.Remaining(ctx)
	if err != nil {
		return err
	}
	if left > 0 {
		return fmt.Errorf("%w: %s left", ErrCooldown, left.Round(time.Second))
	}
	m.resetTargets()
	return m.store.Set(ctx, CooldownKey, m.now().UTC().Format(time.RFC3339Nano))
}

// Reset clears all client state including the persisted timestamp.
func (m *Manager) Reset(ctx context.Context) error {
	m.resetTargets()
	return m.store.Remove(ctx, CooldownKey)
}

func (m *Manager) resetTargets() {
	for _, t := range m.targets {
		t.Reset()
	}
}
