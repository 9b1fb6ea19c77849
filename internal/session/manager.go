// Package session tracks the signed-in identity and ties in-flight requests
// to it. Switching or revoking the identity cancels every context handed out
// for the previous one, with auth.ErrIdentityChanged or auth.ErrIdentityRevoked
// as the cancellation cause.
package session

import (
	"context"
	"sync"

	"github.com/dukerupert/eventdesk/internal/auth"
)

type Manager struct {
	mu     sync.RWMutex
	epoch  uint64
	ident  auth.Identity
	active bool
	root   context.Context
	cancel context.CancelCauseFunc
}

func NewManager() *Manager {
	return &Manager{}
}

// Login installs id as the current identity. Any previous identity is
// treated as switched away from.
func (m *Manager) Login(id auth.Identity) auth.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endLocked(auth.ErrIdentityChanged)
	m.epoch++
	id.Epoch = m.epoch
	m.ident = id
	m.active = true
	m.root, m.cancel = context.WithCancelCause(context.Background())
	return id
}

// Switch is Login under a name that reads better at call sites replacing a
// live identity.
func (m *Manager) Switch(id auth.Identity) auth.Identity {
	return m.Login(id)
}

// Revoke drops the current identity and cancels its in-flight requests.
func (m *Manager) Revoke() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endLocked(auth.ErrIdentityRevoked)
}

func (m *Manager) endLocked(cause error) {
	if m.cancel != nil {
		m.cancel(cause)
	}
	m.cancel = nil
	m.root = nil
	m.active = false
	m.ident = auth.Identity{}
}

// Current returns the live identity, if any.
func (m *Manager) Current() (auth.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ident, m.active
}

// Valid reports whether id is still the live identity.
func (m *Manager) Valid(id auth.Identity) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active && m.epoch == id.Epoch
}

// Begin derives a request context from parent that carries the current
// identity and is cancelled when that identity stops being current. The
// returned CancelFunc must be called once the request is done.
func (m *Manager) Begin(parent context.Context) (context.Context, context.CancelFunc, error) {
	m.mu.RLock()
	root, ident, active := m.root, m.ident, m.active
	m.mu.RUnlock()

	if !active {
		return nil, nil, auth.ErrUnauthenticated
	}

	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(root, func() {
		cancel(context.Cause(root))
	})
	ctx = auth.WithIdentity(ctx, ident)

	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}, nil
}
