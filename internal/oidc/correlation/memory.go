package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"oidcd/internal/oidc"
	"oidcd/internal/oidc/token"
	"oidcd/pkg/platform/sentinel"
)

// Clock is injected for testability (no hidden time.Now() calls).
type Clock func() time.Time

type sessionEntry struct {
	state     string
	expiresAt time.Time
}

type codeEntry struct {
	claims    *token.Claims
	expiresAt time.Time
}

// InMemoryTracker keeps sessions and codes in two independently locked maps.
// Lock scope is limited to map access; no I/O happens under either lock.
// Expired entries are evicted lazily when touched.
type InMemoryTracker struct {
	sessionMu sync.RWMutex
	sessions  map[string]sessionEntry

	codeMu sync.RWMutex
	codes  map[string]codeEntry

	sessionTTL time.Duration
	codeTTL    time.Duration
	clock      Clock
}

// Option configures an InMemoryTracker.
type Option func(*InMemoryTracker)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(t *InMemoryTracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithTTLs overrides the session and code lifetimes.
func WithTTLs(sessionTTL, codeTTL time.Duration) Option {
	return func(t *InMemoryTracker) {
		t.sessionTTL = sessionTTL
		t.codeTTL = codeTTL
	}
}

// NewInMemory constructs an empty tracker.
func NewInMemory(opts ...Option) *InMemoryTracker {
	t := &InMemoryTracker{
		sessions:   make(map[string]sessionEntry),
		codes:      make(map[string]codeEntry),
		sessionTTL: DefaultSessionTTL,
		codeTTL:    DefaultCodeTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *InMemoryTracker) BeginSession(_ context.Context, state string) (string, error) {
	sessionID, err := oidc.NewCorrelationToken()
	if err != nil {
		return "", err
	}
	entry := sessionEntry{state: state, expiresAt: t.clock().Add(t.sessionTTL)}
	t.sessionMu.Lock()
	t.sessions[sessionID] = entry
	t.sessionMu.Unlock()
	return sessionID, nil
}

func (t *InMemoryTracker) LookupSession(_ context.Context, sessionID string) (string, error) {
	t.sessionMu.RLock()
	entry, ok := t.sessions[sessionID]
	t.sessionMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if t.clock().After(entry.expiresAt) {
		t.sessionMu.Lock()
		delete(t.sessions, sessionID)
		t.sessionMu.Unlock()
		return "", fmt.Errorf("session expired: %w", sentinel.ErrExpired)
	}
	return entry.state, nil
}

func (t *InMemoryTracker) IssueCode(_ context.Context, claims *token.Claims) (string, error) {
	code, err := oidc.NewCorrelationToken()
	if err != nil {
		return "", err
	}
	entry := codeEntry{claims: claims, expiresAt: t.clock().Add(t.codeTTL)}
	t.codeMu.Lock()
	t.codes[code] = entry
	t.codeMu.Unlock()
	return code, nil
}

// RedeemCode removes the entry under the write lock so a code can only ever
// be redeemed once.
func (t *InMemoryTracker) RedeemCode(_ context.Context, code string) (*token.Claims, error) {
	t.codeMu.Lock()
	entry, ok := t.codes[code]
	if ok {
		delete(t.codes, code)
	}
	t.codeMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("code not found: %w", sentinel.ErrNotFound)
	}
	if t.clock().After(entry.expiresAt) {
		return nil, fmt.Errorf("code expired: %w", sentinel.ErrExpired)
	}
	return entry.claims, nil
}
