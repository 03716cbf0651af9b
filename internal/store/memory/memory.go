// Package memory provides the in-memory credential store used by tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"oidcd/internal/store"
	"oidcd/pkg/platform/sentinel"
)

type userRecord struct {
	user   store.User
	digest string
}

// Store keeps users and clients in maps. It intentionally favors clarity
// over performance.
type Store struct {
	mu      sync.RWMutex
	users   map[string]userRecord
	clients map[string]store.Client
}

func New() *Store {
	return &Store{
		users:   make(map[string]userRecord),
		clients: make(map[string]store.Client),
	}
}

// SeedUser registers a user with the given password digest.
func (s *Store) SeedUser(user store.User, passwordDigest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Email] = userRecord{user: user, digest: passwordDigest}
}

// SeedClient registers a client.
func (s *Store) SeedClient(client store.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
}

func (s *Store) GetUser(_ context.Context, email, passwordDigest string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[email]
	if !ok || rec.digest != passwordDigest {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	user := rec.user
	return &user, nil
}

func (s *Store) GetClient(_ context.Context, clientID string) (*store.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client not found: %w", sentinel.ErrNotFound)
	}
	return &client, nil
}
