// Package postgres implements the credential store over a relational schema:
// users, clients, user_groups, client_redirects. The schema is administered
// by external tooling; this process only ever reads it.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"oidcd/internal/store"
	"oidcd/pkg/platform/sentinel"
)

// Store is the production credential store.
type Store struct {
	db *sql.DB
}

// Open connects to the database and verifies connectivity. Failures here are
// startup-fatal for the caller.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool; used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const getUserQuery = `
	SELECT u.id, u.email, g.group_name
	FROM users u
	LEFT JOIN user_groups g ON g.user_id = u.id
	WHERE u.email = $1 AND u.password = $2
	ORDER BY g.id
`

func (s *Store) GetUser(ctx context.Context, email, passwordDigest string) (*store.User, error) {
	rows, err := s.db.QueryContext(ctx, getUserQuery, email, passwordDigest)
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	defer rows.Close()

	var user *store.User
	for rows.Next() {
		var (
			id    string
			em    string
			group sql.NullString
		)
		if err := rows.Scan(&id, &em, &group); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		if user == nil {
			user = &store.User{ID: id, Email: em}
		}
		if group.Valid {
			user.Groups = append(user.Groups, group.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return user, nil
}

const getClientQuery = `
	SELECT c.id, c.name, r.redirect_url
	FROM clients c
	LEFT JOIN client_redirects r ON r.client_id = c.id
	WHERE c.id = $1 OR c.name = $1
	ORDER BY r.id
`

func (s *Store) GetClient(ctx context.Context, clientID string) (*store.Client, error) {
	rows, err := s.db.QueryContext(ctx, getClientQuery, clientID)
	if err != nil {
		return nil, fmt.Errorf("query client: %w", err)
	}
	defer rows.Close()

	var client *store.Client
	for rows.Next() {
		var (
			id       string
			name     string
			redirect sql.NullString
		)
		if err := rows.Scan(&id, &name, &redirect); err != nil {
			return nil, fmt.Errorf("scan client row: %w", err)
		}
		if client == nil {
			client = &store.Client{ID: id, Name: name}
		}
		if redirect.Valid {
			client.RedirectURLs = append(client.RedirectURLs, redirect.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client rows: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("client not found: %w", sentinel.ErrNotFound)
	}
	return client, nil
}
