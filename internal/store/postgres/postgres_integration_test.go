//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"oidcd/internal/store/postgres"
	"oidcd/pkg/platform/sentinel"
	"oidcd/pkg/testutil/containers"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS user_groups (
		id SERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		group_name TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS client_redirects (
		id SERIAL PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		redirect_url TEXT NOT NULL
	);
`

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	_, err := s.postgres.DB.ExecContext(context.Background(), schema)
	s.Require().NoError(err)
	s.store = postgres.NewWithDB(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"client_redirects", "user_groups", "clients", "users")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedUser(id, email, digest string, groups ...string) {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password) VALUES ($1, $2, $3)`, id, email, digest)
	s.Require().NoError(err)
	for _, group := range groups {
		_, err := s.postgres.DB.ExecContext(ctx,
			`INSERT INTO user_groups (user_id, group_name) VALUES ($1, $2)`, id, group)
		s.Require().NoError(err)
	}
}

func (s *PostgresStoreSuite) seedClient(id, name string, redirects ...string) {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO clients (id, name) VALUES ($1, $2)`, id, name)
	s.Require().NoError(err)
	for _, redirect := range redirects {
		_, err := s.postgres.DB.ExecContext(ctx,
			`INSERT INTO client_redirects (client_id, redirect_url) VALUES ($1, $2)`, id, redirect)
		s.Require().NoError(err)
	}
}

func (s *PostgresStoreSuite) TestGetUser() {
	ctx := context.Background()
	s.seedUser("123", "user@example.com", "digest-1", "user", "admin")

	s.Run("matching credential returns user with groups", func() {
		user, err := s.store.GetUser(ctx, "user@example.com", "digest-1")
		s.Require().NoError(err)
		s.Equal("123", user.ID)
		s.Equal([]string{"user", "admin"}, user.Groups)
	})

	s.Run("wrong digest is not found", func() {
		_, err := s.store.GetUser(ctx, "user@example.com", "wrong")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown email is not found", func() {
		_, err := s.store.GetUser(ctx, "nobody@example.com", "digest-1")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("user without groups has empty group list", func() {
		s.seedUser("456", "plain@example.com", "digest-2")
		user, err := s.store.GetUser(ctx, "plain@example.com", "digest-2")
		s.Require().NoError(err)
		s.Empty(user.Groups)
	})
}

func (s *PostgresStoreSuite) TestGetClient() {
	ctx := context.Background()
	s.seedClient("111", "foobar", "https://example.com/cb", "http://localhost/cb")

	s.Run("lookup by id", func() {
		client, err := s.store.GetClient(ctx, "111")
		s.Require().NoError(err)
		s.Equal("foobar", client.Name)
		s.Equal([]string{"https://example.com/cb", "http://localhost/cb"}, client.RedirectURLs)
	})

	s.Run("lookup by name", func() {
		client, err := s.store.GetClient(ctx, "foobar")
		s.Require().NoError(err)
		s.Equal("111", client.ID)
	})

	s.Run("unknown client is not found", func() {
		_, err := s.store.GetClient(ctx, "222")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
