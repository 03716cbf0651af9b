//go:build integration

package correlation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"oidcd/internal/oidc/correlation"
	"oidcd/internal/oidc/token"
	"oidcd/pkg/platform/sentinel"
	"oidcd/pkg/testutil/containers"
)

type RedisTrackerSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	tracker *correlation.RedisTracker
}

func TestRedisTrackerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTrackerSuite))
}

func (s *RedisTrackerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.tracker = correlation.NewRedis(s.redis.Client)
}

func (s *RedisTrackerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisTrackerSuite) TestSessionRoundTrip() {
	ctx := context.Background()

	sessionID, err := s.tracker.BeginSession(ctx, "state-1")
	s.Require().NoError(err)

	state, err := s.tracker.LookupSession(ctx, sessionID)
	s.Require().NoError(err)
	s.Equal("state-1", state)

	_, err = s.tracker.LookupSession(ctx, "missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisTrackerSuite) TestCodeSingleUse() {
	ctx := context.Background()
	claims := token.Build("issuer", "user@example.com", []string{"foobar"}, 20*time.Minute, "nonce", time.Now())

	code, err := s.tracker.IssueCode(ctx, claims)
	s.Require().NoError(err)

	redeemed, err := s.tracker.RedeemCode(ctx, code)
	s.Require().NoError(err)
	s.Equal("user@example.com", redeemed.Subject)
	s.Equal("nonce", redeemed.Nonce)

	_, err = s.tracker.RedeemCode(ctx, code)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisTrackerSuite) TestNativeTTLExpiry() {
	ctx := context.Background()
	tracker := correlation.NewRedis(s.redis.Client,
		correlation.WithRedisTTLs(100*time.Millisecond, 100*time.Millisecond))

	sessionID, err := tracker.BeginSession(ctx, "state-1")
	s.Require().NoError(err)

	time.Sleep(200 * time.Millisecond)

	_, err = tracker.LookupSession(ctx, sessionID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
