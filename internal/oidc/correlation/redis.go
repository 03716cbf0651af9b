package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"oidcd/internal/oidc"
	"oidcd/internal/oidc/token"
	"oidcd/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "oidcd:session:"
	codeKeyPrefix    = "oidcd:code:"
)

// RedisTracker stores correlation state in Redis so multiple provider
// instances can share one login dance. Lifetimes ride on native key TTLs;
// an expired entry is indistinguishable from a missing one and reports
// sentinel.ErrNotFound.
type RedisTracker struct {
	client     *redis.Client
	sessionTTL time.Duration
	codeTTL    time.Duration
}

// RedisOption configures a RedisTracker.
type RedisOption func(*RedisTracker)

// WithRedisTTLs overrides the session and code lifetimes.
func WithRedisTTLs(sessionTTL, codeTTL time.Duration) RedisOption {
	return func(t *RedisTracker) {
		t.sessionTTL = sessionTTL
		t.codeTTL = codeTTL
	}
}

// NewRedis constructs a Redis-backed tracker.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisTracker {
	t := &RedisTracker{
		client:     client,
		sessionTTL: DefaultSessionTTL,
		codeTTL:    DefaultCodeTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *RedisTracker) BeginSession(ctx context.Context, state string) (string, error) {
	sessionID, err := oidc.NewCorrelationToken()
	if err != nil {
		return "", err
	}
	if err := t.client.Set(ctx, sessionKeyPrefix+sessionID, state, t.sessionTTL).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sessionID, nil
}

func (t *RedisTracker) LookupSession(ctx context.Context, sessionID string) (string, error) {
	state, err := t.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("load session: %w", err)
	}
	return state, nil
}

func (t *RedisTracker) IssueCode(ctx context.Context, claims *token.Claims) (string, error) {
	code, err := oidc.NewCorrelationToken()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode pending token: %w", err)
	}
	if err := t.client.Set(ctx, codeKeyPrefix+code, payload, t.codeTTL).Err(); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// RedeemCode atomically fetches and deletes the entry via GETDEL, so a code
// can only ever be redeemed once across all instances.
func (t *RedisTracker) RedeemCode(ctx context.Context, code string) (*token.Claims, error) {
	payload, err := t.client.GetDel(ctx, codeKeyPrefix+code).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("code not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("redeem code: %w", err)
	}
	var claims token.Claims
	if err := json.Unmarshal([]byte(payload), &claims); err != nil {
		return nil, fmt.Errorf("decode pending token: %w", err)
	}
	return &claims, nil
}
