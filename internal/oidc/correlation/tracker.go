// Package correlation tracks the two short-lived mappings of the login
// dance: browser session -> pending correlation state, and authorization
// code -> not-yet-delivered token claims. Entries are process-local by
// default; a Redis implementation exists for multi-instance deployments.
package correlation

import (
	"context"
	"time"

	"oidcd/internal/oidc/token"
)

// Default lifetimes. A login that outlives its session entry starts over; a
// code that outlives its entry can no longer be redeemed.
const (
	DefaultSessionTTL = 10 * time.Minute
	DefaultCodeTTL    = 5 * time.Minute
)

// Tracker correlates browser round-trips with pending authentication
// requests and issued codes with their tokens.
//
// Session IDs and codes are freshly random per call; two concurrent
// authorize calls never share either. Codes are single-use: RedeemCode
// removes the entry, and a second redemption reports
// sentinel.ErrNotFound. Expired entries report sentinel.ErrExpired.
type Tracker interface {
	BeginSession(ctx context.Context, state string) (sessionID string, err error)
	LookupSession(ctx context.Context, sessionID string) (state string, err error)
	IssueCode(ctx context.Context, claims *token.Claims) (code string, err error)
	RedeemCode(ctx context.Context, code string) (*token.Claims, error)
}
