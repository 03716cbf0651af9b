package config

import (
	"os"
	"path/filepath"
	"time"
)

// Server captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean; every field has a development
// default except the database URL, which selects the in-memory store when
// unset.
type Server struct {
	Addr string

	// Issuer is the fixed `iss` claim. When empty, the Host header of the
	// incoming login request is used instead.
	Issuer string

	// ConfigDir holds the signing key, verification key, and salt files.
	ConfigDir string

	// DatabaseURL selects the Postgres credential store when non-empty.
	DatabaseURL string

	// RedisURL selects the Redis correlation tracker when non-empty.
	RedisURL string

	// TokenValidity bounds the `exp` claim of issued ID tokens.
	TokenValidity time.Duration

	// TokenDuration is the advertised `expires_in` of the implicit flow
	// response. It is response metadata only and does not affect `exp`.
	TokenDuration time.Duration
}

const (
	defaultAddr          = "0.0.0.0:8080"
	defaultTokenValidity = 20 * time.Minute
	defaultTokenDuration = 7 * 24 * time.Hour
)

func FromEnv() Server {
	cfg := Server{
		Addr:          os.Getenv("OIDCD_ADDR"),
		Issuer:        os.Getenv("OIDCD_ISSUER"),
		ConfigDir:     os.Getenv("OIDCD_CONFIG_DIR"),
		DatabaseURL:   os.Getenv("OIDCD_DATABASE_URL"),
		RedisURL:      os.Getenv("OIDCD_REDIS_URL"),
		TokenValidity: defaultTokenValidity,
		TokenDuration: defaultTokenDuration,
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ConfigDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.ConfigDir = filepath.Join(home, ".config", "oidcd")
	}
	if v := os.Getenv("OIDCD_TOKEN_VALIDITY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TokenValidity = d
		}
	}
	if v := os.Getenv("OIDCD_TOKEN_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TokenDuration = d
		}
	}
	return cfg
}
