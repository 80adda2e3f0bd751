package auth

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock abstracts the wall-clock read every expiry comparison depends on, so
// tests can mint already-expired records without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// NonceSource produces session nonces. Values only need to be uniformly
// distributed; collisions across rotations are acceptable because only the
// current value matters.
type NonceSource interface {
	Next() int64
}

type randNonceSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewNonceSource returns a NonceSource seeded from the current time.
func NewNonceSource() NonceSource {
	return &randNonceSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *randNonceSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63()
}

// Hasher is the opaque password hashing capability the flows depend on.
// Verify reports a mismatch as (false, nil); an error means the stored hash
// itself could not be processed.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// Notifier delivers identity-action messages (confirmation links). Delivery
// is fire-and-forget from the flows' perspective.
type Notifier interface {
	Send(ctx context.Context, kind, address string, payload map[string]any) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetAccessTokenTTL() int64
	GetRefreshTokenTTL() int64
	GetRegistrationTTL() int64
	GetRecoveryTTL() int64
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
}

// SimpleConfig is a plain-struct Config implementation. All TTLs are in
// seconds.
type SimpleConfig struct {
	SigningKey      string
	AccessTokenTTL  int64
	RefreshTokenTTL int64
	RegistrationTTL int64
	RecoveryTTL     int64
	ContextKey      string
	TokenLookup     string
	AuthScheme      string
}

func (c SimpleConfig) GetSigningKey() string     { return c.SigningKey }
func (c SimpleConfig) GetAccessTokenTTL() int64  { return c.AccessTokenTTL }
func (c SimpleConfig) GetRefreshTokenTTL() int64 { return c.RefreshTokenTTL }
func (c SimpleConfig) GetRegistrationTTL() int64 { return c.RegistrationTTL }
func (c SimpleConfig) GetRecoveryTTL() int64     { return c.RecoveryTTL }

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "user"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetTokenLookup() string {
	if c.TokenLookup == "" {
		return "header:Authorization"
	}
	return c.TokenLookup
}

func (c SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
