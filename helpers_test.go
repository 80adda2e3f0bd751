package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/amadare/go-auth"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nickname TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    loggedin_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	sqliteCreateSessions = `CREATE TABLE sessions (
    user_id INTEGER NOT NULL PRIMARY KEY,
    nonce INTEGER NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`

	sqliteCreatePendingRegistrations = `CREATE TABLE pending_registrations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nickname TEXT NOT NULL,
    email TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    final_date TIMESTAMP NOT NULL
);`

	sqliteCreatePendingRecoveries = `CREATE TABLE pending_recoveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    final_date TIMESTAMP NOT NULL
);`
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, ddl := range []string{
		"PRAGMA foreign_keys = ON;",
		sqliteCreateUsers,
		sqliteCreateSessions,
		sqliteCreatePendingRegistrations,
		sqliteCreatePendingRecoveries,
	} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	return bunDB
}

// stubClock is a settable auth.Clock so expiry can be evaluated without
// sleeping.
type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock(now time.Time) *stubClock {
	return &stubClock{now: now}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// seqNonceSource hands out a predetermined nonce sequence.
type seqNonceSource struct {
	mu     sync.Mutex
	values []int64
	next   int
}

func (s *seqNonceSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// plainHasher keeps credential tests fast; mismatch is (false, nil) like the
// real thing.
type plainHasher struct{}

func (plainHasher) Hash(plaintext string) (string, error) {
	return "plain:" + plaintext, nil
}

func (plainHasher) Verify(plaintext, hash string) (bool, error) {
	return hash == "plain:"+plaintext, nil
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byType(eventType auth.ActivityEventType) []auth.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []auth.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type capturingNotifier struct {
	mu    sync.Mutex
	kinds []string
	to    []string
}

func (n *capturingNotifier) Send(ctx context.Context, kind, address string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	n.to = append(n.to, address)
	return nil
}

func newTestConfig() auth.SimpleConfig {
	return auth.SimpleConfig{
		SigningKey:      "test-signing-key",
		AccessTokenTTL:  900,
		RefreshTokenTTL: 86400,
		RegistrationTTL: 3600,
		RecoveryTTL:     1800,
	}
}

func seedUser(t *testing.T, db *bun.DB, nickname, email, password string) *auth.User {
	t.Helper()

	hash, err := plainHasher{}.Hash(password)
	require.NoError(t, err)

	user := &auth.User{
		Nickname:     nickname,
		Email:        email,
		PasswordHash: hash,
	}

	_, err = db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)

	return user
}
