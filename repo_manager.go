package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error

	Users() Users
	Sessions() Sessions
	PendingRegistrations() PendingActions[*PendingRegistration]
	PendingRecoveries() PendingActions[*PendingRecovery]
}

type mngr struct {
	db                   *bun.DB
	users                Users
	sessions             Sessions
	pendingRegistrations PendingActions[*PendingRegistration]
	pendingRecoveries    PendingActions[*PendingRecovery]
}

// NewRepositoryManager wires every repository over one bun handle. The clock
// drives pending-action expiry; pass nil for the system clock.
func NewRepositoryManager(db *bun.DB, clock Clock) RepositoryManager {
	return &mngr{
		db:                   db,
		users:                NewUsersRepository(db),
		sessions:             NewSessionsRepository(db),
		pendingRegistrations: NewPendingRegistrations(db, clock),
		pendingRecoveries:    NewPendingRecoveries(db, clock),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.pendingRegistrations == nil {
		return errors.New("repository pendingRegistrations should be initialized")
	}

	if m.pendingRecoveries == nil {
		return errors.New("repository pendingRecoveries should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}

func (m mngr) PendingRegistrations() PendingActions[*PendingRegistration] {
	return m.pendingRegistrations
}

func (m mngr) PendingRecoveries() PendingActions[*PendingRecovery] {
	return m.pendingRecoveries
}
