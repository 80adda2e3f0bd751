package auth

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// SelectCriteria narrows a pending-action query, typically to a subject key.
type SelectCriteria func(*bun.SelectQuery) *bun.SelectQuery

// PendingHandlers adapts a concrete pending model to the generic registry.
type PendingHandlers[M any] struct {
	NewRecord    func() M
	GetID        func(M) int64
	GetFinalDate func(M) time.Time
	SetFinalDate func(M, time.Time)
}

// PendingActions is the generic create/confirm/sweep registry behind
// registration and recovery. Records are single-use and time-boxed: Request
// is an idempotent create keyed on the caller's subject criteria, Confirm
// judges expiry lazily against the record itself, and Sweep is the only
// cleanup path. Confirm never deletes; the caller deletes after its
// downstream side effect succeeds so late failures leave the record for a
// subsequent sweep.
type PendingActions[M any] interface {
	Request(ctx context.Context, record M, ttlSeconds int64, subject ...SelectCriteria) (M, error)
	RequestTx(ctx context.Context, tx bun.IDB, record M, ttlSeconds int64, subject ...SelectCriteria) (M, error)

	GetByID(ctx context.Context, id int64) (M, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (M, error)

	Confirm(ctx context.Context, id int64) (M, error)
	ConfirmTx(ctx context.Context, tx bun.IDB, id int64) (M, error)

	ExistsLive(ctx context.Context, subject ...SelectCriteria) (bool, error)
	ExistsLiveTx(ctx context.Context, tx bun.IDB, subject ...SelectCriteria) (bool, error)

	Delete(ctx context.Context, id int64) error
	DeleteTx(ctx context.Context, tx bun.IDB, id int64) error

	Sweep(ctx context.Context) (int64, error)
	SweepTx(ctx context.Context, tx bun.IDB) (int64, error)
}

type pendingActions[M any] struct {
	db       *bun.DB
	clock    Clock
	handlers PendingHandlers[M]
}

func NewPendingActions[M any](db *bun.DB, clock Clock, handlers PendingHandlers[M]) PendingActions[M] {
	if clock == nil {
		clock = systemClock{}
	}
	return &pendingActions[M]{
		db:       db,
		clock:    clock,
		handlers: handlers,
	}
}

func (r *pendingActions[M]) Request(ctx context.Context, record M, ttlSeconds int64, subject ...SelectCriteria) (M, error) {
	return r.RequestTx(ctx, r.db, record, ttlSeconds, subject...)
}

// RequestTx returns the live record for the subject unchanged when one
// exists, so re-requesting before expiry cannot accumulate pending rows.
// Run it inside a transaction when the read-then-insert pair must be atomic.
func (r *pendingActions[M]) RequestTx(ctx context.Context, tx bun.IDB, record M, ttlSeconds int64, subject ...SelectCriteria) (M, error) {
	var zero M
	now := r.clock.Now()

	existing := r.handlers.NewRecord()
	q := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.final_date > ?", now)

	for _, c := range subject {
		q = q.Apply(c)
	}

	err := q.Limit(1).Scan(ctx)
	if err == nil {
		return existing, nil
	}
	if !goerrors.Is(err, sql.ErrNoRows) {
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up live pending action")
	}

	r.handlers.SetFinalDate(record, now.Add(time.Duration(ttlSeconds)*time.Second))
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create pending action")
	}

	return record, nil
}

func (r *pendingActions[M]) GetByID(ctx context.Context, id int64) (M, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *pendingActions[M]) GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (M, error) {
	var zero M

	record := r.handlers.NewRecord()
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return zero, ErrPendingNotFound
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve pending action")
	}

	return record, nil
}

func (r *pendingActions[M]) Confirm(ctx context.Context, id int64) (M, error) {
	return r.ConfirmTx(ctx, r.db, id)
}

// ConfirmTx fails with ErrPendingExpired when final_date has passed; the
// record stays in place either way. Deleting is the caller's job once the
// downstream side effect has succeeded.
func (r *pendingActions[M]) ConfirmTx(ctx context.Context, tx bun.IDB, id int64) (M, error) {
	var zero M

	record, err := r.GetByIDTx(ctx, tx, id)
	if err != nil {
		return zero, err
	}

	if !r.handlers.GetFinalDate(record).After(r.clock.Now()) {
		return zero, ErrPendingExpired
	}

	return record, nil
}

func (r *pendingActions[M]) ExistsLive(ctx context.Context, subject ...SelectCriteria) (bool, error) {
	return r.ExistsLiveTx(ctx, r.db, subject...)
}

func (r *pendingActions[M]) ExistsLiveTx(ctx context.Context, tx bun.IDB, subject ...SelectCriteria) (bool, error) {
	q := tx.NewSelect().
		Model(r.handlers.NewRecord()).
		Where("?TableAlias.final_date > ?", r.clock.Now())

	for _, c := range subject {
		q = q.Apply(c)
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check live pending actions")
	}

	return exists, nil
}

func (r *pendingActions[M]) Delete(ctx context.Context, id int64) error {
	return r.DeleteTx(ctx, r.db, id)
}

func (r *pendingActions[M]) DeleteTx(ctx context.Context, tx bun.IDB, id int64) error {
	_, err := tx.NewDelete().
		Model(r.handlers.NewRecord()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete pending action")
	}

	return nil
}

func (r *pendingActions[M]) Sweep(ctx context.Context) (int64, error) {
	return r.SweepTx(ctx, r.db)
}

func (r *pendingActions[M]) SweepTx(ctx context.Context, tx bun.IDB) (int64, error) {
	res, err := tx.NewDelete().
		Model(r.handlers.NewRecord()).
		Where("?TableAlias.final_date <= ?", r.clock.Now()).
		Exec(ctx)

	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sweep expired pending actions")
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count swept pending actions")
	}

	return count, nil
}

// NewPendingRegistrations builds the registration-namespace registry.
func NewPendingRegistrations(db *bun.DB, clock Clock) PendingActions[*PendingRegistration] {
	return NewPendingActions(db, clock, PendingHandlers[*PendingRegistration]{
		NewRecord:    func() *PendingRegistration { return &PendingRegistration{} },
		GetID:        func(m *PendingRegistration) int64 { return m.ID },
		GetFinalDate: func(m *PendingRegistration) time.Time { return m.FinalDate },
		SetFinalDate: func(m *PendingRegistration, t time.Time) { m.FinalDate = t },
	})
}

// NewPendingRecoveries builds the recovery-namespace registry.
func NewPendingRecoveries(db *bun.DB, clock Clock) PendingActions[*PendingRecovery] {
	return NewPendingActions(db, clock, PendingHandlers[*PendingRecovery]{
		NewRecord:    func() *PendingRecovery { return &PendingRecovery{} },
		GetID:        func(m *PendingRecovery) int64 { return m.ID },
		GetFinalDate: func(m *PendingRecovery) time.Time { return m.FinalDate },
		SetFinalDate: func(m *PendingRecovery, t time.Time) { m.FinalDate = t },
	})
}

// RegistrationSubject matches the registration subject key (nickname+email).
func RegistrationSubject(nickname, email string) SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.nickname = ?", nickname).
			Where("?TableAlias.email = ?", email)
	}
}

// RegistrationNicknameConflict matches live registrations holding the
// nickname under a different subject.
func RegistrationNicknameConflict(nickname, email string) SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.nickname = ?", nickname).
			Where("?TableAlias.email != ?", email)
	}
}

// RegistrationEmailConflict matches live registrations holding the email
// under a different subject.
func RegistrationEmailConflict(nickname, email string) SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.email = ?", email).
			Where("?TableAlias.nickname != ?", nickname)
	}
}

// RecoverySubject matches the recovery subject key (user id).
func RecoverySubject(userID int64) SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.user_id = ?", userID)
	}
}
