package auth

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// RotateSessionNonceSQL sets the nonce in a single atomic statement, creating
// the row lazily when the user exists and resolving to no row when it does
// not. Two concurrent rotations race last-writer-wins on purpose: rotation
// exists to invalidate whichever token family lost.
var RotateSessionNonceSQL = `INSERT INTO "sessions" ("user_id", "nonce", "updated_at")
SELECT "usr"."id", ?, ?
FROM "users" AS "usr"
WHERE "usr"."id" = ?
ON CONFLICT ("user_id") DO UPDATE SET
	"nonce" = EXCLUDED."nonce",
	"updated_at" = EXCLUDED."updated_at"
RETURNING *;`

// InvalidateSessionNonceSQL clears the nonce without deleting the row; the
// user lifecycle owns row deletion.
var InvalidateSessionNonceSQL = `UPDATE "sessions"
SET
	"nonce" = NULL,
	"updated_at" = ?
WHERE
	"user_id" = ?
RETURNING *;`

// Sessions owns the one-session-per-user registry. Rotate and Invalidate
// return ErrSessionNotFound when no row resolves; callers decide what that
// means for their flow.
type Sessions interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	GetTx(ctx context.Context, tx bun.IDB, userID int64) (*Session, error)

	Rotate(ctx context.Context, userID, nonce int64) (*Session, error)
	RotateTx(ctx context.Context, tx bun.IDB, userID, nonce int64) (*Session, error)

	Invalidate(ctx context.Context, userID int64) (*Session, error)
	InvalidateTx(ctx context.Context, tx bun.IDB, userID int64) (*Session, error)

	CreateTx(ctx context.Context, tx bun.IDB, record *Session) (*Session, error)
}

type sessions struct {
	db *bun.DB
}

var _ Sessions = (*sessions)(nil)

func NewSessionsRepository(db *bun.DB) Sessions {
	return &sessions{db: db}
}

func (r *sessions) Get(ctx context.Context, userID int64) (*Session, error) {
	return r.GetTx(ctx, r.db, userID)
}

func (r *sessions) GetTx(ctx context.Context, tx bun.IDB, userID int64) (*Session, error) {
	record := &Session{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve session")
	}

	return record, nil
}

func (r *sessions) Rotate(ctx context.Context, userID, nonce int64) (*Session, error) {
	return r.RotateTx(ctx, r.db, userID, nonce)
}

func (r *sessions) RotateTx(ctx context.Context, tx bun.IDB, userID, nonce int64) (*Session, error) {
	record := &Session{}
	err := tx.NewRaw(RotateSessionNonceSQL, nonce, time.Now(), userID).Scan(ctx, record)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate session nonce")
	}

	return record, nil
}

func (r *sessions) Invalidate(ctx context.Context, userID int64) (*Session, error) {
	return r.InvalidateTx(ctx, r.db, userID)
}

func (r *sessions) InvalidateTx(ctx context.Context, tx bun.IDB, userID int64) (*Session, error) {
	record := &Session{}
	err := tx.NewRaw(InvalidateSessionNonceSQL, time.Now(), userID).Scan(ctx, record)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invalidate session")
	}

	return record, nil
}

func (r *sessions) CreateTx(ctx context.Context, tx bun.IDB, record *Session) (*Session, error) {
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session")
	}
	return record, nil
}
