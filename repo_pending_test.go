package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/amadare/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRegistrationsRequestIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	clock := newStubClock(time.Now())
	repo := auth.NewPendingRegistrations(db, clock)
	ctx := context.Background()

	record := &auth.PendingRegistration{
		Nickname:     "Robert_Brown",
		Email:        "Robert_Brown@gmail.com",
		PasswordHash: "hash",
	}

	first, err := repo.Request(ctx, record, 3600,
		auth.RegistrationSubject("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	again, err := repo.Request(ctx, &auth.PendingRegistration{
		Nickname:     "Robert_Brown",
		Email:        "Robert_Brown@gmail.com",
		PasswordHash: "another-hash",
	}, 3600, auth.RegistrationSubject("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)

	// the live record is returned untouched: same id, same final date,
	// same payload
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.FinalDate.Unix(), again.FinalDate.Unix())
	assert.Equal(t, "hash", again.PasswordHash)

	count, err := db.NewSelect().Model((*auth.PendingRegistration)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPendingRegistrationsRequestAfterExpiryCreatesNewRecord(t *testing.T) {
	db := setupTestDB(t)
	clock := newStubClock(time.Now())
	repo := auth.NewPendingRegistrations(db, clock)
	ctx := context.Background()

	first, err := repo.Request(ctx, &auth.PendingRegistration{
		Nickname:     "Robert_Brown",
		Email:        "Robert_Brown@gmail.com",
		PasswordHash: "hash",
	}, 3600, auth.RegistrationSubject("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)

	clock.Advance(3601 * time.Second)

	second, err := repo.Request(ctx, &auth.PendingRegistration{
		Nickname:     "Robert_Brown",
		Email:        "Robert_Brown@gmail.com",
		PasswordHash: "hash",
	}, 3600, auth.RegistrationSubject("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.FinalDate.After(first.FinalDate))
}

func TestPendingRegistrationsConfirm(t *testing.T) {
	db := setupTestDB(t)
	clock := newStubClock(time.Now())
	repo := auth.NewPendingRegistrations(db, clock)
	ctx := context.Background()

	pending, err := repo.Request(ctx, &auth.PendingRegistration{
		Nickname:     "Robert_Brown",
		Email:        "Robert_Brown@gmail.com",
		PasswordHash: "hash",
	}, 3600, auth.RegistrationSubject("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)

	confirmed, err := repo.Confirm(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, confirmed.ID)
	assert.Equal(t, "Robert_Brown", confirmed.Nickname)
}

func TestPendingRegistrationsConfirmMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewPendingRegistrations(db, auth.SystemClock())

	_, err := repo.Confirm(context.Background(), 12345)
	assert.True(t, goerrors.Is(err, auth.ErrPendingNotFound))
}

func TestPendingRegistrationsConfirmExpiredLeavesRecord(t *testing.T) {
	db := setupTestDB(t)
	clock := newStubClock(time.Now())
	repo := auth.NewPendingRegistrations(db, clock)
	ctx := context.Background()

	pending, err := repo.Request(ctx, &auth.PendingRegistration{
		Nickname:     "Robert_Brown",
		Email:        "Robert_Brown@gmail.com",
		PasswordHash: "hash",
	}, 3600, auth.RegistrationSubject("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)

	clock.Advance(3601 * time.Second)

	_, err = repo.Confirm(ctx, pending.ID)
	assert.True(t, goerrors.Is(err, auth.ErrPendingExpired))

	// failed confirms never delete; sweep owns expired cleanup
	count, err := db.NewSelect().Model((*auth.PendingRegistration)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPendingRegistrationsConflictCriteria(t *testing.T) {
	db := setupTestDB(t)
	clock := newStubClock(time.Now())
	repo := auth.NewPendingRegistrations(db, clock)
	ctx := context.Background()

	_, err := repo.Request(ctx, &auth.PendingRegistration{
		Nickname:     "Robert_Brown",
		Email:        "Robert_Brown@gmail.com",
		PasswordHash: "hash",
	}, 3600, auth.RegistrationSubject("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)

	// the exact subject is not its own conflict
	exists, err := repo.ExistsLive(ctx,
		auth.RegistrationNicknameConflict("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)
	assert.False(t, exists)

	// same nickname under a different email is
	exists, err = repo.ExistsLive(ctx,
		auth.RegistrationNicknameConflict("Robert_Brown", "other@gmail.com"))
	require.NoError(t, err)
	assert.True(t, exists)

	// same email under a different nickname is
	exists, err = repo.ExistsLive(ctx,
		auth.RegistrationEmailConflict("Other_Name", "Robert_Brown@gmail.com"))
	require.NoError(t, err)
	assert.True(t, exists)

	// expired records stop conflicting
	clock.Advance(3601 * time.Second)
	exists, err = repo.ExistsLive(ctx,
		auth.RegistrationNicknameConflict("Robert_Brown", "other@gmail.com"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPendingRecoveriesRequestIsIdempotentPerUser(t *testing.T) {
	db := setupTestDB(t)
	clock := newStubClock(time.Now())
	repo := auth.NewPendingRecoveries(db, clock)
	ctx := context.Background()

	first, err := repo.Request(ctx, &auth.PendingRecovery{UserID: 7}, 1800,
		auth.RecoverySubject(7))
	require.NoError(t, err)

	again, err := repo.Request(ctx, &auth.PendingRecovery{UserID: 7}, 1800,
		auth.RecoverySubject(7))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := repo.Request(ctx, &auth.PendingRecovery{UserID: 8}, 1800,
		auth.RecoverySubject(8))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestPendingSweepDeletesOnlyExpired(t *testing.T) {
	db := setupTestDB(t)
	clock := newStubClock(time.Now())
	registrations := auth.NewPendingRegistrations(db, clock)
	recoveries := auth.NewPendingRecoveries(db, clock)
	ctx := context.Background()

	_, err := registrations.Request(ctx, &auth.PendingRegistration{
		Nickname:     "Robert_Brown",
		Email:        "Robert_Brown@gmail.com",
		PasswordHash: "hash",
	}, 60, auth.RegistrationSubject("Robert_Brown", "Robert_Brown@gmail.com"))
	require.NoError(t, err)

	_, err = recoveries.Request(ctx, &auth.PendingRecovery{UserID: 7}, 60,
		auth.RecoverySubject(7))
	require.NoError(t, err)

	clock.Advance(61 * time.Second)

	// these two are still live
	live, err := registrations.Request(ctx, &auth.PendingRegistration{
		Nickname:     "Jane_Doe",
		Email:        "jane@example.com",
		PasswordHash: "hash",
	}, 3600, auth.RegistrationSubject("Jane_Doe", "jane@example.com"))
	require.NoError(t, err)

	_, err = recoveries.Request(ctx, &auth.PendingRecovery{UserID: 8}, 3600,
		auth.RecoverySubject(8))
	require.NoError(t, err)

	sweptRegistrations, err := registrations.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sweptRegistrations)

	sweptRecoveries, err := recoveries.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sweptRecoveries)

	// live records survive the sweep
	_, err = registrations.GetByID(ctx, live.ID)
	require.NoError(t, err)

	// sweeping again is a no-op
	swept, err := registrations.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestPendingDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewPendingRecoveries(db, auth.SystemClock())
	ctx := context.Background()

	pending, err := repo.Request(ctx, &auth.PendingRecovery{UserID: 7}, 1800,
		auth.RecoverySubject(7))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, pending.ID))

	_, err = repo.GetByID(ctx, pending.ID)
	assert.True(t, goerrors.Is(err, auth.ErrPendingNotFound))
}
