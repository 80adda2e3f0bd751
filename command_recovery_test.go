package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/amadare/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type recoveryFixture struct {
	repo     auth.RepositoryManager
	cfg      auth.SimpleConfig
	clock    *stubClock
	tokens   auth.TokenService
	notifier *capturingNotifier
	auther   *auth.Auther
	request  *auth.RequestRecoveryHandler
	confirm  *auth.ConfirmRecoveryHandler
}

func newRecoveryFixture(t *testing.T, db *bun.DB) *recoveryFixture {
	t.Helper()

	cfg := newTestConfig()
	clock := newStubClock(time.Now())
	tokens := auth.NewTokenServiceWithClock([]byte(cfg.SigningKey), nil, clock)
	repo := auth.NewRepositoryManager(db, clock)
	notifier := &capturingNotifier{}

	auther := auth.NewAuthenticator(repo, cfg).
		WithHasher(plainHasher{}).
		WithTokenService(tokens)

	return &recoveryFixture{
		repo:     repo,
		cfg:      cfg,
		clock:    clock,
		tokens:   tokens,
		notifier: notifier,
		auther:   auther,
		request: auth.NewRequestRecoveryHandler(repo, cfg, tokens).
			WithNotifier(notifier),
		confirm: auth.NewConfirmRecoveryHandler(repo, tokens).
			WithHasher(plainHasher{}),
	}
}

func (f *recoveryFixture) requestFor(t *testing.T, email string) *auth.RequestRecoveryResponse {
	t.Helper()

	var resp *auth.RequestRecoveryResponse
	err := f.request.Execute(context.Background(), auth.RequestRecoveryMessage{
		Email:      email,
		OnResponse: func(r *auth.RequestRecoveryResponse) { resp = r },
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	return resp
}

func (f *recoveryFixture) confirmToken(t *testing.T, token, password string) (*auth.ConfirmRecoveryResponse, error) {
	t.Helper()

	var resp *auth.ConfirmRecoveryResponse
	err := f.confirm.Execute(context.Background(), auth.ConfirmRecoveryMessage{
		Token:      token,
		Password:   password,
		OnResponse: func(r *auth.ConfirmRecoveryResponse) { resp = r },
	})

	return resp, err
}

func TestRecoveryRequestAndConfirm(t *testing.T) {
	db := setupTestDB(t)
	f := newRecoveryFixture(t, db)
	ctx := context.Background()

	user := seedUser(t, db, "user01", "user01@example.com", "old-password")

	// an active login whose tokens must die with the password change
	login, err := f.auther.Login(ctx, "user01", "old-password")
	require.NoError(t, err)

	resp := f.requestFor(t, "user01@example.com")
	assert.Equal(t, "user01@example.com", resp.Email)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, []string{"recovery.confirm"}, f.notifier.kinds)

	confirmed, err := f.confirmToken(t, resp.Token, "new-password")
	require.NoError(t, err)
	require.NotNil(t, confirmed.User)
	assert.Equal(t, user.ID, confirmed.User.ID)

	// old password is out, new one is in
	_, err = f.auther.Login(ctx, "user01", "old-password")
	assert.True(t, goerrors.Is(err, auth.ErrWrongCredentials))

	_, err = f.auther.Login(ctx, "user01", "new-password")
	require.NoError(t, err)

	// the pre-recovery token family is revoked
	_, err = f.auther.UpdateToken(ctx, login.RefreshToken)
	require.Error(t, err)

	// the pending record was consumed
	count, err := db.NewSelect().Model((*auth.PendingRecovery)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecoveryRequestUnknownEmail(t *testing.T) {
	db := setupTestDB(t)
	f := newRecoveryFixture(t, db)

	err := f.request.Execute(context.Background(), auth.RequestRecoveryMessage{
		Email:      "nobody@example.com",
		OnResponse: func(r *auth.RequestRecoveryResponse) {},
	})
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, auth.ErrUserNotFound))
}

func TestRecoveryRequestIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	f := newRecoveryFixture(t, db)

	seedUser(t, db, "user01", "user01@example.com", "password")

	first := f.requestFor(t, "user01@example.com")
	second := f.requestFor(t, "user01@example.com")

	firstPayload, err := f.tokens.Decode(first.Token)
	require.NoError(t, err)
	secondPayload, err := f.tokens.Decode(second.Token)
	require.NoError(t, err)
	assert.Equal(t, firstPayload.SubjectID, secondPayload.SubjectID)
}

func TestRecoveryConfirmTwice(t *testing.T) {
	db := setupTestDB(t)
	f := newRecoveryFixture(t, db)

	seedUser(t, db, "user01", "user01@example.com", "password")

	resp := f.requestFor(t, "user01@example.com")

	_, err := f.confirmToken(t, resp.Token, "new-password")
	require.NoError(t, err)

	_, err = f.confirmToken(t, resp.Token, "even-newer-password")
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, auth.ErrRecoveryNotFound))
}

func TestRecoveryConfirmExpired(t *testing.T) {
	db := setupTestDB(t)
	f := newRecoveryFixture(t, db)
	ctx := context.Background()

	user := seedUser(t, db, "user01", "user01@example.com", "password")

	resp := f.requestFor(t, "user01@example.com")

	longLived, err := f.tokens.Encode(mustDecodeSubject(t, f.tokens, resp.Token), 0,
		f.cfg.RecoveryTTL*2)
	require.NoError(t, err)

	f.clock.Advance(time.Duration(f.cfg.RecoveryTTL+60) * time.Second)

	_, err = f.confirmToken(t, longLived, "new-password")
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, auth.ErrInvalidOrExpiredToken))

	// the password did not change and the record is left for sweep
	got, err := f.repo.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.PasswordHash, got.PasswordHash)

	count, err := db.NewSelect().Model((*auth.PendingRecovery)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecoveryConfirmValidation(t *testing.T) {
	db := setupTestDB(t)
	f := newRecoveryFixture(t, db)

	_, err := f.confirmToken(t, "some-token", "short")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
}
