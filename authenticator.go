package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TokenPair is an access/refresh token pair minted under one session nonce.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult is the success payload of Login and UpdateToken.
type LoginResult struct {
	TokenPair
	User *Profile `json:"user"`
}

// SweepReport carries the per-namespace delete counts of SweepExpired.
type SweepReport struct {
	Registrations int64 `json:"registrations"`
	Recoveries    int64 `json:"recoveries"`
}

// Auther orchestrates the session-bound flows: login, logout, token refresh,
// and the expiry sweep. The pending-action flows live in the command
// handlers.
type Auther struct {
	repo         RepositoryManager
	cfg          Config
	tokenService TokenService
	hasher       Hasher
	nonces       NonceSource
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(repo RepositoryManager, cfg Config) *Auther {
	return &Auther{
		repo:         repo,
		cfg:          cfg,
		tokenService: NewTokenService([]byte(cfg.GetSigningKey()), defLogger{}),
		hasher:       NewBcryptHasher(DefaultBcryptCost),
		nonces:       NewNonceSource(),
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Auther) WithHasher(hasher Hasher) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

func (s *Auther) WithNonceSource(nonces NonceSource) *Auther {
	if nonces != nil {
		s.nonces = nonces
	}
	return s
}

// WithTokenService swaps the token service, e.g. for a fixed test clock.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Auther
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials, rotates the session nonce, and mints a fresh
// access/refresh pair embedding it. Any tokens from earlier logins are dead
// the moment the rotation lands.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	user, err := s.repo.Users().GetByIdentifier(ctx, identifier)
	if err != nil {
		if goerrors.Is(err, ErrUserNotFound) {
			s.logger.Debug("Login unknown identifier", "identifier", identifier)
			s.emitAuthEvent(ctx, ActivityEventLoginFailure, 0, map[string]any{
				"identifier": identifier,
				"error":      ErrWrongCredentials.Message,
			})
			return nil, ErrWrongCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("Login stored hash could not be verified", "user_id", user.ID, "error", err)
		return nil, ErrInvalidHash
	}
	if !ok {
		s.logger.Debug("Login password mismatch", "user_id", user.ID)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, user.ID, map[string]any{
			"identifier": identifier,
			"error":      "password mismatch",
		})
		return nil, goerrors.Wrap(ErrWrongCredentials, goerrors.CategoryAuth, "password does not match").
			WithTextCode(TextCodeWrongCredentials)
	}

	nonce := s.nonces.Next()
	session, err := s.repo.Sessions().Rotate(ctx, user.ID, nonce)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	pair, err := s.mintPair(user.ID, nonce)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Users().TrackSuccessfulLogin(ctx, user); err != nil {
		s.logger.Warn("Login failed to track login time", "user_id", user.ID, "error", err)
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, user.ID, map[string]any{
		"identifier": identifier,
	})

	return &LoginResult{TokenPair: *pair, User: user.Profile()}, nil
}

// Logout clears the session nonce; every outstanding token for the user
// becomes unusable even before it expires.
func (s *Auther) Logout(ctx context.Context, userID int64) error {
	if _, err := s.repo.Sessions().Invalidate(ctx, userID); err != nil {
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, userID, nil)
	return nil
}

// UpdateToken exchanges a refresh token for a fresh pair. The embedded nonce
// must equal the session's current one: a refresh token from a superseded
// login verifies fine cryptographically and is still rejected here.
func (s *Auther) UpdateToken(ctx context.Context, refreshToken string) (*LoginResult, error) {
	payload, err := s.tokenService.Decode(refreshToken)
	if err != nil {
		s.logger.Debug("UpdateToken decode failed", "error", err)
		s.emitAuthEvent(ctx, ActivityEventTokenRejected, 0, map[string]any{
			"error": err.Error(),
		})
		return nil, wrapInvalidOrExpiredToken(err)
	}

	session, err := s.repo.Sessions().Get(ctx, payload.SubjectID)
	if err != nil {
		return nil, err
	}

	if !session.HasNonce() {
		return nil, ErrSessionNotFound
	}

	if *session.Nonce != payload.Nonce {
		s.emitAuthEvent(ctx, ActivityEventTokenRejected, payload.SubjectID, map[string]any{
			"error": ErrUnacceptableNonce.Message,
		})
		return nil, ErrUnacceptableNonce
	}

	user, err := s.repo.Users().GetByID(ctx, payload.SubjectID)
	if err != nil {
		return nil, err
	}

	nonce := s.nonces.Next()
	if _, err := s.repo.Sessions().Rotate(ctx, user.ID, nonce); err != nil {
		return nil, err
	}

	pair, err := s.mintPair(user.ID, nonce)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventTokenRefreshed, user.ID, nil)

	return &LoginResult{TokenPair: *pair, User: user.Profile()}, nil
}

// VerifyToken runs the full access check on a raw token: decode, session
// lookup, nonce comparison. Signature validity alone is not enough; a token
// minted under a superseded nonce fails here.
func (s *Auther) VerifyToken(ctx context.Context, raw string) (TokenPayload, error) {
	payload, err := s.tokenService.Decode(raw)
	if err != nil {
		return TokenPayload{}, err
	}

	session, err := s.repo.Sessions().Get(ctx, payload.SubjectID)
	if err != nil {
		return TokenPayload{}, err
	}

	if !session.HasNonce() {
		return TokenPayload{}, ErrSessionNotFound
	}

	if *session.Nonce != payload.Nonce {
		return TokenPayload{}, ErrUnacceptableNonce
	}

	return payload, nil
}

// SweepExpired deletes every expired pending registration and recovery and
// reports how many each namespace dropped. Callers gate authorization; run
// on demand, there is no internal timer.
func (s *Auther) SweepExpired(ctx context.Context) (*SweepReport, error) {
	registrations, err := s.repo.PendingRegistrations().Sweep(ctx)
	if err != nil {
		return nil, err
	}

	recoveries, err := s.repo.PendingRecoveries().Sweep(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Registrations: registrations, Recoveries: recoveries}

	s.emitAuthEvent(ctx, ActivityEventSweep, 0, map[string]any{
		"registrations": registrations,
		"recoveries":    recoveries,
	})

	return report, nil
}

func (s *Auther) mintPair(userID, nonce int64) (*TokenPair, error) {
	access, err := s.tokenService.Encode(userID, nonce, s.cfg.GetAccessTokenTTL())
	if err != nil {
		s.logger.Error("failed to encode access token", "user_id", userID, "error", err)
		return nil, ErrTokenEncodingFailed
	}

	refresh, err := s.tokenService.Encode(userID, nonce, s.cfg.GetRefreshTokenTTL())
	if err != nil {
		s.logger.Error("failed to encode refresh token", "user_id", userID, "error", err)
		return nil, ErrTokenEncodingFailed
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID int64, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
