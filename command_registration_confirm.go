package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ConfirmRegistrationMessage struct {
	Token      string `json:"token" doc:"Pending registration token from the confirmation link."`
	OnResponse func(resp *ConfirmRegistrationResponse)
}

func (m ConfirmRegistrationMessage) Type() string { return "auth.registration.confirm" }

type ConfirmRegistrationResponse struct {
	User *Profile `json:"user"`
}

type ConfirmRegistrationHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	logger   Logger
	activity ActivitySink
}

// NewConfirmRegistrationHandler creates a handler with sane defaults.
func NewConfirmRegistrationHandler(repo RepositoryManager, tokens TokenService) *ConfirmRegistrationHandler {
	return &ConfirmRegistrationHandler{
		repo:     repo,
		tokens:   tokens,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (h *ConfirmRegistrationHandler) WithLogger(logger Logger) *ConfirmRegistrationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmRegistrationHandler) WithActivitySink(sink ActivitySink) *ConfirmRegistrationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ConfirmRegistrationHandler) Execute(ctx context.Context, event ConfirmRegistrationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmRegistrationHandler) execute(ctx context.Context, event ConfirmRegistrationMessage) error {
	resp := &ConfirmRegistrationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	payload, err := h.tokens.Decode(event.Token)
	if err != nil {
		h.logger.Debug("registration confirm token rejected", "error", err)
		return wrapInvalidOrExpiredToken(err)
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pending, err := h.repo.PendingRegistrations().ConfirmTx(ctx, tx, payload.SubjectID)
		if err != nil {
			if goerrors.Is(err, ErrPendingNotFound) {
				return ErrRegistrationNotFound
			}
			if goerrors.Is(err, ErrPendingExpired) {
				// the record stays put; sweep owns expired cleanup
				return wrapInvalidOrExpiredToken(err)
			}
			return err
		}

		user := &User{
			Nickname:     pending.Nickname,
			Email:        pending.Email,
			PasswordHash: pending.PasswordHash,
		}

		// a failure here (late uniqueness conflict) rolls the transaction
		// back and leaves the pending record for sweep
		user, err = h.repo.Users().CreateTx(ctx, tx, user)
		if err != nil {
			return err
		}

		if _, err := h.repo.Sessions().CreateTx(ctx, tx, &Session{UserID: user.ID}); err != nil {
			return err
		}

		if err := h.repo.PendingRegistrations().DeleteTx(ctx, tx, pending.ID); err != nil {
			return err
		}

		resp.User = user.Profile()
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm registration")
	}

	h.recordActivity(ctx, resp.User)

	event.OnResponse(resp)

	return nil
}

func (h *ConfirmRegistrationHandler) recordActivity(ctx context.Context, user *Profile) {
	if user == nil {
		return
	}

	evt := ActivityEvent{
		EventType: ActivityEventRegistrationDone,
		UserID:    user.ID,
		Metadata: map[string]any{
			"nickname": user.Nickname,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, evt); err != nil {
		h.logger.Warn("activity sink error during registration confirm: %v", err)
	}
}
