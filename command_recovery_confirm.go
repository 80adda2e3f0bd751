package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ConfirmRecoveryMessage struct {
	Token      string `json:"token" doc:"Pending recovery token from the recovery link."`
	Password   string `json:"password" doc:"The new password."`
	OnResponse func(resp *ConfirmRecoveryResponse)
}

func (m ConfirmRecoveryMessage) Type() string { return "auth.recovery.confirm" }

// Validate will run validation rules
func (m ConfirmRecoveryMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 100)),
	)
}

type ConfirmRecoveryResponse struct {
	User *Profile `json:"user"`
}

type ConfirmRecoveryHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	hasher   Hasher
	logger   Logger
	activity ActivitySink
}

// NewConfirmRecoveryHandler creates a handler with sane defaults.
func NewConfirmRecoveryHandler(repo RepositoryManager, tokens TokenService) *ConfirmRecoveryHandler {
	return &ConfirmRecoveryHandler{
		repo:     repo,
		tokens:   tokens,
		hasher:   NewBcryptHasher(DefaultBcryptCost),
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (h *ConfirmRecoveryHandler) WithHasher(hasher Hasher) *ConfirmRecoveryHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *ConfirmRecoveryHandler) WithLogger(logger Logger) *ConfirmRecoveryHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmRecoveryHandler) WithActivitySink(sink ActivitySink) *ConfirmRecoveryHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ConfirmRecoveryHandler) Execute(ctx context.Context, event ConfirmRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during recovery confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmRecoveryHandler) execute(ctx context.Context, event ConfirmRecoveryMessage) error {
	resp := &ConfirmRecoveryResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid recovery confirmation")
	}

	payload, err := h.tokens.Decode(event.Token)
	if err != nil {
		h.logger.Debug("recovery confirm token rejected", "error", err)
		return wrapInvalidOrExpiredToken(err)
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pending, err := h.repo.PendingRecoveries().ConfirmTx(ctx, tx, payload.SubjectID)
		if err != nil {
			if goerrors.Is(err, ErrPendingNotFound) {
				return ErrRecoveryNotFound
			}
			if goerrors.Is(err, ErrPendingExpired) {
				return wrapInvalidOrExpiredToken(err)
			}
			return err
		}

		hash, err := h.hasher.Hash(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		// if the user vanished between request and confirm this rolls back
		// and the pending record stays for sweep
		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, pending.UserID, hash); err != nil {
			return err
		}

		// a password change revokes every outstanding token family
		if _, err := h.repo.Sessions().InvalidateTx(ctx, tx, pending.UserID); err != nil {
			if !goerrors.Is(err, ErrSessionNotFound) {
				return err
			}
		}

		if err := h.repo.PendingRecoveries().DeleteTx(ctx, tx, pending.ID); err != nil {
			return err
		}

		user, err := h.repo.Users().GetByIDTx(ctx, tx, pending.UserID)
		if err != nil {
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm recovery")
	}

	h.recordActivity(ctx, resp.User)

	event.OnResponse(resp)

	return nil
}

func (h *ConfirmRecoveryHandler) recordActivity(ctx context.Context, user *Profile) {
	if user == nil {
		return
	}

	evt := ActivityEvent{
		EventType:  ActivityEventRecoveryDone,
		UserID:     user.ID,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, evt); err != nil {
		h.logger.Warn("activity sink error during recovery confirm: %v", err)
	}
}
