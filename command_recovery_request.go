package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RequestRecoveryMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *RequestRecoveryResponse)
}

func (m RequestRecoveryMessage) Type() string { return "auth.recovery.request" }

// Validate will run validation rules
func (m RequestRecoveryMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
	)
}

type RequestRecoveryResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type RequestRecoveryHandler struct {
	repo     RepositoryManager
	cfg      Config
	tokens   TokenService
	nonces   NonceSource
	notifier Notifier
	logger   Logger
	activity ActivitySink
}

// NewRequestRecoveryHandler creates a handler with sane defaults.
func NewRequestRecoveryHandler(repo RepositoryManager, cfg Config, tokens TokenService) *RequestRecoveryHandler {
	return &RequestRecoveryHandler{
		repo:     repo,
		cfg:      cfg,
		tokens:   tokens,
		nonces:   NewNonceSource(),
		notifier: noopNotifier{},
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (h *RequestRecoveryHandler) WithNonceSource(nonces NonceSource) *RequestRecoveryHandler {
	if nonces != nil {
		h.nonces = nonces
	}
	return h
}

func (h *RequestRecoveryHandler) WithNotifier(notifier Notifier) *RequestRecoveryHandler {
	h.notifier = normalizeNotifier(notifier)
	return h
}

func (h *RequestRecoveryHandler) WithLogger(logger Logger) *RequestRecoveryHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestRecoveryHandler) WithActivitySink(sink ActivitySink) *RequestRecoveryHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RequestRecoveryHandler) Execute(ctx context.Context, event RequestRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during recovery request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestRecoveryHandler) execute(ctx context.Context, event RequestRecoveryMessage) error {
	resp := &RequestRecoveryResponse{}
	var userID int64

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid recovery request")
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			return err
		}
		userID = user.ID

		// a repeated request while a live recovery exists returns the
		// existing record, same id and final_date
		pending, err := h.repo.PendingRecoveries().RequestTx(ctx, tx,
			&PendingRecovery{UserID: user.ID},
			h.cfg.GetRecoveryTTL(),
			RecoverySubject(user.ID))
		if err != nil {
			return err
		}

		token, err := h.tokens.Encode(pending.ID, h.nonces.Next(), h.cfg.GetRecoveryTTL())
		if err != nil {
			return ErrTokenEncodingFailed
		}

		resp.Token = token
		resp.Email = user.Email

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to request recovery")
	}

	if err := h.notifier.Send(ctx, NotificationRecoveryConfirm, resp.Email, map[string]any{
		"token": resp.Token,
	}); err != nil {
		h.logger.Warn("recovery notifier error: %v", err)
	}

	h.recordActivity(ctx, userID)

	event.OnResponse(resp)

	return nil
}

func (h *RequestRecoveryHandler) recordActivity(ctx context.Context, userID int64) {
	evt := ActivityEvent{
		EventType:  ActivityEventRecoveryStart,
		UserID:     userID,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, evt); err != nil {
		h.logger.Warn("activity sink error during recovery request: %v", err)
	}
}
