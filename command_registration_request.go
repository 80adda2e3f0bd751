package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RequestRegistrationMessage struct {
	Nickname   string `json:"nickname" example:"Robert_Brown" doc:"Unique nickname."`
	Email      string `json:"email" example:"Robert_Brown@gmail.com" doc:"Unique email."`
	Password   string `json:"password" example:"some_secret_word" doc:"Plaintext password, hashed before storage."`
	OnResponse func(resp *RequestRegistrationResponse)
}

func (m RequestRegistrationMessage) Type() string { return "auth.registration.request" }

// Validate will run validation rules
func (m RequestRegistrationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Nickname, validation.Required, validation.Length(3, 100)),
		validation.Field(&m.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 100)),
	)
}

// RequestRegistrationResponse echoes the subject and carries the pending
// token. The password is never echoed.
type RequestRegistrationResponse struct {
	Token    string `json:"token"`
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
}

type RequestRegistrationHandler struct {
	repo     RepositoryManager
	cfg      Config
	tokens   TokenService
	hasher   Hasher
	nonces   NonceSource
	notifier Notifier
	logger   Logger
	activity ActivitySink
}

// NewRequestRegistrationHandler creates a handler with sane defaults.
func NewRequestRegistrationHandler(repo RepositoryManager, cfg Config, tokens TokenService) *RequestRegistrationHandler {
	return &RequestRegistrationHandler{
		repo:     repo,
		cfg:      cfg,
		tokens:   tokens,
		hasher:   NewBcryptHasher(DefaultBcryptCost),
		nonces:   NewNonceSource(),
		notifier: noopNotifier{},
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (h *RequestRegistrationHandler) WithHasher(hasher Hasher) *RequestRegistrationHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *RequestRegistrationHandler) WithNonceSource(nonces NonceSource) *RequestRegistrationHandler {
	if nonces != nil {
		h.nonces = nonces
	}
	return h
}

func (h *RequestRegistrationHandler) WithNotifier(notifier Notifier) *RequestRegistrationHandler {
	h.notifier = normalizeNotifier(notifier)
	return h
}

func (h *RequestRegistrationHandler) WithLogger(logger Logger) *RequestRegistrationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestRegistrationHandler) WithActivitySink(sink ActivitySink) *RequestRegistrationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RequestRegistrationHandler) Execute(ctx context.Context, event RequestRegistrationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestRegistrationHandler) execute(ctx context.Context, event RequestRegistrationMessage) error {
	resp := &RequestRegistrationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration request")
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// nickname conflicts are reported before email conflicts. A live
		// pending registration for the exact same subject is not a conflict:
		// it is the record we are about to return.
		taken, err := h.repo.Users().ExistsNicknameTx(ctx, tx, event.Nickname)
		if err != nil {
			return err
		}
		if !taken {
			taken, err = h.repo.PendingRegistrations().ExistsLiveTx(ctx, tx,
				RegistrationNicknameConflict(event.Nickname, event.Email))
			if err != nil {
				return err
			}
		}
		if taken {
			return ErrNicknameAlreadyUsed
		}

		taken, err = h.repo.Users().ExistsEmailTx(ctx, tx, event.Email)
		if err != nil {
			return err
		}
		if !taken {
			taken, err = h.repo.PendingRegistrations().ExistsLiveTx(ctx, tx,
				RegistrationEmailConflict(event.Nickname, event.Email))
			if err != nil {
				return err
			}
		}
		if taken {
			return ErrEmailAlreadyUsed
		}

		hash, err := h.hasher.Hash(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		record := &PendingRegistration{
			Nickname:     event.Nickname,
			Email:        event.Email,
			PasswordHash: hash,
		}

		pending, err := h.repo.PendingRegistrations().RequestTx(ctx, tx, record,
			h.cfg.GetRegistrationTTL(),
			RegistrationSubject(event.Nickname, event.Email))
		if err != nil {
			return err
		}

		// the nonce travels for wire-format symmetry with session tokens and
		// is never checked at confirm time
		token, err := h.tokens.Encode(pending.ID, h.nonces.Next(), h.cfg.GetRegistrationTTL())
		if err != nil {
			return ErrTokenEncodingFailed
		}

		resp.Token = token
		resp.Nickname = pending.Nickname
		resp.Email = pending.Email

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to request registration")
	}

	if err := h.notifier.Send(ctx, NotificationRegistrationConfirm, resp.Email, map[string]any{
		"nickname": resp.Nickname,
		"token":    resp.Token,
	}); err != nil {
		h.logger.Warn("registration notifier error: %v", err)
	}

	h.recordActivity(ctx, ActivityEventRegistrationStart, map[string]any{
		"nickname": resp.Nickname,
		"email":    resp.Email,
	})

	event.OnResponse(resp)

	return nil
}

func (h *RequestRegistrationHandler) recordActivity(ctx context.Context, eventType ActivityEventType, metadata map[string]any) {
	evt := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, evt); err != nil {
		h.logger.Warn("activity sink error during registration request: %v", err)
	}
}
