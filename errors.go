package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to API consumers. Token decode failures keep the
// wire-era diagnostic names so client error handling stays stable.
const (
	TextCodeWrongCredentials    = "WrongCredentials"
	TextCodeInvalidHash         = "InvalidHash"
	TextCodeSessionNotFound     = "SessionNotFound"
	TextCodeTokenEncodingFailed = "TokenEncodingFailed"
	TextCodeInvalidToken        = "InvalidToken"
	TextCodeInvalidSubject      = "InvalidSubject"
	TextCodeExpiredSignature    = "ExpiredSignature"
	TextCodeInvalidOrExpired    = "InvalidOrExpiredToken"
	TextCodeUnacceptableNonce   = "UnacceptableNonce"
	TextCodeNicknameUsed        = "NicknameAlreadyUsed"
	TextCodeEmailUsed           = "EmailAlreadyUsed"
	TextCodeRegistrationMissing = "RegistrationNotFound"
	TextCodeRecoveryMissing     = "RecoveryNotFound"
	TextCodeUserNotFound        = "UserNotFound"
)

// ErrWrongCredentials covers both an unknown identifier and a password
// mismatch; the message differs, the class does not.
var ErrWrongCredentials = goerrors.New("wrong nickname, email, or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongCredentials)

// ErrInvalidHash means hash computation or verification failed on malformed
// stored data. Distinct from a mismatch.
var ErrInvalidHash = goerrors.New("stored password hash is malformed", goerrors.CategoryInternal).
	WithTextCode(TextCodeInvalidHash)

// ErrSessionNotFound is returned when no session row resolves for a user.
var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound)

// ErrTokenEncodingFailed is returned when signing a token fails, e.g. the
// service was configured with an empty signing key.
var ErrTokenEncodingFailed = goerrors.New("failed to encode token", goerrors.CategoryInternal).
	WithTextCode(TextCodeTokenEncodingFailed)

// ErrTokenExpired: valid signature, expiry in the past.
var ErrTokenExpired = goerrors.New("token signature expired: ExpiredSignature", goerrors.CategoryAuth).
	WithTextCode(TextCodeExpiredSignature)

// ErrTokenSignatureInvalid: tampered token or wrong signing key.
var ErrTokenSignatureInvalid = goerrors.New("token verification failed: InvalidToken", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken)

// ErrTokenMalformed: the string is not a well-formed token at all.
var ErrTokenMalformed = goerrors.New("token is malformed: InvalidToken", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken)

// ErrTokenInvalidSubject: well-formed token whose subject claim is not a
// numeric id: InvalidSubject.
var ErrTokenInvalidSubject = goerrors.New("token subject is not a valid id: InvalidSubject", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSubject)

// ErrInvalidOrExpiredToken is the flow-level wrapper for every token decode
// failure plus pending-action expiry.
var ErrInvalidOrExpiredToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidOrExpired)

// wrapInvalidOrExpiredToken folds a decode or pending-expiry failure into the
// flow-level sentinel. The sentinel sits in the unwrap chain so callers can
// match it with goerrors.Is; the underlying failure survives in the metadata.
func wrapInvalidOrExpiredToken(cause error) *goerrors.Error {
	wrapped := goerrors.Wrap(ErrInvalidOrExpiredToken, ErrInvalidOrExpiredToken.Category, ErrInvalidOrExpiredToken.Message).
		WithTextCode(ErrInvalidOrExpiredToken.TextCode)
	if cause != nil {
		wrapped = wrapped.WithMetadata(map[string]any{"cause": cause.Error()})
	}
	return wrapped
}

// ErrUnacceptableNonce rejects a refresh token minted under a superseded
// session nonce even though its signature and expiry still verify.
var ErrUnacceptableNonce = goerrors.New("token nonce does not match the active session", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnacceptableNonce)

var ErrNicknameAlreadyUsed = goerrors.New("nickname is already used", goerrors.CategoryConflict).
	WithTextCode(TextCodeNicknameUsed)

var ErrEmailAlreadyUsed = goerrors.New("email is already used", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailUsed)

var ErrRegistrationNotFound = goerrors.New("registration request not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRegistrationMissing)

var ErrRecoveryNotFound = goerrors.New("recovery request not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecoveryMissing)

var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound)

// Registry-level kinds. The command handlers translate these into the
// flow-level taxonomy above.
var ErrPendingNotFound = goerrors.New("pending action not found", goerrors.CategoryNotFound).
	WithTextCode("PendingActionNotFound")

var ErrPendingExpired = goerrors.New("pending action expired", goerrors.CategoryValidation).
	WithTextCode("PendingActionExpired")

// ErrNoEmptyString rejects empty plaintext passwords before hashing.
var ErrNoEmptyString = goerrors.New("value must not be an empty string", goerrors.CategoryBadInput)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrTokenExpired) ||
		strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrTokenMalformed) ||
		strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
