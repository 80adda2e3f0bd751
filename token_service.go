package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenClaims is the two-claim shape shared by session-bound and
// pending-action tokens: a numeric subject plus the nonce active at mint
// time. For pending-action tokens the nonce travels for wire-format symmetry
// only and is never cross-checked against stored state.
type TokenClaims struct {
	jwt.RegisteredClaims
	Nonce int64 `json:"nonce"`
}

// TokenPayload is the verified content of a decoded token.
type TokenPayload struct {
	SubjectID int64
	Nonce     int64
}

// TokenService signs and verifies compact subject+nonce tokens.
type TokenService interface {
	// Encode mints a token expiring ttlSeconds from now. Negative values are
	// supported and produce an already-expired token.
	Encode(subjectID, nonce, ttlSeconds int64) (string, error)
	// Decode verifies signature and expiry, failing with ErrTokenExpired,
	// ErrTokenSignatureInvalid, ErrTokenMalformed, or ErrTokenInvalidSubject.
	Decode(token string) (TokenPayload, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	logger     Logger
	clock      Clock
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, logger Logger) TokenService {
	return NewTokenServiceWithClock(signingKey, logger, systemClock{})
}

// NewTokenServiceWithClock creates a TokenService with an injected clock,
// used by tests to evaluate expiry deterministically.
func NewTokenServiceWithClock(signingKey []byte, logger Logger, clock Clock) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		logger:     logger,
		clock:      clock,
	}
}

func (ts *TokenServiceImpl) Encode(subjectID, nonce, ttlSeconds int64) (string, error) {
	if len(ts.signingKey) == 0 {
		return "", ErrTokenEncodingFailed
	}

	now := ts.clock.Now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
		},
		Nonce: nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		ts.logger.Error("TokenService encode failed to sign claims", "error", err)
		return "", ErrTokenEncodingFailed
	}

	return signed, nil
}

func (ts *TokenServiceImpl) Decode(tokenString string) (TokenPayload, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService decode encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, ErrTokenSignatureInvalid
		}
		if len(ts.signingKey) == 0 {
			return nil, ErrTokenSignatureInvalid
		}
		return ts.signingKey, nil
	}, jwt.WithTimeFunc(ts.clock.Now))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return TokenPayload{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return TokenPayload{}, ErrTokenSignatureInvalid
		default:
			return TokenPayload{}, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return TokenPayload{}, ErrTokenMalformed
	}

	subjectID, err := strconv.ParseInt(claims.RegisteredClaims.Subject, 10, 64)
	if err != nil {
		return TokenPayload{}, ErrTokenInvalidSubject
	}

	return TokenPayload{SubjectID: subjectID, Nonce: claims.Nonce}, nil
}
