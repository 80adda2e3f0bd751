package auth

import (
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost mirrors the hardened cost used across deployments.
const DefaultBcryptCost = 14

// BcryptHasher implements the Hasher capability on top of x/crypto bcrypt.
type BcryptHasher struct {
	cost int
}

var _ Hasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a Hasher with the given cost; values below the
// bcrypt minimum fall back to the build-selected default.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = passwordHashCost()
	}
	return &BcryptHasher{cost: cost}
}

// Hash will generate a password hash
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	return string(out), nil
}

// Verify reports whether plaintext matches hash. A mismatch is (false, nil);
// an error means the stored hash itself is malformed.
func (h *BcryptHasher) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return true, nil
	}

	if goerrors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	return false, ErrInvalidHash
}

// HashPassword will generate a password hash with the default cost.
func HashPassword(password string) (string, error) {
	return NewBcryptHasher(passwordHashCost()).Hash(password)
}
