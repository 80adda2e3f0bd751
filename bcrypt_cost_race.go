//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// Race-enabled builds run slow enough already; drop to the library default.
	return bcrypt.DefaultCost
}
