//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race-enabled builds run bcrypt an order of magnitude slower, so tests use
// the library default cost instead of the production cost.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
