// Package credential hashes and verifies account passwords.
package credential

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/pratik-me/e-shop/internal/apperror"
)

// bcrypt work factor matches what the existing account records were hashed
// with; raising it requires a rehash-on-login migration first.
const hashCost = 10

type Manager struct {
	cost int
}

func NewManager() *Manager {
	return &Manager{cost: hashCost}
}

// Hash derives a salted bcrypt hash of password.
func (m *Manager) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return "", apperror.Database("Failed to hash password.", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash.
func (m *Manager) Compare(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RejectIfUnchanged fails a password reset when the new password matches the
// existing hash, preventing no-op resets.
func (m *Manager) RejectIfUnchanged(oldHash, newPassword string) error {
	if m.Compare(newPassword, oldHash) {
		return apperror.Validation("New password cannot be same as old password.")
	}
	return nil
}
