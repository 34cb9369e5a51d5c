package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

func HashPassword(password string) (string, error) {
	trimmed := strings.TrimSpace(password)
	if trimmed == "" {
		return "", fmt.Errorf("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(trimmed), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(password, hash string) bool {
	trimmedPassword := strings.TrimSpace(password)
	trimmedHash := strings.TrimSpace(hash)
	if trimmedPassword == "" || trimmedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(trimmedHash), []byte(trimmedPassword)) == nil
}

func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// AdminCredentials guard the admin API. The password is only ever held as a
// bcrypt hash taken from ADMIN_PASSWORD_HASH.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// Configured reports false when no hash is set; the admin API stays closed.
func (c AdminCredentials) Configured() bool {
	return NormalizeUsername(c.Username) != "" && strings.TrimSpace(c.PasswordHash) != ""
}

func (c AdminCredentials) Verify(username, password string) bool {
	if !c.Configured() {
		return false
	}
	want := NormalizeUsername(c.Username)
	got := NormalizeUsername(username)
	userOK := subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
	passOK := VerifyPassword(password, c.PasswordHash)
	return userOK && passOK
}
