// Package cryptox wraps the hashing primitives used for credentials:
// bcrypt for passwords and SHA-256 for opaque refresh tokens.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cateringhub/backoffice/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

// NewOpaqueToken returns a random token for the client and the hash that is
// stored server-side.
func NewOpaqueToken() (raw string, hash string, err error) {
	raw, err = common.MakeRandHexString(refreshTokenBytes)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// HashToken returns the hex SHA-256 of an opaque token. Refresh tokens are
// high-entropy so a fast unsalted hash is enough for lookups.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// PasswordFingerprint returns a short digest of a stored password hash.
// Tokens carrying it stop matching once the password changes.
func PasswordFingerprint(passwordHash string) string {
	return HashToken(passwordHash)[:16]
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password []byte) (string, error) {
	h, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
// A malformed hash is reported as a mismatch.
func CheckPassword(hash string, password []byte) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), password) == nil
}
