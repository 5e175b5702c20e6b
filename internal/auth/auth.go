package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCostFactor = 12

// PasswordEncryptor encrypts passwords for storage and verifies bind
// credentials against the stored form. Implementations must satisfy
// Matches(p, Encrypt(p)) for every password, including the empty one.
type PasswordEncryptor interface {
	Encrypt(password string) (string, error)
	Matches(password, encrypted string) bool
}

// BcryptEncryptor is the salted encryptor: two encryptions of the same
// password yield different ciphertexts, and both verify.
type BcryptEncryptor struct{}

func (BcryptEncryptor) Encrypt(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCostFactor)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (BcryptEncryptor) Matches(password, encrypted string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(encrypted), []byte(password))
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			slog.Warn("Error comparing password hash", slog.Any("error", err))
		}
		return false
	}
	return true
}

// Sha256Encryptor is the unsalted digest encryptor, kept for user stores
// migrated from deployments that predate salting. Encryption is
// deterministic, so the match check is digest equality.
type Sha256Encryptor struct{}

func (Sha256Encryptor) Encrypt(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (Sha256Encryptor) Matches(password, encrypted string) bool {
	sum := sha256.Sum256([]byte(password))
	digest := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(digest), []byte(encrypted)) == 1
}
