package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 work factor for new hashes
	DefaultIterations = 310000
	// SaltLength is the number of random salt bytes per hash
	SaltLength = 16
	// KeyLength is the derived key size in bytes
	KeyLength = 32
)

// PasswordHash is a salted PBKDF2-SHA256 digest.
// Hash and Salt are standard base64 text.
type PasswordHash struct {
	Hash       string `json:"hash"`
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
}

// randRead is swapped in tests to simulate entropy failure
var randRead = rand.Read

// HashPassword derives a new hash with a fresh random salt
func HashPassword(password string) (*PasswordHash, error) {
	return hashPassword(password, DefaultIterations)
}

func hashPassword(password string, iterations int) (*PasswordHash, error) {
	salt := make([]byte, SaltLength)
	if _, err := randRead(salt); err != nil {
		return nil, fmt.Errorf("%w: failed to generate salt: %v", ErrCryptoFailure, err)
	}

	encodedSalt := base64.StdEncoding.EncodeToString(salt)
	key := deriveKey(password, encodedSalt, iterations)

	return &PasswordHash{
		Hash:       base64.StdEncoding.EncodeToString(key),
		Salt:       encodedSalt,
		Iterations: iterations,
	}, nil
}

// VerifyPassword checks a password against a stored hash.
// A wrong password yields false and a nil error; an error is returned only
// when the stored hash itself is unusable.
func VerifyPassword(password string, stored *PasswordHash) (bool, error) {
	if stored == nil || stored.Iterations <= 0 || stored.Salt == "" {
		return false, ErrMalformedHash
	}

	expected, err := base64.StdEncoding.DecodeString(stored.Hash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	derived := deriveKey(password, stored.Salt, stored.Iterations)

	// Length is public; only the byte comparison must be constant time.
	if len(derived) != len(expected) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(derived, expected) == 1, nil
}

// NeedsRehash reports whether the stored hash uses a weaker work factor
// than new hashes do.
func NeedsRehash(stored *PasswordHash) bool {
	return stored == nil || stored.Iterations < DefaultIterations
}

// The salt text, not its decoded bytes, is the PBKDF2 salt input. Hashes
// already stored in the users table were derived this way.
func deriveKey(password, salt string, iterations int) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), iterations, KeyLength, sha256.New)
}
