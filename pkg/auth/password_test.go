package auth

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	stored, err := HashPassword("hunter2-but-longer")
	require.NoError(t, err)

	assert.Equal(t, DefaultIterations, stored.Iterations)

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	require.NoError(t, err)
	assert.Len(t, salt, SaltLength)

	key, err := base64.StdEncoding.DecodeString(stored.Hash)
	require.NoError(t, err)
	assert.Len(t, key, KeyLength)
}

func TestHashPassword_FreshSaltPerCall(t *testing.T) {
	first, err := HashPassword("same password")
	require.NoError(t, err)
	second, err := HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestHashPassword_EntropyFailure(t *testing.T) {
	orig := randRead
	randRead = func(b []byte) (int, error) {
		return 0, errors.New("entropy source unavailable")
	}
	defer func() { randRead = orig }()

	stored, err := HashPassword("anything")
	assert.Nil(t, stored)
	assert.ErrorIs(t, err, ErrCryptoFailure)
}

func TestVerifyPassword(t *testing.T) {
	stored, err := HashPassword("s3cret-Pa55")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct password", "s3cret-Pa55", true},
		{"wrong password", "s3cret-Pa56", false},
		{"empty password", "", false},
		{"case differs", "S3CRET-pA55", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyPassword(tt.password, stored)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVerifyPassword_StoredIterationsRespected(t *testing.T) {
	stored, err := hashPassword("legacy", 1000)
	require.NoError(t, err)

	ok, err := VerifyPassword("legacy", stored)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, NeedsRehash(stored))
}

func TestVerifyPassword_LengthMismatch(t *testing.T) {
	stored, err := hashPassword("pw", 1000)
	require.NoError(t, err)
	stored.Hash = base64.StdEncoding.EncodeToString([]byte("short"))

	ok, err := VerifyPassword("pw", stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPassword_MalformedStoredHash(t *testing.T) {
	tests := []struct {
		name   string
		stored *PasswordHash
	}{
		{"nil", nil},
		{"zero iterations", &PasswordHash{Hash: "aGFzaA==", Salt: "c2FsdA==", Iterations: 0}},
		{"empty salt", &PasswordHash{Hash: "aGFzaA==", Iterations: 1000}},
		{"bad base64 hash", &PasswordHash{Hash: "!!!", Salt: "c2FsdA==", Iterations: 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyPassword("pw", tt.stored)
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrMalformedHash)
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	assert.True(t, NeedsRehash(nil))
	assert.True(t, NeedsRehash(&PasswordHash{Iterations: 100000}))
	assert.False(t, NeedsRehash(&PasswordHash{Iterations: DefaultIterations}))
}
