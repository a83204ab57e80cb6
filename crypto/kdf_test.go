package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey(t *testing.T) {
	salt, err := GenerateSalt(16)
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  []byte
		salt    []byte
		wantErr error
	}{
		{
			name:   "valid secret and salt",
			secret: []byte("correct horse battery staple"),
			salt:   salt,
		},
		{
			name:    "empty secret",
			secret:  nil,
			salt:    salt,
			wantErr: ErrEmptySecret,
		},
		{
			name:    "short salt",
			secret:  []byte("secret"),
			salt:    []byte("tooshort"),
			wantErr: ErrInvalidSaltLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveMasterKey(tt.secret, tt.salt)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, MasterKeySize)
		})
	}
}

func TestDeriveMasterKeyDeterministic(t *testing.T) {
	secret := []byte("correct horse battery staple")
	salt := make([]byte, 32)

	key1, err := DeriveMasterKey(secret, salt)
	require.NoError(t, err)
	key2, err := DeriveMasterKey(secret, salt)
	require.NoError(t, err)

	assert.Equal(t, key1, key2, "same inputs must produce the same master key")

	other, err := DeriveMasterKey([]byte("different secret"), salt)
	require.NoError(t, err)
	assert.NotEqual(t, key1, other)
}

func TestDeriveDatabaseKey(t *testing.T) {
	masterKey := make([]byte, MasterKeySize)

	dbKey, err := DeriveDatabaseKey(masterKey)
	require.NoError(t, err)
	assert.Len(t, dbKey, MasterKeySize)
	assert.NotEqual(t, masterKey, dbKey, "database key must differ from master key")

	again, err := DeriveDatabaseKey(masterKey)
	require.NoError(t, err)
	assert.Equal(t, dbKey, again, "derivation is a pure function")

	_, err = DeriveDatabaseKey(masterKey[:16])
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt(32)
	require.NoError(t, err)
	b, err := GenerateSalt(32)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
