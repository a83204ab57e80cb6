package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMnemonicRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	mnemonic, err := MnemonicFromKey(kp.Private)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(mnemonic), 24, "32 bytes of entropy encode to 24 words")

	recovered, err := KeyFromMnemonic(mnemonic)
	require.NoError(t, err)
	assert.Equal(t, kp.Private, recovered)
}

func TestKeyFromMnemonicInvalid(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
	}{
		{"garbage words", "definitely not a valid mnemonic phrase at all"},
		{"empty", ""},
		{"wrong word count", "abandon abandon abandon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeyFromMnemonic(tt.mnemonic)
			assert.Error(t, err)
		})
	}
}

func TestMnemonicFromZeroKeyRejected(t *testing.T) {
	_, err := MnemonicFromKey([32]byte{})
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}
