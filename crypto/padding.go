package crypto

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

const (
	// MinPlaintextSize and MaxPlaintextSize bound the plaintext lengths the
	// padding schedule covers. MaxPlaintextSize fits the 2-byte length
	// prefix.
	MinPlaintextSize = 1
	MaxPlaintextSize = 65535

	// lengthPrefixSize is the size of the big-endian length prefix.
	lengthPrefixSize = 2
)

// calcPaddedLen returns the padded length for a plaintext of n bytes. The
// schedule is a function of length only, never content: chunk size 32 up to
// 256 bytes, then nextPowerOfTwo/8 beyond that. Both sides must agree on
// this exact schedule to strip padding.
func calcPaddedLen(n int) int {
	if n <= 32 {
		return 32
	}

	nextPower := 1 << bits.Len(uint(n-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((n + chunk - 1) / chunk)
}

// pad prefixes the plaintext with its length and zero-fills to the padded
// length.
func pad(plaintext []byte) ([]byte, error) {
	n := len(plaintext)
	if n < MinPlaintextSize || n > MaxPlaintextSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPlaintextLength, n)
	}

	padded := make([]byte, lengthPrefixSize+calcPaddedLen(n))
	binary.BigEndian.PutUint16(padded[:lengthPrefixSize], uint16(n))
	copy(padded[lengthPrefixSize:], plaintext)
	return padded, nil
}

// unpad recovers the plaintext from a padded buffer, rejecting any buffer
// whose length prefix is out of range, whose padding is not all zeros, or
// that is too short for its declared length.
func unpad(padded []byte) ([]byte, error) {
	if len(padded) < lengthPrefixSize {
		return nil, fmt.Errorf("%w: truncated padding", ErrInvalidPayload)
	}

	n := int(binary.BigEndian.Uint16(padded[:lengthPrefixSize]))
	if n < MinPlaintextSize || n > MaxPlaintextSize {
		return nil, fmt.Errorf("%w: declared length %d", ErrInvalidPayload, n)
	}
	if lengthPrefixSize+n > len(padded) {
		return nil, fmt.Errorf("%w: declared length exceeds buffer", ErrInvalidPayload)
	}

	for _, b := range padded[lengthPrefixSize+n:] {
		if b != 0 {
			return nil, fmt.Errorf("%w: nonzero padding", ErrInvalidPayload)
		}
	}

	out := make([]byte, n)
	copy(out, padded[lengthPrefixSize:lengthPrefixSize+n])
	return out, nil
}
