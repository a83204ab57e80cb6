package envelope

import (
	"crypto/rand"
	"math/big"
)

// TimestampRange is the randomization window applied to seal and wrap
// timestamps, in seconds (2 days either side of the true send time).
const TimestampRange = 172800

// randomizeTimestamp returns ts shifted by a uniform random offset in
// [-rangeSeconds, +rangeSeconds], excluding zero: an obfuscated timestamp
// never equals the true send time.
func randomizeTimestamp(ts int64, rangeSeconds int64) int64 {
	if rangeSeconds <= 0 {
		return ts
	}

	// Draw a magnitude in [1, rangeSeconds] and a sign bit.
	magnitude, err := rand.Int(rand.Reader, big.NewInt(rangeSeconds))
	if err != nil {
		// Reading the OS entropy pool does not fail in practice; fall back
		// to the maximum offset rather than the true time.
		return ts - rangeSeconds
	}
	offset := magnitude.Int64() + 1

	sign, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return ts - offset
	}
	if sign.Int64() == 0 {
		offset = -offset
	}

	return ts + offset
}
