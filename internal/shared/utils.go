// Package shared holds small helpers used by both the CLI and the in-memory
// backend.
package shared

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString returns size random bytes encoded as hex, so the result
// is 2*size characters long. It is used for unguessable link ids.
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray zeroes b. Passwords read from the terminal are wiped once
// they have been handed to the service layer.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
