package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits  = "0123456789"
)

// codePattern alternates letters and digits, e.g. "A1B2C".
var codePattern = []byte{'L', 'D', 'L', 'D', 'L'}

// GenerateInviteCode returns a fresh code matching the fixed pattern. The code
// space is small on purpose (codes are typed by hand), so callers must retry on
// a uniqueness collision rather than assume the result is unused.
func GenerateInviteCode() string {
	var b strings.Builder
	b.Grow(len(codePattern))
	for _, t := range codePattern {
		if t == 'L' {
			b.WriteByte(codeLetters[randIndex(len(codeLetters))])
		} else {
			b.WriteByte(codeDigits[randIndex(len(codeDigits))])
		}
	}
	return b.String()
}

func randIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		panic(err)
	}
	return int(v.Int64())
}

// NormalizeAccount lower-cases and trims an account identifier. Every ingress
// boundary (HTTP decode, feed ingestion) must pass identifiers through here;
// nothing below the boundary compares raw-case values.
func NormalizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}
