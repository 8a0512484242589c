package trackerimport

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	uidLength      = 11
	uidFirstChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	uidLaterChars  = uidFirstChars + "0123456789"
)

// UIDGenerator produces stable identifiers for events submitted without
// one. The random source is injected so tests can make generation
// deterministic.
type UIDGenerator struct {
	intn func(n int) int
}

// NewUIDGenerator returns a generator backed by crypto/rand.
func NewUIDGenerator() *UIDGenerator {
	return &UIDGenerator{intn: cryptoIntn}
}

// NewUIDGeneratorWithSource returns a generator using the supplied
// bounded random function.
func NewUIDGeneratorWithSource(intn func(n int) int) *UIDGenerator {
	return &UIDGenerator{intn: intn}
}

// Generate returns an 11-character identifier: a letter followed by ten
// alphanumerics.
func (g *UIDGenerator) Generate() string {
	buf := make([]byte, uidLength)
	buf[0] = uidFirstChars[g.intn(len(uidFirstChars))]
	for i := 1; i < uidLength; i++ {
		buf[i] = uidLaterChars[g.intn(len(uidLaterChars))]
	}
	return string(buf)
}

// IsValidUID reports whether s has the identifier shape produced by
// Generate.
func IsValidUID(s string) bool {
	if len(s) != uidLength {
		return false
	}
	if !isLetter(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isLetter(c) && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func cryptoIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return int(v.Int64())
}
