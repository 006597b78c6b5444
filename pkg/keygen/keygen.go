package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// Prefix marks a string as an API key issued by this service.
	Prefix = "tvly-"

	// BodyLength is the number of hex characters following Prefix.
	// 32 hex characters carry 128 bits of entropy.
	BodyLength = 32

	// Length is the total length of a generated key.
	Length = len(Prefix) + BodyLength
)

// Generator produces new secret keys.
type Generator interface {
	Generate() string
}

// Random is the production Generator backed by crypto/rand.
type Random struct{}

// Generate returns a new secret key. It panics if the system entropy source
// fails, since no key can be issued safely without it.
func (Random) Generate() string {
	return Generate()
}

// Generate returns Prefix followed by BodyLength random hex characters.
func Generate() string {
	buf := make([]byte, BodyLength/2)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("keygen: entropy source failed: %v", err))
	}
	return Prefix + hex.EncodeToString(buf)
}

// Valid reports whether key has the shape of a generated key.
func Valid(key string) bool {
	if len(key) != Length || !strings.HasPrefix(key, Prefix) {
		return false
	}
	for _, c := range key[len(Prefix):] {
		if !isHex(c) {
			return false
		}
	}
	return true
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
