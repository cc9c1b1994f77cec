// Package tokens generates the opaque tokens embedded in referral deep links.
//
// A token is Length characters drawn uniformly from the 62-symbol alphanumeric
// alphabet. Bytes are read from a cryptographic source and mapped with
// rejection sampling, so every symbol has the same probability. At ~5.95 bits
// per symbol a 22-character token carries about 131 bits of entropy.
//
// Telegram accepts up to 64 characters in a /start payload, restricted to
// A-Z, a-z, 0-9, '_' and '-'; the alphanumeric alphabet is a subset of that.
package tokens

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// Alphabet is the set of symbols a token is made of.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Length is the number of symbols in a generated token.
	Length = 22

	// maxByte is the largest multiple of len(Alphabet) that fits in a byte;
	// bytes at or above it are discarded.
	maxByte = 256 - (256 % len(Alphabet))
)

// Generator produces tokens from an entropy source.
type Generator struct {
	// Source supplies random bytes. Nil means crypto/rand.Reader.
	Source io.Reader
	// Length overrides the token length when positive.
	Length int
}

var defaultGenerator = &Generator{}

// Generate returns a fresh token using crypto/rand.
func Generate() (string, error) {
	return defaultGenerator.Generate()
}

// Generate returns a fresh token. It fails only when the entropy source does.
func (g *Generator) Generate() (string, error) {
	src := g.Source
	if src == nil {
		src = rand.Reader
	}
	n := g.Length
	if n <= 0 {
		n = Length
	}

	out := make([]byte, 0, n)
	// Read a little more than needed per round; ~3% of bytes are rejected.
	buf := make([]byte, n+n/4+1)
	for len(out) < n {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("tokens: read entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s looks like a token this package generates.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
