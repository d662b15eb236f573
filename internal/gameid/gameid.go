// Package gameid generates the short codes players type to join a game.
package gameid

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Crockford's base32 alphabet, upper case: no I, L, O or U.
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// DefaultLength gives 32^6 (about a billion) codes, plenty for live games.
const DefaultLength = 6

// RandSource interface for dependency injection of randomness
type RandSource interface {
	IntN(n int) int
}

// Generator produces game codes of a fixed length
type Generator struct {
	randSource RandSource
	length     int
}

// NewGenerator creates a generator. A nil RandSource uses nanoid's
// crypto-backed generator; length <= 0 uses DefaultLength.
func NewGenerator(randSource RandSource, length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{randSource: randSource, length: length}
}

// Generate creates a new code with the default generator
func Generate() (string, error) {
	return NewGenerator(nil, DefaultLength).Generate()
}

// Length returns the code length this generator produces.
func (g *Generator) Length() int {
	return g.length
}

// Generate creates a new game code
func (g *Generator) Generate() (string, error) {
	if g.randSource == nil {
		code, err := gonanoid.Generate(alphabet, g.length)
		if err != nil {
			return "", fmt.Errorf("failed to generate game code: %w", err)
		}
		return code, nil
	}

	// Deterministic path for tests
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		b.WriteByte(alphabet[g.randSource.IntN(len(alphabet))])
	}
	return b.String(), nil
}

// Normalize canonicalises user input: surrounding space is dropped and
// letters are upper-cased.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks that a code has the given length and only uses the
// generator's alphabet
func Validate(code string, length int) error {
	if len(code) != length {
		return fmt.Errorf("game code must be exactly %d characters, got %d", length, len(code))
	}

	for i, char := range code {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}

	return nil
}
