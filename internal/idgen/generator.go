package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"sync"

	"github.com/jaevor/go-nanoid"
)

const (
	// ByteCount is the number of random bytes drawn per identifier.
	ByteCount = 8
	// Length is the length of a generated identifier.
	Length = ByteCount * 2
	// Alphabet is the set of characters identifiers are built from.
	Alphabet = "0123456789abcdef"
)

// DefaultSeed seeds the fixed source. Identifiers produced with it are
// reproducible across restarts, and therefore predictable.
var DefaultSeed = [32]byte{
	1, 255, 32, 6, 78, 90, 11, 54,
	28, 100, 64, 237, 58, 91, 121, 169,
	3, 96, 128, 8, 184, 219, 61, 55,
	204, 87, 130, 69, 25, 40, 72, 240,
}

// Generator produces hex identifiers from a seeded ChaCha8 stream.
type Generator struct {
	mu     sync.Mutex
	stream *mathrand.ChaCha8
}

// New creates a generator whose stream starts from seed.
func New(seed [32]byte) *Generator {
	return &Generator{stream: mathrand.NewChaCha8(seed)}
}

// NewFromEntropy creates a generator seeded from crypto/rand.
func NewFromEntropy() (*Generator, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	return New(seed), nil
}

// Generate returns the next identifier. Safe for concurrent use.
func (g *Generator) Generate() string {
	var raw [ByteCount]byte

	g.mu.Lock()
	// ChaCha8.Read never fails.
	_, _ = g.stream.Read(raw[:])
	g.mu.Unlock()

	return hex.EncodeToString(raw[:])
}

// NewRandom returns a stateless generator that draws every identifier from
// crypto/rand through nanoid, over the same alphabet and length.
func NewRandom() (func() string, error) {
	gen, err := nanoid.CustomASCII(Alphabet, Length)
	if err != nil {
		return nil, err
	}

	return gen, nil
}

// Source names an identifier source.
type Source string

const (
	// SourceFixed uses DefaultSeed.
	SourceFixed Source = "fixed"
	// SourceEntropy seeds the stream from crypto/rand at startup.
	SourceEntropy Source = "entropy"
	// SourceRandom draws every identifier from crypto/rand.
	SourceRandom Source = "random"
)

// NewSource builds the generate function for the named source.
func NewSource(source Source) (func() string, error) {
	switch source {
	case SourceFixed:
		return New(DefaultSeed).Generate, nil
	case SourceEntropy:
		g, err := NewFromEntropy()
		if err != nil {
			return nil, err
		}

		return g.Generate, nil
	case SourceRandom:
		return NewRandom()
	default:
		return nil, fmt.Errorf("unknown id source %q", source)
	}
}
