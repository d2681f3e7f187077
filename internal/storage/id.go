package storage

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// IDLength is the number of hex characters in an artifact id (48 bits).
const IDLength = 12

// IDGenerator mints random 48-bit ids encoded as lowercase hex.
// The bytes come from the leading random octets of a version 4 UUID, so the
// default source is crypto/rand.
type IDGenerator struct {
	rand io.Reader
}

// NewIDGenerator returns a generator reading from r, or from crypto/rand when r is nil.
func NewIDGenerator(r io.Reader) *IDGenerator {
	return &IDGenerator{rand: r}
}

// Generate returns a new candidate id. It fails only when the random source fails.
func (g *IDGenerator) Generate() (string, error) {
	var (
		u   uuid.UUID
		err error
	)
	if g.rand != nil {
		u, err = uuid.NewRandomFromReader(g.rand)
	} else {
		u, err = uuid.NewRandom()
	}
	if err != nil {
		return "", fmt.Errorf("%w: read random source: %v", ErrStorageUnavailable, err)
	}
	// Octets 0..5 carry no version or variant bits.
	return hex.EncodeToString(u[:IDLength/2]), nil
}

// ValidID reports whether id has the exact artifact id shape: 12 lowercase hex characters.
// Anything else, including path separators, dots and NUL bytes, is rejected.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
