package id

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [16]byte

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// String returns a 32-char lowercase hex string.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Time returns the millisecond timestamp component.
func (i ID) Time() time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(i[0:8])))
}

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Parse decodes the String form.
func Parse(s string) (ID, error) {
	var out ID
	if len(s) != 32 {
		return out, fmt.Errorf("id: want 32 hex chars, got %d", len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, fmt.Errorf("id: %w", err)
	}
	return out, nil
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	clock clock.Clock

	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a Generator reading time from clk. Nil uses the wall
// clock.
func NewGenerator(clk clock.Clock) *Generator {
	if clk == nil {
		clk = clock.New()
	}
	return &Generator{clock: clk}
}

// Next returns a new ID. A clock that goes backwards is pinned to the last
// seen millisecond. A sequence overflow borrows the next millisecond instead
// of waiting for it, so Next never blocks.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.clock.Now().UnixMilli()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	switch {
	case ms > g.lastMs:
		g.sequence = 0
	case g.sequence == math.MaxUint64:
		ms++
		g.sequence = 0
	default:
		g.sequence++
	}
	g.lastMs = ms
	return makeID(ms, g.sequence)
}

func makeID(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}
