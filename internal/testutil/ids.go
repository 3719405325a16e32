package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates pass ids "<prefix>-000001", "<prefix>-000002", ...
//
// Unlike compose.UUIDv7Generator, SequentialIDs can be reset, so the same
// scenario run twice produces identical pass ids for golden comparison.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "pass".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "pass"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements compose.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}

// Reset restarts the sequence. The next Generate returns "<prefix>-000001".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
