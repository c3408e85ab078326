package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable record IDs for tests.
//
// Unlike provenance.UUIDGenerator, the IDs are deterministic
// ("rec-0001", "rec-0002", ...), so the same test scenario produces
// byte-identical lineage rows and golden snapshots.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator with the given prefix.
//
// If prefix is empty, "rec" is used.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "rec"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID in sequence.
//
// Implements provenance.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence. After Reset(), the next Generate() returns
// the first ID again.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
