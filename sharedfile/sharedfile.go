// Package sharedfile provides the narrow external contract a completed
// PartData hands off to (spec.md §1: "shared-file/metadata management" is
// explicitly not part of the core being specified here) plus a reference
// in-process catalog so tests can exercise the full download-to-completion
// path.
package sharedfile

import (
	"sync"

	"github.com/hydranode/hydranode/partdata"
)

// Catalog is the external contract: a completed download is published
// once with its destination path, size and hash. MemCatalog keys entries
// by destination path; Registry keys them by hash.
type Catalog interface {
	Publish(destination string, size uint64, hash partdata.Hash)
}

// MemCatalog is a reference in-process Catalog, sufficient for tests that
// need to observe PartData's completion hand-off without a real
// shared-file database.
type MemCatalog struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// Entry is one published file.
type Entry struct {
	Destination string
	Size        uint64
	Hash        partdata.Hash
}

// NewMemCatalog constructs an empty catalog.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{entries: make(map[string]Entry)}
}

// Publish implements Catalog.
func (c *MemCatalog) Publish(destination string, size uint64, hash partdata.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[destination] = Entry{Destination: destination, Size: size, Hash: hash}
}

// Lookup returns the published entry for destination, if any.
func (c *MemCatalog) Lookup(destination string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[destination]
	return e, ok
}

// Len reports how many files have been published.
func (c *MemCatalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
