// Package partdata implements Component G of the networking subsystem: a
// chunk-indexed partial-download model with overlapping hash trees,
// lock-based writer arbitration, availability-driven chunk selection, and
// on-the-fly verification (spec.md §3 "PartData", §4.G).
//
// Grounded on the teacher's piece state machine (peer.go's
// incrementPendingWrites/waitNoPendingWrites/pendRequest/queuePieceCheck)
// generalized from BitTorrent's single fixed piece size to ed2k's multiple
// overlapping hash-tree chunk sizes, and on storage/mmap_test.go +
// storage/bolt-piece_test.go for the two concrete storage backends this
// package wires: a temp-file mmap region and a bbolt-backed `.dat` sidecar.
package partdata

import (
	"fmt"

	"github.com/hydranode/hydranode/rangelist"
	"github.com/hydranode/hydranode/wire"
)

// ChunkSize identifies which hash tree a Chunk belongs to (spec.md's
// `chunks: set<Chunk>` is "one Chunk per (chunkSize, index) for every hash
// set registered").
type ChunkSize uint64

// ChunkKey uniquely identifies a Chunk within a PartData.
type ChunkKey struct {
	Size  ChunkSize
	Index int
}

func (k ChunkKey) String() string { return fmt.Sprintf("%d:%d", uint64(k.Size), k.Index) }

// Chunk is one addressable, independently hashable region of a PartData
// (spec.md §3's Chunk fields).
type Chunk struct {
	Key   ChunkKey
	Range rangelist.Range64
	Hash  wire.Hash
	// HasHash distinguishes a chunk that belongs to a real hash set (Hash
	// is meaningful) from the size-is-a-hash-tree's-only-member case some
	// callers synthesize for hashless downloads.
	HasHash bool

	Avail    int // availability count across all sources offering this chunk
	UseCount int // number of LockedRanges currently drawing from this chunk

	Complete bool
	Verified bool
	Partial  bool
}

// byCandidacy orders Chunk by the composite selection key of spec.md
// §4.G's "Range selection": not-complete chunks with availability first,
// higher availability, then lower use-count, then lower begin offset.
// Returns true if a should be preferred over b.
func byCandidacy(a, b *Chunk) bool {
	aOK := !a.Complete && a.Avail > 0
	bOK := !b.Complete && b.Avail > 0
	if aOK != bOK {
		return aOK
	}
	if a.Avail != b.Avail {
		return a.Avail > b.Avail
	}
	if a.UseCount != b.UseCount {
		return a.UseCount < b.UseCount
	}
	return a.Range.Begin < b.Range.Begin
}
