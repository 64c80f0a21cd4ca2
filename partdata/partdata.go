package partdata

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/bitmap"

	"github.com/hydranode/hydranode/rangelist"
)

// RunState is PartData's lifecycle state (spec.md §4.G "State machine").
type RunState int

const (
	Running RunState = iota
	Paused
	Stopped
	Completed
	Canceled
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Completed:
		return "completed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Events a PartData reports to its owner (typically the edonkey/peer
// session driving it, or sharedfile code promoting a completed download).
type EventKind int

const (
	EventVerified EventKind = iota
	EventCorruption
	EventHashComplete
	EventDiskError
	EventAutoPaused
	EventAutoResumed
)

// Listener receives PartData lifecycle events.
type Listener interface {
	OnPartDataEvent(p *PartData, kind EventKind, r rangelist.Range64)
}

const flushThreshold = 512 * 1024 // spec.md §4.G "Buffer flushing"

// PartData is Component G: a chunk-indexed partial download with
// overlapping hash trees, lock-based writer arbitration, availability
// tracking and on-the-fly verification (spec.md §3 "PartData", §4.G).
type PartData struct {
	mu sync.Mutex

	Size        uint64
	Location    string // temp file path
	Destination string // final rename target

	complete     rangelist.List
	verified     rangelist.List
	corrupt      rangelist.List
	dontDownload rangelist.List
	locked       rangelist.List

	buffer   map[uint64][]byte
	bufBytes int

	chunks     map[ChunkKey]*Chunk
	chunkSizes []ChunkSize // registered hash-tree granularities, insertion order
	partStatus map[ChunkSize]*bitmap.Bitmap

	sourceCnt     int
	fullSourceCnt int

	paused     bool
	stopped    bool
	autoPaused bool
	state      RunState

	storage  Storage
	hasher   Hasher
	listener Listener
	logger   log.Logger

	// chunkBoundaryMode controls whether size%chunkSize==0 gets an extra
	// zero-length tail chunk, per spec.md §9's Open Question: ed2k always
	// does (BoundaryExtraChunk); other future networks may not
	// (BoundaryExact). See DESIGN.md's Open Question decision.
	chunkBoundaryMode BoundaryMode
}

// BoundaryMode parameterises the size%chunkSize==0 convention per
// spec.md §9.
type BoundaryMode int

const (
	BoundaryExtraChunk BoundaryMode = iota // ed2k: always one more chunk for the empty tail
	BoundaryExact
)

// Storage is the on-disk backend a PartData writes through: a temp-file
// region for buffered writes and allocation, grounded on the teacher's
// storage/mmap_test.go + storage/bolt-piece_test.go split between an
// mmap-backed piece store and a bbolt-backed metadata sidecar.
type Storage interface {
	// WriteAt writes b at offset off into the temp file, growing it via
	// EnsureAllocated first if necessary.
	WriteAt(off uint64, b []byte) error
	// ReadAt reads n bytes at off, for hash-job consumption.
	ReadAt(off uint64, n int) ([]byte, error)
	// EnsureAllocated grows the temp file to at least size bytes.
	EnsureAllocated(size uint64) error
	// Rename moves the temp file to its final destination on completion.
	Rename(destination string) error
	// Close releases the temp file's resources (e.g. unmaps it).
	Close() error
}

// New creates a freshly allocated PartData of size bytes, writing into
// location and eventually renamed to destination.
func New(size uint64, location, destination string, storage Storage, listener Listener, logger log.Logger) *PartData {
	return &PartData{
		Size:              size,
		Location:          location,
		Destination:       destination,
		buffer:            make(map[uint64][]byte),
		chunks:            make(map[ChunkKey]*Chunk),
		partStatus:        make(map[ChunkSize]*bitmap.Bitmap),
		storage:           storage,
		listener:          listener,
		logger:            logger,
		state:             Running,
		chunkBoundaryMode: BoundaryExtraChunk,
	}
}

// State returns the current run state.
func (p *PartData) State() RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RegisterHashSet installs a hash tree of the given chunk size, one Chunk
// per hashes[i], covering [i*chunkSize, min(size,(i+1)*chunkSize)-1]
// (spec.md §3's "one Chunk per (chunkSize, index) for every hash set").
func (p *PartData) RegisterHashSet(cs ChunkSize, hashes []Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.partStatus[cs]; !ok {
		p.chunkSizes = append(p.chunkSizes, cs)
		p.partStatus[cs] = &bitmap.Bitmap{}
	}
	for i, h := range hashes {
		begin := uint64(i) * uint64(cs)
		if begin >= p.Size {
			break
		}
		end := begin + uint64(cs) - 1
		if end >= p.Size {
			end = p.Size - 1
		}
		key := ChunkKey{Size: cs, Index: i}
		c := &Chunk{Key: key, Range: rangelist.Range64{Begin: begin, End: end}, Hash: h, HasHash: true}
		p.chunks[key] = c
		p.refreshChunkLocked(c)
	}
}

// Hash re-exports wire.Hash's shape without importing wire directly, so
// partdata has no dependency on the codec package (spec.md's PartData is
// network-agnostic; only edonkey/peer feeds it wire-decoded hashes).
type Hash = [16]byte

// refreshChunkLocked recomputes a Chunk's complete/verified/partial flags
// and partStatus bit from the authoritative range lists (spec.md §4.G
// invariant 2).
func (p *PartData) refreshChunkLocked(c *Chunk) {
	c.Complete = p.complete.ContainsFull(c.Range)
	c.Verified = p.verified.ContainsFull(c.Range)
	c.Partial = !c.Complete && p.complete.Contains(c.Range)

	bm := p.partStatus[c.Key.Size]
	idx := bitmap.BitIndex(c.Key.Index)
	present := c.Verified || (!c.HasHash && c.Complete)
	if present {
		bm.Add(idx)
	} else {
		bm.Remove(idx)
	}
}

// refreshAllChunksLocked updates every registered chunk after a bulk range
// change (hash reconciliation, corruption).
func (p *PartData) refreshAllChunksLocked(r rangelist.Range64) {
	for _, c := range p.chunks {
		if c.Range.Overlaps(r) {
			p.refreshChunkLocked(c)
		}
	}
}

// PartStatus returns a snapshot of the presentation partmap for chunk size
// cs: index i is true iff chunk i is verified (or hashless-and-complete),
// per spec.md §4.G invariant 5.
func (p *PartData) PartStatus(cs ChunkSize) []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.chunkCountLocked(cs)
	out := make([]bool, n)
	bm := p.partStatus[cs]
	if bm == nil {
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = bm.Contains(bitmap.BitIndex(i))
	}
	return out
}

// chunkCountLocked returns how many chunks of size cs this PartData has,
// applying the boundary convention from spec.md §9.
func (p *PartData) chunkCountLocked(cs ChunkSize) int {
	n := int(p.Size / uint64(cs))
	rem := p.Size % uint64(cs)
	if rem != 0 {
		n++
	} else if p.chunkBoundaryMode == BoundaryExtraChunk && n > 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// AddSourceMask increments availability for every chunk whose bit is set
// in mask (spec.md §4.G "Source accounting").
func (p *PartData) AddSourceMask(cs ChunkSize, mask *roaring.Bitmap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceCnt++
	it := mask.Iterator()
	for it.HasNext() {
		idx := int(it.Next())
		if c, ok := p.chunks[ChunkKey{Size: cs, Index: idx}]; ok {
			c.Avail++
		}
	}
}

// RemoveSourceMask is the symmetric inverse of AddSourceMask. Underflowing
// either sourceCnt or a chunk's availability below zero is a programming
// error (spec.md: "Removal symmetric; underflow is an error"), so it
// panics rather than silently producing a negative count.
func (p *PartData) RemoveSourceMask(cs ChunkSize, mask *roaring.Bitmap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sourceCnt <= 0 {
		panic("partdata: sourceCnt underflow")
	}
	p.sourceCnt--
	it := mask.Iterator()
	for it.HasNext() {
		idx := int(it.Next())
		if c, ok := p.chunks[ChunkKey{Size: cs, Index: idx}]; ok {
			if c.Avail <= 0 {
				panic(fmt.Sprintf("partdata: chunk %v availability underflow", c.Key))
			}
			c.Avail--
		}
	}
}

// AddFullSource records a source offering the complete file.
func (p *PartData) AddFullSource() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullSourceCnt++
	p.sourceCnt++
}

// RemoveFullSource is the symmetric inverse of AddFullSource.
func (p *PartData) RemoveFullSource() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fullSourceCnt <= 0 || p.sourceCnt <= 0 {
		panic("partdata: full source count underflow")
	}
	p.fullSourceCnt--
	p.sourceCnt--
}

// candidateChunksLocked returns every registered chunk, ordered by
// spec.md §4.G's composite selection key, optionally restricted to an
// availability mask.
func (p *PartData) candidateChunksLocked(mask *roaring.Bitmap) []*Chunk {
	out := make([]*Chunk, 0, len(p.chunks))
	for _, c := range p.chunks {
		if mask != nil && !mask.Contains(uint32(c.Key.Index)) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return byCandidacy(out[i], out[j]) })
	return out
}
