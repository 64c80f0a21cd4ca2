package partdata

import (
	"github.com/anacrolix/log"
	"github.com/pkg/errors"

	"github.com/hydranode/hydranode/rangelist"
)

// HashJob describes one asynchronous hash computation request handed to
// the external hasher: hash the bytes in [Range.Begin,Range.End] read via
// Read, then report the result through Done.
type HashJob struct {
	Key   ChunkKey
	Range rangelist.Range64
	Read  func(off uint64, length int) ([]byte, error)
	Done  func(computed Hash, err error)
}

// Hasher is the out-of-scope hash-job contract PartData depends on
// (spec.md's hashjob component, narrowed to the single entry point
// PartData needs): submit a job, get called back later, possibly from a
// different goroutine.
type Hasher interface {
	Submit(job HashJob)
}

// SetHasher wires the async hasher used for chunk verification and whole-
// file rehashes. Must be called before any write that could complete a
// chunk.
func (p *PartData) SetHasher(h Hasher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasher = h
}

// scheduleHashingFor looks at every chunk overlapping the just-written
// range and submits a hash job for any that just became complete but
// aren't yet verified (spec.md §4.G "Writing": "When the owning Chunk
// transitions to complete, its hash ... is scheduled asynchronously").
func (p *PartData) scheduleHashingFor(written rangelist.Range64) {
	p.mu.Lock()
	var jobs []HashJob
	for _, c := range p.chunks {
		if !c.Range.Overlaps(written) {
			continue
		}
		if c.Complete && !c.Verified && c.HasHash {
			key := c.Key
			r := c.Range
			jobs = append(jobs, HashJob{
				Key:   key,
				Range: r,
				Read:  p.readBytesUnlocked,
				Done: func(computed Hash, err error) {
					p.onChunkHashResult(key, computed, err)
				},
			})
		}
	}
	wholeFileDone := len(p.chunks) == 0 && p.complete.ContainsFull(rangelist.Range64{Begin: 0, End: p.Size - 1})
	p.mu.Unlock()

	for _, j := range jobs {
		if p.hasher != nil {
			p.hasher.Submit(j)
		}
	}
	if wholeFileDone {
		p.finishHashlessDownload()
	}
}

// readBytesUnlocked reads n bytes at off from the temp file for hashing.
// It takes no lock itself: the hasher runs asynchronously and storage
// reads are safe to run concurrently with writes to disjoint offsets
// (spec.md §5: "Hash workers read the file path only").
func (p *PartData) readBytesUnlocked(off uint64, n int) ([]byte, error) {
	return p.storage.ReadAt(off, n)
}

// onChunkHashResult reconciles a completed chunk hash job: HASH_VERIFIED
// marks the range verified; HASH_FAILED/err marks it corrupt (spec.md
// §4.G "Hash reconciliation").
func (p *PartData) onChunkHashResult(key ChunkKey, computed Hash, err error) {
	p.mu.Lock()
	c, ok := p.chunks[key]
	if !ok {
		p.mu.Unlock()
		return
	}
	if err != nil || computed != c.Hash {
		r := c.Range
		p.corruptionLocked(r)
		p.mu.Unlock()
		if err == nil {
			err = errors.Errorf("hash mismatch: want %x got %x", c.Hash, computed)
		}
		p.logger.Levelf(log.Debug, "partdata: chunk %v failed verification: %+v", key, errors.WithStack(err))
		if p.listener != nil {
			p.listener.OnPartDataEvent(p, EventCorruption, r)
		}
		return
	}
	r := c.Range
	p.verified.Merge(r)
	p.refreshAllChunksLocked(r)
	allVerified := p.allChunksVerifiedLocked()
	p.mu.Unlock()

	if p.listener != nil {
		p.listener.OnPartDataEvent(p, EventVerified, r)
	}
	if allVerified {
		p.finishVerifiedDownload()
	}
}

func (p *PartData) allChunksVerifiedLocked() bool {
	if len(p.chunks) == 0 {
		return false
	}
	for _, c := range p.chunks {
		if !c.Verified {
			return false
		}
	}
	return true
}

// corruptionLocked implements spec.md §4.G's `corruption(range)`: removes
// range from complete/verified and adds it to corrupt. Any rehash job for
// this range has already delivered its result by the time this runs, so
// there is nothing further to cancel in this implementation's synchronous
// per-chunk scheduling model.
func (p *PartData) corruptionLocked(r rangelist.Range64) {
	p.complete.Erase(r)
	p.verified.Erase(r)
	p.corrupt.Merge(r)
	p.refreshAllChunksLocked(r)
}

// finishHashlessDownload handles spec.md §8 scenario 1: a PartData with no
// registered hash sets whose complete range covers the whole file
// schedules a synthetic HASH_COMPLETE and renames to its destination.
func (p *PartData) finishHashlessDownload() {
	p.mu.Lock()
	if p.state == Completed {
		p.mu.Unlock()
		return
	}
	p.state = Completed
	p.mu.Unlock()

	if err := p.Flush(); err != nil {
		p.logger.Levelf(log.Debug, "partdata: flush before rename: %+v", err)
		return
	}
	if err := p.storage.Rename(p.Destination); err != nil {
		p.logger.Levelf(log.Debug, "partdata: rename to %s: %+v", p.Destination, errors.Wrap(err, "partdata: rename"))
		if p.listener != nil {
			p.listener.OnPartDataEvent(p, EventDiskError, rangelist.Range64{})
		}
		return
	}
	if p.listener != nil {
		p.listener.OnPartDataEvent(p, EventHashComplete, rangelist.Range64{Begin: 0, End: p.Size - 1})
	}
}

// finishVerifiedDownload completes a hashed download once every
// registered chunk has been individually verified.
func (p *PartData) finishVerifiedDownload() {
	p.mu.Lock()
	if p.state == Completed {
		p.mu.Unlock()
		return
	}
	p.state = Completed
	p.mu.Unlock()

	if err := p.storage.Rename(p.Destination); err != nil {
		p.logger.Levelf(log.Debug, "partdata: rename to %s: %+v", p.Destination, errors.Wrap(err, "partdata: rename"))
		if p.listener != nil {
			p.listener.OnPartDataEvent(p, EventDiskError, rangelist.Range64{})
		}
		return
	}
	if p.listener != nil {
		p.listener.OnPartDataEvent(p, EventHashComplete, rangelist.Range64{Begin: 0, End: p.Size - 1})
	}
}
