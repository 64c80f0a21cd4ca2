package partdata

import (
	"errors"

	"github.com/RoaringBitmap/roaring"

	"github.com/hydranode/hydranode/rangelist"
)

// ErrNotWritable is returned by getRange/getLock when no lockable byte
// remains, or by write when the PartData is not Running.
var ErrNotWritable = errors.New("partdata: no writable range available")

// UsedRange is a reference-counted claim on a candidate region, narrowed
// from a Chunk's range or (for hashless downloads) from the first
// not-complete/not-locked/not-dontDownload span (spec.md §4.G
// "Range selection"). It does not itself reserve bytes; callers pull
// LockedRanges from it via GetLock.
type UsedRange struct {
	p     *PartData
	chunk *Chunk // nil for an unanchored, hashless selection
	Range rangelist.Range64
}

// GetRange implements spec.md §4.G's `getRange(size, availability_mask?)`.
func (p *PartData) GetRange(maxLen uint64, mask *roaring.Bitmap) (*UsedRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.chunks) == 0 {
		if p.Size == 0 {
			return nil, ErrNotWritable
		}
		r, ok := p.firstWritableLocked(0, p.Size-1, maxLen)
		if !ok {
			return nil, ErrNotWritable
		}
		return &UsedRange{p: p, Range: r}, nil
	}

	for _, c := range p.candidateChunksLocked(mask) {
		if c.Complete {
			continue
		}
		if r, ok := p.firstWritableLocked(c.Range.Begin, c.Range.End, maxLen); ok {
			c.UseCount++
			return &UsedRange{p: p, chunk: c, Range: r}, nil
		}
	}
	return nil, ErrNotWritable
}

// firstWritableLocked finds the first sub-range of [begin,end] (clamped to
// maxLen bytes) that avoids complete, locked and dontDownload: it merges
// all three blocking lists restricted to [begin,end] and returns the first
// gap between them.
func (p *PartData) firstWritableLocked(begin, end, maxLen uint64) (rangelist.Range64, bool) {
	if begin > end {
		return rangelist.Range64{}, false
	}
	var blocked rangelist.List
	for _, l := range []*rangelist.List{&p.locked, &p.complete, &p.dontDownload} {
		for _, r := range l.Ranges() {
			if r.Overlaps(rangelist.Range64{Begin: begin, End: end}) {
				if r.Begin < begin {
					r.Begin = begin
				}
				if r.End > end {
					r.End = end
				}
				blocked.Merge(r)
			}
		}
	}

	cur := begin
	for _, b := range blocked.Ranges() {
		if b.Begin > cur {
			last := b.Begin - 1
			if maxLen > 0 && cur+maxLen-1 < last {
				last = cur + maxLen - 1
			}
			return rangelist.Range64{Begin: cur, End: last}, true
		}
		if b.End+1 > cur {
			cur = b.End + 1
		}
	}
	if cur <= end {
		last := end
		if maxLen > 0 && cur+maxLen-1 < last {
			last = cur + maxLen - 1
		}
		return rangelist.Range64{Begin: cur, End: last}, true
	}
	return rangelist.Range64{}, false
}

// Release drops the UsedRange's claim on its chunk's use-count. Callers
// that obtained a LockedRange must drop it first.
func (u *UsedRange) Release() {
	if u.chunk == nil {
		return
	}
	u.p.mu.Lock()
	defer u.p.mu.Unlock()
	if u.chunk.UseCount > 0 {
		u.chunk.UseCount--
	}
}

// LockedRange is a disjoint sub-range of a UsedRange currently reserved
// for writing (spec.md §4.G "Locking"). Dropping it removes it from
// `locked`.
type LockedRange struct {
	p     *PartData
	Range rangelist.Range64
	freed bool
}

// GetLock narrows u to the next writable sub-range up to maxLen bytes and
// inserts it into `locked` (spec.md §4.G: "skipping locked/complete/
// dontDownload").
func (u *UsedRange) GetLock(maxLen uint64) (*LockedRange, error) {
	u.p.mu.Lock()
	defer u.p.mu.Unlock()
	r, ok := u.p.firstWritableLocked(u.Range.Begin, u.Range.End, maxLen)
	if !ok {
		return nil, ErrNotWritable
	}
	u.p.locked.Merge(r)
	return &LockedRange{p: u.p, Range: r}, nil
}

// Free releases the lock, removing its range from `locked`. Safe to call
// multiple times.
func (l *LockedRange) Free() {
	if l.freed {
		return
	}
	l.freed = true
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	l.p.locked.Erase(l.Range)
}

// Write implements spec.md §4.G's `LockedRange::write(offset, bytes)`:
// offset/len must lie within the lock; data is buffered and
// [offset,offset+len-1] merges into `complete`.
func (l *LockedRange) Write(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	end := offset + uint64(len(data)) - 1
	if offset < l.Range.Begin || end > l.Range.End {
		return errors.New("partdata: write outside locked range")
	}
	l.p.mu.Lock()
	if l.p.state != Running {
		l.p.mu.Unlock()
		return ErrNotWritable
	}
	l.p.buffer[offset] = append([]byte(nil), data...)
	l.p.bufBytes += len(data)
	written := rangelist.Range64{Begin: offset, End: end}
	l.p.complete.Merge(written)
	l.p.refreshAllChunksLocked(written)
	shouldFlush := l.p.bufBytes >= flushThreshold
	l.p.mu.Unlock()

	if shouldFlush {
		if err := l.p.Flush(); err != nil {
			return err
		}
	}
	l.p.scheduleHashingFor(written)
	return nil
}
