package partdata

import "github.com/hydranode/hydranode/rangelist"

// StandardChunkSize is ed2k's fixed 9,728,000-byte PARTSIZE, the hash tree
// every download registers via RegisterHashSet and the granularity
// WriteChunk/PartStatus1 operate at (spec.md §4.G).
const StandardChunkSize ChunkSize = 9_728_000

// WriteChunk writes data at file offset begin, the concrete write path
// behind edonkey/peer.Download's WriteChunk method. Unlike GetRange/GetLock
// (used for picking what to download next), the offset here already comes
// off the wire, so it locks exactly [begin,begin+len(data)-1] directly
// rather than letting firstWritableLocked narrow it.
func (p *PartData) WriteChunk(begin uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	end := begin + uint64(len(data)) - 1
	r := rangelist.Range64{Begin: begin, End: end}

	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return ErrNotWritable
	}
	p.locked.Merge(r)
	p.mu.Unlock()

	lr := &LockedRange{p: p, Range: r}
	defer lr.Free()
	return lr.Write(begin, data)
}

// PartStatusStandard is PartStatus at the standard ed2k chunk size,
// matching edonkey/peer.Download's and Shared's no-argument PartStatus
// method.
func (p *PartData) PartStatusStandard() []bool {
	return p.PartStatus(StandardChunkSize)
}

// ReadChunk reads [begin,end] for an upload request, refusing to serve any
// byte this PartData hasn't verified complete yet (spec.md §4.G: uploads
// only ever source from the verified range list).
func (p *PartData) ReadChunk(begin, end uint64) ([]byte, error) {
	p.mu.Lock()
	ok := p.verified.ContainsFull(rangelist.Range64{Begin: begin, End: end})
	p.mu.Unlock()
	if !ok {
		return nil, ErrNotWritable
	}
	return p.storage.ReadAt(begin, int(end-begin+1))
}
