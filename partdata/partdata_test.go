package partdata

import (
	"crypto/md5"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/log"
	"github.com/davecgh/go-spew/spew"

	"github.com/hydranode/hydranode/rangelist"
)

// dumpChunks renders p's chunk table for a failure message, the way a
// corruption/completion assertion benefits from seeing full Chunk state
// rather than just the one field that tripped the check.
func dumpChunks(p *PartData) string {
	return spew.Sdump(p.chunks)
}

// memStorage is an in-memory Storage for tests, avoiding real mmap/file IO.
type memStorage struct {
	data []byte
	dest string
}

func newMemStorage(size uint64) *memStorage { return &memStorage{data: make([]byte, size)} }

func (m *memStorage) WriteAt(off uint64, b []byte) error {
	copy(m.data[off:], b)
	return nil
}
func (m *memStorage) ReadAt(off uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	copy(out, m.data[off:off+uint64(n)])
	return out, nil
}
func (m *memStorage) EnsureAllocated(size uint64) error {
	if uint64(len(m.data)) < size {
		grown := make([]byte, size)
		copy(grown, m.data)
		m.data = grown
	}
	return nil
}
func (m *memStorage) Rename(destination string) error { m.dest = destination; return nil }
func (m *memStorage) Close() error                    { return nil }

// syncHasher runs hash jobs inline, for deterministic tests.
type syncHasher struct{}

func (syncHasher) Submit(job HashJob) {
	data, err := job.Read(job.Range.Begin, int(job.Range.Len()))
	if err != nil {
		job.Done(Hash{}, err)
		return
	}
	job.Done(Hash(md5.Sum(data)), nil)
}

// recordingListener captures every event fired.
type recordingListener struct {
	events []EventKind
}

func (r *recordingListener) OnPartDataEvent(p *PartData, kind EventKind, _ rangelist.Range64) {
	r.events = append(r.events, kind)
}

func (r *recordingListener) has(kind EventKind) bool {
	for _, e := range r.events {
		if e == kind {
			return true
		}
	}
	return false
}

func writeAll(t *testing.T, p *PartData, offset uint64, data []byte) {
	t.Helper()
	ur, err := p.GetRange(uint64(len(data)), nil)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	lr, err := ur.GetLock(uint64(len(data)))
	if err != nil {
		t.Fatalf("GetLock: %v", err)
	}
	if err := lr.Write(offset, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lr.Free()
	ur.Release()
}

func TestSoloDownloadNoHashes(t *testing.T) {
	const size = 10_000_000
	lst := &recordingListener{}
	st := newMemStorage(size)
	p := New(size, "/tmp/x.part", "/tmp/x", st, lst, log.Default)
	p.SetHasher(syncHasher{})

	const chunk = 10 * 1024
	for off := uint64(0); off < size; off += chunk {
		n := uint64(chunk)
		if size-off < n {
			n = size - off
		}
		writeAll(t, p, off, make([]byte, n))
	}

	if !p.complete.ContainsFull(rangelist.Range64{Begin: 0, End: size - 1}) {
		t.Fatal("expected complete to cover the whole file")
	}
	if len(p.chunks) != 0 {
		t.Fatalf("expected no chunks for a hashless download, got %d", len(p.chunks))
	}
	if p.State() != Completed {
		t.Fatalf("expected Completed state, got %v", p.State())
	}
	if !lst.has(EventHashComplete) {
		t.Fatal("expected a synthetic HASH_COMPLETE event")
	}
	if st.dest != "/tmp/x" {
		t.Fatalf("expected rename to destination, got %q", st.dest)
	}
}

func TestHashedChunkCompletionAndCorruption(t *testing.T) {
	const size = 9_728_001
	const cs = ChunkSize(9_728_000)
	lst := &recordingListener{}
	st := newMemStorage(size)
	p := New(size, "/tmp/y.part", "/tmp/y", st, lst, log.Default)
	p.SetHasher(syncHasher{})

	good := make([]byte, 9_728_000)
	for i := range good {
		good[i] = byte(i)
	}
	correctHash := Hash(md5.Sum(good))
	p.RegisterHashSet(cs, []Hash{correctHash})

	bad := make([]byte, 9_728_000)
	copy(bad, good)
	bad[0] ^= 0xff
	writeAll(t, p, 0, bad)

	if !p.corrupt.ContainsFull(rangelist.Range64{Begin: 0, End: 9_727_999}) {
		t.Fatalf("expected corrupt to cover the mismatched chunk; chunks:\n%s", dumpChunks(p))
	}
	if !p.complete.IsEmpty() {
		t.Fatalf("expected complete to be emptied after corruption; chunks:\n%s", dumpChunks(p))
	}
	if p.PartStatus(cs)[0] {
		t.Fatalf("expected partStatus bit cleared after corruption; chunks:\n%s", dumpChunks(p))
	}
	if !lst.has(EventCorruption) {
		t.Fatal("expected a corruption event")
	}

	writeAll(t, p, 0, good)
	if !p.verified.ContainsFull(rangelist.Range64{Begin: 0, End: 9_727_999}) {
		t.Fatal("expected verified to cover the corrected chunk")
	}
	if !lst.has(EventVerified) {
		t.Fatal("expected a verified event")
	}
}

func TestSourceAccountingUnderflowPanics(t *testing.T) {
	const size = 100
	p := New(size, "/tmp/z.part", "/tmp/z", newMemStorage(size), nil, log.Default)
	mask := roaring.New()
	mask.Add(0)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on source count underflow")
		}
	}()
	p.RemoveSourceMask(ChunkSize(50), mask)
}

func TestChunkCandidacyPrefersHigherAvailabilityThenLowUseCount(t *testing.T) {
	a := &Chunk{Range: rangelist.Range64{Begin: 0, End: 9}, Avail: 1, UseCount: 0}
	b := &Chunk{Range: rangelist.Range64{Begin: 10, End: 19}, Avail: 3, UseCount: 0}
	c := &Chunk{Range: rangelist.Range64{Begin: 20, End: 29}, Avail: 3, UseCount: 1}

	if !byCandidacy(b, a) {
		t.Fatal("rarer (lower availability) should not be preferred over higher availability")
	}
	if !byCandidacy(b, c) {
		t.Fatal("lower use-count should be preferred at equal availability")
	}
}

func TestPauseBlocksWrites(t *testing.T) {
	const size = 1024
	st := newMemStorage(size)
	p := New(size, "/tmp/w.part", "/tmp/w", st, nil, log.Default)
	p.SetHasher(syncHasher{})

	ur, err := p.GetRange(512, nil)
	if err != nil {
		t.Fatal(err)
	}
	lr, err := ur.GetLock(512)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := lr.Write(0, make([]byte, 10)); err == nil {
		t.Fatal("expected write to be rejected while paused")
	}
}

