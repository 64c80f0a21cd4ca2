package partdata

import (
	"testing"

	"github.com/anacrolix/log"
)

func TestWriteChunkMarksRangeCompleteAndReadable(t *testing.T) {
	st := newMemStorage(100)
	p := New(100, "loc", "dest", st, &recordingListener{}, log.Default)
	p.SetHasher(syncHasher{})

	data := []byte("hello world")
	if err := p.WriteChunk(10, data); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	// ReadChunk serves only verified bytes, and with no hash tree
	// registered nothing gets verified: force a flush since we're under
	// the threshold, then mark the written range verified by hand.
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	p.mu.Lock()
	p.verified.Merge(p.complete.Ranges()[0])
	p.mu.Unlock()

	got, err := p.ReadChunk(10, 20)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("ReadChunk = %q, want %q", got, data)
	}
}

func TestWriteChunkRejectsWhenNotRunning(t *testing.T) {
	st := newMemStorage(100)
	p := New(100, "loc", "dest", st, &recordingListener{}, log.Default)
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := p.WriteChunk(0, []byte("x")); err != ErrNotWritable {
		t.Fatalf("expected ErrNotWritable while paused, got %v", err)
	}
}

func TestReadChunkRejectsUnverifiedRange(t *testing.T) {
	st := newMemStorage(100)
	p := New(100, "loc", "dest", st, &recordingListener{}, log.Default)
	if err := p.WriteChunk(0, []byte("unverified")); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if _, err := p.ReadChunk(0, 9); err != ErrNotWritable {
		t.Fatalf("expected ErrNotWritable for unverified range, got %v", err)
	}
}

func TestPartStatusStandardUsesStandardChunkSize(t *testing.T) {
	st := newMemStorage(uint64(StandardChunkSize) + 1)
	p := New(uint64(StandardChunkSize)+1, "loc", "dest", st, &recordingListener{}, log.Default)
	p.RegisterHashSet(StandardChunkSize, []Hash{{1}, {2}})
	if got := len(p.PartStatusStandard()); got != 2 {
		t.Fatalf("expected 2 chunks at StandardChunkSize, got %d", got)
	}
}
