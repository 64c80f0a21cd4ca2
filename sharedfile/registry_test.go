package sharedfile

import (
	"testing"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/partdata"
	"github.com/hydranode/hydranode/wire"
)

type fakeStorage struct{ data []byte }

func newFakeStorage(size uint64) *fakeStorage { return &fakeStorage{data: make([]byte, size)} }
func (f *fakeStorage) WriteAt(off uint64, b []byte) error {
	copy(f.data[off:], b)
	return nil
}
func (f *fakeStorage) ReadAt(off uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	copy(out, f.data[off:off+uint64(n)])
	return out, nil
}
func (f *fakeStorage) EnsureAllocated(size uint64) error { return nil }
func (f *fakeStorage) Rename(string) error               { return nil }
func (f *fakeStorage) Close() error                       { return nil }

func TestRegistryAddAndAdapters(t *testing.T) {
	r := NewRegistry()
	st := newFakeStorage(100)
	p := partdata.New(100, "loc", "dest", st, nil, log.Default)

	var h wire.Hash
	h[0] = 0xaa
	r.Add(h, "movie.avi", p)

	dl, ok := r.LookupDownload(h)
	if !ok {
		t.Fatalf("expected download lookup to succeed")
	}
	if dl.Size() != 100 {
		t.Fatalf("Size() = %d, want 100", dl.Size())
	}
	if err := dl.WriteChunk(0, []byte("hi")); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	sh, ok := r.LookupShared(h)
	if !ok {
		t.Fatalf("expected shared lookup to succeed")
	}
	if sh.Name() != "movie.avi" {
		t.Fatalf("Name() = %q, want movie.avi", sh.Name())
	}

	files := r.SharedFiles()
	if len(files) != 1 || files[0].Name() != "movie.avi" || files[0].Hash() != h {
		t.Fatalf("unexpected SharedFiles() = %+v", files)
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	r := NewRegistry()
	var h wire.Hash
	if _, ok := r.LookupDownload(h); ok {
		t.Fatalf("expected lookup miss on empty registry")
	}
	if _, ok := r.LookupShared(h); ok {
		t.Fatalf("expected lookup miss on empty registry")
	}
}

func TestRegistryPublishSatisfiesCatalog(t *testing.T) {
	r := NewRegistry()
	var cat Catalog = r
	var hash partdata.Hash
	hash[0] = 0x42
	cat.Publish("done.iso", 4096, hash)

	e, ok := r.Get(wire.Hash(hash))
	if !ok {
		t.Fatalf("expected entry published under its hash")
	}
	if e.Name != "done.iso" {
		t.Fatalf("Name = %q, want done.iso", e.Name)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	var h wire.Hash
	h[0] = 0x01
	r.Add(h, "x", partdata.New(1, "l", "d", newFakeStorage(1), nil, log.Default))
	r.Remove(h)
	if _, ok := r.Get(h); ok {
		t.Fatalf("expected entry removed")
	}
}
