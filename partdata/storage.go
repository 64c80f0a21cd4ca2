package partdata

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/shirou/gopsutil/v3/disk"
)

// MMapStorage is the concrete Storage backend for a PartData's temp file:
// writes go through a memory-mapped region, and allocation first checks
// free disk space via gopsutil before growing the mapping (spec.md §4.G
// "Buffer flushing": "seek(size-1); write(1 byte); fsync").
//
// Grounded on the teacher's storage/mmap_test.go (NewMMap/OpenTorrent
// lifecycle), generalized from BitTorrent's fixed-length piece store to a
// single growable part file.
type MMapStorage struct {
	path string
	file *os.File
	m    mmap.MMap
	size int64
}

// NewMMapStorage opens (creating if absent) the temp file at path.
func NewMMapStorage(path string) (*MMapStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	st := &MMapStorage{path: path, file: f}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	st.size = info.Size()
	if st.size > 0 {
		if err := st.remap(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return st, nil
}

func (s *MMapStorage) remap() error {
	if s.m != nil {
		if err := s.m.Unmap(); err != nil {
			return err
		}
	}
	m, err := mmap.Map(s.file, mmap.RDWR, 0)
	if err != nil {
		return err
	}
	s.m = m
	return nil
}

// EnsureAllocated grows the temp file to size, checking free disk space
// first (spec.md §4.G: allocation failure auto-pauses the download).
func (s *MMapStorage) EnsureAllocated(size uint64) error {
	if uint64(s.size) >= size {
		return nil
	}
	grow := size - uint64(s.size)
	if usage, err := disk.Usage(dirOf(s.path)); err == nil {
		if usage.Free < grow {
			return fmt.Errorf("partdata: insufficient disk space: need %d, have %d", grow, usage.Free)
		}
	}
	if err := s.file.Truncate(int64(size)); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}
	s.size = int64(size)
	return s.remap()
}

// WriteAt writes b into the mapped region at off.
func (s *MMapStorage) WriteAt(off uint64, b []byte) error {
	if off+uint64(len(b)) > uint64(len(s.m)) {
		return fmt.Errorf("partdata: write at %d len %d exceeds allocated size %d", off, len(b), len(s.m))
	}
	copy(s.m[off:], b)
	return s.m.Flush()
}

// ReadAt reads n bytes at off for hash-job consumption.
func (s *MMapStorage) ReadAt(off uint64, n int) ([]byte, error) {
	if off+uint64(n) > uint64(len(s.m)) {
		return nil, fmt.Errorf("partdata: read at %d len %d exceeds allocated size %d", off, n, len(s.m))
	}
	out := make([]byte, n)
	copy(out, s.m[off:off+uint64(n)])
	return out, nil
}

// Rename unmaps, closes, and moves the temp file to destination.
func (s *MMapStorage) Rename(destination string) error {
	if err := s.Close(); err != nil {
		return err
	}
	return os.Rename(s.path, destination)
}

// Close unmaps and closes the temp file.
func (s *MMapStorage) Close() error {
	var err error
	if s.m != nil {
		err = s.m.Unmap()
		s.m = nil
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
