package partdata

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/hydranode/hydranode/rangelist"
)

var rangeZero = rangelist.Range64{}

// Flush implements spec.md §4.G's "Buffer flushing": writes every buffered
// offset into the temp file in ascending order and clears the buffer.
// Triggers are: buffer size >= 512 KiB (checked by LockedRange.Write),
// explicit Save, pause/stop transitions, and completion.
func (p *PartData) Flush() error {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return nil
	}
	offsets := make([]uint64, 0, len(p.buffer))
	for off := range p.buffer {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	pending := make(map[uint64][]byte, len(p.buffer))
	for _, off := range offsets {
		pending[off] = p.buffer[off]
	}
	p.mu.Unlock()

	if err := p.ensureAllocated(); err != nil {
		p.handleDiskError()
		return errors.Wrap(err, "partdata: allocate temp file")
	}

	for _, off := range offsets {
		if err := p.storage.WriteAt(off, pending[off]); err != nil {
			p.handleDiskError()
			return errors.Wrapf(err, "partdata: write at offset %d", off)
		}
	}

	p.mu.Lock()
	for _, off := range offsets {
		delete(p.buffer, off)
		p.bufBytes -= len(pending[off])
	}
	p.mu.Unlock()
	p.clearAutoPauseOnSuccess()
	return nil
}

// ensureAllocated grows the temp file to p.Size if it's shorter, per
// spec.md §4.G: "If the temp file is shorter than size, a background
// allocation job extends it". Called synchronously from Flush in this
// implementation; the "background" aspect is delegated to the Storage
// implementation's own EnsureAllocated, which may run the disk-free check
// and grow-write off the caller's goroutine.
func (p *PartData) ensureAllocated() error {
	p.mu.Lock()
	size := p.Size
	p.mu.Unlock()
	return p.storage.EnsureAllocated(size)
}

// handleDiskError implements spec.md §7's "Disk I/O error" row: auto-pause
// and surface via the event channel; a later successful write/flush
// clears autoPaused again (§4.G "State machine").
func (p *PartData) handleDiskError() {
	p.mu.Lock()
	already := p.autoPaused
	p.autoPaused = true
	p.state = Paused
	p.mu.Unlock()
	if !already && p.listener != nil {
		p.listener.OnPartDataEvent(p, EventDiskError, rangeZero)
		p.listener.OnPartDataEvent(p, EventAutoPaused, rangeZero)
	}
}

// clearAutoPauseOnSuccess implements the "successful subsequent write/
// flush resumes the download" half of §4.G's autoPaused handling.
func (p *PartData) clearAutoPauseOnSuccess() {
	p.mu.Lock()
	if !p.autoPaused {
		p.mu.Unlock()
		return
	}
	p.autoPaused = false
	if p.state == Paused {
		p.state = Running
	}
	p.mu.Unlock()
	if p.listener != nil {
		p.listener.OnPartDataEvent(p, EventAutoResumed, rangeZero)
	}
}
