package sharedfile

import (
	"sync"

	"github.com/hydranode/hydranode/partdata"
	"github.com/hydranode/hydranode/wire"
)

// Registry tracks every PartData currently attached to this node, keyed by
// its ed2k hash, and answers both the download-side lookups (edonkey/peer's
// Session.LookupDownload) and the serving-side lookups (edonkey/peer's
// Session.LookupShared, edonkey/server's SharedFiles) a single node needs.
// A download is reachable under both roles simultaneously: partially
// downloaded files are served to other peers the same way completed ones
// are, so there is one entry per hash rather than separate
// downloading/shared tables.
type Registry struct {
	mu      sync.Mutex
	entries map[wire.Hash]*Entry
}

// Entry pairs a PartData with the display name ed2k's LoginRequest offer
// and ReqFile answers need (PartData itself is name-agnostic, per
// spec.md §4.G).
type Entry struct {
	Hash wire.Hash
	Name string
	Data *partdata.PartData
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[wire.Hash]*Entry)}
}

// Add registers (or replaces) the entry for hash.
func (r *Registry) Add(hash wire.Hash, name string, data *partdata.PartData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[hash] = &Entry{Hash: hash, Name: name, Data: data}
}

// Remove drops hash from the registry, e.g. on cancel.
func (r *Registry) Remove(hash wire.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, hash)
}

// Get returns the entry for hash, if any.
func (r *Registry) Get(hash wire.Hash) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[hash]
	return e, ok
}

// Publish implements Catalog: a completed download is recorded under its
// final hash so later LookupShared/LookupDownload calls find it. The
// destination path is reused as the display name.
func (r *Registry) Publish(destination string, size uint64, hash partdata.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[wire.Hash(hash)]; ok {
		e.Name = destination
		return
	}
	r.entries[wire.Hash(hash)] = &Entry{Hash: wire.Hash(hash), Name: destination}
}

// LookupDownload implements edonkey/peer.Session's Host.LookupDownload.
func (r *Registry) LookupDownload(hash wire.Hash) (DownloadAdapter, bool) {
	e, ok := r.Get(hash)
	if !ok || e.Data == nil {
		return DownloadAdapter{}, false
	}
	return DownloadAdapter{e.Data}, true
}

// LookupShared implements edonkey/peer.Session's Host.LookupShared.
func (r *Registry) LookupShared(hash wire.Hash) (SharedAdapter, bool) {
	e, ok := r.Get(hash)
	if !ok || e.Data == nil {
		return SharedAdapter{}, false
	}
	return SharedAdapter{name: e.Name, data: e.Data}, true
}

// SharedFiles implements edonkey/server's Host.SharedFiles: every entry
// backed by a PartData is offered, including in-progress downloads (ed2k
// servers and peers both serve partial files).
func (r *Registry) SharedFiles() []ServerFileAdapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServerFileAdapter, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Data == nil {
			continue
		}
		out = append(out, ServerFileAdapter{hash: e.Hash, name: e.Name, size: e.Data.Size})
	}
	return out
}

// DownloadAdapter narrows *partdata.PartData to edonkey/peer.Session's
// Download contract.
type DownloadAdapter struct {
	data *partdata.PartData
}

func (d DownloadAdapter) Size() uint64          { return d.data.Size }
func (d DownloadAdapter) PartStatus() []bool    { return d.data.PartStatusStandard() }
func (d DownloadAdapter) WriteChunk(begin uint64, data []byte) error {
	return d.data.WriteChunk(begin, data)
}

// SharedAdapter narrows *partdata.PartData to edonkey/peer.Session's Shared
// contract (the upload side: ReqFile/ReqChunks answers).
type SharedAdapter struct {
	name string
	data *partdata.PartData
}

func (s SharedAdapter) Name() string         { return s.name }
func (s SharedAdapter) Size() uint64         { return s.data.Size }
func (s SharedAdapter) PartStatus() []bool   { return s.data.PartStatusStandard() }
func (s SharedAdapter) ReadChunk(begin, end uint64) ([]byte, error) {
	return s.data.ReadChunk(begin, end)
}

// ServerFileAdapter narrows a registry entry to edonkey/server's SharedFile
// contract (the LoginRequest offer-files list).
type ServerFileAdapter struct {
	hash wire.Hash
	name string
	size uint64
}

func (s ServerFileAdapter) Hash() wire.Hash { return s.hash }
func (s ServerFileAdapter) Size() uint64    { return s.size }
func (s ServerFileAdapter) Name() string    { return s.name }
