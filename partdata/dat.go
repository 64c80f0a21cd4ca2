package partdata

import (
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"

	"github.com/hydranode/hydranode/rangelist"
	"github.com/hydranode/hydranode/wire"
)

// .dat sidecar structure (spec.md §6): a single OP_PARTDATA record holding
// VER, size, a tag list (destination, completed ranges, verified ranges,
// run state), followed by an OP_METADATA blob. Reframed onto a single
// bbolt bucket keyed by tag opcode, one key per tag — the same
// bucket-per-tag-opcode scheme the teacher's storage/bolt-piece_test.go
// uses for per-piece completion state, generalized from a single
// completion bitfield to PartData's tag set. Only the four tags are
// stored: the VER byte, the size and the OP_METADATA blob are not written
// (datVersion, opPartData and opMetadata are declared but unused).
const (
	datVersion        byte = 1
	opPartData        byte = 0xe1
	opMetadata        byte = 0xe2
	tagDestination    byte = 0x01
	tagCompleteRanges byte = 0x02
	tagVerifiedRanges byte = 0x03
	tagRunState       byte = 0x04
)

var datBucket = []byte("partdata")

// SaveDat persists complete/verified/destination/state to path's bbolt
// database, writing to path+"_" then renaming, and keeping path+".bak" as
// the previous version (spec.md §6: "Writes go to .dat_ then rename,
// keeping a .bak copy of the previous version").
func (p *PartData) SaveDat(path string) error {
	p.mu.Lock()
	destination := p.Destination
	completeBlob := encodeRangeList(p.complete.Ranges())
	verifiedBlob := encodeRangeList(p.verified.Ranges())
	state := byte(p.state)
	p.mu.Unlock()

	tmp := path + "_"
	db, err := bolt.Open(tmp, 0o644, nil)
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(datBucket)
		if err != nil {
			return err
		}
		if err := b.Put([]byte{tagDestination}, []byte(destination)); err != nil {
			return err
		}
		if err := b.Put([]byte{tagCompleteRanges}, completeBlob); err != nil {
			return err
		}
		if err := b.Put([]byte{tagVerifiedRanges}, verifiedBlob); err != nil {
			return err
		}
		return b.Put([]byte{tagRunState}, []byte{state})
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return err
		}
	}
	return os.Rename(tmp, path)
}

// LoadDat reconstructs complete/verified/destination/state from path,
// per spec.md §4.G "On load, the class reconstructs complete, verified,
// run state, and destination".
func LoadDat(path string) (destination string, complete, verified []rangelist.Range64, state RunState, err error) {
	db, err := bolt.Open(path, 0o444, nil)
	if err != nil {
		return "", nil, nil, 0, err
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(datBucket)
		if b == nil {
			return fmt.Errorf("partdata: %s has no partdata bucket", path)
		}
		destination = string(b.Get([]byte{tagDestination}))
		complete, err = decodeRangeList(b.Get([]byte{tagCompleteRanges}))
		if err != nil {
			return err
		}
		verified, err = decodeRangeList(b.Get([]byte{tagVerifiedRanges}))
		if err != nil {
			return err
		}
		if sb := b.Get([]byte{tagRunState}); len(sb) == 1 {
			state = RunState(sb[0])
		}
		return nil
	})
	return destination, complete, verified, state, err
}

// encodeRangeList serializes ranges as a u32 count followed by
// begin/end u64 pairs, matching the tag-blob convention of every other
// wire-visible structure in this module.
func encodeRangeList(ranges []rangelist.Range64) []byte {
	var w wire.Writer
	w.U32(uint32(len(ranges)))
	for _, r := range ranges {
		w.U64(r.Begin)
		w.U64(r.End)
	}
	return w.Bytes()
}

func decodeRangeList(b []byte) ([]rangelist.Range64, error) {
	if len(b) == 0 {
		return nil, nil
	}
	r := wire.NewReader(b)
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]rangelist.Range64, 0, count)
	for i := uint32(0); i < count; i++ {
		begin, err := r.U64()
		if err != nil {
			return nil, err
		}
		end, err := r.U64()
		if err != nil {
			return nil, err
		}
		out = append(out, rangelist.Range64{Begin: begin, End: end})
	}
	return out, nil
}

// ApplyLoaded restores the range lists/state read by LoadDat into a newly
// constructed PartData (the factory calls New then ApplyLoaded rather
// than duplicating field access, keeping PartData's mutex discipline
// intact).
func (p *PartData) ApplyLoaded(destination string, complete, verified []rangelist.Range64, state RunState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Destination = destination
	for _, r := range complete {
		p.complete.Merge(r)
	}
	for _, r := range verified {
		p.verified.Merge(r)
	}
	p.state = state
	for _, c := range p.chunks {
		p.refreshChunkLocked(c)
	}
}
