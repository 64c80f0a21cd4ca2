package proto

import "github.com/hydranode/hydranode/wire"

// ReqHashSet is opcode 0x51.
type ReqHashSet struct {
	Hash wire.Hash
}

func (f ReqHashSet) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	return w.Bytes()
}

func DecodeReqHashSet(payload []byte) (ReqHashSet, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return ReqHashSet{}, err
	}
	return ReqHashSet{Hash: h}, nil
}

// HashSet is opcode 0x52: the per-chunk hash tree for FileHash.
type HashSet struct {
	FileHash   wire.Hash
	PartHashes []wire.Hash
}

func (f HashSet) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.FileHash)
	w.U16(uint16(len(f.PartHashes)))
	for _, h := range f.PartHashes {
		w.HashVal(h)
	}
	return w.Bytes()
}

func DecodeHashSet(payload []byte) (HashSet, error) {
	r := wire.NewReader(payload)
	fh, err := r.HashVal()
	if err != nil {
		return HashSet{}, err
	}
	count, err := r.U16()
	if err != nil {
		return HashSet{}, err
	}
	hashes := make([]wire.Hash, 0, count)
	for i := uint16(0); i < count; i++ {
		h, err := r.HashVal()
		if err != nil {
			return HashSet{}, err
		}
		hashes = append(hashes, h)
	}
	return HashSet{FileHash: fh, PartHashes: hashes}, nil
}
