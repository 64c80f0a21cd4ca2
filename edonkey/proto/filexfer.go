package proto

import "github.com/hydranode/hydranode/wire"

// ReqFile is opcode 0x58. The base form is just a hash; the "extended"
// form additionally carries the requester's own partmap and completed-
// source count, which FileStatus-aware peers use to prioritise sources
// (spec.md §6 "ReqFile ... extended: +partmap, +u16 completeSrcCount").
type ReqFile struct {
	Hash             wire.Hash
	Extended         bool
	PartMap          PartMap
	CompleteSrcCount uint16
}

func (f ReqFile) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	if f.Extended {
		WritePartMap(&w, f.PartMap)
		w.U16(f.CompleteSrcCount)
	}
	return w.Bytes()
}

// DecodeReqFile parses a ReqFile payload, treating any payload with more
// than just the hash as the extended form.
func DecodeReqFile(payload []byte) (ReqFile, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return ReqFile{}, err
	}
	if r.Remaining() == 0 {
		return ReqFile{Hash: h}, nil
	}
	pm, err := ReadPartMap(r)
	if err != nil {
		return ReqFile{}, err
	}
	cnt, err := r.U16()
	if err != nil {
		return ReqFile{}, err
	}
	return ReqFile{Hash: h, Extended: true, PartMap: pm, CompleteSrcCount: cnt}, nil
}

// FileName is opcode 0x59.
type FileName struct {
	Hash wire.Hash
	Name string
}

func (f FileName) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	w.Str(f.Name)
	return w.Bytes()
}

func DecodeFileName(payload []byte) (FileName, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return FileName{}, err
	}
	name, err := r.Str()
	if err != nil {
		return FileName{}, err
	}
	return FileName{Hash: h, Name: name}, nil
}

// SetReqFileId is opcode 0x4f.
type SetReqFileId struct {
	Hash wire.Hash
}

func (f SetReqFileId) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	return w.Bytes()
}

func DecodeSetReqFileId(payload []byte) (SetReqFileId, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return SetReqFileId{}, err
	}
	return SetReqFileId{Hash: h}, nil
}

// FileStatus is opcode 0x50. The partmap is omitted when the advertiser
// has the whole file (spec.md §6: "partmap omitted if whole file").
type FileStatus struct {
	Hash      wire.Hash
	WholeFile bool
	PartMap   PartMap
}

func (f FileStatus) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	if !f.WholeFile {
		WritePartMap(&w, f.PartMap)
	}
	return w.Bytes()
}

func DecodeFileStatus(payload []byte) (FileStatus, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return FileStatus{}, err
	}
	if r.Remaining() == 0 {
		return FileStatus{Hash: h, WholeFile: true}, nil
	}
	pm, err := ReadPartMap(r)
	if err != nil {
		return FileStatus{}, err
	}
	return FileStatus{Hash: h, PartMap: pm}, nil
}

// NoFile is opcode 0x48.
type NoFile struct {
	Hash wire.Hash
}

func (f NoFile) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	return w.Bytes()
}

func DecodeNoFile(payload []byte) (NoFile, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return NoFile{}, err
	}
	return NoFile{Hash: h}, nil
}
