package proto

import "github.com/hydranode/hydranode/wire"

// ReaskFilePing is UDP opcode 0x90: a lightweight poll asking a source
// whether it still has a file and its current queue state, used instead
// of a full TCP reconnect (spec.md §6, §4.I).
type ReaskFilePing struct {
	Hash wire.Hash
}

func (f ReaskFilePing) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	return w.Bytes()
}

func DecodeReaskFilePing(payload []byte) (ReaskFilePing, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return ReaskFilePing{}, err
	}
	return ReaskFilePing{Hash: h}, nil
}

// ReaskAck is UDP opcode 0x91: the answer to ReaskFilePing, carrying the
// source's current queue rank and partmap.
type ReaskAck struct {
	QueueRank uint16
	PartMap   PartMap
}

func (f ReaskAck) Encode() []byte {
	var w wire.Writer
	w.U16(f.QueueRank)
	WritePartMap(&w, f.PartMap)
	return w.Bytes()
}

func DecodeReaskAck(payload []byte) (ReaskAck, error) {
	r := wire.NewReader(payload)
	rank, err := r.U16()
	if err != nil {
		return ReaskAck{}, err
	}
	pm, err := ReadPartMap(r)
	if err != nil {
		return ReaskAck{}, err
	}
	return ReaskAck{QueueRank: rank, PartMap: pm}, nil
}

// FileNotFound is UDP opcode 0x92: the source no longer has the file.
type FileNotFound struct{}

func (FileNotFound) Encode() []byte { return nil }

func DecodeFileNotFound(payload []byte) (FileNotFound, error) {
	return FileNotFound{}, nil
}

// QueueFull is UDP opcode 0x93: the source has the file but its upload
// queue is full.
type QueueFull struct{}

func (QueueFull) Encode() []byte { return nil }

func DecodeQueueFull(payload []byte) (QueueFull, error) {
	return QueueFull{}, nil
}
