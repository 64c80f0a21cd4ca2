package proto

import (
	"fmt"

	"github.com/hydranode/hydranode/wire"
)

// StartUploadReq is opcode 0x54. The hash is optional: an empty payload
// re-requests whatever the peer last offered via SetReqFileId (spec.md
// §6: "(optional) H hash").
type StartUploadReq struct {
	HasHash bool
	Hash    wire.Hash
}

func (f StartUploadReq) Encode() []byte {
	if !f.HasHash {
		return nil
	}
	var w wire.Writer
	w.HashVal(f.Hash)
	return w.Bytes()
}

func DecodeStartUploadReq(payload []byte) (StartUploadReq, error) {
	if len(payload) == 0 {
		return StartUploadReq{}, nil
	}
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return StartUploadReq{}, err
	}
	return StartUploadReq{HasHash: true, Hash: h}, nil
}

// AcceptUploadReq is opcode 0x55: an empty-payload frame.
type AcceptUploadReq struct{}

func (AcceptUploadReq) Encode() []byte { return nil }

func DecodeAcceptUploadReq(payload []byte) (AcceptUploadReq, error) {
	return AcceptUploadReq{}, nil
}

// QueueRanking is opcode 0x5c.
type QueueRanking struct {
	Rank uint32
}

func (f QueueRanking) Encode() []byte {
	var w wire.Writer
	w.U32(f.Rank)
	return w.Bytes()
}

func DecodeQueueRanking(payload []byte) (QueueRanking, error) {
	r := wire.NewReader(payload)
	v, err := r.U32()
	if err != nil {
		return QueueRanking{}, err
	}
	return QueueRanking{Rank: v}, nil
}

// MuleQueueRank is opcode 0x60: a fixed 12-byte payload, a u16 rank
// followed by three reserved fields (u16, u32, u32) always zero (spec.md §6: "length-enforced 12 bytes").
type MuleQueueRank struct {
	Rank uint16
}

func (f MuleQueueRank) Encode() []byte {
	var w wire.Writer
	w.U16(f.Rank)
	w.U16(0)
	w.U32(0)
	w.U32(0)
	return w.Bytes()
}

func DecodeMuleQueueRank(payload []byte) (MuleQueueRank, error) {
	if len(payload) != 12 {
		return MuleQueueRank{}, fmt.Errorf("proto: MuleQueueRank payload length %d, want 12", len(payload))
	}
	r := wire.NewReader(payload)
	rank, err := r.U16()
	if err != nil {
		return MuleQueueRank{}, err
	}
	return MuleQueueRank{Rank: rank}, nil
}

// CancelTransfer is opcode 0x56: an empty-payload frame.
type CancelTransfer struct{}

func (CancelTransfer) Encode() []byte { return nil }

func DecodeCancelTransfer(payload []byte) (CancelTransfer, error) {
	return CancelTransfer{}, nil
}
