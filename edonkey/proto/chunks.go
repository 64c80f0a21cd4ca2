package proto

import (
	"fmt"

	"github.com/hydranode/hydranode/wire"
)

// maxReqChunkRanges is the wire limit: ReqChunks always carries exactly
// three (begin,end) pairs, even when fewer ranges are actually wanted
// (spec.md §6: "3x u32 begin, 3x u32 end, end exclusive on the wire").
const maxReqChunkRanges = 3

// ReqChunks is opcode 0x47. Internally ranges are inclusive (matching
// rangelist.Range64); the wire form is end-exclusive, so Encode/Decode
// convert at the boundary.
type ReqChunks struct {
	Hash   wire.Hash
	Begins [maxReqChunkRanges]uint32
	Ends   [maxReqChunkRanges]uint32 // inclusive, internal representation
}

func (f ReqChunks) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	for i := 0; i < maxReqChunkRanges; i++ {
		w.U32(f.Begins[i])
	}
	for i := 0; i < maxReqChunkRanges; i++ {
		w.U32(f.Ends[i] + 1) // inclusive -> exclusive
	}
	return w.Bytes()
}

func DecodeReqChunks(payload []byte) (ReqChunks, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return ReqChunks{}, err
	}
	var f ReqChunks
	f.Hash = h
	for i := 0; i < maxReqChunkRanges; i++ {
		v, err := r.U32()
		if err != nil {
			return ReqChunks{}, err
		}
		f.Begins[i] = v
	}
	for i := 0; i < maxReqChunkRanges; i++ {
		v, err := r.U32()
		if err != nil {
			return ReqChunks{}, err
		}
		if v == 0 {
			return ReqChunks{}, fmt.Errorf("proto: ReqChunks end %d is exclusive-zero, invalid", i)
		}
		f.Ends[i] = v - 1 // exclusive -> inclusive
	}
	return f, nil
}

// DataChunk is opcode 0x46: one unpacked chunk of file data.
type DataChunk struct {
	Hash  wire.Hash
	Begin uint32
	End   uint32 // inclusive
	Data  []byte
}

func (f DataChunk) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	w.U32(f.Begin)
	w.U32(f.End + 1)
	w.Raw(f.Data)
	return w.Bytes()
}

func DecodeDataChunk(payload []byte) (DataChunk, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return DataChunk{}, err
	}
	begin, err := r.U32()
	if err != nil {
		return DataChunk{}, err
	}
	end, err := r.U32()
	if err != nil {
		return DataChunk{}, err
	}
	if end == 0 {
		return DataChunk{}, fmt.Errorf("proto: DataChunk end is exclusive-zero, invalid")
	}
	data := append([]byte(nil), r.Bytes()...)
	return DataChunk{Hash: h, Begin: begin, End: end - 1, Data: data}, nil
}

// PackedChunk is opcode 0x40: a zlib-compressed run of file data, always
// sent as its own frame (the zlib wrap here is independent of the
// envelope-level ProtoZlib wrap). Begin/Length describe the decompressed
// extent.
type PackedChunk struct {
	Hash    wire.Hash
	Begin   uint32
	Length  uint32 // decompressed length
	Packed  []byte // zlib-compressed bytes
}

func (f PackedChunk) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	w.U32(f.Begin)
	w.U32(f.Length)
	w.Raw(f.Packed)
	return w.Bytes()
}

func DecodePackedChunk(payload []byte) (PackedChunk, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return PackedChunk{}, err
	}
	begin, err := r.U32()
	if err != nil {
		return PackedChunk{}, err
	}
	length, err := r.U32()
	if err != nil {
		return PackedChunk{}, err
	}
	packed := append([]byte(nil), r.Bytes()...)
	return PackedChunk{Hash: h, Begin: begin, Length: length, Packed: packed}, nil
}

// Unpack decompresses Packed and validates it decompresses to exactly
// Length bytes, the sanity check spec.md §9's redesign flag calls for
// ("packed chunks must validate decompressed length against the header
// before acceptance, rather than trusting the peer").
func (f PackedChunk) Unpack() ([]byte, error) {
	data, err := wire.ZlibUnwrap(f.Packed)
	if err != nil {
		return nil, fmt.Errorf("proto: PackedChunk zlib: %w", err)
	}
	if uint32(len(data)) != f.Length {
		return nil, fmt.Errorf("proto: PackedChunk decompressed %d bytes, header claims %d", len(data), f.Length)
	}
	return data, nil
}

// PackedStream reassembles a sequence of PackedChunk frames belonging to
// one logical compressed run into the underlying byte range, per spec.md
// §9's redesign flag: the teacher's original model released each packed
// chunk independently; this build tracks the run's cumulative offset so a
// partial/truncated run is detectable instead of silently producing a
// gap in PartData.
type PackedStream struct {
	Begin       uint32
	accumulated uint32
}

// NewPackedStream starts tracking a packed run beginning at begin.
func NewPackedStream(begin uint32) *PackedStream {
	return &PackedStream{Begin: begin}
}

// Accept validates that chunk continues this stream contiguously and
// advances the accumulated-bytes counter.
func (s *PackedStream) Accept(chunk PackedChunk) ([]byte, error) {
	if chunk.Begin != s.Begin+s.accumulated {
		return nil, fmt.Errorf("proto: PackedStream gap: expected begin %d, got %d", s.Begin+s.accumulated, chunk.Begin)
	}
	data, err := chunk.Unpack()
	if err != nil {
		return nil, err
	}
	s.accumulated += uint32(len(data))
	return data, nil
}

// Accumulated returns the number of decompressed bytes delivered so far.
func (s *PackedStream) Accumulated() uint32 { return s.accumulated }
