package server

import (
	"fmt"

	"github.com/hydranode/hydranode/wire"
)

// GlobStatReq is UDP opcode 0x96: `u32 challenge`.
type GlobStatReq struct {
	Challenge uint32
}

func (f GlobStatReq) Encode() []byte {
	var w wire.Writer
	w.U32(f.Challenge)
	return w.Bytes()
}

func DecodeGlobStatReq(payload []byte) (GlobStatReq, error) {
	r := wire.NewReader(payload)
	c, err := r.U32()
	if err != nil {
		return GlobStatReq{}, err
	}
	return GlobStatReq{Challenge: c}, nil
}

// GlobStatRes is UDP opcode 0x97: echoes the challenge plus current
// users/files/limits/udp-flags (spec.md §4.J: "reply GlobStatRes must
// echo challenge and carries users/files/limits/udp-flags").
type GlobStatRes struct {
	Challenge uint32
	Users     uint32
	Files     uint32
	MaxUsers  uint32
	SoftLimit uint32
	HardLimit uint32
	UDPFlags  uint32
}

func (f GlobStatRes) Encode() []byte {
	var w wire.Writer
	w.U32(f.Challenge)
	w.U32(f.Users)
	w.U32(f.Files)
	w.U32(f.MaxUsers)
	w.U32(f.SoftLimit)
	w.U32(f.HardLimit)
	w.U32(f.UDPFlags)
	return w.Bytes()
}

func DecodeGlobStatRes(payload []byte) (GlobStatRes, error) {
	r := wire.NewReader(payload)
	vals := make([]uint32, 7)
	for i := range vals {
		v, err := r.U32()
		if err != nil {
			return GlobStatRes{}, err
		}
		vals[i] = v
	}
	return GlobStatRes{
		Challenge: vals[0], Users: vals[1], Files: vals[2],
		MaxUsers: vals[3], SoftLimit: vals[4], HardLimit: vals[5], UDPFlags: vals[6],
	}, nil
}

// SupportsGetSources2 reports whether the UDPFlags bit for the
// GetSources2 extension is set (spec.md §4.J: "If server's flags
// announce GetSources2 we send GlobGetSources2").
func (f GlobStatRes) SupportsGetSources2() bool {
	const flagGetSources2 = 1 << 2
	return f.UDPFlags&flagGetSources2 != 0
}

// GlobGetSources is UDP opcode 0x92: a batch of up to
// GlobGetSourcesBatch hashes, the legacy (non-"2") form.
type GlobGetSources struct {
	Hashes []wire.Hash
}

func (f GlobGetSources) Encode() []byte {
	var w wire.Writer
	for _, h := range f.Hashes {
		w.HashVal(h)
	}
	return w.Bytes()
}

func DecodeGlobGetSources(payload []byte) (GlobGetSources, error) {
	if len(payload)%16 != 0 {
		return GlobGetSources{}, fmt.Errorf("server: GlobGetSources payload length %d not a multiple of 16", len(payload))
	}
	r := wire.NewReader(payload)
	n := len(payload) / 16
	hashes := make([]wire.Hash, 0, n)
	for i := 0; i < n; i++ {
		h, err := r.HashVal()
		if err != nil {
			return GlobGetSources{}, err
		}
		hashes = append(hashes, h)
	}
	return GlobGetSources{Hashes: hashes}, nil
}

// GlobGetSources2 is UDP opcode 0x94: each hash is paired with its known
// size so the server can skip stale/mismatched entries, batched up to
// GlobGetSources2Batch hashes and GlobGetSources2MaxLen bytes.
type GlobGetSources2 struct {
	Hashes []wire.Hash
	Sizes  []uint32
}

func (f GlobGetSources2) Encode() []byte {
	var w wire.Writer
	for i, h := range f.Hashes {
		w.HashVal(h)
		w.U32(f.Sizes[i])
	}
	return w.Bytes()
}

func DecodeGlobGetSources2(payload []byte) (GlobGetSources2, error) {
	const recordLen = 20
	if len(payload)%recordLen != 0 {
		return GlobGetSources2{}, fmt.Errorf("server: GlobGetSources2 payload length %d not a multiple of %d", len(payload), recordLen)
	}
	r := wire.NewReader(payload)
	n := len(payload) / recordLen
	out := GlobGetSources2{Hashes: make([]wire.Hash, 0, n), Sizes: make([]uint32, 0, n)}
	for i := 0; i < n; i++ {
		h, err := r.HashVal()
		if err != nil {
			return GlobGetSources2{}, err
		}
		size, err := r.U32()
		if err != nil {
			return GlobGetSources2{}, err
		}
		out.Hashes = append(out.Hashes, h)
		out.Sizes = append(out.Sizes, size)
	}
	return out, nil
}

// GlobFoundSources is UDP opcode 0x93: the reply to a GlobGetSources(2)
// query for one hash; replies for several hashes may arrive concatenated
// in a single datagram (spec.md §4.J: "possibly concatenated in one
// datagram"), so DecodeAllGlobFoundSources keeps reading until the
// reader is exhausted. SourceEntry is shared with FoundSources in
// frames.go.
type GlobFoundSources struct {
	Hash    wire.Hash
	Sources []SourceEntry
}

func (f GlobFoundSources) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	w.U8(byte(len(f.Sources)))
	for _, s := range f.Sources {
		w.Raw(s.IP[:])
		w.U16(s.Port)
	}
	return w.Bytes()
}

// DecodeAllGlobFoundSources parses every concatenated GlobFoundSources
// record in payload.
func DecodeAllGlobFoundSources(payload []byte) ([]GlobFoundSources, error) {
	r := wire.NewReader(payload)
	var out []GlobFoundSources
	for r.Remaining() > 0 {
		h, err := r.HashVal()
		if err != nil {
			return out, err
		}
		count, err := r.U8()
		if err != nil {
			return out, err
		}
		sources := make([]SourceEntry, 0, count)
		for i := byte(0); i < count; i++ {
			ipBytes, err := r.Raw(4)
			if err != nil {
				return out, err
			}
			port, err := r.U16()
			if err != nil {
				return out, err
			}
			var ip [4]byte
			copy(ip[:], ipBytes)
			sources = append(sources, SourceEntry{IP: ip, Port: port})
		}
		out = append(out, GlobFoundSources{Hash: h, Sources: sources})
	}
	return out, nil
}
