package proto

import (
	"github.com/hydranode/hydranode/wire"
)

// Frame is a decoded TCP peer-protocol message: Opcode plus its raw
// payload bytes, before a specific frame type's Decode further parses it.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// EncodeTCP wraps payload in the `proto|u32 size|opcode` envelope
// (spec.md §6). If payload compresses to something smaller under zlib,
// the zlib-wrapped form is emitted under ProtoZlib instead, matching
// "if the result is not smaller, revert to STD" (§4.H).
func EncodeTCP(op Opcode, payload []byte) ([]byte, error) {
	proto := ProtoStandard
	body := payload
	if zipped, err := wire.ZlibWrap(payload); err == nil && len(zipped) < len(payload) {
		proto = ProtoZlib
		body = zipped
	}
	var w wire.Writer
	w.U8(byte(proto))
	w.U32(uint32(len(body) + 1)) // size covers opcode + payload
	w.U8(byte(op))
	w.Raw(body)
	return w.Bytes(), nil
}

// DecodeTCP reads one envelope from r, undoing the zlib wrap if present,
// and returns the decoded Frame; r is advanced past the envelope.
func DecodeTCP(r *wire.Reader) (Frame, error) {
	protoByte, err := r.U8()
	if err != nil {
		return Frame{}, err
	}
	size, err := r.U32()
	if err != nil {
		return Frame{}, err
	}
	opByte, err := r.U8()
	if err != nil {
		return Frame{}, err
	}
	body, err := r.Raw(int(size) - 1)
	if err != nil {
		return Frame{}, err
	}
	if Protocol(protoByte) == ProtoZlib {
		unzipped, err := wire.ZlibUnwrap(body)
		if err != nil {
			return Frame{}, err
		}
		body = unzipped
	}
	return Frame{Opcode: Opcode(opByte), Payload: body}, nil
}

// UDPFrame is a decoded UDP sideband message: no length prefix, just
// `proto|opcode|payload` (spec.md §6 "Peer UDP frames").
type UDPFrame struct {
	Opcode  UDPOpcode
	Payload []byte
}

// EncodeUDP wraps payload in the UDP envelope. UDP frames in this
// implementation are always ProtoStandard: the wire savings of zlib
// rarely justify the fragmentation risk on a single unreliable datagram,
// matching how the larger per-chunk transfer frames (not UDP control
// frames) are the ones the teacher's pack shows being wrapped.
func EncodeUDP(op UDPOpcode, payload []byte) []byte {
	var w wire.Writer
	w.U8(byte(ProtoStandard))
	w.U8(byte(op))
	w.Raw(payload)
	return w.Bytes()
}

// DecodeUDP parses a full UDP datagram as one frame.
func DecodeUDP(data []byte) (UDPFrame, error) {
	r := wire.NewReader(data)
	protoByte, err := r.U8()
	if err != nil {
		return UDPFrame{}, err
	}
	opByte, err := r.U8()
	if err != nil {
		return UDPFrame{}, err
	}
	body := r.Bytes()
	if Protocol(protoByte) == ProtoZlib {
		unzipped, err := wire.ZlibUnwrap(body)
		if err != nil {
			return UDPFrame{}, err
		}
		body = unzipped
	}
	return UDPFrame{Opcode: UDPOpcode(opByte), Payload: body}, nil
}
