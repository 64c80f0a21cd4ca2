package server

import (
	"github.com/hydranode/hydranode/wire"
)

// Frame is a decoded TCP server-protocol message, mirroring
// edonkey/proto.Frame but over the server opcode space.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// EncodeTCP wraps payload in the `proto|u32 size|opcode` envelope,
// preferring the zlib-wrapped form when it's smaller, exactly like
// edonkey/proto.EncodeTCP but for the server's own Opcode type (spec.md
// §4.J: "zlib-compressed if server supports it").
func EncodeTCP(op Opcode, payload []byte) ([]byte, error) {
	proto := protoStandard
	body := payload
	if zipped, err := wire.ZlibWrap(payload); err == nil && len(zipped) < len(payload) {
		proto = protoZlib
		body = zipped
	}
	var w wire.Writer
	w.U8(byte(proto))
	w.U32(uint32(len(body) + 1))
	w.U8(byte(op))
	w.Raw(body)
	return w.Bytes(), nil
}

// DecodeTCP reads one envelope from r, undoing the zlib wrap if present.
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
	if protocol(protoByte) == protoZlib {
		unzipped, err := wire.ZlibUnwrap(body)
		if err != nil {
			return Frame{}, err
		}
		body = unzipped
	}
	return Frame{Opcode: Opcode(opByte), Payload: body}, nil
}

// UDPFrame is a decoded UDP sideband message.
type UDPFrame struct {
	Opcode  UDPOpcode
	Payload []byte
}

// EncodeUDPFrame wraps payload in the plain (never zlib) UDP envelope.
func EncodeUDPFrame(op UDPOpcode, payload []byte) []byte {
	var w wire.Writer
	w.U8(byte(protoStandard))
	w.U8(byte(op))
	w.Raw(payload)
	return w.Bytes()
}

// DecodeUDPFrame parses a full UDP datagram as one frame.
func DecodeUDPFrame(data []byte) (UDPFrame, error) {
	r := wire.NewReader(data)
	protoByte, err := r.U8()
	if err != nil {
		return UDPFrame{}, err
	}
	opByte, err := r.U8()
	if err != nil {
		return UDPFrame{}, err
	}
	return UDPFrame{Opcode: UDPOpcode(opByte), Payload: r.Bytes()}, nil
}

// protocol mirrors edonkey/proto.Protocol; the server connection never
// needs the emule-extended variant, only plain vs. zlib.
type protocol byte

const (
	protoStandard protocol = 0xe3
	protoZlib     protocol = 0xc5
)
