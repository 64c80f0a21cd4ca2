package proto

import (
	"fmt"

	"github.com/hydranode/hydranode/wire"
)

// Hello is opcode 0x01: the first frame on a newly connected peer socket
// (spec.md §6). HelloAnswer (0x4c) carries the same fields minus the
// redundant hash-length byte.
type Hello struct {
	UserHash wire.Hash
	ID       uint32
	Port     uint16
	Tags     []wire.Tag
}

// Encode writes the Hello payload, including the `u8 16` hash-length
// prefix that only Hello (not HelloAnswer) carries.
func (h Hello) Encode() []byte {
	var w wire.Writer
	w.U8(16)
	w.HashVal(h.UserHash)
	w.U32(h.ID)
	w.U16(h.Port)
	wire.WriteTagList(&w, h.Tags)
	return w.Bytes()
}

// DecodeHello parses a Hello payload.
func DecodeHello(payload []byte) (Hello, error) {
	r := wire.NewReader(payload)
	n, err := r.U8()
	if err != nil {
		return Hello{}, err
	}
	if n != 16 {
		return Hello{}, fmt.Errorf("proto: Hello hash-length byte %d, want 16", n)
	}
	return decodeHelloBody(r)
}

func decodeHelloBody(r *wire.Reader) (Hello, error) {
	hash, err := r.HashVal()
	if err != nil {
		return Hello{}, err
	}
	id, err := r.U32()
	if err != nil {
		return Hello{}, err
	}
	port, err := r.U16()
	if err != nil {
		return Hello{}, err
	}
	tags, err := wire.ReadTagList(r)
	if err != nil {
		return Hello{}, err
	}
	return Hello{UserHash: hash, ID: id, Port: port, Tags: tags}, nil
}

// HelloAnswer carries the same fields as Hello without the hash-length
// byte (spec.md §6: "like Hello, no hash-length byte").
type HelloAnswer Hello

// Encode writes the HelloAnswer payload.
func (h HelloAnswer) Encode() []byte {
	var w wire.Writer
	w.HashVal(h.UserHash)
	w.U32(h.ID)
	w.U16(h.Port)
	wire.WriteTagList(&w, h.Tags)
	return w.Bytes()
}

// DecodeHelloAnswer parses a HelloAnswer payload.
func DecodeHelloAnswer(payload []byte) (HelloAnswer, error) {
	h, err := decodeHelloBody(wire.NewReader(payload))
	return HelloAnswer(h), err
}
