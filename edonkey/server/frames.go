package server

import (
	"github.com/hydranode/hydranode/wire"
)

// LoginRequest is opcode 0x01: `H hash | u32 id | u16 port | tag-list`
// (spec.md §4.J: "LoginRequest(hash, 0, listenPort, tags)"; id is 0 for
// an as-yet-unassigned client).
type LoginRequest struct {
	Hash wire.Hash
	ID   uint32
	Port uint16
	Tags []wire.Tag
}

func (f LoginRequest) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	w.U32(f.ID)
	w.U16(f.Port)
	wire.WriteTagList(&w, f.Tags)
	return w.Bytes()
}

func DecodeLoginRequest(payload []byte) (LoginRequest, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return LoginRequest{}, err
	}
	id, err := r.U32()
	if err != nil {
		return LoginRequest{}, err
	}
	port, err := r.U16()
	if err != nil {
		return LoginRequest{}, err
	}
	tags, err := wire.ReadTagList(r)
	if err != nil {
		return LoginRequest{}, err
	}
	return LoginRequest{Hash: h, ID: id, Port: port, Tags: tags}, nil
}

// ServerMessage is opcode 0x38: a banner string shown after login.
type ServerMessage struct {
	Text string
}

func (f ServerMessage) Encode() []byte {
	var w wire.Writer
	w.Str(f.Text)
	return w.Bytes()
}

func DecodeServerMessage(payload []byte) (ServerMessage, error) {
	r := wire.NewReader(payload)
	s, err := r.Str()
	if err != nil {
		return ServerMessage{}, err
	}
	return ServerMessage{Text: s}, nil
}

// ServerStatus is opcode 0x34: `u32 users | u32 files`.
type ServerStatus struct {
	Users uint32
	Files uint32
}

func (f ServerStatus) Encode() []byte {
	var w wire.Writer
	w.U32(f.Users)
	w.U32(f.Files)
	return w.Bytes()
}

func DecodeServerStatus(payload []byte) (ServerStatus, error) {
	r := wire.NewReader(payload)
	users, err := r.U32()
	if err != nil {
		return ServerStatus{}, err
	}
	files, err := r.U32()
	if err != nil {
		return ServerStatus{}, err
	}
	return ServerStatus{Users: users, Files: files}, nil
}

// IdChange is opcode 0x40: `u32 newId | u32 flags` (spec.md §4.J: "server
// replies ... IdChange(newId, flags?)"). A low id (<=LowIDThreshold) is
// assigned when the server cannot reach our listen port.
type IdChange struct {
	NewID uint32
	Flags uint32
}

func (f IdChange) Encode() []byte {
	var w wire.Writer
	w.U32(f.NewID)
	w.U32(f.Flags)
	return w.Bytes()
}

func DecodeIdChange(payload []byte) (IdChange, error) {
	r := wire.NewReader(payload)
	id, err := r.U32()
	if err != nil {
		return IdChange{}, err
	}
	flags, err := r.U32()
	if err != nil {
		return IdChange{}, err
	}
	return IdChange{NewID: id, Flags: flags}, nil
}

// IsLowID reports whether this IdChange assigned a low id.
func (f IdChange) IsLowID() bool { return f.NewID <= LowIDThreshold }

// OfferedFile is one entry of an OfferFiles frame.
type OfferedFile struct {
	Hash wire.Hash
	ID   uint32 // CompleteFileID/PartialFileID sentinel, or a real client id
	Port uint16
	Name string
	Size uint32
	Tags []wire.Tag
}

// OfferFiles is opcode 0x15: `u32 count | count*(H hash|u32 id|u16 port|
// str name|u32 size|tag-list)`. The whole frame may be zlib-compressed by
// the TCP envelope when the server advertised that capability (spec.md
// §4.J: "zlib-compressed if server supports it").
type OfferFiles struct {
	Files []OfferedFile
}

func (f OfferFiles) Encode() []byte {
	var w wire.Writer
	w.U32(uint32(len(f.Files)))
	for _, file := range f.Files {
		w.HashVal(file.Hash)
		w.U32(file.ID)
		w.U16(file.Port)
		w.Str(file.Name)
		w.U32(file.Size)
		wire.WriteTagList(&w, file.Tags)
	}
	return w.Bytes()
}

func DecodeOfferFiles(payload []byte) (OfferFiles, error) {
	r := wire.NewReader(payload)
	count, err := r.U32()
	if err != nil {
		return OfferFiles{}, err
	}
	files := make([]OfferedFile, 0, count)
	for i := uint32(0); i < count; i++ {
		h, err := r.HashVal()
		if err != nil {
			return OfferFiles{}, err
		}
		id, err := r.U32()
		if err != nil {
			return OfferFiles{}, err
		}
		port, err := r.U16()
		if err != nil {
			return OfferFiles{}, err
		}
		name, err := r.Str()
		if err != nil {
			return OfferFiles{}, err
		}
		size, err := r.U32()
		if err != nil {
			return OfferFiles{}, err
		}
		tags, err := wire.ReadTagList(r)
		if err != nil {
			return OfferFiles{}, err
		}
		files = append(files, OfferedFile{Hash: h, ID: id, Port: port, Name: name, Size: size, Tags: tags})
	}
	return OfferFiles{Files: files}, nil
}

// ReqSources is opcode 0x19: `H hash | u32 size`.
type ReqSources struct {
	Hash wire.Hash
	Size uint32
}

func (f ReqSources) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	w.U32(f.Size)
	return w.Bytes()
}

func DecodeReqSources(payload []byte) (ReqSources, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return ReqSources{}, err
	}
	size, err := r.U32()
	if err != nil {
		return ReqSources{}, err
	}
	return ReqSources{Hash: h, Size: size}, nil
}

// SourceEntry is one peer address in a FoundSources/GlobFoundSources
// reply.
type SourceEntry struct {
	IP   [4]byte
	Port uint16
}

// FoundSources is opcode 0x42: `H hash | u8 count | count*(u32 ip | u16
// port)`.
type FoundSources struct {
	Hash    wire.Hash
	Sources []SourceEntry
}

func (f FoundSources) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	w.U8(byte(len(f.Sources)))
	for _, s := range f.Sources {
		w.Raw(s.IP[:])
		w.U16(s.Port)
	}
	return w.Bytes()
}

func DecodeFoundSources(payload []byte) (FoundSources, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return FoundSources{}, err
	}
	count, err := r.U8()
	if err != nil {
		return FoundSources{}, err
	}
	sources := make([]SourceEntry, 0, count)
	for i := byte(0); i < count; i++ {
		ipBytes, err := r.Raw(4)
		if err != nil {
			return FoundSources{}, err
		}
		port, err := r.U16()
		if err != nil {
			return FoundSources{}, err
		}
		var ip [4]byte
		copy(ip[:], ipBytes)
		sources = append(sources, SourceEntry{IP: ip, Port: port})
	}
	return FoundSources{Hash: h, Sources: sources}, nil
}
