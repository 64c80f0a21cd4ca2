// Package proto implements Component H: the eDonkey2000 wire codec for
// both the TCP peer protocol and its UDP sideband, plus the subset of the
// server protocol a client speaks (spec.md §6).
//
// Every frame type here is a plain Go struct with Encode/Decode methods
// built on the wire package's little-endian primitives, grounded on the
// teacher's pp.Message discipline (fixed opcode, length-prefixed or
// tag-list payload, decode∘encode = id).
package proto

// Opcode identifies a TCP peer-protocol frame (spec.md §6 "Peer wire
// protocol").
type Opcode byte

const (
	OpHello           Opcode = 0x01
	OpHelloAnswer     Opcode = 0x4c
	OpReqFile         Opcode = 0x58
	OpFileName        Opcode = 0x59
	OpSetReqFileId    Opcode = 0x4f
	OpFileStatus      Opcode = 0x50
	OpNoFile          Opcode = 0x48
	OpReqHashSet      Opcode = 0x51
	OpHashSet         Opcode = 0x52
	OpStartUploadReq  Opcode = 0x54
	OpAcceptUploadReq Opcode = 0x55
	OpQueueRanking    Opcode = 0x5c
	OpMuleQueueRank   Opcode = 0x60
	OpReqChunks       Opcode = 0x47
	OpDataChunk       Opcode = 0x46
	OpPackedChunk     Opcode = 0x40
	OpCancelTransfer  Opcode = 0x56
	OpSourceExchReq   Opcode = 0x81
	OpAnswerSources   Opcode = 0x82
	OpSecIdentState   Opcode = 0x87
	OpPublicKey       Opcode = 0x85
	OpSignature       Opcode = 0x86
	OpMessage         Opcode = 0x4e
	OpChangeId        Opcode = 0x4d
)

// UDPOpcode identifies a UDP sideband frame (spec.md §6 "Peer UDP
// frames").
type UDPOpcode byte

const (
	OpReaskFilePing UDPOpcode = 0x90
	OpReaskAck      UDPOpcode = 0x91
	OpFileNotFound  UDPOpcode = 0x92
	OpQueueFull     UDPOpcode = 0x93
)

// Protocol byte selects the envelope variant: plain (0xe3), zlib-wrapped
// (0xc5), or the packed/extended variant (0xd4) (spec.md §6).
type Protocol byte

const (
	ProtoStandard   Protocol = 0xe3
	ProtoZlib       Protocol = 0xc5
	ProtoEmuleExt   Protocol = 0xd4
)

// File identifiers advertised to servers (spec.md §6 "File identifiers on
// wire").
const (
	CompleteFileID   uint32 = 0xfbfbfbfb
	CompleteFilePort uint16 = 0xfbfb
	PartialFileID    uint32 = 0xfcfcfcfc
	PartialFilePort  uint16 = 0xfcfc
)
