// Package server implements Component J: ServerList plus a single active
// server connection carrying login, file offers, source queries, and
// global (UDP) searches and stats, with the rest of the known server
// list queried round-robin over UDP (spec.md §4.J).
package server

// Opcode identifies a TCP server-protocol frame (spec.md §6 "Server wire
// protocol"). The ed2k server protocol shares the wire envelope style of
// the peer protocol (proto|size|opcode|payload, via the wire package)
// but occupies its own opcode space.
type Opcode byte

const (
	OpLoginRequest Opcode = 0x01
	OpServerMessage Opcode = 0x38
	OpServerStatus  Opcode = 0x34
	OpIdChange      Opcode = 0x40
	OpServerIdent   Opcode = 0x41
	OpOfferFiles    Opcode = 0x15
	OpSearchRequest Opcode = 0x16
	OpSearchResult  Opcode = 0x33
	OpReqCallback   Opcode = 0x1c
	OpCallbackReq   Opcode = 0x35
	OpReqSources    Opcode = 0x19
	OpFoundSources  Opcode = 0x42
	OpGetServerList Opcode = 0x14
	OpServerList    Opcode = 0x32
)

// UDPOpcode identifies a UDP server-protocol sideband frame.
type UDPOpcode byte

const (
	OpGlobStatReq     UDPOpcode = 0x96
	OpGlobStatRes     UDPOpcode = 0x97
	OpGlobGetSources  UDPOpcode = 0x92
	OpGlobGetSources2 UDPOpcode = 0x94
	OpGlobFoundSources UDPOpcode = 0x93
)

// Batching constants named directly from spec.md §4.J.
const (
	MaxInitialOfferFiles  = 300
	OfferKeepAliveEvery   = 20 // minutes
	ReqSourcesBatchSize   = 15
	ReqSourcesMaxPackets  = 5
	ReqSourcesInterval    = 4 // minutes
	GlobStatInterval      = 20 // minutes
	GlobGetSources2Batch  = 25
	GlobGetSources2MaxLen = 512 // bytes
	GlobGetSourcesBatch   = 31
	LowIDThreshold        = 0x00ffffff
	PingFailuresBeforeDrop = 3
	LoginRetryCooldown    = 3 // seconds
)
