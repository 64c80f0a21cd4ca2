// Package version provides default client-identification strings and the
// handshake tag-list builder every peer Hello and server LoginRequest
// sends (spec.md §4.I/§4.J: "nick, version, mod string, mule-version, udp
// port, feature bitset").
package version

import "github.com/hydranode/hydranode/wire"

var (
	// DefaultNick is the client name advertised in the handshake nick tag
	// and the server LoginRequest, overridable from config.Config.Nick.
	DefaultNick = "hydranode"
	// DefaultModString identifies this implementation the way eMule-family
	// clients identify their build/mod in the handshake mod-string tag.
	DefaultModString = "hydranode 0.1"
	// DefaultMuleVersion is encoded as (major<<8 | minor); minor must stay
	// at or above oldMuleMinorVersion (43, see edonkey/peer/handshake.go)
	// so peers don't treat us as requiring the legacy MuleInfo exchange.
	DefaultMuleVersion uint32 = 0x3e<<8 | 43
	// DefaultClientVersion is the numeric version tag value, independent of
	// the mule-specific one above; ed2k's original eDonkey clients only
	// understand this field.
	DefaultClientVersion uint32 = 0x3c
)

// DefaultFeatureBits encodes the extension versions this build supports
// into the handshake feature-bitset tag, matching
// edonkey/peer.decodeFeatureBits' layout: bits 0-2 SrcExch, 3-4 SecIdent,
// bit 5 UDPReask, bit 6 Comments, bit 7 Compression, bit 8 AICH.
const DefaultFeatureBits uint32 = 1<<0 | 1<<3 | 1<<5 | 1<<7

// Handshake tag opcodes, matching edonkey/peer/handshake.go's constants of
// the same name (kept duplicated rather than imported to avoid a
// version->edonkey/peer import cycle, since edonkey/peer is the one
// expected to import version, not the reverse).
const (
	tagNick        = 0x01
	tagVersion     = 0x11
	tagModString   = 0x55
	tagMuleVersion = 0x5b
	tagUDPPort     = 0xf9
	tagFeatures    = 0xfa
)

// HandshakeTags builds the tag list a Hello/HelloAnswer/LoginRequest
// sends to identify this client, given the locally configured nick and
// UDP listen port.
func HandshakeTags(nick string, udpPort uint16) []wire.Tag {
	if nick == "" {
		nick = DefaultNick
	}
	return []wire.Tag{
		{Opcode: tagNick, Type: wire.TagStr, S: nick},
		{Opcode: tagVersion, Type: wire.TagU32, U: DefaultClientVersion},
		{Opcode: tagModString, Type: wire.TagStr, S: DefaultModString},
		{Opcode: tagMuleVersion, Type: wire.TagU32, U: DefaultMuleVersion},
		{Opcode: tagUDPPort, Type: wire.TagU16, U: uint32(udpPort)},
		{Opcode: tagFeatures, Type: wire.TagU32, U: DefaultFeatureBits},
	}
}
