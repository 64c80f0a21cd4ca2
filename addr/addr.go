// Package addr provides the IPv4 endpoint and low/high-id types shared by
// every networking component: scheduler, codec, peer and server sessions.
package addr

import (
	"encoding/binary"
	"fmt"
	"net"
)

// LowIDThreshold is the ed2k low-id boundary: an id at or below this value
// identifies a peer the server could not connect back to on its listen
// port, and who therefore must be reached via server-mediated callback.
const LowIDThreshold = 0x00ffffff

// IsLowID reports whether id identifies a low-id peer.
func IsLowID(id uint32) bool {
	return id <= LowIDThreshold
}

// Endpoint is an IPv4 address plus a 16-bit port, the unit every peer and
// server reference is built from on the wire.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

// NewEndpoint builds an Endpoint from a net.IP (must be or map to 4 bytes)
// and a port.
func NewEndpoint(ip net.IP, port uint16) (Endpoint, error) {
	v4 := ip.To4()
	if v4 == nil {
		return Endpoint{}, fmt.Errorf("addr: %v is not an IPv4 address", ip)
	}
	var e Endpoint
	copy(e.IP[:], v4)
	e.Port = port
	return e, nil
}

// ParseEndpoint parses a "host:port" string into an Endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("addr: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, fmt.Errorf("addr: invalid host %q", host)
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Endpoint{}, fmt.Errorf("addr: invalid port %q: %w", portStr, err)
	}
	return NewEndpoint(ip, port)
}

// IP4 returns the address as a net.IP.
func (e Endpoint) IP4() net.IP {
	return net.IPv4(e.IP[0], e.IP[1], e.IP[2], e.IP[3])
}

// Uint32 returns the address in ed2k wire order: a little-endian uint32
// formed directly from the address bytes (the "id" representation used
// when a server assigns a low id derived from the connecting address).
func (e Endpoint) Uint32() uint32 {
	return binary.LittleEndian.Uint32(e.IP[:])
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", e.IP[0], e.IP[1], e.IP[2], e.IP[3], e.Port)
}

// Network returns "tcp4", satisfying callers that build net.Dialer/Listener
// addressing purely from an Endpoint.
func (e Endpoint) Network() string { return "tcp4" }

// BannableAddr identifies a peer for smart-ban-style accounting: repeated
// corrupt-chunk senders get recorded here by the peer session and consulted
// by the scheduler's IP filter, generalizing the teacher's
// recordBlockForSmartBan/bannableAddr pair from BitTorrent's per-piece
// hash-fail voting to ed2k's per-chunk corruption path.
type BannableAddr struct {
	IP [4]byte
}

func (b BannableAddr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", b.IP[0], b.IP[1], b.IP[2], b.IP[3])
}

// Bannable strips the port, since bans apply to the address, not one socket.
func (e Endpoint) Bannable() BannableAddr {
	return BannableAddr{IP: e.IP}
}
