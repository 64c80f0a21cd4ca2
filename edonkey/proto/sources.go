package proto

import (
	"fmt"
	"net"

	"github.com/hydranode/hydranode/wire"
)

// maxSourceCount bounds AnswerSources' peer-supplied count so a corrupt or
// hostile count field can't trigger an unbounded allocation (spec.md §9's
// redesign flag: "validate AnswerSources' count against a sane maximum
// before trusting it").
const maxSourceCount = 500

// SourceExchReq is opcode 0x81.
type SourceExchReq struct {
	Hash wire.Hash
}

func (f SourceExchReq) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	return w.Bytes()
}

func DecodeSourceExchReq(payload []byte) (SourceExchReq, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return SourceExchReq{}, err
	}
	return SourceExchReq{Hash: h}, nil
}

// SourceVersion selects the wire layout AnswerSources uses. eMule's v2/v3
// clients pack an extra byte per source (compression/encryption hints)
// and store the IP in a byte order that needs swapping relative to the
// plain v1 layout (spec.md §9's redesign flag on AnswerSources parsing).
type SourceVersion int

const (
	SourceV1 SourceVersion = iota
	SourceV2
	SourceV3
)

// Source is one decoded peer address entry from AnswerSources.
type Source struct {
	IP   net.IP
	Port uint16
}

// AnswerSources is opcode 0x82.
type AnswerSources struct {
	Hash    wire.Hash
	Version SourceVersion
	Sources []Source
}

func (f AnswerSources) Encode() []byte {
	var w wire.Writer
	w.HashVal(f.Hash)
	w.U8(byte(len(f.Sources)))
	for _, s := range f.Sources {
		writeSourceIP(&w, s.IP)
		w.U16(s.Port)
		if f.Version >= SourceV2 {
			w.U8(0) // reserved v2/v3 per-source flag byte, unused by this build
		}
	}
	return w.Bytes()
}

// DecodeAnswerSources parses an AnswerSources payload. version picks the
// per-source record width; callers learn the negotiated version from the
// Hello tag exchange (spec.md §6).
func DecodeAnswerSources(payload []byte, version SourceVersion) (AnswerSources, error) {
	r := wire.NewReader(payload)
	h, err := r.HashVal()
	if err != nil {
		return AnswerSources{}, err
	}
	count, err := r.U8()
	if err != nil {
		return AnswerSources{}, err
	}
	if int(count) > maxSourceCount {
		return AnswerSources{}, fmt.Errorf("proto: AnswerSources count %d exceeds max %d", count, maxSourceCount)
	}
	recordLen := 6
	if version >= SourceV2 {
		recordLen = 7
	}
	if int(count)*recordLen > r.Remaining() {
		return AnswerSources{}, fmt.Errorf("proto: AnswerSources count %d exceeds remaining payload %d", count, r.Remaining())
	}
	sources := make([]Source, 0, count)
	for i := byte(0); i < count; i++ {
		ip, err := readSourceIP(r)
		if err != nil {
			return AnswerSources{}, err
		}
		port, err := r.U16()
		if err != nil {
			return AnswerSources{}, err
		}
		if version >= SourceV2 {
			if _, err := r.U8(); err != nil {
				return AnswerSources{}, err
			}
		}
		sources = append(sources, Source{IP: ip, Port: port})
	}
	return AnswerSources{Hash: h, Version: version, Sources: sources}, nil
}

// writeSourceIP writes a 4-byte IPv4 address in ed2k's on-wire byte order
// (reversed relative to net.IP's natural big-endian octets).
func writeSourceIP(w *wire.Writer, ip net.IP) {
	v4 := ip.To4()
	if v4 == nil {
		v4 = net.IPv4zero.To4()
	}
	w.Raw([]byte{v4[3], v4[2], v4[1], v4[0]})
}

func readSourceIP(r *wire.Reader) (net.IP, error) {
	b, err := r.Raw(4)
	if err != nil {
		return nil, err
	}
	return net.IPv4(b[3], b[2], b[1], b[0]), nil
}
