package proto

import "github.com/hydranode/hydranode/wire"

// PartMap is the peer-visible presentation bitmap of which chunks are
// verified (spec.md §6's FileStatus/ReaskFilePing/ReaskAck payloads):
// bit i set means chunk i is present. Wire-encoded as ceil(n/8) bytes.
type PartMap struct {
	Bits  []bool
	Count int
}

// NewPartMap builds a PartMap from a []bool snapshot such as
// partdata.PartData.PartStatus's return value.
func NewPartMap(bits []bool) PartMap {
	return PartMap{Bits: bits, Count: len(bits)}
}

// WritePartMap appends `u16 count | ceil(count/8) bytes` to w. If whole is
// true (the advertiser has the complete file), spec.md says the partmap
// is omitted entirely; callers check that before calling WritePartMap.
func WritePartMap(w *wire.Writer, m PartMap) {
	w.U16(uint16(m.Count))
	nbytes := (m.Count + 7) / 8
	buf := make([]byte, nbytes)
	for i, b := range m.Bits {
		if b {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	w.Raw(buf)
}

// ReadPartMap reads a partmap written by WritePartMap.
func ReadPartMap(r *wire.Reader) (PartMap, error) {
	count, err := r.U16()
	if err != nil {
		return PartMap{}, err
	}
	nbytes := (int(count) + 7) / 8
	buf, err := r.Raw(nbytes)
	if err != nil {
		return PartMap{}, err
	}
	bits := make([]bool, count)
	for i := range bits {
		bits[i] = buf[i/8]&(1<<uint(i%8)) != 0
	}
	return PartMap{Bits: bits, Count: int(count)}, nil
}
