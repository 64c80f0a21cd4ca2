// Package wire provides the little-endian integer, length-prefixed string,
// tagged-value and zlib-wrap primitives that every edonkey/proto frame is
// built from (spec.md §4.H, §6). It is the generalization of the teacher's
// pp.Message binary encode/decode discipline (peer-conn-msg-writer.go's
// MustMarshalBinary, peer.go's precomputed message-length constants) from a
// single BitTorrent envelope to ed2k's family of envelopes.
package wire

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

// Hash is a 16-byte ed2k identifier (file hash, user hash, challenge...).
type Hash [16]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Reader wraps a byte slice with the cursor-based decode helpers every
// opcode payload parser needs. It never allocates past the initial slice.
type Reader struct {
	b   []byte
	off int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int { return len(r.b) - r.off }

// Bytes returns the unconsumed tail without advancing the cursor.
func (r *Reader) Bytes() []byte { return r.b[r.off:] }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("wire: short read: need %d, have %d", n, r.Remaining())
	}
	return nil
}

// U8 reads one byte.
func (r *Reader) U8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.b[r.off]
	r.off++
	return b, nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

// HashVal reads a 16-byte Hash.
func (r *Reader) HashVal() (Hash, error) {
	if err := r.need(16); err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], r.b[r.off:r.off+16])
	r.off += 16
	return h, nil
}

// Raw reads n raw bytes.
func (r *Reader) Raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Str reads a u16-length-prefixed string.
func (r *Reader) Str() (string, error) {
	n, err := r.U16()
	if err != nil {
		return "", err
	}
	b, err := r.Raw(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Writer accumulates an encoded payload.
type Writer struct {
	buf bytes.Buffer
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// U8 appends one byte.
func (w *Writer) U8(b byte) { w.buf.WriteByte(b) }

// U16 appends a little-endian uint16.
func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// HashVal appends a 16-byte Hash.
func (w *Writer) HashVal(h Hash) { w.buf.Write(h[:]) }

// Raw appends raw bytes verbatim.
func (w *Writer) Raw(b []byte) { w.buf.Write(b) }

// Str appends a u16-length-prefixed string.
func (w *Writer) Str(s string) {
	w.U16(uint16(len(s)))
	w.buf.WriteString(s)
}

// Tag type codes for the subset of tag types every frame in spec.md §6
// needs. Tags of unknown type are read past by their declared length,
// per §4.H.
const (
	TagU8  byte = 0x01
	TagU16 byte = 0x02
	TagU32 byte = 0x03
	TagStr byte = 0x04
)

// Tag is one entry of a tag list: an opcode identifying the field plus a
// typed value. A tag whose Type is not one of the codes above keeps its
// value bytes in Raw, so a decode/encode cycle is lossless even for tags
// this build doesn't interpret.
type Tag struct {
	Opcode byte
	Type   byte
	U      uint32
	S      string
	Raw    []byte // used only when Type is unrecognised
}

// WriteTagList appends a tag list: u32 count followed by each tag.
func WriteTagList(w *Writer, tags []Tag) {
	w.U32(uint32(len(tags)))
	for _, t := range tags {
		w.U8(t.Opcode)
		w.U8(t.Type)
		switch t.Type {
		case TagU8:
			w.U8(byte(t.U))
		case TagU16:
			w.U16(uint16(t.U))
		case TagU32:
			w.U32(t.U)
		case TagStr:
			w.Str(t.S)
		default:
			w.U16(uint16(len(t.Raw)))
			w.Raw(t.Raw)
		}
	}
}

// ReadTagList reads a tag list written by WriteTagList.
func ReadTagList(r *Reader) ([]Tag, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	if count > uint32(r.Remaining()) {
		// Each tag is at least 2 bytes (opcode+type); a count this large
		// cannot possibly be satisfied by the remaining payload. Reject as
		// a protocol violation rather than trust the peer-supplied count
		// (spec.md §9's "validate against pathological counts" flag,
		// generalized from AnswerSources to every tag list).
		return nil, fmt.Errorf("wire: tag count %d exceeds remaining payload %d", count, r.Remaining())
	}
	tags := make([]Tag, 0, count)
	for i := uint32(0); i < count; i++ {
		opcode, err := r.U8()
		if err != nil {
			return nil, err
		}
		typ, err := r.U8()
		if err != nil {
			return nil, err
		}
		t := Tag{Opcode: opcode, Type: typ}
		switch typ {
		case TagU8:
			v, err := r.U8()
			if err != nil {
				return nil, err
			}
			t.U = uint32(v)
		case TagU16:
			v, err := r.U16()
			if err != nil {
				return nil, err
			}
			t.U = uint32(v)
		case TagU32:
			v, err := r.U32()
			if err != nil {
				return nil, err
			}
			t.U = v
		case TagStr:
			s, err := r.Str()
			if err != nil {
				return nil, err
			}
			t.S = s
		default:
			n, err := r.U16()
			if err != nil {
				return nil, err
			}
			b, err := r.Raw(int(n))
			if err != nil {
				return nil, err
			}
			t.Raw = append([]byte(nil), b...)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// ZlibWrap compresses payload. The caller decides whether to keep the
// compressed form (spec.md §4.H: "if the result is not smaller, revert to
// STD").
func ZlibWrap(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ZlibUnwrap decompresses a zlib-wrapped payload.
func ZlibUnwrap(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
