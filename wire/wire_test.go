package wire

import (
	"bytes"
	"testing"
)

func TestIntRoundTrip(t *testing.T) {
	var w Writer
	w.U8(0xab)
	w.U16(0x1234)
	w.U32(0xdeadbeef)
	w.U64(0x0102030405060708)
	r := NewReader(w.Bytes())
	if v, _ := r.U8(); v != 0xab {
		t.Fatalf("u8 got %x", v)
	}
	if v, _ := r.U16(); v != 0x1234 {
		t.Fatalf("u16 got %x", v)
	}
	if v, _ := r.U32(); v != 0xdeadbeef {
		t.Fatalf("u32 got %x", v)
	}
	if v, _ := r.U64(); v != 0x0102030405060708 {
		t.Fatalf("u64 got %x", v)
	}
}

func TestStrRoundTrip(t *testing.T) {
	var w Writer
	w.Str("hello ed2k")
	r := NewReader(w.Bytes())
	s, err := r.Str()
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello ed2k" {
		t.Fatalf("got %q", s)
	}
}

func TestTagListRoundTrip(t *testing.T) {
	tags := []Tag{
		{Opcode: 0x01, Type: TagStr, S: "nick"},
		{Opcode: 0x02, Type: TagU32, U: 42},
		{Opcode: 0x03, Type: TagU8, U: 7},
		{Opcode: 0x99, Type: 0x7f, Raw: []byte{1, 2, 3}}, // unknown type, round-trips raw
	}
	var w Writer
	WriteTagList(&w, tags)
	r := NewReader(w.Bytes())
	got, err := ReadTagList(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(tags) {
		t.Fatalf("got %d tags, want %d", len(got), len(tags))
	}
	for i := range tags {
		if got[i].Opcode != tags[i].Opcode || got[i].Type != tags[i].Type {
			t.Fatalf("tag %d mismatch: %+v vs %+v", i, got[i], tags[i])
		}
	}
	if got[0].S != "nick" || got[1].U != 42 || got[2].U != 7 {
		t.Fatalf("values mismatch: %+v", got)
	}
	if !bytes.Equal(got[3].Raw, []byte{1, 2, 3}) {
		t.Fatalf("raw mismatch: %+v", got[3].Raw)
	}
}

func TestReadTagListRejectsPathologicalCount(t *testing.T) {
	var w Writer
	w.U32(1 << 20) // claims a million tags in an empty payload
	r := NewReader(w.Bytes())
	if _, err := ReadTagList(r); err == nil {
		t.Fatal("expected error for pathological tag count")
	}
}

func TestZlibWrapUnwrap(t *testing.T) {
	payload := bytes.Repeat([]byte("ed2k-payload-data"), 100)
	compressed, err := ZlibWrap(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) >= len(payload) {
		t.Fatalf("expected compression to shrink repetitive payload: %d vs %d", len(compressed), len(payload))
	}
	got, err := ZlibUnwrap(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestHashRoundTrip(t *testing.T) {
	var w Writer
	var h Hash
	copy(h[:], []byte("0123456789abcdef"))
	w.HashVal(h)
	r := NewReader(w.Bytes())
	got, err := r.HashVal()
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %v want %v", got, h)
	}
}
