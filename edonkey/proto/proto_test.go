package proto

import (
	"bytes"
	"net"
	"testing"

	"github.com/hydranode/hydranode/wire"
)

func fakeHash(b byte) wire.Hash {
	var h wire.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestTCPEnvelopeRoundTrip(t *testing.T) {
	payload := []byte("hello world, this is a peer-protocol payload")
	encoded, err := EncodeTCP(OpMessage, payload)
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}
	frame, err := DecodeTCP(wire.NewReader(encoded))
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if frame.Opcode != OpMessage || !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("round trip mismatch: got %+v", frame)
	}
}

func TestTCPEnvelopeZlibRevertsWhenNotSmaller(t *testing.T) {
	payload := []byte{1, 2, 3} // too short for zlib to ever shrink
	encoded, err := EncodeTCP(OpCancelTransfer, payload)
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}
	if Protocol(encoded[0]) != ProtoStandard {
		t.Fatalf("expected ProtoStandard revert for incompressible payload, got %#x", encoded[0])
	}
}

func TestUDPEnvelopeRoundTrip(t *testing.T) {
	payload := []byte{9, 8, 7, 6}
	encoded := EncodeUDP(OpFileNotFound, payload)
	frame, err := DecodeUDP(encoded)
	if err != nil {
		t.Fatalf("DecodeUDP: %v", err)
	}
	if frame.Opcode != OpFileNotFound || !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("round trip mismatch: got %+v", frame)
	}
}

func TestPartMapRoundTrip(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, false, false, true}
	pm := NewPartMap(bits)
	var w wire.Writer
	WritePartMap(&w, pm)
	got, err := ReadPartMap(wire.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("ReadPartMap: %v", err)
	}
	if got.Count != len(bits) {
		t.Fatalf("count mismatch: got %d want %d", got.Count, len(bits))
	}
	for i, b := range bits {
		if got.Bits[i] != b {
			t.Fatalf("bit %d mismatch: got %v want %v", i, got.Bits[i], b)
		}
	}
}

func TestHelloRoundTrip(t *testing.T) {
	h := Hello{
		UserHash: fakeHash(0xab),
		ID:       12345,
		Port:     4662,
		Tags:     []wire.Tag{{Opcode: 0x01, Type: wire.TagStr, S: "hydranode"}},
	}
	got, err := DecodeHello(h.Encode())
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if got.UserHash != h.UserHash || got.ID != h.ID || got.Port != h.Port {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0].S != "hydranode" {
		t.Fatalf("tag round trip mismatch: got %+v", got.Tags)
	}
}

func TestHelloAnswerRoundTrip(t *testing.T) {
	h := HelloAnswer{UserHash: fakeHash(0xcd), ID: 77, Port: 4672}
	got, err := DecodeHelloAnswer(h.Encode())
	if err != nil {
		t.Fatalf("DecodeHelloAnswer: %v", err)
	}
	if got.UserHash != h.UserHash || got.ID != h.ID || got.Port != h.Port || len(got.Tags) != len(h.Tags) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestReqFileBaseAndExtendedRoundTrip(t *testing.T) {
	base := ReqFile{Hash: fakeHash(1)}
	got, err := DecodeReqFile(base.Encode())
	if err != nil || got.Extended {
		t.Fatalf("base DecodeReqFile: %+v, err %v", got, err)
	}

	ext := ReqFile{
		Hash:             fakeHash(2),
		Extended:         true,
		PartMap:          NewPartMap([]bool{true, false, true}),
		CompleteSrcCount: 42,
	}
	got, err = DecodeReqFile(ext.Encode())
	if err != nil {
		t.Fatalf("extended DecodeReqFile: %v", err)
	}
	if !got.Extended || got.CompleteSrcCount != 42 || got.PartMap.Count != 3 {
		t.Fatalf("extended round trip mismatch: got %+v", got)
	}
}

func TestFileStatusWholeFileOmitsPartMap(t *testing.T) {
	fs := FileStatus{Hash: fakeHash(3), WholeFile: true}
	got, err := DecodeFileStatus(fs.Encode())
	if err != nil {
		t.Fatalf("DecodeFileStatus: %v", err)
	}
	if !got.WholeFile {
		t.Fatalf("expected WholeFile true, got %+v", got)
	}
}

func TestFileStatusPartialRoundTrip(t *testing.T) {
	fs := FileStatus{Hash: fakeHash(4), PartMap: NewPartMap([]bool{true, true, false})}
	got, err := DecodeFileStatus(fs.Encode())
	if err != nil {
		t.Fatalf("DecodeFileStatus: %v", err)
	}
	if got.WholeFile || got.PartMap.Count != 3 {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestHashSetRoundTrip(t *testing.T) {
	hs := HashSet{
		FileHash:   fakeHash(5),
		PartHashes: []wire.Hash{fakeHash(10), fakeHash(11), fakeHash(12)},
	}
	got, err := DecodeHashSet(hs.Encode())
	if err != nil {
		t.Fatalf("DecodeHashSet: %v", err)
	}
	if got.FileHash != hs.FileHash || len(got.PartHashes) != 3 {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestStartUploadReqOptionalHash(t *testing.T) {
	empty := StartUploadReq{}
	got, err := DecodeStartUploadReq(empty.Encode())
	if err != nil || got.HasHash {
		t.Fatalf("expected no-hash round trip, got %+v, err %v", got, err)
	}

	withHash := StartUploadReq{HasHash: true, Hash: fakeHash(6)}
	got, err = DecodeStartUploadReq(withHash.Encode())
	if err != nil || !got.HasHash || got.Hash != withHash.Hash {
		t.Fatalf("expected hash round trip, got %+v, err %v", got, err)
	}
}

func TestMuleQueueRankRoundTrip(t *testing.T) {
	m := MuleQueueRank{Rank: 999}
	enc := m.Encode()
	if len(enc) != 12 {
		t.Fatalf("expected 12-byte payload, got %d", len(enc))
	}
	got, err := DecodeMuleQueueRank(enc)
	if err != nil || got.Rank != 999 {
		t.Fatalf("round trip mismatch: got %+v, err %v", got, err)
	}
}

func TestReqChunksInclusiveExclusiveConversion(t *testing.T) {
	rq := ReqChunks{
		Hash:   fakeHash(7),
		Begins: [3]uint32{0, 1000, 2000},
		Ends:   [3]uint32{999, 1999, 2999}, // inclusive
	}
	got, err := DecodeReqChunks(rq.Encode())
	if err != nil {
		t.Fatalf("DecodeReqChunks: %v", err)
	}
	if got != rq {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, rq)
	}
}

func TestDataChunkRoundTrip(t *testing.T) {
	dc := DataChunk{Hash: fakeHash(8), Begin: 100, End: 199, Data: []byte("some chunk payload bytes")}
	got, err := DecodeDataChunk(dc.Encode())
	if err != nil {
		t.Fatalf("DecodeDataChunk: %v", err)
	}
	if got.Begin != dc.Begin || got.End != dc.End || !bytes.Equal(got.Data, dc.Data) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestPackedChunkUnpackValidatesLength(t *testing.T) {
	raw := []byte("some data that will be compressed for the packed chunk frame")
	packed, err := wire.ZlibWrap(raw)
	if err != nil {
		t.Fatalf("ZlibWrap: %v", err)
	}
	pc := PackedChunk{Hash: fakeHash(9), Begin: 0, Length: uint32(len(raw)), Packed: packed}
	got, err := DecodePackedChunk(pc.Encode())
	if err != nil {
		t.Fatalf("DecodePackedChunk: %v", err)
	}
	unpacked, err := got.Unpack()
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !bytes.Equal(unpacked, raw) {
		t.Fatalf("unpacked mismatch: got %q want %q", unpacked, raw)
	}

	got.Length++ // corrupt the declared length
	if _, err := got.Unpack(); err == nil {
		t.Fatalf("expected length-mismatch error, got none")
	}
}

func TestPackedStreamDetectsGap(t *testing.T) {
	raw1 := []byte("first segment of the run")
	raw2 := []byte("second contiguous segment")
	packed1, _ := wire.ZlibWrap(raw1)
	packed2, _ := wire.ZlibWrap(raw2)

	s := NewPackedStream(0)
	got1, err := s.Accept(PackedChunk{Begin: 0, Length: uint32(len(raw1)), Packed: packed1})
	if err != nil || !bytes.Equal(got1, raw1) {
		t.Fatalf("first Accept: got %q, err %v", got1, err)
	}
	if s.Accumulated() != uint32(len(raw1)) {
		t.Fatalf("accumulated mismatch after first segment: %d", s.Accumulated())
	}

	got2, err := s.Accept(PackedChunk{Begin: uint32(len(raw1)), Length: uint32(len(raw2)), Packed: packed2})
	if err != nil || !bytes.Equal(got2, raw2) {
		t.Fatalf("second Accept: got %q, err %v", got2, err)
	}

	if _, err := s.Accept(PackedChunk{Begin: 999, Length: 1, Packed: packed2}); err == nil {
		t.Fatalf("expected gap error for non-contiguous chunk")
	}
}

func TestAnswerSourcesRoundTripV1(t *testing.T) {
	as := AnswerSources{
		Hash:    fakeHash(20),
		Version: SourceV1,
		Sources: []Source{
			{IP: net.IPv4(1, 2, 3, 4), Port: 4662},
			{IP: net.IPv4(5, 6, 7, 8), Port: 4663},
		},
	}
	got, err := DecodeAnswerSources(as.Encode(), SourceV1)
	if err != nil {
		t.Fatalf("DecodeAnswerSources: %v", err)
	}
	if len(got.Sources) != 2 || !got.Sources[0].IP.Equal(as.Sources[0].IP) || got.Sources[0].Port != 4662 {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestAnswerSourcesRoundTripV2(t *testing.T) {
	as := AnswerSources{
		Hash:    fakeHash(21),
		Version: SourceV2,
		Sources: []Source{{IP: net.IPv4(10, 0, 0, 1), Port: 4672}},
	}
	got, err := DecodeAnswerSources(as.Encode(), SourceV2)
	if err != nil {
		t.Fatalf("DecodeAnswerSources: %v", err)
	}
	if len(got.Sources) != 1 || !got.Sources[0].IP.Equal(as.Sources[0].IP) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestAnswerSourcesRejectsPathologicalCount(t *testing.T) {
	var w wire.Writer
	w.HashVal(fakeHash(22))
	w.U8(255) // claims 255 sources but supplies none
	if _, err := DecodeAnswerSources(w.Bytes(), SourceV1); err == nil {
		t.Fatalf("expected error for count exceeding remaining payload")
	}
}

func TestSecIdentRoundTrip(t *testing.T) {
	s := SecIdentState{State: 1, Challenge: 0xdeadbeef}
	got, err := DecodeSecIdentState(s.Encode())
	if err != nil || got != s {
		t.Fatalf("round trip mismatch: got %+v, err %v", got, err)
	}

	pk := PublicKey{Key: []byte{1, 2, 3, 4, 5}}
	gotPK, err := DecodePublicKey(pk.Encode())
	if err != nil || !bytes.Equal(gotPK.Key, pk.Key) {
		t.Fatalf("PublicKey round trip mismatch: got %+v, err %v", gotPK, err)
	}

	sig := Signature{Sig: []byte{9, 9, 9}}
	gotSig, err := DecodeSignature(sig.Encode())
	if err != nil || !bytes.Equal(gotSig.Sig, sig.Sig) {
		t.Fatalf("Signature round trip mismatch: got %+v, err %v", gotSig, err)
	}
}

func TestMessageAndChangeIdRoundTrip(t *testing.T) {
	m := Message{Text: "hello from a peer"}
	gotM, err := DecodeMessage(m.Encode())
	if err != nil || gotM.Text != m.Text {
		t.Fatalf("Message round trip mismatch: got %+v, err %v", gotM, err)
	}

	c := ChangeId{OldID: 1, NewID: 2}
	gotC, err := DecodeChangeId(c.Encode())
	if err != nil || gotC != c {
		t.Fatalf("ChangeId round trip mismatch: got %+v, err %v", gotC, err)
	}
}

func TestUDPReaskRoundTrip(t *testing.T) {
	ping := ReaskFilePing{Hash: fakeHash(30)}
	gotPing, err := DecodeReaskFilePing(ping.Encode())
	if err != nil || gotPing != ping {
		t.Fatalf("ReaskFilePing round trip mismatch: got %+v, err %v", gotPing, err)
	}

	ack := ReaskAck{QueueRank: 7, PartMap: NewPartMap([]bool{true, false})}
	gotAck, err := DecodeReaskAck(ack.Encode())
	if err != nil || gotAck.QueueRank != 7 || gotAck.PartMap.Count != 2 {
		t.Fatalf("ReaskAck round trip mismatch: got %+v, err %v", gotAck, err)
	}
}

func TestUDPEmptyFramesRoundTrip(t *testing.T) {
	if _, err := DecodeFileNotFound(FileNotFound{}.Encode()); err != nil {
		t.Fatalf("DecodeFileNotFound: %v", err)
	}
	if _, err := DecodeQueueFull(QueueFull{}.Encode()); err != nil {
		t.Fatalf("DecodeQueueFull: %v", err)
	}
	if _, err := DecodeAcceptUploadReq(AcceptUploadReq{}.Encode()); err != nil {
		t.Fatalf("DecodeAcceptUploadReq: %v", err)
	}
	if _, err := DecodeCancelTransfer(CancelTransfer{}.Encode()); err != nil {
		t.Fatalf("DecodeCancelTransfer: %v", err)
	}
}
