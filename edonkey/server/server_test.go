package server

import (
	"bytes"
	"net"
	"path/filepath"
	"testing"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/wire"
)

func fakeHash(b byte) wire.Hash {
	var h wire.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func testEndpoint(a, b, c, d byte, port uint16) addr.Endpoint {
	ep, err := addr.NewEndpoint(net.IPv4(a, b, c, d), port)
	if err != nil {
		panic(err)
	}
	return ep
}

func TestTCPEnvelopeRoundTrip(t *testing.T) {
	payload := []byte("hello server")
	encoded, err := EncodeTCP(OpServerMessage, payload)
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}
	frame, err := DecodeTCP(wire.NewReader(encoded))
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if frame.Opcode != OpServerMessage || !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("round trip mismatch: got %+v", frame)
	}
}

func TestUDPEnvelopeRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	encoded := EncodeUDPFrame(OpGlobStatReq, payload)
	frame, err := DecodeUDPFrame(encoded)
	if err != nil {
		t.Fatalf("DecodeUDPFrame: %v", err)
	}
	if frame.Opcode != OpGlobStatReq || !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("round trip mismatch: got %+v", frame)
	}
}

func TestLoginRequestRoundTrip(t *testing.T) {
	lr := LoginRequest{
		Hash: fakeHash(1),
		ID:   0,
		Port: 4662,
		Tags: []wire.Tag{{Opcode: tagName, Type: wire.TagStr, S: "hydranode"}},
	}
	decoded, err := DecodeLoginRequest(lr.Encode())
	if err != nil {
		t.Fatalf("DecodeLoginRequest: %v", err)
	}
	if decoded.Hash != lr.Hash || decoded.Port != lr.Port || len(decoded.Tags) != 1 || decoded.Tags[0].S != "hydranode" {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}
}

func TestIdChangeLowID(t *testing.T) {
	low := IdChange{NewID: 100}
	high := IdChange{NewID: LowIDThreshold + 1}
	if !low.IsLowID() {
		t.Fatalf("expected low id")
	}
	if high.IsLowID() {
		t.Fatalf("expected high id")
	}
}

func TestOfferFilesRoundTrip(t *testing.T) {
	of := OfferFiles{Files: []OfferedFile{
		{Hash: fakeHash(2), ID: CompleteFileID, Port: CompleteFilePort, Name: "movie.avi", Size: 12345},
	}}
	decoded, err := DecodeOfferFiles(of.Encode())
	if err != nil {
		t.Fatalf("DecodeOfferFiles: %v", err)
	}
	if len(decoded.Files) != 1 || decoded.Files[0].Name != "movie.avi" || decoded.Files[0].Size != 12345 {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}
}

func TestFoundSourcesRoundTrip(t *testing.T) {
	fs := FoundSources{Hash: fakeHash(3), Sources: []SourceEntry{{IP: [4]byte{1, 2, 3, 4}, Port: 4662}}}
	decoded, err := DecodeFoundSources(fs.Encode())
	if err != nil {
		t.Fatalf("DecodeFoundSources: %v", err)
	}
	if len(decoded.Sources) != 1 || decoded.Sources[0].Port != 4662 {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}
}

func TestDecodeAllGlobFoundSourcesConcatenated(t *testing.T) {
	a := GlobFoundSources{Hash: fakeHash(4), Sources: []SourceEntry{{IP: [4]byte{1, 1, 1, 1}, Port: 1}}}
	b := GlobFoundSources{Hash: fakeHash(5), Sources: []SourceEntry{{IP: [4]byte{2, 2, 2, 2}, Port: 2}, {IP: [4]byte{3, 3, 3, 3}, Port: 3}}}
	combined := append(a.Encode(), b.Encode()...)
	all, err := DecodeAllGlobFoundSources(combined)
	if err != nil {
		t.Fatalf("DecodeAllGlobFoundSources: %v", err)
	}
	if len(all) != 2 || all[0].Hash != a.Hash || all[1].Hash != b.Hash || len(all[1].Sources) != 2 {
		t.Fatalf("unexpected decode: got %+v", all)
	}
}

func TestGlobStatResSupportsGetSources2(t *testing.T) {
	withFlag := GlobStatRes{UDPFlags: 1 << 2}
	without := GlobStatRes{UDPFlags: 0}
	if !withFlag.SupportsGetSources2() {
		t.Fatalf("expected GetSources2 support")
	}
	if without.SupportsGetSources2() {
		t.Fatalf("expected no GetSources2 support")
	}
}

func TestServerListRoundRobinSkipsActive(t *testing.T) {
	list := New(log.Default)
	s1 := &Server{Endpoint: testEndpoint(1, 1, 1, 1, 4661)}
	s2 := &Server{Endpoint: testEndpoint(2, 2, 2, 2, 4661)}
	s3 := &Server{Endpoint: testEndpoint(3, 3, 3, 3, 4661)}
	list.Add(s1)
	list.Add(s2)
	list.Add(s3)
	list.SetActive(s2)

	seen := map[addr.Endpoint]bool{}
	for i := 0; i < 6; i++ {
		s, ok := list.NextForUDP()
		if !ok {
			t.Fatalf("expected a server")
		}
		if s.Endpoint == s2.Endpoint {
			t.Fatalf("round robin should skip the active server")
		}
		seen[s.Endpoint] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both non-active servers to be visited, got %v", seen)
	}
}

func TestServerPingFailureDropsAfterThreshold(t *testing.T) {
	s := &Server{Endpoint: testEndpoint(9, 9, 9, 9, 4661)}
	for i := 0; i < PingFailuresBeforeDrop-1; i++ {
		if s.recordPingFailure() {
			t.Fatalf("should not drop before threshold at i=%d", i)
		}
	}
	if !s.recordPingFailure() {
		t.Fatalf("expected drop at threshold")
	}
}

func TestServerPingSuccessResetsFailures(t *testing.T) {
	s := &Server{Endpoint: testEndpoint(9, 9, 9, 9, 4661)}
	s.recordPingFailure()
	s.recordPingSuccess(0)
	if s.Stats().ConsecutiveFail != 0 {
		t.Fatalf("expected failure count reset on success")
	}
}

func TestMetPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.met")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	list := New(log.Default)
	s := &Server{Endpoint: testEndpoint(4, 4, 4, 4, 4661), Name: "eMule Test Server", StaticIP: true}
	list.Add(s)

	if err := store.Save(list); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New(log.Default)
	if err := store.LoadInto(loaded); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	got, ok := loaded.Get(s.Endpoint)
	if !ok {
		t.Fatalf("expected server to round trip")
	}
	if got.Name != "eMule Test Server" || !got.StaticIP {
		t.Fatalf("unexpected decoded server: %+v", got)
	}
}
