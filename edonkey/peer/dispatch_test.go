package peer

import (
	"testing"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/edonkey/proto"
)

func TestOnReadDispatchesHelloAndRecordsPeerHash(t *testing.T) {
	s := newTestSession()
	s.sock = nil // sendFrame requires a socket for the HelloAnswer reply

	var peerHash [16]byte
	peerHash[0] = 0xaa
	hello := proto.Hello{UserHash: peerHash, ID: 7, Port: 4662}
	frame, err := proto.EncodeTCP(proto.OpHello, hello.Encode())
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}

	// sendFrame fails with no socket, but onHello still records the
	// handshake before attempting the reply.
	s.onRead(frame)

	if s.peerHash() != peerHash {
		t.Fatalf("expected remoteHash recorded, got %x", s.peerHash())
	}
}

func TestOnReadIgnoresUnhandledOpcodeWithoutPanicking(t *testing.T) {
	s := newTestSession()
	s.logger = log.Default
	frame, err := proto.EncodeTCP(proto.OpMessage, []byte("hi"))
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}
	s.onRead(frame) // must not panic
}

func TestDispatchQueueRankingUpdatesRemoteQR(t *testing.T) {
	s := newTestSession()
	var hash [16]byte
	hash[0] = 3
	s.queue = &QueueInfo{Hash: hash}

	qr := proto.QueueRanking{Rank: 42}
	if err := s.dispatch(proto.OpQueueRanking, qr.Encode()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if s.queue.RemoteQR != 42 {
		t.Fatalf("expected RemoteQR 42, got %d", s.queue.RemoteQR)
	}
}
