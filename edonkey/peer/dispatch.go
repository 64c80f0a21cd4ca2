package peer

import (
	"crypto/rsa"
	"fmt"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/edonkey/proto"
	"github.com/hydranode/hydranode/wire"
)

// Identity is the daemon-wide identity a Session presents in Hello and
// secure-identification frames. It is fixed at New and never changes
// across the session's lifetime, unlike the per-connection state dispatch
// tracks on the Session itself (remoteHash, issuedChallenge,
// incomingPacked).
type Identity struct {
	Hash    [16]byte
	TCPPort uint16
	Tags    []wire.Tag
	Key     *rsa.PrivateKey
	IP      [4]byte
}

// onRead parses every complete TCP frame out of data and dispatches it,
// generalized from edonkey/server.Conn's onRead/dispatch pair to this
// session's four-substate opcode table. As there, data is assumed to
// already carry whole frames, matching how the scheduler's DoRecv hands
// completed buffers to EventHandlers in this codebase. A decode or handler
// error (or a handler panic) is logged and destroys the session.
func (s *Session) onRead(data []byte) {
	defer s.DestroyOnPanic()
	r := wire.NewReader(data)
	for r.Remaining() > 0 {
		frame, err := proto.DecodeTCP(r)
		if err != nil {
			s.logger.Levelf(log.Debug, "peer: decode error from %v: %v", s.endpoint, err)
			s.Destroy(err)
			return
		}
		if err := s.dispatch(frame.Opcode, frame.Payload); err != nil {
			s.logger.Levelf(log.Debug, "peer: handling %v from %v: %v", frame.Opcode, s.endpoint, err)
			s.Destroy(err)
			return
		}
	}
}

// dispatch runs one decoded frame through the matching on* handler. Kept
// as a single switch here, rather than exporting every on* handler, so
// the handshake and secure-identification state (issuedChallenge,
// remoteHash) stays private to the session that owns it.
func (s *Session) dispatch(op proto.Opcode, payload []byte) error {
	switch op {
	case proto.OpHello:
		s.mu.Lock()
		s.connState = ConnHandshaking
		s.mu.Unlock()
		return s.onHello(payload, s.identity.Hash, s.id, s.identity.TCPPort, s.identity.Tags)
	case proto.OpHelloAnswer:
		return s.onHelloAnswer(payload)

	case proto.OpReqFile:
		return s.onReqFile(payload)
	case proto.OpFileName:
		return s.onFileName(payload)
	case proto.OpSetReqFileId:
		return s.onSetReqFileId(payload)
	case proto.OpFileStatus:
		return s.onFileStatus(payload)
	case proto.OpNoFile:
		return s.onNoFile(payload)

	case proto.OpStartUploadReq:
		return s.onStartUploadReq(payload)
	case proto.OpAcceptUploadReq:
		return s.onAcceptUploadReq()
	case proto.OpQueueRanking:
		qr, err := proto.DecodeQueueRanking(payload)
		if err != nil {
			return fmt.Errorf("peer: QueueRanking: %w", err)
		}
		s.onQueueRanking(qr.Rank)
		return nil

	case proto.OpReqChunks:
		return s.onReqChunks(payload)
	case proto.OpDataChunk:
		return s.onDataChunk(payload, s.peerHash())
	case proto.OpPackedChunk:
		s.mu.Lock()
		stream := s.incomingPacked
		s.mu.Unlock()
		updated, err := s.onPackedChunk(payload, s.peerHash(), stream)
		s.mu.Lock()
		s.incomingPacked = updated
		s.mu.Unlock()
		return err
	case proto.OpCancelTransfer:
		s.onCancelTransfer()
		return nil

	case proto.OpSecIdentState:
		sis, err := proto.DecodeSecIdentState(payload)
		if err != nil {
			return fmt.Errorf("peer: SecIdentState: %w", err)
		}
		s.mu.Lock()
		s.issuedChallenge = sis.Challenge
		s.mu.Unlock()
		return s.onSecIdentState(payload, s.identity.Key, s.identity.IP)
	case proto.OpPublicKey:
		return s.onPublicKey(payload, s.peerHash())
	case proto.OpSignature:
		s.mu.Lock()
		challenge := s.issuedChallenge
		s.mu.Unlock()
		var peerIP [4]byte
		copy(peerIP[:], s.endpoint.IP4().To4())
		return s.onSignature(payload, s.peerHash(), challenge, peerIP)

	// SourceExchReq/AnswerSources (peer-to-peer source exchange) and
	// ReqHashSet/HashSet (per-chunk hash tree transfer) are defined on the
	// wire but this build sources hashes and peers exclusively from the
	// server side (spec.md §4.H/§4.B), so these are acknowledged rather
	// than left undecoded.
	case proto.OpSourceExchReq, proto.OpAnswerSources, proto.OpReqHashSet, proto.OpHashSet,
		proto.OpMuleQueueRank, proto.OpMessage, proto.OpChangeId:
		return nil

	default:
		return fmt.Errorf("peer: unhandled opcode 0x%02x", byte(op))
	}
}

// peerHash returns the identity the peer advertised in its Hello/
// HelloAnswer, recorded by recordHandshake.
func (s *Session) peerHash() [16]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteHash
}
