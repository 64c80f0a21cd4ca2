package peer

import (
	"fmt"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/edonkey/proto"
	"github.com/hydranode/hydranode/wire"
)

// oldMuleMinorVersion is the muleVer minor-version boundary below which a
// peer is an "old mule" requiring the MuleInfo/MuleInfoAnswer exchange
// (spec.md §4.I: "detected from muleVer minor < 43").
const oldMuleMinorVersion = 43

// sendHello writes our Hello frame: the low-id side sends first, matching
// spec.md §4.I's "A peer with the low-id extension sends Hello first".
func (s *Session) sendHello(ourHash [16]byte, ourID uint32, tcpPort uint16, tags []wire.Tag) error {
	h := proto.Hello{UserHash: ourHash, ID: ourID, Port: tcpPort, Tags: tags}
	return s.sendFrame(proto.OpHello, h.Encode())
}

// onHello handles an incoming Hello, replying with HelloAnswer and
// recording the peer's advertised identity.
func (s *Session) onHello(payload []byte, ourHash [16]byte, ourID uint32, tcpPort uint16, tags []wire.Tag) error {
	h, err := proto.DecodeHello(payload)
	if err != nil {
		return fmt.Errorf("peer: Hello: %w", err)
	}
	s.recordHandshake(h.UserHash, h.ID, h.Tags)
	answer := proto.HelloAnswer{UserHash: ourHash, ID: ourID, Port: tcpPort, Tags: tags}
	if err := s.sendFrame(proto.OpHelloAnswer, answer.Encode()); err != nil {
		return err
	}
	return s.completeHandshake()
}

// onHelloAnswer handles the reply to a Hello we sent.
func (s *Session) onHelloAnswer(payload []byte) error {
	h, err := proto.DecodeHelloAnswer(payload)
	if err != nil {
		return fmt.Errorf("peer: HelloAnswer: %w", err)
	}
	s.recordHandshake(h.UserHash, h.ID, h.Tags)
	return s.completeHandshake()
}

func (s *Session) recordHandshake(remoteHash [16]byte, remoteID uint32, tags []wire.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteHash = remoteHash
	for _, t := range tags {
		switch t.Opcode {
		case tagNick:
			s.nick = t.S
		case tagVersion:
			s.version = t.S
		case tagModString:
			s.modString = t.S
		case tagMuleVersion:
			s.muleVer = int(t.U)
		case tagUDPPort:
			s.udpPort = uint16(t.U)
		case tagFeatures:
			s.features = decodeFeatureBits(t.U)
		}
	}
}

// Tag opcodes in the handshake tag list (spec.md §4.I: "nick, version,
// mod string, mule-version, udp port, feature bitset, server-addr").
const (
	tagNick        = 0x01
	tagVersion     = 0x11
	tagModString   = 0x55
	tagMuleVersion = 0x5b
	tagUDPPort     = 0xf9
	tagFeatures    = 0xfa
	tagServerAddr  = 0xfb
)

func decodeFeatureBits(v uint32) FeatureBits {
	return FeatureBits{
		SrcExch:     int(v & 0x7),
		SecIdent:    int((v >> 3) & 0x3),
		UDPReask:    int((v >> 5) & 0x1),
		Comments:    int((v >> 6) & 0x1),
		Compression: int((v >> 7) & 0x1),
		AICH:        int((v >> 8) & 0x1),
	}
}

// completeHandshake marks the session established, triggering initTransfer
// style follow-up: if an old mule, a MuleInfo exchange would occur here;
// this build does not implement the MuleInfo sub-protocol since it is
// purely an eMule-to-eMule compatibility extension that spec.md's codec
// table (§6) does not list an opcode for, so it is out of scope rather
// than silently dropped mid-feature.
func (s *Session) completeHandshake() error {
	s.mu.Lock()
	s.handshook = true
	s.connState = ConnEstablished
	isOldMule := s.muleVer > 0 && s.muleVer&0xff < oldMuleMinorVersion
	s.mu.Unlock()

	if isOldMule {
		s.logger.Levelf(log.Debug, "peer %v is an old mule (version %d), skipping MuleInfo exchange", s.endpoint, s.muleVer)
	}
	return s.initTransfer()
}

// initTransfer kicks off the source direction once the handshake
// completes: one ReqFile per offered hash. Nothing is sent for the upload
// direction, which waits for the peer's own requests.
func (s *Session) initTransfer() error {
	s.mu.Lock()
	hasSource := s.source != nil
	hasUploadRequest := s.queue != nil
	s.mu.Unlock()

	if hasSource {
		for hash := range s.offeredSnapshot() {
			if err := s.reqDownload(hash); err != nil {
				return err
			}
		}
	}
	_ = hasUploadRequest
	return nil
}

func (s *Session) offeredSnapshot() map[[16]byte]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[[16]byte]bool{}
	if s.source != nil {
		for h := range s.source.Offered {
			out[h] = true
		}
	}
	return out
}
