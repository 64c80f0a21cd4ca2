package peer

import (
	"errors"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/edonkey/proto"
)

// UDPSender is the subset of the session's owner needed to emit a UDP
// datagram to this peer's endpoint. Kept as a narrow interface so
// Session has no direct dependency on net.PacketConn or the scheduler's
// socket plumbing for the UDP sideband.
type UDPSender interface {
	SendUDP(ep addr.Endpoint, frame []byte) error
}

// reaskForDownload implements spec.md §4.I step 7: send ReaskFilePing
// over UDP, track consecutive failures, and escalate to a TCP reask
// after three, destroying the source if that also fails (grounded on
// webseedPeer's requester-goroutine pattern of retrying an operation on
// its own cadence independent of the main packet dispatch).
func (s *Session) reaskForDownload(sender UDPSender, hash [16]byte) error {
	// "Our last known id must match the id from which we were queued,
	// else force TCP reask (the peer cannot map UDP to our previous
	// id)" — spec.md §4.I step 7.
	if s.idChangedSinceQueued() {
		return s.tcpReask(hash)
	}

	ping := proto.ReaskFilePing{Hash: hash}
	frame := proto.EncodeUDP(proto.OpReaskFilePing, ping.Encode())
	if err := sender.SendUDP(s.endpoint, frame); err != nil {
		return s.onUDPReaskFailure(sender, hash)
	}
	return nil
}

// idChangedSinceQueued reports whether our own id has changed since the
// peer last queued us for this download (queuedAtID is stamped when we
// receive AcceptUploadReq from that peer and DownloadInfo is created).
func (s *Session) idChangedSinceQueued() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.download != nil && s.download.queuedAtID != 0 && s.download.queuedAtID != s.id
}

// onUDPReaskFailure records one failed reask attempt, escalating to a
// TCP reask after maxUDPReaskFails consecutive failures (spec.md §4.I
// step 7 / failure table: "3 failed UDP reasks + failed TCP reask:
// destroy session").
func (s *Session) onUDPReaskFailure(sender UDPSender, hash [16]byte) error {
	s.mu.Lock()
	s.udpFails++
	fails := s.udpFails
	s.mu.Unlock()

	if fails < maxUDPReaskFails {
		return nil
	}
	return s.tcpReask(hash)
}

// tcpReask re-establishes a TCP connection for a reask instead of UDP;
// failure here destroys the session as a dead source.
func (s *Session) tcpReask(hash [16]byte) error {
	s.mu.Lock()
	s.udpFails = 0
	s.mu.Unlock()
	s.establishConnection(hash)
	return nil
}

// onReaskAck resets the UDP failure counter and records the peer's
// current queue rank.
func (s *Session) onReaskAck(payload []byte) error {
	ack, err := proto.DecodeReaskAck(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.udpFails = 0
	if s.queue != nil {
		s.queue.RemoteQR = int32(ack.QueueRank)
	}
	return nil
}

// onReaskFileNotFound implements the UDP analog of onNoFile.
func (s *Session) onReaskFileNotFound(hash [16]byte) {
	s.remOffered(hash, true)
}

var errDeadSource = errors.New("peer: source dead after failed TCP reask")

// OnUDPFrame dispatches one decoded UDP sideband frame received from this
// peer's endpoint to the matching reask handler. It is the exported entry
// point a daemon's UDP receive loop calls once it has matched the
// datagram's source address back to this Session (spec.md §4.I step 7's
// UDP sideband is otherwise entirely internal to reaskForDownload).
func (s *Session) OnUDPFrame(op proto.UDPOpcode, payload []byte) error {
	switch op {
	case proto.OpReaskAck:
		return s.onReaskAck(payload)
	case proto.OpFileNotFound:
		s.mu.Lock()
		dl := s.download
		s.mu.Unlock()
		if dl != nil {
			s.onReaskFileNotFound(dl.Hash)
		}
		return nil
	case proto.OpQueueFull:
		// The peer is alive and answered, just has no queue room; that's
		// a successful reask, not a failure.
		s.mu.Lock()
		s.udpFails = 0
		s.mu.Unlock()
		return nil
	default:
		return nil
	}
}
