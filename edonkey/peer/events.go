package peer

import (
	"errors"
	"fmt"

	"github.com/hydranode/hydranode/sched"
)

// OnSocketEvent implements sched.EventHandler, dispatching the failure
// semantics table from spec.md §4.I verbatim.
func (s *Session) OnSocketEvent(e sched.Event, data []byte, err error) {
	switch e {
	case sched.EventConnFailed:
		s.Destroy(errSockConnFailed)
	case sched.EventTimeout:
		s.onTimeout()
	case sched.EventLost:
		s.onLost()
	case sched.EventRead:
		s.onRead(data)
	case sched.EventErr:
		s.onErr(err)
	}
}

var errSockConnFailed = errors.New("peer: connection failed")

// onTimeout implements "SOCK_TIMEOUT during transfer: keep session,
// extend timeout to 120s while UploadInfo or DownloadInfo alive, else
// 10s" — the extension itself is the caller's (the owning timer loop's)
// responsibility; this records which budget currently applies.
func (s *Session) onTimeout() {
	s.mu.Lock()
	transferring := s.upload != nil || s.download != nil
	handshook := s.handshook
	s.mu.Unlock()

	if !handshook {
		s.Destroy(errors.New("handshake never completed"))
		return
	}
	if !transferring {
		// No active transfer: the short idle budget already expired by
		// the time this fires, so the session is stale.
		s.Destroy(errors.New("idle timeout"))
	}
	// Transferring: the timer loop that scheduled this timeout is
	// responsible for rearming at TransferTimeout: nothing to destroy.
}

// onLost implements "SOCK_LOST with active UploadInfo: reconvert to
// QueueInfo, re-queue" and "SOCK_LOST with active DownloadInfo: schedule
// UDP reask in SOURCE_REASKTIME".
func (s *Session) onLost() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.upload != nil {
		s.queue = &QueueInfo{Hash: s.upload.Hash}
		s.upload = nil
	}
	if s.download != nil {
		hash := s.download.Hash
		s.download = nil
		s.queue = &QueueInfo{Hash: hash, NextReaskFireAt: nowHook().Add(SourceReaskTime)}
	}
	s.sock = nil
	s.connState = ConnNone

	if !s.handshook {
		go s.Destroy(errors.New("handshake never completed on disconnect"))
	}
}

// onErr implements "Exception in packet handler: destroy session; do not
// crash" for any error surfaced by the translation layer outside the
// read path itself (read-path decode/handler errors and handler panics
// are handled inside onRead, which destroys the session the same way).
func (s *Session) onErr(err error) {
	s.Destroy(err)
}

// DestroyOnPanic recovers a panicking packet handler and destroys the
// session instead of crashing the process (spec.md §4.I's failure table:
// "Exception in packet handler: destroy session; do not crash"). Callers
// dispatching a decoded frame to its handler wrap the call:
//
//	defer session.DestroyOnPanic()
func (s *Session) DestroyOnPanic() {
	if r := recover(); r != nil {
		s.Destroy(fmt.Errorf("panic in packet handler: %v", r))
	}
}
