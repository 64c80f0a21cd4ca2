package server

import (
	"math/rand"
	"time"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/wire"
)

// UDPSender is the minimal capability the round-robin UDP query loop
// needs from the scheduler, mirroring edonkey/peer's UDPSender seam.
type UDPSender interface {
	SendUDP(ep addr.Endpoint, frame []byte) error
}

// udpQueryState tracks one server's current outstanding GlobStatReq, so
// its GlobStatRes reply can be matched and spoofed replies rejected.
type udpQueryState struct {
	challenge uint32
	sentAt    time.Time
}

// Querier drives the background UDP stat/source query loop against every
// known server other than the active one (spec.md §4.J: "query the rest
// of the known server list round-robin over UDP for stats/sources").
type Querier struct {
	list   *ServerList
	sender UDPSender
	host   Host
	logger log.Logger

	challenges map[addr.Endpoint]*udpQueryState
}

// NewQuerier builds a Querier bound to list, forwarding any sources it
// learns about to the same Host a Conn reports to.
func NewQuerier(list *ServerList, sender UDPSender, host Host, logger log.Logger) *Querier {
	return &Querier{list: list, sender: sender, host: host, logger: logger, challenges: map[addr.Endpoint]*udpQueryState{}}
}

// PingNext sends a GlobStatReq to the next server in round-robin order,
// intended to be called every GlobStatInterval minutes per server from a
// periodic driver loop.
func (q *Querier) PingNext() {
	s, ok := q.list.NextForUDP()
	if !ok {
		return
	}
	challenge := rand.Uint32()
	q.challenges[s.Endpoint] = &udpQueryState{challenge: challenge, sentAt: nowHook()}
	req := GlobStatReq{Challenge: challenge}
	_ = q.sender.SendUDP(s.Endpoint, EncodeUDPFrame(OpGlobStatReq, req.Encode()))
}

// OnDatagram parses one UDP datagram from ep and dispatches it, handling
// GlobStatRes and GlobGetSources(2) replies (GlobFoundSources, possibly
// concatenated). Dropping a server after PingFailuresBeforeDrop
// unanswered GlobStatReqs is done by CheckTimeouts, not here.
func (q *Querier) OnDatagram(ep addr.Endpoint, data []byte) error {
	frame, err := DecodeUDPFrame(data)
	if err != nil {
		return err
	}
	switch frame.Opcode {
	case OpGlobStatRes:
		return q.onGlobStatRes(ep, frame.Payload)
	case OpGlobFoundSources:
		return q.onGlobFoundSources(frame.Payload)
	default:
		return nil
	}
}

func (q *Querier) onGlobStatRes(ep addr.Endpoint, payload []byte) error {
	res, err := DecodeGlobStatRes(payload)
	if err != nil {
		return err
	}
	st, known := q.challenges[ep]
	if !known || st.challenge != res.Challenge {
		q.logger.Levelf(log.Debug, "server: ignoring GlobStatRes from %v with stale/unknown challenge", ep)
		return nil
	}
	delete(q.challenges, ep)

	s, ok := q.list.Get(ep)
	if !ok {
		return nil
	}
	s.recordStatus(res.Users, res.Files)
	s.recordPingSuccess(nowHook().Sub(st.sentAt))
	return nil
}

// CheckTimeouts drops any server whose outstanding GlobStatReq has gone
// unanswered long enough to count as a ping failure, removing it after
// PingFailuresBeforeDrop consecutive misses.
func (q *Querier) CheckTimeouts(timeout time.Duration) {
	now := nowHook()
	for ep, st := range q.challenges {
		if now.Sub(st.sentAt) < timeout {
			continue
		}
		delete(q.challenges, ep)
		s, ok := q.list.Get(ep)
		if !ok {
			continue
		}
		if s.recordPingFailure() {
			q.list.Remove(ep)
		}
	}
}

// QuerySources sends one batched GlobGetSources or GlobGetSources2 to the
// server s, using GlobGetSources2 when supports2 is set (the caller
// derives it from s's GlobStatRes.SupportsGetSources2, spec.md §4.J).
// Hashes past the batch limit are dropped, not sent. Callers should batch
// hashes themselves no larger than GlobGetSources2Batch/GlobGetSourcesBatch.
func (q *Querier) QuerySources(s *Server, hashes []wire.Hash, sizes []uint32, supports2 bool) error {
	if supports2 {
		n := len(hashes)
		if n > GlobGetSources2Batch {
			n = GlobGetSources2Batch
		}
		req := GlobGetSources2{Hashes: hashes[:n], Sizes: sizes[:n]}
		body := req.Encode()
		if len(body) > GlobGetSources2MaxLen {
			body = body[:GlobGetSources2MaxLen-(GlobGetSources2MaxLen%20)]
		}
		return q.sender.SendUDP(s.Endpoint, EncodeUDPFrame(OpGlobGetSources2, body))
	}
	n := len(hashes)
	if n > GlobGetSourcesBatch {
		n = GlobGetSourcesBatch
	}
	req := GlobGetSources{Hashes: hashes[:n]}
	return q.sender.SendUDP(s.Endpoint, EncodeUDPFrame(OpGlobGetSources, req.Encode()))
}

func (q *Querier) onGlobFoundSources(payload []byte) error {
	all, err := DecodeAllGlobFoundSources(payload)
	if err != nil && len(all) == 0 {
		return err
	}
	for _, fs := range all {
		q.host.OnSources(fs.Hash, fs.Sources)
	}
	return nil
}
