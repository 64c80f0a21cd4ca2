package server

import (
	"fmt"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/sched"
	"github.com/hydranode/hydranode/wire"
)

// OnSocketEvent implements sched.EventHandler, dispatching the translated
// socket events for the single active server connection (spec.md §4.J),
// generalized from edonkey/peer.Session.OnSocketEvent's dispatch table.
func (c *Conn) OnSocketEvent(e sched.Event, data []byte, err error) {
	switch e {
	case sched.EventConnected:
	case sched.EventRead:
		c.onRead(data)
	case sched.EventLost, sched.EventErr, sched.EventConnFailed:
		c.onDisconnected(err)
	case sched.EventTimeout:
		c.onDisconnected(fmt.Errorf("server: connection timed out"))
	}
}

func (c *Conn) onDisconnected(err error) {
	c.mu.Lock()
	s := c.server
	c.sock = nil
	c.loggedIn = false
	c.mu.Unlock()
	if s != nil {
		c.logger.Levelf(log.Debug, "server: lost connection to %v: %v", s.Endpoint, err)
		if next, ok := c.list.NextForUDP(); ok {
			c.ConnectTo(next)
		}
	}
}

// onRead parses every complete TCP frame out of data and dispatches it.
// Partial frames are not buffered across reads: data is assumed to
// already carry whole frames, the same assumption edonkey/peer's onRead
// makes about the buffers the scheduler's DoRecv hands to EventHandlers.
func (c *Conn) onRead(data []byte) {
	r := wire.NewReader(data)
	for r.Remaining() > 0 {
		frame, err := DecodeTCP(r)
		if err != nil {
			c.logger.Levelf(log.Debug, "server: decode error: %v", err)
			return
		}
		if err := c.dispatch(frame); err != nil {
			c.logger.Levelf(log.Debug, "server: handling %v: %v", frame.Opcode, err)
		}
	}
}

func (c *Conn) dispatch(f Frame) error {
	switch f.Opcode {
	case OpServerMessage:
		msg, err := DecodeServerMessage(f.Payload)
		if err != nil {
			return err
		}
		c.host.OnServerMessage(msg.Text)
		return nil
	case OpServerStatus:
		st, err := DecodeServerStatus(f.Payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		s := c.server
		c.mu.Unlock()
		if s != nil {
			s.recordStatus(st.Users, st.Files)
		}
		return nil
	case OpIdChange:
		return c.onIdChange(f.Payload)
	case OpFoundSources:
		return c.onFoundSources(f.Payload)
	default:
		return nil
	}
}

func (c *Conn) onIdChange(payload []byte) error {
	id, err := DecodeIdChange(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.loggedIn = true
	c.assignedID = id.NewID
	c.lowID = id.IsLowID()
	c.mu.Unlock()
	c.host.OnIDAssigned(id.NewID, id.IsLowID())
	c.sendInitialOffers()
	return nil
}
