package sched

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/speed"
)

// Event is what the translation layer reports back to the owning session
// after a socket operation completes (spec.md §4.F's behavior table:
// READ/WRITE/CONNECTED/LOST/ERR/TIMEOUT/CONNFAILED/ACCEPT).
type Event int

const (
	EventRead Event = iota
	EventWrote
	EventConnected
	EventLost
	EventErr
	EventTimeout
	EventConnFailed
	EventAccept
)

func (e Event) String() string {
	switch e {
	case EventRead:
		return "read"
	case EventWrote:
		return "wrote"
	case EventConnected:
		return "connected"
	case EventLost:
		return "lost"
	case EventErr:
		return "err"
	case EventTimeout:
		return "timeout"
	case EventConnFailed:
		return "connfailed"
	case EventAccept:
		return "accept"
	default:
		return "unknown"
	}
}

// EventHandler receives socket translation events. Implementations are
// typically an edonkey/peer.Session or edonkey/server.Conn; e carries the
// event kind, data carries any bytes read (EventRead only), and err carries
// the failure for EventErr/EventConnFailed.
type EventHandler interface {
	OnSocketEvent(e Event, data []byte, err error)
}

// Socket is Component F's SSocketWrapper: it owns one net.Conn, buffers
// pending writes, and exposes DoSend/DoRecv/DoConn bodies a Backend Request
// can call under budget control, translating raw I/O into the events the
// owning session understands (spec.md §4.F).
//
// Grounded on the teacher's socket.go Listener/Dialer split, generalized
// from a connection-establishment abstraction into the full read/write
// translation layer ed2k's per-socket accounting needs.
type Socket struct {
	id      SocketID
	conn    net.Conn
	handler EventHandler
	logger  log.Logger

	mu       sync.Mutex
	outbox   []byte // queued bytes not yet written
	closed   bool

	upSpeed   *speed.Meter
	downSpeed *speed.Meter
}

// NewSocket wraps conn under id, reporting translated events to handler.
func NewSocket(id SocketID, conn net.Conn, handler EventHandler, logger log.Logger) *Socket {
	return &Socket{
		id:        id,
		conn:      conn,
		handler:   handler,
		logger:    logger,
		upSpeed:   speed.New(0),
		downSpeed: speed.New(0),
	}
}

// ID returns the socket's stable handle.
func (s *Socket) ID() SocketID { return s.id }

// Queue appends b to the pending-write buffer. The scheduler drains it via
// DoSend once an upload Request for this socket is serviced.
func (s *Socket) Queue(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, b...)
}

// Pending reports how many queued bytes await a DoSend call.
func (s *Socket) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

// DoSend writes up to quota queued bytes, reports EventWrote on any
// progress, and EventErr (without closing) on failure so the owning
// session decides whether the error is fatal (spec.md §4.F's ERR row:
// "translation layer reports the error upward; does not assume fatal").
func (s *Socket) DoSend(quota int) (int, error) {
	s.mu.Lock()
	if len(s.outbox) == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	n := quota
	if n > len(s.outbox) {
		n = len(s.outbox)
	}
	chunk := s.outbox[:n]
	s.mu.Unlock()

	written, err := s.conn.Write(chunk)
	s.mu.Lock()
	s.outbox = s.outbox[written:]
	s.mu.Unlock()

	if written > 0 {
		s.upSpeed.Add(nowHook(), int64(written))
		s.handler.OnSocketEvent(EventWrote, nil, nil)
	}
	if err != nil {
		s.handler.OnSocketEvent(EventErr, nil, err)
		return written, err
	}
	return written, nil
}

// DoRecv reads up to quota bytes and reports EventRead with the data, or
// EventLost on io.EOF, or EventErr on any other failure (spec.md §4.F's
// READ/LOST/ERR rows).
func (s *Socket) DoRecv(quota int) (int, error) {
	buf := make([]byte, quota)
	n, err := s.conn.Read(buf)
	if n > 0 {
		s.downSpeed.Add(nowHook(), int64(n))
		s.handler.OnSocketEvent(EventRead, buf[:n], nil)
	}
	if err != nil {
		if err == io.EOF {
			s.handler.OnSocketEvent(EventLost, nil, err)
		} else {
			s.handler.OnSocketEvent(EventErr, nil, err)
		}
		return n, err
	}
	return n, nil
}

// Close closes the underlying connection exactly once and reports
// EventLost, matching the teacher's idempotent-close discipline.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	err := s.conn.Close()
	s.handler.OnSocketEvent(EventLost, nil, err)
	return err
}

// UpSpeed / DownSpeed expose this socket's own metering, independent of
// the backend's aggregate Status (spec.md §4.F: "per-socket in/out speed
// meters, distinct from the backend's global counters").
func (s *Socket) UpSpeed(windowSecs float64) float64 {
	return s.upSpeed.GetSpeed(nowHook(), secondsToDuration(windowSecs))
}

func (s *Socket) DownSpeed(windowSecs float64) float64 {
	return s.downSpeed.GetSpeed(nowHook(), secondsToDuration(windowSecs))
}

// ConnectRequest is a one-shot KindConnect Request that dials addr and
// reports EventConnected or EventConnFailed (spec.md §4.F's
// CONNECTED/CONNFAILED rows).
type ConnectRequest struct {
	Base
	network string
	address string
	handler EventHandler
	logger  log.Logger
	onDial  func(net.Conn, error)
}

// NewConnectRequest builds a KindConnect request dialing network/address.
// onDial receives the resulting connection (or error) so the caller can
// wrap it in a Socket.
func NewConnectRequest(sock SocketID, score float32, network, address string, handler EventHandler, logger log.Logger, onDial func(net.Conn, error)) *ConnectRequest {
	base := NewBase(KindConnect, sock, score, true)
	return &ConnectRequest{Base: base, network: network, address: address, handler: handler, logger: logger, onDial: onDial}
}

func (c *ConnectRequest) DoSend(int) (int, error)     { return 0, nil }
func (c *ConnectRequest) DoRecv(int) (int, error)     { return 0, nil }

func (c *ConnectRequest) DoConn() (ConnEffect, error) {
	conn, err := net.Dial(c.network, c.address)
	c.onDial(conn, err)
	c.Invalidate()
	if err != nil {
		c.handler.OnSocketEvent(EventConnFailed, nil, err)
		return EffectRemove, nil
	}
	c.handler.OnSocketEvent(EventConnected, nil, nil)
	return EffectAddConn | EffectRemove, nil
}

// AcceptRequest is a long-lived KindAccept Request servicing one
// net.Listener: each DoConn call accepts at most one pending connection so
// the backend's half-open/open caps still apply to inbound sockets
// (spec.md §4.E item 5, §4.F's ACCEPT row).
type AcceptRequest struct {
	Base
	ln      net.Listener
	handler EventHandler
	onAccept func(net.Conn)
}

// NewAcceptRequest builds a KindAccept request servicing ln.
func NewAcceptRequest(sock SocketID, ln net.Listener, handler EventHandler, onAccept func(net.Conn)) *AcceptRequest {
	base := NewBase(KindAccept, sock, 0, false)
	return &AcceptRequest{Base: base, ln: ln, handler: handler, onAccept: onAccept}
}

func (a *AcceptRequest) DoSend(int) (int, error) { return 0, nil }
func (a *AcceptRequest) DoRecv(int) (int, error) { return 0, nil }

func (a *AcceptRequest) DoConn() (ConnEffect, error) {
	if tl, ok := a.ln.(*net.TCPListener); ok {
		if err := tl.SetDeadline(nowHook().Add(time.Millisecond)); err != nil {
			// Non-fatal: fall through to a blocking Accept on listeners
			// that don't support deadlines.
			_ = err
		}
	}
	conn, err := a.ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil // no pending connection this tick, stay queued
		}
		a.handler.OnSocketEvent(EventErr, nil, err)
		return EffectRemove, nil
	}
	a.onAccept(conn)
	a.handler.OnSocketEvent(EventAccept, nil, nil)
	return EffectAddConn, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
