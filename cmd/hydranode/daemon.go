package main

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/config"
	"github.com/hydranode/hydranode/edonkey/peer"
	"github.com/hydranode/hydranode/edonkey/proto"
	"github.com/hydranode/hydranode/edonkey/server"
	"github.com/hydranode/hydranode/sched"
	"github.com/hydranode/hydranode/sharedfile"
	"github.com/hydranode/hydranode/version"
	"github.com/hydranode/hydranode/wire"
)

// Daemon owns every long-lived component a running node needs and
// implements both edonkey/server.Host and edonkey/peer.Host, the two
// narrow seams those packages use to reach the scheduler and the shared
// file registry without importing each other. Grounded on how
// edonkey/server.Conn and edonkey/peer.Session are themselves structured:
// one small mutex-guarded struct plus a handful of exported methods.
type Daemon struct {
	cfg    *config.Config
	logger log.Logger

	id identity

	backend    *sched.Backend
	serverList *server.ServerList
	serverConn *server.Conn
	querier    *server.Querier
	metStore   *server.Store
	registry   *sharedfile.Registry

	udpConn net.PacketConn
	ln      net.Listener

	nextSocketID uint64

	mu         sync.Mutex
	assignedID uint32
	lowID      bool
	sessions   map[addr.Endpoint]*peer.Session
}

// NewDaemon wires every component from cfg but does not yet connect to a
// server or start listening; call Run for that.
func NewDaemon(cfg *config.Config, id identity, logger log.Logger) *Daemon {
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		id:       id,
		lowID:    true,
		sessions: map[addr.Endpoint]*peer.Session{},
		registry: sharedfile.NewRegistry(),
	}
	d.backend = sched.New(cfg.Limits.ToSched(), nil, nil, logger)
	d.serverList = server.New(logger)
	d.serverConn = server.NewConn(d.serverList, d, logger)
	d.querier = server.NewQuerier(d.serverList, d, d, logger)
	return d
}

// identityForHandshake builds the peer.Identity this daemon presents on
// every outbound/inbound peer session (spec.md §4.I Hello/SecIdent).
func (d *Daemon) identityForHandshake(ourIP [4]byte) peer.Identity {
	return peer.Identity{
		Hash:    d.id.hash,
		TCPPort: d.cfg.ListenPort,
		Tags:    version.HandshakeTags(d.cfg.Nick, d.cfg.ListenPort),
		Key:     d.id.key,
		IP:      ourIP,
	}
}

// --- edonkey/server.Host ---

func (d *Daemon) ClientHash() wire.Hash { return d.id.hash }
func (d *Daemon) ListenPort() uint16    { return d.cfg.ListenPort }

func (d *Daemon) SharedFiles() []server.SharedFile {
	adapters := d.registry.SharedFiles()
	out := make([]server.SharedFile, len(adapters))
	for i, a := range adapters {
		out[i] = a
	}
	return out
}

func (d *Daemon) OnIDAssigned(id uint32, lowID bool) {
	d.mu.Lock()
	d.assignedID = id
	d.lowID = lowID
	d.mu.Unlock()
	d.logger.Levelf(log.Info, "hydranode: server assigned id %d (low-id=%v)", id, lowID)
}

// LowID reports whether the active server assigned us a low (firewalled)
// id, the condition spec.md §4.I's connect-direction table keys off of
// alongside each peer's own low-id status.
func (d *Daemon) LowID() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lowID
}

func (d *Daemon) OnServerMessage(text string) {
	d.logger.Levelf(log.Info, "hydranode: server message: %s", text)
}

func (d *Daemon) OnSources(hash wire.Hash, sources []server.SourceEntry) {
	for _, src := range sources {
		ep, err := addr.NewEndpoint(net.IPv4(src.IP[0], src.IP[1], src.IP[2], src.IP[3]), src.Port)
		if err != nil {
			continue
		}
		s := d.sessionFor(ep)
		s.AddOffered(hash, true)
	}
}

// OnCallbackRequested is fired by serverConn right after it has asked the
// active server to relay a callback request to ep: not an inbound network
// event itself, just the point at which we know a connection from ep may
// arrive soon. The session is created (if needed) now and marked as
// offering hash without dialing, so the accept path below has somewhere
// to hand the resulting socket and something to request once handshaken.
func (d *Daemon) OnCallbackRequested(ep addr.Endpoint, hash wire.Hash) error {
	s := d.sessionFor(ep)
	s.AddOffered(hash, false)
	return nil
}

// --- edonkey/peer.Host ---

func (d *Daemon) RequestCallback(ep addr.Endpoint, hash [16]byte) error {
	return d.serverConn.RequestCallback(ep, hash)
}

func (d *Daemon) LookupDownload(hash [16]byte) (peer.Download, bool) {
	return d.registry.LookupDownload(wire.Hash(hash))
}

func (d *Daemon) LookupShared(hash [16]byte) (peer.Shared, bool) {
	return d.registry.LookupShared(wire.Hash(hash))
}

// --- shared by both Host interfaces ---

// Dial resolves which EventHandler a connection to ep belongs to (the
// single server connection, or a per-peer session) and submits a scheduler
// connect request for it. Both server.Conn.ConnectTo and
// peer.Session.dialDirect call through this one method on the same
// Daemon, so the handler can't be passed in explicitly; it's inferred
// from ep instead, the design this package exists to pin down.
func (d *Daemon) Dial(ep addr.Endpoint, onResult func(sock *sched.Socket, err error)) {
	handler := d.resolveHandler(ep)
	id := sched.SocketID(atomic.AddUint64(&d.nextSocketID, 1))
	req := sched.NewConnectRequest(id, 1.0, ep.Network(), ep.String(), handler, d.logger,
		func(conn net.Conn, err error) {
			if err != nil {
				onResult(nil, err)
				return
			}
			sock := sched.NewSocket(id, conn, handler, d.logger)
			d.backend.Submit(sched.NewUploadRequest(sock, 1.0, true))
			d.backend.Submit(sched.NewDownloadRequest(sock, 1.0, true))
			onResult(sock, nil)
		})
	d.backend.Submit(req)
}

// resolveHandler reports which EventHandler should own a connection to
// ep: the server Conn if ep is a known server address, otherwise the
// per-peer Session registered (or newly created) for ep.
func (d *Daemon) resolveHandler(ep addr.Endpoint) sched.EventHandler {
	if _, ok := d.serverList.Get(ep); ok {
		return d.serverConn
	}
	return d.sessionFor(ep)
}

// localIP4 reports the address our listening socket is bound to, used as
// the local endpoint SecIdent's challenge is bound to.
func (d *Daemon) localIP4() [4]byte {
	var ourIP [4]byte
	if d.ln == nil {
		return ourIP
	}
	if tcpAddr, ok := d.ln.Addr().(*net.TCPAddr); ok {
		if v4 := tcpAddr.IP.To4(); v4 != nil {
			copy(ourIP[:], v4)
		}
	}
	return ourIP
}

// sessionFor returns the existing Session for ep or creates one.
func (d *Daemon) sessionFor(ep addr.Endpoint) *peer.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[ep]; ok {
		return s
	}
	s := peer.New(ep, d.assignedID, d.identityForHandshake(d.localIP4()), d, d.logger)
	d.sessions[ep] = s
	return s
}

// SendUDP implements both server.UDPSender and peer.UDPSender.
func (d *Daemon) SendUDP(ep addr.Endpoint, frame []byte) error {
	if d.udpConn == nil {
		return fmt.Errorf("hydranode: no UDP socket open")
	}
	_, err := d.udpConn.WriteTo(frame, &net.UDPAddr{IP: ep.IP4(), Port: int(ep.Port)})
	return err
}

// onUDPDatagram routes one inbound datagram to the server Querier if it
// came from a known server, or decodes it as a peer UDP sideband frame
// and hands it to the matching Session otherwise.
func (d *Daemon) onUDPDatagram(from addr.Endpoint, data []byte) {
	if _, ok := d.serverList.Get(from); ok {
		if err := d.querier.OnDatagram(from, data); err != nil {
			d.logger.Levelf(log.Debug, "hydranode: server UDP from %v: %v", from, err)
		}
		return
	}

	d.mu.Lock()
	s, ok := d.sessions[from]
	d.mu.Unlock()
	if !ok {
		return
	}
	frame, err := proto.DecodeUDP(data)
	if err != nil {
		d.logger.Levelf(log.Debug, "hydranode: peer UDP from %v: %v", from, err)
		return
	}
	if err := s.OnUDPFrame(frame.Opcode, frame.Payload); err != nil {
		d.logger.Levelf(log.Debug, "hydranode: peer UDP frame from %v: %v", from, err)
	}
}

// onAccepted wraps a freshly accepted inbound TCP connection: the remote
// address becomes the Session key, reusing one created earlier by
// OnCallbackRequested/OnSources if present (the common case for ed2k,
// where the inbound leg always follows an outbound source discovery),
// or creating a fresh one for an unsolicited connection.
func (d *Daemon) onAccepted(conn net.Conn) {
	remote, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		conn.Close()
		return
	}
	ep, err := addr.NewEndpoint(remote.IP, uint16(remote.Port))
	if err != nil {
		conn.Close()
		return
	}
	s := d.sessionFor(ep)
	id := sched.SocketID(atomic.AddUint64(&d.nextSocketID, 1))
	sock := sched.NewSocket(id, conn, s, d.logger)
	d.backend.Submit(sched.NewUploadRequest(sock, 1.0, true))
	d.backend.Submit(sched.NewDownloadRequest(sock, 1.0, true))
	s.AttachAccepted(sock)
}
