package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/sched"
	"github.com/hydranode/hydranode/wire"
)

// Host is what Conn needs from its owner (the peer/session and
// sharedfile layers) without importing them directly, the same interface
// seam edonkey/peer.Session uses against its own Host.
type Host interface {
	ClientHash() wire.Hash
	ListenPort() uint16
	SharedFiles() []SharedFile
	Dial(ep addr.Endpoint, onResult func(sock *sched.Socket, err error))
	OnIDAssigned(id uint32, lowID bool)
	OnServerMessage(text string)
	OnSources(hash wire.Hash, sources []SourceEntry)
	OnCallbackRequested(ep addr.Endpoint, hash wire.Hash) error
}

// SharedFile is the subset of a locally shared file OfferFiles needs.
type SharedFile interface {
	Hash() wire.Hash
	Size() uint64
	Name() string
}

// pendingSourceRequest tracks one queued ReqSources hash still awaiting
// its FoundSources reply, so a late/duplicate reply can be matched back
// to the hash it answers.
type pendingSourceRequest struct {
	hash   wire.Hash
	sentAt time.Time
}

// Conn is the single active server connection: login, file offers,
// source requests/replies, and callback requests all flow over it
// (spec.md §4.J). Exactly one Conn is active per ServerList at a time.
//
// Grounded on edonkey/peer.Session's socket-plus-state-machine shape,
// generalized from a peer relationship to the one distinguished server
// relationship a client keeps.
type Conn struct {
	mu sync.Mutex

	list   *ServerList
	server *Server
	host   Host
	logger log.Logger
	closed chansync.SetOnce

	sock        *sched.Socket
	loggedIn    bool
	assignedID  uint32
	lowID       bool
	supportsZip bool

	lastOfferAt  time.Time
	offeredAll   bool
	pendingReqs  map[wire.Hash]*pendingSourceRequest
	sourceQueue  []wire.Hash
	sizes        map[wire.Hash]uint32
}

// NewConn builds a Conn bound to host, not yet connected to any server.
func NewConn(list *ServerList, host Host, logger log.Logger) *Conn {
	return &Conn{
		list:        list,
		host:        host,
		logger:      logger,
		pendingReqs: map[wire.Hash]*pendingSourceRequest{},
	}
}

// ConnectTo dials s and begins the login sequence once connected
// (spec.md §4.J: "LoginRequest(hash, 0, listenPort, tags)").
func (c *Conn) ConnectTo(s *Server) {
	if !s.readyForLoginAttempt() {
		return
	}
	s.recordLoginAttempt()
	c.mu.Lock()
	c.server = s
	c.mu.Unlock()
	c.host.Dial(s.Endpoint, func(sock *sched.Socket, err error) {
		if err != nil {
			c.onLoginFailed(s, fmt.Errorf("dial: %w", err))
			return
		}
		c.onConnected(sock)
	})
}

func (c *Conn) onConnected(sock *sched.Socket) {
	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()
	c.list.SetActive(c.server)

	req := LoginRequest{
		Hash: c.host.ClientHash(),
		ID:   0,
		Port: c.host.ListenPort(),
		Tags: []wire.Tag{
			{Opcode: tagName, Type: wire.TagStr, S: "hydranode"},
		},
	}
	_ = c.sendFrame(OpLoginRequest, req.Encode())
}

func (c *Conn) onLoginFailed(s *Server, err error) {
	c.logger.Levelf(log.Debug, "server: login to %v failed: %v", s.Endpoint, err)
	c.list.Remove(s.Endpoint)
	if next, ok := c.list.NextForUDP(); ok {
		time.AfterFunc(LoginRetryCooldown*time.Second, func() { c.ConnectTo(next) })
	}
}

// sendFrame wraps payload in the TCP envelope and queues it for send.
func (c *Conn) sendFrame(op Opcode, payload []byte) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return fmt.Errorf("server: no active connection")
	}
	encoded, err := EncodeTCP(op, payload)
	if err != nil {
		return err
	}
	sock.Queue(encoded)
	return nil
}

// Connected reports whether Conn has an active, logged-in socket.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock != nil && c.loggedIn
}

// Shutdown closes the active socket and marks the Conn done, idempotent.
func (c *Conn) Shutdown() {
	if c.closed.IsSet() {
		return
	}
	c.closed.Set()
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.loggedIn = false
	c.mu.Unlock()
	if sock != nil {
		_ = sock.Close()
	}
}

// tagName is the LoginRequest client-name tag opcode, reusing the same
// small tag space the peer Hello frame uses (spec.md §4.J login tags are
// unspecified beyond "tags"; a client name tag is the minimum any real
// server expects to see).
const tagName byte = 0x01
