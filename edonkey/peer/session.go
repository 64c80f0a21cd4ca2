// Package peer implements Component I: the per-peer session that drives
// one (ip, tcpPort) relationship through handshake, source (download) and
// upload (serve) directions, credits/secure identification, and UDP
// reask, all from spec.md §4.I.
//
// Grounded on the teacher's Peer/PeerConn struct split generalized to
// ed2k's four independent substates, and webseedPeer's requester-goroutine
// pattern generalized to the UDP reask loop.
package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/edonkey/proto"
	"github.com/hydranode/hydranode/sched"
)

// Tunable timing constants named directly from spec.md §4.I.
const (
	CallbackTimeout  = 60 * time.Second
	SourceReaskTime  = 30 * time.Minute
	UDPTimeout       = 30 * time.Second
	TransferTimeout  = 120 * time.Second
	IdleTimeout      = 10 * time.Second
	maxUDPReaskFails = 3
)

// ConnState tracks where in the handshake/connect lifecycle the session's
// socket currently is.
type ConnState int

const (
	ConnNone ConnState = iota
	ConnConnecting
	ConnHandshaking
	ConnEstablished
	ConnDestroyed
)

// Host is the set of callbacks a Session needs from its owner (the
// sharedfile/server layer and the scheduler) without importing them
// directly, keeping peer free of an import cycle onto edonkey/server.
type Host interface {
	// RequestCallback asks the connected server to ask ep to connect to us.
	RequestCallback(ep addr.Endpoint, hash [16]byte) error
	// LookupDownload resolves a file hash to its PartData-backed download
	// target, or ok=false if we're not downloading that file.
	LookupDownload(hash [16]byte) (Download, bool)
	// LookupShared resolves a file hash to a file we can serve, or
	// ok=false if we don't have it.
	LookupShared(hash [16]byte) (Shared, bool)
	// Dial submits a scheduler connect request for ep, invoking onResult
	// once it resolves.
	Dial(ep addr.Endpoint, onResult func(sock *sched.Socket, err error))
}

// Download is the subset of partdata.PartData a Session's download side
// needs: range selection and chunk writing, without importing partdata
// directly (kept behind an interface so peer has no hard dependency on
// PartData's storage/hash machinery).
type Download interface {
	Size() uint64
	PartStatus() []bool
	WriteChunk(begin uint64, data []byte) error
}

// Shared is the subset of a locally shared file a Session's upload side
// needs to answer ReqFile/ReqChunks.
type Shared interface {
	Name() string
	Size() uint64
	PartStatus() []bool
	ReadChunk(begin, end uint64) ([]byte, error)
}

// Session is keyed by (ip, tcpPort) and holds the four independent
// substates spec.md §4.I describes. A nil substate means "not active in
// that role". remOffered with cleanup destroys the session when removing
// the last offered file leaves all four nil; other transitions that leave
// the session idle do not destroy it.
type Session struct {
	mu sync.Mutex

	endpoint addr.Endpoint
	id       uint32 // our last-known id at the time we were queued by this peer
	lowID    bool

	host     Host
	identity Identity
	logger   log.Logger
	closed   chansync.SetOnce

	sock      *sched.Socket
	connState ConnState
	handshook bool

	nick, version, modString string
	muleVer                  int
	udpPort                  uint16
	features                 FeatureBits
	remoteHash               [16]byte

	// issuedChallenge and incomingPacked are per-connection Dispatch state:
	// the SecIdentState challenge we last issued (needed again when the
	// matching Signature arrives) and the in-progress PackedChunk
	// reassembly buffer (nil between compressed chunks).
	issuedChallenge uint32
	incomingPacked  *proto.PackedStream

	source   *SourceInfo
	queue    *QueueInfo
	upload   *UploadInfo
	download *DownloadInfo

	credits *Credits

	udpFails int

	destroyed bool
}

// FeatureBits records the extension versions advertised in the peer's tag
// list (spec.md §4.I: "Feature bits encode versions for SrcExch, SecIdent,
// UDP reask, comments, compression, AICH").
type FeatureBits struct {
	SrcExch     int
	SecIdent    int
	UDPReask    int
	Comments    int
	Compression int
	AICH        int
}

// SourceInfo marks this peer as a known source of at least one file we
// want (spec.md §4.I's addOffered/remOffered operations).
type SourceInfo struct {
	Offered map[[16]byte]bool
}

// QueueInfo is our position in the peer's upload queue while we wait to
// be promoted (the peer is uploading to us, in ed2k vocabulary this is
// the peer's queue, not ours).
type QueueInfo struct {
	Hash            [16]byte
	RemoteQR        int32
	NextReaskFireAt time.Time
}

// UploadInfo is active when we are uploading a file to this peer.
type UploadInfo struct {
	Hash       [16]byte
	shared     Shared
	sentBytes  uint64
	packer     *proto.PackedStream
	compress   bool
	pendingOut [][2]uint64 // queued (begin,end) ranges still to send, inclusive
}

// DownloadInfo is active when we are downloading a file from this peer.
type DownloadInfo struct {
	Hash       [16]byte
	target     Download
	pending    []requestedRange
	lastChunk  time.Time
	reaskTimer time.Time
	queuedAtID uint32 // our own id at the moment this peer queued us
}

type requestedRange struct {
	begin, end uint64 // inclusive
}

// New builds a session for endpoint, not yet connected. identity is the
// daemon-wide Hello/secure-identification identity this session presents
// to the peer; it never changes across the session's lifetime.
func New(ep addr.Endpoint, ourID uint32, identity Identity, host Host, logger log.Logger) *Session {
	return &Session{
		endpoint: ep,
		id:       ourID,
		lowID:    addr.IsLowID(ourID),
		host:     host,
		identity: identity,
		logger:   logger,
		credits:  NewCredits(),
	}
}

// Endpoint returns the (ip, tcpPort) key this session is indexed by.
func (s *Session) Endpoint() addr.Endpoint { return s.endpoint }

// IsIdle reports whether all four substates are nil, meaning the session
// has no further reason to exist (spec.md §4.I's "Idle destruction").
func (s *Session) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isIdleLocked()
}

func (s *Session) isIdleLocked() bool {
	return s.source == nil && s.queue == nil && s.upload == nil && s.download == nil
}

// Destroy tears down the session's socket (if any) and marks it dead;
// idempotent.
func (s *Session) Destroy(reason error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	sock := s.sock
	s.connState = ConnDestroyed
	s.mu.Unlock()

	s.closed.Set()
	if sock != nil {
		_ = sock.Close()
	}
	s.logger.Levelf(log.Debug, "session %v destroyed: %v", s.endpoint, reason)
}

// Destroyed reports whether Destroy has run.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// addOffered records this peer as a source of hash, optionally
// establishing a connection immediately (spec.md §4.I:
// "addOffered(Download, connect?)").
func (s *Session) addOffered(hash [16]byte, connect bool) {
	s.mu.Lock()
	if s.source == nil {
		s.source = &SourceInfo{Offered: map[[16]byte]bool{}}
	}
	s.source.Offered[hash] = true
	s.mu.Unlock()

	if connect {
		s.establishConnection(hash)
	}
}

// AddOffered is addOffered's exported entry point, for a daemon that just
// resolved a source address (e.g. from a ServerMessage/UDP FoundSources
// reply) and wants this session to start downloading hash from it.
func (s *Session) AddOffered(hash [16]byte, connect bool) {
	s.addOffered(hash, connect)
}

// remOffered drops hash from this peer's offered set, optionally
// destroying the session if the offered set becomes empty (spec.md §4.I:
// "remOffered(Download, cleanup?)").
func (s *Session) remOffered(hash [16]byte, cleanup bool) {
	s.mu.Lock()
	empty := false
	if s.source != nil {
		delete(s.source.Offered, hash)
		if len(s.source.Offered) == 0 {
			s.source = nil
			empty = s.isIdleLocked()
		}
	}
	s.mu.Unlock()

	if cleanup && empty {
		s.Destroy(errors.New("no offered files remain"))
	}
}

// merge folds other's substates into s, keeping the most recent non-nil
// of each, handling the race where two Session objects end up referring
// to the same peer (spec.md §4.I: "the resulting object keeps the most
// recent non-null of each substate").
func (s *Session) merge(other *Session) {
	other.mu.Lock()
	defer other.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if other.source != nil {
		s.source = other.source
	}
	if other.queue != nil {
		s.queue = other.queue
	}
	if other.upload != nil {
		s.upload = other.upload
	}
	if other.download != nil {
		s.download = other.download
	}
	if other.handshook {
		s.handshook = true
		s.nick, s.version, s.modString, s.muleVer = other.nick, other.version, other.modString, other.muleVer
		s.udpPort, s.features = other.udpPort, other.features
	}
}

// sendFrame wraps payload in the TCP envelope and queues it on the
// session's socket.
func (s *Session) sendFrame(op proto.Opcode, payload []byte) error {
	s.mu.Lock()
	sock := s.sock
	s.mu.Unlock()
	if sock == nil {
		return fmt.Errorf("peer: session %v has no socket", s.endpoint)
	}
	encoded, err := proto.EncodeTCP(op, payload)
	if err != nil {
		return err
	}
	sock.Queue(encoded)
	return nil
}
