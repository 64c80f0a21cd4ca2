// Package sched implements the three-tier scheduling pipeline of spec.md
// §4.E/§4.F: a priority-scored backend that arbitrates I/O across every
// connection against a single upload/download budget, and a socket
// translation layer that turns raw socket events into backend requests.
//
// The split mirrors the teacher's own separation between peer.go's
// request/accounting bookkeeping (nominalMaxRequests, Count atomics) and
// socket.go's Listener/Dialer abstraction, generalized from BitTorrent's
// per-peer request counting to ed2k's three explicit request kinds.
package sched

import (
	"sync/atomic"

	"github.com/anacrolix/multiless"
)

// Kind identifies what a Request asks the backend to do (spec.md §3).
type Kind int

const (
	KindUpload Kind = iota
	KindDownload
	KindConnect
	KindAccept
)

func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	case KindConnect:
		return "connect"
	case KindAccept:
		return "accept"
	default:
		return "unknown"
	}
}

// ConnEffect is the bit-set of side effects doConn may ask the backend to
// apply (spec.md §4.E item 4).
type ConnEffect int

const (
	EffectAddConn ConnEffect = 1 << iota
	EffectRemove
	EffectNotify
)

// Request is the abstract unit the backend schedules (spec.md §3). A
// concrete request embeds Base and supplies DoSend/DoRecv/DoConn as
// appropriate for its Kind; the other two are no-ops returning zero.
type Request interface {
	Kind() Kind
	Score() float32
	Valid() bool
	Invalidate()
	// Socket identifies which SocketWrapper this request belongs to, for
	// per-socket invalidation on disconnect.
	Socket() SocketID
	// IsLimited reports whether this request's owner is subject to the
	// shared speed budget. A false return means "unlimited peer": the
	// request may move bytes up to its natural cap without debiting the
	// shared budget (spec.md §4.E item 2).
	IsLimited() bool

	// DoSend is set for KindUpload requests: send up to quota bytes,
	// return bytes actually sent (to debit the budget; always 0 bytes
	// debited when IsLimited is false, per spec.md §4.E item 2 — the
	// scheduler ignores the return value's effect on the budget for
	// unlimited requests but still uses it for metering).
	DoSend(quota int) (sent int, err error)
	// DoRecv is set for KindDownload requests.
	DoRecv(quota int) (recvd int, err error)
	// DoConn is set for KindConnect/KindAccept requests.
	DoConn() (effect ConnEffect, err error)
}

// SocketID is a stable handle identifying a SocketWrapper, replacing the
// teacher's template-parameterised per-type static maps (spec.md §9's
// first redesign flag) with a single integer key into the backend's typed
// maps.
type SocketID uint64

// Base is embedded by concrete Request implementations to supply the
// common score/valid/socket bookkeeping. It is safe for the owning
// session to call Invalidate concurrently with the scheduler's own tick
// goroutine because validity is a single atomic flag (spec.md §5: "a
// single atomic boolean written by the owning session's thread").
type Base struct {
	kind    Kind
	sock    SocketID
	score   float32
	valid   int32
	limited bool
	seq     uint64 // FIFO tie-break, assigned at enqueue time
}

// NewBase constructs a Base for a request of the given kind, owned by
// sock, scored by score, and debited against the shared budget iff
// limited is true.
func NewBase(kind Kind, sock SocketID, score float32, limited bool) Base {
	return Base{kind: kind, sock: sock, score: score, valid: 1, limited: limited}
}

func (b *Base) Kind() Kind          { return b.kind }
func (b *Base) Score() float32      { return b.score }
func (b *Base) Socket() SocketID    { return b.sock }
func (b *Base) IsLimited() bool     { return b.limited }
func (b *Base) Valid() bool         { return atomic.LoadInt32(&b.valid) != 0 }
func (b *Base) Invalidate()         { atomic.StoreInt32(&b.valid, 0) }
func (b *Base) SetScore(s float32)  { b.score = s }

// cmpRequests orders two requests by descending score, then ascending
// sequence number (FIFO among equal scores), per spec.md §4.E's
// tie-break rule. Grounded on the teacher's multiless-based comparisons
// (peer.go's connectionTrust.Cmp).
func cmpRequests(a, b Request) int {
	ab, bb := requestBase(a), requestBase(b)
	return multiless.New().
		Float64(float64(bb.score), float64(ab.score)). // higher score first
		Uint64(ab.seq, bb.seq).                         // then FIFO
		OrderingInt()
}

func requestBase(r Request) *Base {
	type baser interface{ baseRef() *Base }
	if b, ok := r.(baser); ok {
		return b.baseRef()
	}
	panic("sched: Request must embed *Base and expose baseRef()")
}

// baseRef lets cmpRequests reach the embedded Base's seq field without
// exporting it on every concrete request type.
func (b *Base) baseRef() *Base { return b }
