package sched

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/speed"
)

// INPUT_BUFSIZE bounds how much an "unlimited peer" download request may
// read in one doRecv when it bypasses the shared budget (spec.md §4.E
// item 2).
const InputBufSize = 1 << 16

// Limits configures the backend's per-tick budgets and connection caps.
// Zero Up/Down means unlimited, per spec.md §4.E.
type Limits struct {
	UpBytesPerSec   int64
	DownBytesPerSec int64
	MaxConns        int
	MaxHalfOpen     int
}

// Status is the cumulative counters snapshot spec.md §4.E promises:
// "total up/down bytes, open conns, half-open conns, blocked count, up/down
// packets."
type Status struct {
	UpBytes, DownBytes     int64
	UpPackets, DownPackets int64
	OpenConns, HalfOpen    int64
	Blocked                int64
}

// Backend is Component E: it owns the pending-request queues and decides,
// once per tick, which requests may run. It never blocks and never panics
// out past a single request's doSend/doRecv/doConn call (spec.md §4.E
// "Failure semantics").
type Backend struct {
	mu sync.Mutex

	limits Limits
	upB    *budget
	downB  *budget

	upload   []Request
	download []Request
	connect  []Request
	accept   []Request
	nextSeq  uint64

	openConns   int64
	halfOpen    int64
	blocked     int64
	upBytes     int64
	downBytes   int64
	upPackets   int64
	downPackets int64

	upSpeed   *speed.Meter
	downSpeed *speed.Meter

	allow  func(addr.BannableAddr) bool // isAllowed: nil means allow all
	limit  func(addr.BannableAddr) bool // isLimited: nil means every peer limited
	logger log.Logger
}

// New constructs a Backend with the given limits. allow and limit may be
// nil (meaning "allow everyone" / "limit everyone" respectively).
func New(limits Limits, allow, limit func(addr.BannableAddr) bool, logger log.Logger) *Backend {
	b := &Backend{
		limits:    limits,
		upB:       newBudget(limits.UpBytesPerSec),
		downB:     newBudget(limits.DownBytesPerSec),
		upSpeed:   speed.New(0),
		downSpeed: speed.New(0),
		allow:     allow,
		limit:     limit,
		logger:    logger,
	}
	return b
}

// SetLimits hot-reloads the up/down/connection budgets, e.g. from a config
// file watcher (SPEC_FULL.md's config ambient concern).
func (b *Backend) SetLimits(l Limits) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits = l
	b.upB.reset(l.UpBytesPerSec)
	b.downB.reset(l.DownBytesPerSec)
}

// Submit enqueues a request of its declared kind. The caller assigns no
// sequence number; Submit does, preserving FIFO order for equal-score
// tie-breaks (spec.md §4.E "Tie-break").
func (b *Backend) Submit(r Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	base := requestBase(r)
	base.seq = b.nextSeq
	b.nextSeq++
	switch r.Kind() {
	case KindUpload:
		b.upload = append(b.upload, r)
	case KindDownload:
		b.download = append(b.download, r)
	case KindConnect:
		b.connect = append(b.connect, r)
	case KindAccept:
		b.accept = append(b.accept, r)
	default:
		panic("sched: unknown request kind")
	}
}

// IsAllowed reports whether the backend's IP-allow policy permits a.
func (b *Backend) IsAllowed(a addr.BannableAddr) bool {
	if b.allow == nil {
		return true
	}
	return b.allow(a)
}

// IsLimited reports whether a is subject to the shared speed budget.
func (b *Backend) IsLimited(a addr.BannableAddr) bool {
	if b.limit == nil {
		return true
	}
	return b.limit(a)
}

// AddBlocked records that an accepted connection was closed because its
// address failed the allow filter (spec.md §4.E item 5).
func (b *Backend) AddBlocked() {
	atomic.AddInt64(&b.blocked, 1)
}

// AddConn / DelConn track the open-connection count directly, for
// transfers that connect outside the scheduler's own Connect requests
// (e.g. accepted sockets promoted by the translation layer).
func (b *Backend) AddConn()      { atomic.AddInt64(&b.openConns, 1) }
func (b *Backend) DelConn()      { atomic.AddInt64(&b.openConns, -1) }
func (b *Backend) AddConnecting() { atomic.AddInt64(&b.halfOpen, 1) }
func (b *Backend) DelConnecting() { atomic.AddInt64(&b.halfOpen, -1) }

// Status returns a snapshot of the cumulative counters.
func (b *Backend) Status() Status {
	return Status{
		UpBytes:     atomic.LoadInt64(&b.upBytes),
		DownBytes:   atomic.LoadInt64(&b.downBytes),
		UpPackets:   atomic.LoadInt64(&b.upPackets),
		DownPackets: atomic.LoadInt64(&b.downPackets),
		OpenConns:   atomic.LoadInt64(&b.openConns),
		HalfOpen:    atomic.LoadInt64(&b.halfOpen),
		Blocked:     atomic.LoadInt64(&b.blocked),
	}
}

// byScoreDesc sorts requests descending by score, FIFO on ties
// (spec.md §4.E "Tie-break").
func byScoreDesc(reqs []Request) {
	sort.SliceStable(reqs, func(i, j int) bool {
		return cmpRequests(reqs[i], reqs[j]) < 0
	})
}

// Tick runs one scheduling pass: drains invalid requests, orders the rest
// by score, and grants budget-limited I/O to as many as the remaining
// per-second allowance covers (spec.md §4.E "Scheduling algorithm").
// It is invoked once per event-loop iteration; it never blocks.
func (b *Backend) Tick() {
	b.mu.Lock()
	upload := b.upload
	b.upload = nil
	download := b.download
	b.download = nil
	connect := b.connect
	b.connect = nil
	accept := b.accept
	b.accept = nil
	b.mu.Unlock()

	upload = dropInvalid(upload)
	download = dropInvalid(download)
	connect = dropInvalid(connect)
	accept = dropInvalid(accept)

	byScoreDesc(upload)
	byScoreDesc(download)

	var stillUpload, stillDownload []Request
	for _, r := range upload {
		if b.serviceSend(r) {
			stillUpload = append(stillUpload, r)
		}
	}
	for _, r := range download {
		if b.serviceRecv(r) {
			stillDownload = append(stillDownload, r)
		}
	}

	var stillConnect, stillAccept []Request
	for _, r := range connect {
		if b.serviceConn(r) {
			stillConnect = append(stillConnect, r)
		}
	}
	for _, r := range accept {
		if b.serviceConn(r) {
			stillAccept = append(stillAccept, r)
		}
	}

	b.mu.Lock()
	b.upload = append(stillUpload, b.upload...)
	b.download = append(stillDownload, b.download...)
	b.connect = append(stillConnect, b.connect...)
	b.accept = append(stillAccept, b.accept...)
	b.mu.Unlock()
}

func dropInvalid(reqs []Request) []Request {
	out := reqs[:0]
	for _, r := range reqs {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// serviceSend grants an upload request its quota and returns whether it
// should remain queued for the next tick.
func (b *Backend) serviceSend(r Request) bool {
	quota := InputBufSize
	limited := r.IsLimited()
	if limited {
		quota = b.upB.quota(quota)
		if quota <= 0 {
			return true
		}
	}
	sent, err := b.safeDoSend(r, quota)
	if err != nil {
		b.logger.Levelf(log.Debug, "sched: upload request error, invalidating: %v", err)
		r.Invalidate()
		return false
	}
	if limited {
		b.upB.debit(sent)
	}
	if sent > 0 {
		atomic.AddInt64(&b.upBytes, int64(sent))
		atomic.AddInt64(&b.upPackets, 1)
		b.upSpeed.Add(nowHook(), int64(sent))
	}
	return r.Valid()
}

func (b *Backend) serviceRecv(r Request) bool {
	quota := InputBufSize
	limited := r.IsLimited()
	if limited {
		quota = b.downB.quota(quota)
		if quota <= 0 {
			return true
		}
	}
	recvd, err := b.safeDoRecv(r, quota)
	if err != nil {
		b.logger.Levelf(log.Debug, "sched: download request error, invalidating: %v", err)
		r.Invalidate()
		return false
	}
	if limited {
		b.downB.debit(recvd)
	}
	if recvd > 0 {
		atomic.AddInt64(&b.downBytes, int64(recvd))
		atomic.AddInt64(&b.downPackets, 1)
		b.downSpeed.Add(nowHook(), int64(recvd))
	}
	return r.Valid()
}

// serviceConn is shared by Connect and Accept requests: both are released
// only under the open/half-open caps and both return a ConnEffect bit-set
// (spec.md §4.E item 4,5).
func (b *Backend) serviceConn(r Request) bool {
	if b.limits.MaxConns > 0 && atomic.LoadInt64(&b.openConns) >= int64(b.limits.MaxConns) {
		return true
	}
	if r.Kind() == KindConnect && b.limits.MaxHalfOpen > 0 && atomic.LoadInt64(&b.halfOpen) >= int64(b.limits.MaxHalfOpen) {
		return true
	}
	effect, err := b.safeDoConn(r)
	if err != nil {
		b.logger.Levelf(log.Debug, "sched: conn request error, invalidating: %v", err)
		r.Invalidate()
		return false
	}
	if effect&EffectAddConn != 0 {
		atomic.AddInt64(&b.openConns, 1)
	}
	if effect&EffectRemove != 0 {
		return false
	}
	return r.Valid()
}

// safeDoSend/safeDoRecv/safeDoConn recover from a panicking request
// implementation so one misbehaving module can never take down the
// scheduler (spec.md §4.E "Failure semantics": "Exceptions ... do not kill
// the scheduler").
func (b *Backend) safeDoSend(r Request, quota int) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = recoverErr(p)
		}
	}()
	return r.DoSend(quota)
}

func (b *Backend) safeDoRecv(r Request, quota int) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = recoverErr(p)
		}
	}()
	return r.DoRecv(quota)
}

func (b *Backend) safeDoConn(r Request) (e ConnEffect, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = recoverErr(p)
		}
	}()
	return r.DoConn()
}
