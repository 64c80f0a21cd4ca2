package sched

import (
	"testing"

	"github.com/anacrolix/log"
)

// fakeRequest is a minimal Request for exercising Backend.Tick without any
// real socket I/O.
type fakeRequest struct {
	Base
	sendN  int
	sendErr error
	calls  int
}

func (f *fakeRequest) DoSend(quota int) (int, error) {
	f.calls++
	n := f.sendN
	if n > quota {
		n = quota
	}
	return n, f.sendErr
}
func (f *fakeRequest) DoRecv(quota int) (int, error) { return 0, nil }
func (f *fakeRequest) DoConn() (ConnEffect, error)    { return 0, nil }

func newFakeUpload(sock SocketID, score float32, sendN int) *fakeRequest {
	return &fakeRequest{Base: NewBase(KindUpload, sock, score, true), sendN: sendN}
}

func TestCmpRequestsOrdersByScoreThenFIFO(t *testing.T) {
	a := newFakeUpload(1, 5.0, 10)
	b := newFakeUpload(2, 10.0, 10)
	c := newFakeUpload(3, 10.0, 10)
	requestBase(c).seq = requestBase(b).seq + 1

	if cmpRequests(b, a) >= 0 {
		t.Fatal("higher score should sort first")
	}
	if cmpRequests(b, c) >= 0 {
		t.Fatal("equal score should break tie by FIFO seq")
	}
}

func TestBackendTickServicesEveryQueuedUpload(t *testing.T) {
	b := New(Limits{}, nil, nil, log.Default)
	low := newFakeUpload(1, 1.0, 100)
	high := newFakeUpload(2, 9.0, 100)
	b.Submit(low)
	b.Submit(high)

	b.Tick()

	if low.calls != 1 || high.calls != 1 {
		t.Fatalf("expected both requests serviced once, got low=%d high=%d", low.calls, high.calls)
	}
	st := b.Status()
	if st.UpBytes != 200 {
		t.Fatalf("expected 200 up bytes, got %d", st.UpBytes)
	}
}

func TestBackendTickDropsInvalidRequests(t *testing.T) {
	b := New(Limits{}, nil, nil, log.Default)
	r := newFakeUpload(1, 1.0, 10)
	r.Invalidate()
	b.Submit(r)

	b.Tick()

	if r.calls != 0 {
		t.Fatalf("invalidated request should never be serviced, got %d calls", r.calls)
	}
}

func TestBackendTickInvalidatesOnError(t *testing.T) {
	b := New(Limits{}, nil, nil, log.Default)
	r := newFakeUpload(1, 1.0, 10)
	r.sendErr = errBoom
	b.Submit(r)

	b.Tick()
	b.Tick() // second tick must not re-service an invalidated request

	if r.calls != 1 {
		t.Fatalf("expected exactly one call before invalidation, got %d", r.calls)
	}
}

func TestBudgetZeroIsUnlimited(t *testing.T) {
	b := newBudget(0)
	if q := b.quota(1 << 20); q != 1<<20 {
		t.Fatalf("unlimited budget should grant full quota, got %d", q)
	}
}

func TestBudgetCapsQuota(t *testing.T) {
	b := newBudget(1000)
	q := b.quota(1 << 20)
	if q <= 0 || q > 2000 {
		t.Fatalf("expected a bounded initial burst, got %d", q)
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
