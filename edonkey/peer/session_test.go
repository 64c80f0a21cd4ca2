package peer

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net"
	"testing"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/sched"
)

type fakeHost struct {
	callbackErr error
	shared      map[[16]byte]Shared
	downloads   map[[16]byte]Download
}

func newFakeHost() *fakeHost {
	return &fakeHost{shared: map[[16]byte]Shared{}, downloads: map[[16]byte]Download{}}
}

func (h *fakeHost) RequestCallback(ep addr.Endpoint, hash [16]byte) error { return h.callbackErr }
func (h *fakeHost) LookupDownload(hash [16]byte) (Download, bool)        { d, ok := h.downloads[hash]; return d, ok }
func (h *fakeHost) LookupShared(hash [16]byte) (Shared, bool)            { sh, ok := h.shared[hash]; return sh, ok }
func (h *fakeHost) Dial(ep addr.Endpoint, onResult func(*sched.Socket, error)) {}

func testEndpoint() addr.Endpoint {
	ep, _ := addr.NewEndpoint(net.IPv4(1, 2, 3, 4), 4662)
	return ep
}

func newTestSession() *Session {
	return New(testEndpoint(), 0x01020304, Identity{}, newFakeHost(), log.Default)
}

func TestAddOfferedAndRemOfferedIdleDestruction(t *testing.T) {
	s := newTestSession()
	var hash [16]byte
	hash[0] = 1

	s.addOffered(hash, false)
	if s.IsIdle() {
		t.Fatalf("expected non-idle after addOffered")
	}

	s.remOffered(hash, true)
	if !s.IsIdle() {
		t.Fatalf("expected idle after last offered file removed")
	}
}

func TestRemOfferedDoesNotDestroyWhenOthersRemain(t *testing.T) {
	s := newTestSession()
	var h1, h2 [16]byte
	h1[0], h2[0] = 1, 2

	s.addOffered(h1, false)
	s.addOffered(h2, false)
	s.remOffered(h1, true)

	if s.IsIdle() {
		t.Fatalf("expected session still non-idle with h2 offered")
	}
}

func TestMergeKeepsMostRecentNonNilSubstates(t *testing.T) {
	a := newTestSession()
	b := newTestSession()

	var hash [16]byte
	hash[0] = 9
	b.addOffered(hash, false)
	b.queue = &QueueInfo{Hash: hash}

	a.merge(b)

	if a.source == nil || !a.source.Offered[hash] {
		t.Fatalf("expected merged source substate, got %+v", a.source)
	}
	if a.queue == nil || a.queue.Hash != hash {
		t.Fatalf("expected merged queue substate, got %+v", a.queue)
	}
}

func TestOnLostReconvertsUploadToQueue(t *testing.T) {
	s := newTestSession()
	s.handshook = true
	var hash [16]byte
	hash[0] = 5
	s.upload = &UploadInfo{Hash: hash}

	s.onLost()

	if s.upload != nil {
		t.Fatalf("expected UploadInfo cleared on lost")
	}
	if s.queue == nil || s.queue.Hash != hash {
		t.Fatalf("expected re-queued QueueInfo, got %+v", s.queue)
	}
}

func TestOnLostSchedulesReaskForActiveDownload(t *testing.T) {
	s := newTestSession()
	s.handshook = true
	var hash [16]byte
	hash[0] = 6
	s.download = &DownloadInfo{Hash: hash}

	s.onLost()

	if s.download != nil {
		t.Fatalf("expected DownloadInfo cleared on lost")
	}
	if s.queue == nil || s.queue.Hash != hash || s.queue.NextReaskFireAt.IsZero() {
		t.Fatalf("expected reask scheduled, got %+v", s.queue)
	}
}

func TestOnLostDestroysSessionThatNeverHandshook(t *testing.T) {
	s := newTestSession()
	s.handshook = false

	s.onLost()

	// Destroy runs in a goroutine from onLost when handshake never
	// completed; poll briefly for it to land.
	deadline := 0
	for !s.Destroyed() && deadline < 1000 {
		deadline++
	}
	if !s.Destroyed() {
		t.Fatalf("expected session destroyed after loss before handshake completed")
	}
}

func TestOnTimeoutDestroysUnhandshookSession(t *testing.T) {
	s := newTestSession()
	s.onTimeout()
	if !s.Destroyed() {
		t.Fatalf("expected destroy on timeout before handshake completed")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	s := newTestSession()
	s.Destroy(errors.New("first"))
	s.Destroy(errors.New("second")) // must not panic or double-close
	if !s.Destroyed() {
		t.Fatalf("expected destroyed")
	}
}

func TestCreditsBindClearAndRatio(t *testing.T) {
	c := NewCredits()
	var hash [16]byte
	hash[0] = 1

	key, err := rsa.GenerateKey(rand.Reader, 512)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}

	c.Bind(hash, &key.PublicKey)
	if _, ok := c.Key(hash); !ok {
		t.Fatalf("expected bound key present")
	}

	c.AddUploaded(hash, 100)
	c.AddDownloaded(hash, 50)
	if got := c.Ratio(hash); got != 2.0 {
		t.Fatalf("expected ratio 2.0, got %v", got)
	}

	c.Clear(hash)
	if _, ok := c.Key(hash); ok {
		t.Fatalf("expected key cleared")
	}
}

func TestDecodeFeatureBitsRoundTripsKnownBits(t *testing.T) {
	fb := decodeFeatureBits(0b111111111)
	if fb.SrcExch != 7 || fb.SecIdent != 3 || fb.UDPReask != 1 || fb.Comments != 1 || fb.Compression != 1 || fb.AICH != 1 {
		t.Fatalf("unexpected feature bits: %+v", fb)
	}
}

func TestPartMapHasNeededPart(t *testing.T) {
	theirs := []bool{true, false, true}
	ours := []bool{true, true, false}
	if !partMapHasNeededPart(theirs, ours) {
		t.Fatalf("expected true: peer has chunk 2 we lack")
	}

	ours2 := []bool{true, false, true}
	if partMapHasNeededPart(theirs, ours2) {
		t.Fatalf("expected false: peer offers nothing we lack")
	}
}
