package peer

import (
	"crypto/rsa"
	"sync"

	"github.com/elliotchance/orderedmap"
)

// maxCachedKeys bounds the public-key cache so a flood of short-lived
// sessions can't grow it unboundedly; eviction is oldest-first via the
// ordered map's insertion order.
const maxCachedKeys = 10000

// SecIdentState values spec.md §4.I names directly.
const (
	SecIdentNone            = 0
	SecIdentSigNeeded       = 1
	SecIdentKeyAndSigNeeded = 2
)

// creditRecord is one peer's bound credit state (spec.md §4.I: "on
// success the peer's credit record is bound; on failure credits are
// cleared").
type creditRecord struct {
	key        *rsa.PublicKey
	uploaded   uint64
	downloaded uint64
	bound      bool
}

// Credits is the session-independent cache of (userhash -> public
// key/credit) bindings, generalized from the teacher's
// connectionTrust/bep40Priority comparison machinery: BitTorrent has no
// credit system, so this is the new component SPEC_FULL.md's Peer
// session section calls for, built the way the teacher builds its own
// peer-ranking caches (a bounded map guarding concurrent session access).
type Credits struct {
	mu      sync.Mutex
	records *orderedmap.OrderedMap
}

// NewCredits builds an empty cache.
func NewCredits() *Credits {
	return &Credits{records: orderedmap.NewOrderedMap()}
}

func (c *Credits) getLocked(userHash [16]byte) (*creditRecord, bool) {
	v, ok := c.records.Get(userHash)
	if !ok {
		return nil, false
	}
	return v.(*creditRecord), true
}

// Bind records peer's verified public key and marks its credit record
// trusted.
func (c *Credits) Bind(userHash [16]byte, key *rsa.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictIfFullLocked()
	if rec, ok := c.getLocked(userHash); ok {
		rec.key, rec.bound = key, true
		return
	}
	c.records.Set(userHash, &creditRecord{key: key, bound: true})
}

// Clear drops any trust for userHash after a signature verification
// failure (spec.md §4.I: "on failure credits are cleared").
func (c *Credits) Clear(userHash [16]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records.Delete(userHash)
}

// Key returns the cached public key for userHash, if any.
func (c *Credits) Key(userHash [16]byte) (*rsa.PublicKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.getLocked(userHash)
	if !ok {
		return nil, false
	}
	return rec.key, rec.bound
}

// AddUploaded/AddDownloaded accumulate transfer totals used for credit
// comparisons (prefer sources that gave us good service, the ed2k analog
// of the teacher's "prefer peers that dirtied good pieces for us").
func (c *Credits) AddUploaded(userHash [16]byte, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.getLocked(userHash); ok {
		rec.uploaded += n
	}
}

func (c *Credits) AddDownloaded(userHash [16]byte, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.getLocked(userHash); ok {
		rec.downloaded += n
	}
}

// Ratio reports uploaded/downloaded for userHash, used to prioritize
// which queued peer to promote next.
func (c *Credits) Ratio(userHash [16]byte) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.getLocked(userHash)
	if !ok || rec.downloaded == 0 {
		return 1.0
	}
	return float64(rec.uploaded) / float64(rec.downloaded)
}

func (c *Credits) evictIfFullLocked() {
	if c.records.Len() < maxCachedKeys {
		return
	}
	if oldest := c.records.Front(); oldest != nil {
		c.records.Delete(oldest.Key)
	}
}
