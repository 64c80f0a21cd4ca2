package server

import (
	"time"
)

// sendInitialOffers sends up to MaxInitialOfferFiles shared files in a
// first OfferFiles right after login (spec.md §4.J). Any files past that
// count are not held back: they go out at once in a second OfferFiles.
func (c *Conn) sendInitialOffers() {
	files := c.host.SharedFiles()
	first := files
	rest := files[:0]
	if len(files) > MaxInitialOfferFiles {
		first = files[:MaxInitialOfferFiles]
		rest = files[MaxInitialOfferFiles:]
	}
	c.sendOfferBatch(first)

	c.mu.Lock()
	c.lastOfferAt = nowHook()
	c.offeredAll = len(rest) == 0
	c.mu.Unlock()

	if len(rest) > 0 {
		c.sendOfferBatch(rest)
		c.mu.Lock()
		c.offeredAll = true
		c.mu.Unlock()
	}
}

func (c *Conn) sendOfferBatch(files []SharedFile) {
	if len(files) == 0 {
		return
	}
	of := OfferFiles{Files: make([]OfferedFile, 0, len(files))}
	for _, f := range files {
		of.Files = append(of.Files, OfferedFile{
			Hash: f.Hash(),
			ID:   CompleteFileID,
			Port: CompleteFilePort,
			Name: f.Name(),
			Size: uint32(f.Size()),
		})
	}
	_ = c.sendFrame(OpOfferFiles, of.Encode())
}

// CompleteFileID/CompleteFilePort mark a fully-shared file in an
// OfferFiles entry, matching edonkey/proto's peer-side sentinel pair
// (spec.md §6 "File identifiers on wire").
const (
	CompleteFileID   uint32 = 0xfbfbfbfb
	CompleteFilePort uint16 = 0xfbfb
)

// MaybeSendKeepAlive re-offers the full shared set if OfferKeepAliveEvery
// minutes have elapsed since the last offer, intended to be called from a
// periodic driver loop.
func (c *Conn) MaybeSendKeepAlive() {
	c.mu.Lock()
	due := nowHook().Sub(c.lastOfferAt) >= OfferKeepAliveEvery*time.Minute
	c.mu.Unlock()
	if !due {
		return
	}
	c.sendInitialOffers()
}

var nowHook = time.Now
