package server

import (
	"fmt"
	"time"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/wire"
)

// RequestSources queues hash for a ReqSources round. Callers typically
// enqueue every hash they're downloading; a driver loop periodically
// drains the queue with DrainSourceRequests (spec.md §4.J).
func (c *Conn) RequestSources(hash wire.Hash, size uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.sourceQueue {
		if h == hash {
			return
		}
	}
	c.sourceQueue = append(c.sourceQueue, hash)
	c.pendingReqs[hash] = &pendingSourceRequest{hash: hash, sentAt: time.Time{}}
	c.sizeByHash(hash, size)
}

// sizeByHash stashes the file size alongside a queued hash; kept as a
// tiny side table rather than widening pendingSourceRequest's zero value
// semantics used for "not yet sent".
func (c *Conn) sizeByHash(hash wire.Hash, size uint32) {
	if c.sizes == nil {
		c.sizes = map[wire.Hash]uint32{}
	}
	c.sizes[hash] = size
}

// DrainSourceRequests sends one ReqSources frame per hash that has never
// been requested or whose last request is older than ReqSourcesInterval,
// at most ReqSourcesBatchSize*ReqSourcesMaxPackets frames per call. Each
// frame carries a single hash, and every frame of a call goes out in that
// same call: hashes are not packed several to a packet, and the groups of
// ReqSourcesBatchSize are not spaced apart in time. Called from a periodic
// driver loop.
func (c *Conn) DrainSourceRequests() {
	c.mu.Lock()
	var due []wire.Hash
	now := nowHook()
	for _, h := range c.sourceQueue {
		req := c.pendingReqs[h]
		if req == nil || now.Sub(req.sentAt) >= ReqSourcesInterval*time.Minute {
			due = append(due, h)
		}
		if len(due) >= ReqSourcesBatchSize*ReqSourcesMaxPackets {
			break
		}
	}
	c.mu.Unlock()

	for len(due) > 0 {
		n := ReqSourcesBatchSize
		if n > len(due) {
			n = len(due)
		}
		batch := due[:n]
		due = due[n:]
		for _, h := range batch {
			c.mu.Lock()
			size := c.sizes[h]
			if req, ok := c.pendingReqs[h]; ok {
				req.sentAt = nowHook()
			}
			c.mu.Unlock()
			rq := ReqSources{Hash: h, Size: size}
			_ = c.sendFrame(OpReqSources, rq.Encode())
		}
	}
}

func (c *Conn) onFoundSources(payload []byte) error {
	fs, err := DecodeFoundSources(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.pendingReqs, fs.Hash)
	for i, h := range c.sourceQueue {
		if h == fs.Hash {
			c.sourceQueue = append(c.sourceQueue[:i], c.sourceQueue[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.host.OnSources(fs.Hash, fs.Sources)
	return nil
}

// RequestCallback asks the active server to ask ep to connect to us,
// forwarding to host so the caller (typically edonkey/peer.Session via
// its own Host.RequestCallback) can complete the low-id connect flow
// (spec.md §4.I step 1: "if we are low-id too, give up; otherwise ask the
// server for a callback").
func (c *Conn) RequestCallback(ep addr.Endpoint, hash wire.Hash) error {
	if !c.Connected() {
		return fmt.Errorf("server: no active connection to request callback through")
	}
	var w wire.Writer
	w.U32(ep.Uint32())
	w.HashVal(hash)
	if err := c.sendFrame(OpReqCallback, w.Bytes()); err != nil {
		return err
	}
	return c.host.OnCallbackRequested(ep, hash)
}
