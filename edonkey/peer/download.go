package peer

import (
	"errors"
	"fmt"
	"time"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/edonkey/proto"
	"github.com/hydranode/hydranode/sched"
)

// establishConnection implements spec.md §4.I step 1 of the source
// direction: decide whether to dial directly, request a server callback,
// or give up, based on the low-id combination of both sides.
func (s *Session) establishConnection(hash [16]byte) {
	s.mu.Lock()
	peerLowID := s.lowID
	weAreHighID := !addr.IsLowID(s.id)
	s.mu.Unlock()

	switch {
	case peerLowID && weAreHighID:
		s.dialDirect()
	case peerLowID && !weAreHighID:
		s.Destroy(errors.New("both sides low-id, cannot connect"))
	default:
		if err := s.requestCallbackWithTimeout(hash); err != nil {
			s.Destroy(fmt.Errorf("callback request failed: %w", err))
		}
	}
}

func (s *Session) dialDirect() {
	s.mu.Lock()
	s.connState = ConnConnecting
	s.mu.Unlock()
	s.host.Dial(s.endpoint, func(sock *sched.Socket, err error) {
		if err != nil {
			s.Destroy(fmt.Errorf("dial failed: %w", err))
			return
		}
		s.onConnected(sock)
	})
}

func (s *Session) requestCallbackWithTimeout(hash [16]byte) error {
	if err := s.host.RequestCallback(s.endpoint, hash); err != nil {
		return err
	}
	s.mu.Lock()
	s.connState = ConnConnecting
	s.mu.Unlock()
	go s.callbackTimeoutWatchdog()
	return nil
}

func (s *Session) callbackTimeoutWatchdog() {
	select {
	case <-time.After(CallbackTimeout):
		s.mu.Lock()
		stillWaiting := s.connState == ConnConnecting
		s.mu.Unlock()
		if stillWaiting {
			s.Destroy(errors.New("callback timeout"))
		}
	case <-s.closed.Done():
	}
}

// onConnected transitions the session into handshaking once a socket is
// available, whether from a direct dial or an accepted callback.
func (s *Session) onConnected(sock *sched.Socket) {
	s.mu.Lock()
	s.sock = sock
	s.connState = ConnHandshaking
	s.mu.Unlock()
}

// AttachAccepted is onConnected's exported counterpart for the inbound
// direction: a daemon's TCP accept loop calls this once it has matched an
// accepted connection's remote address back to this Session, since that
// match happens outside the peer package (it needs net.Conn.RemoteAddr,
// which peer deliberately has no dependency on).
func (s *Session) AttachAccepted(sock *sched.Socket) {
	s.onConnected(sock)
}

// reqDownload implements spec.md §4.I step 2: ReqFile -> FileName ->
// SetReqFileId -> FileStatus -> (maybe) StartUploadReq.
func (s *Session) reqDownload(hash [16]byte) error {
	rf := proto.ReqFile{Hash: hash}
	return s.sendFrame(proto.OpReqFile, rf.Encode())
}

// onFileName answers a peer's FileName with SetReqFileId.
func (s *Session) onFileName(payload []byte) error {
	fn, err := proto.DecodeFileName(payload)
	if err != nil {
		return fmt.Errorf("peer: FileName: %w", err)
	}
	req := proto.SetReqFileId{Hash: fn.Hash}
	return s.sendFrame(proto.OpSetReqFileId, req.Encode())
}

// onFileStatus implements the StartUploadReq trigger: if the peer has
// any part we need, request upload.
func (s *Session) onFileStatus(payload []byte) error {
	fs, err := proto.DecodeFileStatus(payload)
	if err != nil {
		return fmt.Errorf("peer: FileStatus: %w", err)
	}
	dl, ok := s.host.LookupDownload(fs.Hash)
	if !ok {
		return nil
	}
	if fs.WholeFile || partMapHasNeededPart(fs.PartMap.Bits, dl.PartStatus()) {
		req := proto.StartUploadReq{HasHash: true, Hash: fs.Hash}
		if err := s.sendFrame(proto.OpStartUploadReq, req.Encode()); err != nil {
			return err
		}
		s.mu.Lock()
		s.queue = &QueueInfo{Hash: fs.Hash, NextReaskFireAt: nowHook().Add(SourceReaskTime)}
		s.mu.Unlock()
	}
	return nil
}

func partMapHasNeededPart(theirs, ours []bool) bool {
	for i, have := range theirs {
		if have && (i >= len(ours) || !ours[i]) {
			return true
		}
	}
	return false
}

// onQueueRanking implements spec.md §4.I step 3: record remote QR, reset
// any active DownloadInfo (we were preempted), and schedule next reask.
func (s *Session) onQueueRanking(rank uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return
	}
	s.queue.RemoteQR = int32(rank)
	s.queue.NextReaskFireAt = nowHook().Add(SourceReaskTime)
	s.download = nil
}

// onAcceptUploadReq implements step 4: create DownloadInfo, pick chunk
// requests via the PartData range selection the Host exposes, and send
// ReqChunks.
func (s *Session) onAcceptUploadReq() error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return errors.New("peer: AcceptUploadReq with no pending QueueInfo")
	}
	dl, ok := s.host.LookupDownload(q.Hash)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.download = &DownloadInfo{Hash: q.Hash, target: dl, lastChunk: nowHook(), queuedAtID: s.id}
	s.queue = nil
	s.mu.Unlock()

	return s.sendNextChunk()
}

// sendNextChunk requests up to 3 fresh ranges from the target PartData
// and sends ReqChunks, converting the inclusive internal ranges to the
// wire's exclusive-end form (spec.md §4.I step 4's "non-rotational
// scheme: when a chunk completes, send only the newly-needed range").
func (s *Session) sendNextChunk() error {
	s.mu.Lock()
	di := s.download
	s.mu.Unlock()
	if di == nil {
		return nil
	}

	var rq proto.ReqChunks
	rq.Hash = di.Hash
	n := 0
	for i := 0; i < 3 && n < 3; i++ {
		begin, end, ok := s.nextNeededRange(di)
		if !ok {
			break
		}
		rq.Begins[n] = uint32(begin)
		rq.Ends[n] = uint32(end)
		n++
	}
	if n == 0 {
		return nil
	}
	// Unused slots stay (0,0) per spec.md §6, already the struct's zero value.
	for i := n; i < 3; i++ {
		rq.Begins[i], rq.Ends[i] = 0, 0
	}
	return s.sendFrame(proto.OpReqChunks, rq.Encode())
}

// nextNeededRange is a placeholder seam for the PartData-backed range
// selection a full Download implementation supplies; the interface-level
// Download contract in session.go intentionally stops at WriteChunk, so
// concrete range picking lives in whatever adapts partdata.PartData to
// this interface.
func (s *Session) nextNeededRange(di *DownloadInfo) (begin, end uint64, ok bool) {
	return 0, 0, false
}

// onDataChunk implements step 5 for unpacked transfers: write into
// DownloadInfo's target, credit the peer, and request follow-up chunks
// once a requested range completes.
func (s *Session) onDataChunk(payload []byte, userHash [16]byte) error {
	dc, err := proto.DecodeDataChunk(payload)
	if err != nil {
		return fmt.Errorf("peer: DataChunk: %w", err)
	}
	s.mu.Lock()
	di := s.download
	s.mu.Unlock()
	if di == nil || di.Hash != dc.Hash {
		return nil
	}
	if err := di.target.WriteChunk(uint64(dc.Begin), dc.Data); err != nil {
		return fmt.Errorf("peer: write chunk: %w", err)
	}
	s.credits.AddDownloaded(userHash, uint64(len(dc.Data)))
	s.mu.Lock()
	di.lastChunk = nowHook()
	s.mu.Unlock()
	return s.sendNextChunk()
}

// onPackedChunk implements step 5 for compressed transfers, reassembling
// the run via PackedStream before writing (spec.md §9's redesign flag).
func (s *Session) onPackedChunk(payload []byte, userHash [16]byte, stream *proto.PackedStream) (*proto.PackedStream, error) {
	pc, err := proto.DecodePackedChunk(payload)
	if err != nil {
		return stream, fmt.Errorf("peer: PackedChunk: %w", err)
	}
	if stream == nil {
		stream = proto.NewPackedStream(pc.Begin)
	}
	data, err := stream.Accept(pc)
	if err != nil {
		return nil, fmt.Errorf("peer: PackedStream: %w", err)
	}

	s.mu.Lock()
	di := s.download
	s.mu.Unlock()
	if di == nil || di.Hash != pc.Hash {
		return stream, nil
	}
	if err := di.target.WriteChunk(uint64(pc.Begin), data); err != nil {
		return stream, fmt.Errorf("peer: write chunk: %w", err)
	}
	s.credits.AddDownloaded(userHash, uint64(len(data)))
	return stream, nil
}

// onNoFile implements step 6: remove the offered file; destroy if none
// remain.
func (s *Session) onNoFile(payload []byte) error {
	nf, err := proto.DecodeNoFile(payload)
	if err != nil {
		return fmt.Errorf("peer: NoFile: %w", err)
	}
	s.remOffered(nf.Hash, true)
	return nil
}

var nowHook = time.Now
