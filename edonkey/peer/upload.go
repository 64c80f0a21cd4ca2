package peer

import (
	"fmt"

	"github.com/hydranode/hydranode/edonkey/proto"
	"github.com/hydranode/hydranode/wire"
)

// maxUploadPacket bounds a single DataChunk frame's payload, per spec.md
// §4.I step 3: "stream data in <= 10 KiB packets per chunk".
const maxUploadPacket = 10 * 1024

// onReqFile implements the upload direction's step 1: if we share the
// file, reply FileName; also passively adds the peer as a source if the
// file is partial and we didn't already know them.
func (s *Session) onReqFile(payload []byte) error {
	rf, err := proto.DecodeReqFile(payload)
	if err != nil {
		return fmt.Errorf("peer: ReqFile: %w", err)
	}
	shared, ok := s.host.LookupShared(rf.Hash)
	if !ok {
		nf := proto.NoFile{Hash: rf.Hash}
		return s.sendFrame(proto.OpNoFile, nf.Encode())
	}
	if !allTrue(shared.PartStatus()) {
		s.addOffered(rf.Hash, false)
	}
	fn := proto.FileName{Hash: rf.Hash, Name: shared.Name()}
	return s.sendFrame(proto.OpFileName, fn.Encode())
}

// onSetReqFileId answers with FileStatus once the peer confirms which
// file it meant (spec.md §4.I upload step 1).
func (s *Session) onSetReqFileId(payload []byte) error {
	req, err := proto.DecodeSetReqFileId(payload)
	if err != nil {
		return fmt.Errorf("peer: SetReqFileId: %w", err)
	}
	shared, ok := s.host.LookupShared(req.Hash)
	if !ok {
		return nil
	}
	bits := shared.PartStatus()
	whole := allTrue(bits)
	fs := proto.FileStatus{Hash: req.Hash, WholeFile: whole}
	if !whole {
		fs.PartMap = proto.NewPartMap(bits)
	}
	return s.sendFrame(proto.OpFileStatus, fs.Encode())
}

func allTrue(bits []bool) bool {
	for _, b := range bits {
		if !b {
			return false
		}
	}
	return len(bits) > 0
}

// onStartUploadReq implements upload step 2: create QueueInfo; idempotent
// if already uploading. The request is only recorded on the session;
// nothing is posted to the owner, which promotes the peer via Promote.
func (s *Session) onStartUploadReq(payload []byte) error {
	req, err := proto.DecodeStartUploadReq(payload)
	if err != nil {
		return fmt.Errorf("peer: StartUploadReq: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upload != nil {
		return nil // already uploading, ignore per spec.md §4.I upload step 2
	}
	var hash [16]byte
	if req.HasHash {
		hash = req.Hash
	} else if s.queue != nil {
		hash = s.queue.Hash
	}
	s.queue = &QueueInfo{Hash: hash}
	return nil
}

// Promote implements upload step 3: send AcceptUploadReq and mark the
// session ready to receive ReqChunks. Called by the upload manager once
// this session's QueueInfo is promoted to an active slot.
func (s *Session) Promote(shared Shared, compress bool) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return fmt.Errorf("peer: Promote called with no pending QueueInfo")
	}

	s.mu.Lock()
	s.upload = &UploadInfo{Hash: q.Hash, shared: shared, compress: compress}
	s.queue = nil
	s.mu.Unlock()

	return s.sendFrame(proto.OpAcceptUploadReq, proto.AcceptUploadReq{}.Encode())
}

// onReqChunks streams the requested ranges in <=10KiB packets, in the
// order requested, optionally as PackedChunk frames when the peer
// negotiated compression.
func (s *Session) onReqChunks(payload []byte) error {
	rq, err := proto.DecodeReqChunks(payload)
	if err != nil {
		return fmt.Errorf("peer: ReqChunks: %w", err)
	}
	s.mu.Lock()
	ui := s.upload
	s.mu.Unlock()
	if ui == nil || ui.Hash != rq.Hash {
		return nil
	}

	for i := 0; i < 3; i++ {
		if rq.Begins[i] == 0 && rq.Ends[i] == 0 {
			continue
		}
		if err := s.streamRange(ui, uint64(rq.Begins[i]), uint64(rq.Ends[i])); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) streamRange(ui *UploadInfo, begin, end uint64) error {
	for begin <= end {
		packetEnd := begin + maxUploadPacket - 1
		if packetEnd > end {
			packetEnd = end
		}
		data, err := ui.shared.ReadChunk(begin, packetEnd)
		if err != nil {
			return fmt.Errorf("peer: read chunk: %w", err)
		}

		if ui.compress {
			if err := s.sendPacked(ui, begin, data); err != nil {
				return err
			}
		} else {
			dc := proto.DataChunk{Hash: ui.Hash, Begin: uint32(begin), End: uint32(packetEnd), Data: data}
			if err := s.sendFrame(proto.OpDataChunk, dc.Encode()); err != nil {
				return err
			}
		}

		s.mu.Lock()
		ui.sentBytes += uint64(len(data))
		s.mu.Unlock()

		if packetEnd == end {
			break
		}
		begin = packetEnd + 1
	}
	return nil
}

// sendPacked compresses data (one <=10KiB packet) on its own and emits it
// as a single PackedChunk frame whose Length is that packet's
// decompressed size. A requested range is not compressed as a whole and
// split across frames: every frame is an independent zlib stream.
func (s *Session) sendPacked(ui *UploadInfo, begin uint64, data []byte) error {
	packed, err := wire.ZlibWrap(data)
	if err != nil {
		return fmt.Errorf("peer: zlib wrap: %w", err)
	}
	pc := proto.PackedChunk{Hash: ui.Hash, Begin: uint32(begin), Length: uint32(len(data)), Packed: packed}
	return s.sendFrame(proto.OpPackedChunk, pc.Encode())
}

// onUDPQueuePing answers a UDP queue ping from an unknown peer (upload
// step 4): ReaskAck if we know the file and are tracking it passively,
// FileNotFound if we don't, QueueFull if our queue has no room.
func (s *Session) onUDPQueuePing(hash [16]byte, queueFull bool) (proto.UDPOpcode, []byte) {
	shared, ok := s.host.LookupShared(hash)
	if !ok {
		return proto.OpFileNotFound, proto.FileNotFound{}.Encode()
	}
	if queueFull {
		return proto.OpQueueFull, proto.QueueFull{}.Encode()
	}
	bits := shared.PartStatus()
	ack := proto.ReaskAck{QueueRank: 0, PartMap: proto.NewPartMap(bits)}
	return proto.OpReaskAck, ack.Encode()
}

// onCancelTransfer implements upload step 5: drop UploadInfo/QueueInfo.
func (s *Session) onCancelTransfer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upload = nil
	s.queue = nil
}
