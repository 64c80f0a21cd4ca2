package sched

// UploadRequest is a standing KindUpload Request pumping one Socket's
// queued outbox: submitted once per socket and kept in the backend's
// upload queue for the socket's whole lifetime (it stays valid, so Tick
// re-queues it every pass) rather than being a one-shot request like
// ConnectRequest/AcceptRequest.
type UploadRequest struct {
	Base
	sock *Socket
}

// NewUploadRequest builds a standing upload pump for sock, scored by score
// and debited against the shared budget iff limited.
func NewUploadRequest(sock *Socket, score float32, limited bool) *UploadRequest {
	return &UploadRequest{Base: NewBase(KindUpload, sock.ID(), score, limited), sock: sock}
}

func (r *UploadRequest) DoSend(quota int) (int, error) { return r.sock.DoSend(quota) }
func (r *UploadRequest) DoRecv(int) (int, error)       { return 0, nil }
func (r *UploadRequest) DoConn() (ConnEffect, error)   { return 0, nil }

// DownloadRequest is the download-side counterpart of UploadRequest,
// pumping one Socket's DoRecv every tick.
type DownloadRequest struct {
	Base
	sock *Socket
}

// NewDownloadRequest builds a standing download pump for sock.
func NewDownloadRequest(sock *Socket, score float32, limited bool) *DownloadRequest {
	return &DownloadRequest{Base: NewBase(KindDownload, sock.ID(), score, limited), sock: sock}
}

func (r *DownloadRequest) DoSend(int) (int, error)       { return 0, nil }
func (r *DownloadRequest) DoRecv(quota int) (int, error) { return r.sock.DoRecv(quota) }
func (r *DownloadRequest) DoConn() (ConnEffect, error)   { return 0, nil }
