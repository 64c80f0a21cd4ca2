package sched

import (
	"net"
	"testing"
	"time"

	"github.com/anacrolix/log"
)

type recordingHandler struct {
	events []Event
	data   [][]byte
}

func (h *recordingHandler) OnSocketEvent(e Event, data []byte, err error) {
	h.events = append(h.events, e)
	if data != nil {
		cp := append([]byte(nil), data...)
		h.data = append(h.data, cp)
	}
}

func TestUploadRequestPumpsQueuedBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	h := &recordingHandler{}
	sock := NewSocket(1, client, h, log.Default)
	sock.Queue([]byte("hello"))

	req := NewUploadRequest(sock, 1.0, false)
	if req.Kind() != KindUpload {
		t.Fatalf("expected KindUpload, got %v", req.Kind())
	}

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 5)
		n, _ := server.Read(buf)
		if string(buf[:n]) != "hello" {
			t.Errorf("server read %q, want hello", buf[:n])
		}
		close(done)
	}()

	if _, err := req.DoSend(16); err != nil {
		t.Fatalf("DoSend: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pipe read")
	}
}

func TestDownloadRequestDeliversReadEvent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	h := &recordingHandler{}
	sock := NewSocket(1, client, h, log.Default)
	req := NewDownloadRequest(sock, 1.0, false)
	if req.Kind() != KindDownload {
		t.Fatalf("expected KindDownload, got %v", req.Kind())
	}

	go server.Write([]byte("hi"))

	n, err := req.DoRecv(16)
	if err != nil {
		t.Fatalf("DoRecv: %v", err)
	}
	if n != 2 {
		t.Fatalf("DoRecv n = %d, want 2", n)
	}
	if len(h.data) != 1 || string(h.data[0]) != "hi" {
		t.Fatalf("unexpected handler data: %v", h.data)
	}
}
