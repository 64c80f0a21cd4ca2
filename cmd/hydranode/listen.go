package main

import (
	"fmt"
	"net"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/sched"
)

// listenAcceptHandler answers EventAccept notifications for the shared
// listening socket; onAccepted (the real per-connection work) runs from
// AcceptRequest's onAccept hook instead, so this only needs to log.
type listenAcceptHandler struct {
	logger log.Logger
}

func (h listenAcceptHandler) OnSocketEvent(e sched.Event, data []byte, err error) {
	if e == sched.EventErr {
		h.logger.Levelf(log.Debug, "hydranode: accept error: %v", err)
	}
}

// startListening opens the TCP listen port and UDP socket and submits a
// standing AcceptRequest so the scheduler services incoming connections
// the same way it services outbound ones (sched/iorequest.go's
// UploadRequest/DownloadRequest).
func (d *Daemon) startListening() error {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", d.cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("hydranode: listen tcp: %w", err)
	}
	d.ln = ln

	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(d.cfg.ListenPort)})
	if err != nil {
		ln.Close()
		return fmt.Errorf("hydranode: listen udp: %w", err)
	}
	d.udpConn = udpConn

	id := sched.SocketID(0)
	acceptReq := sched.NewAcceptRequest(id, ln, listenAcceptHandler{d.logger}, d.onAccepted)
	d.backend.Submit(acceptReq)

	go d.udpReadLoop()
	return nil
}

// udpReadLoop reads datagrams off the listen UDP socket until it's
// closed, handing each off to onUDPDatagram. Kept as its own goroutine
// rather than scheduler-driven since a connectionless socket has no
// backpressure/queueing concept for the scheduler's budget to arbitrate.
func (d *Daemon) udpReadLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, from, err := d.udpConn.ReadFrom(buf)
		if err != nil {
			return
		}
		udpAddr, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		ep, err := addr.NewEndpoint(udpAddr.IP, uint16(udpAddr.Port))
		if err != nil {
			continue
		}
		frame := append([]byte(nil), buf[:n]...)
		d.onUDPDatagram(ep, frame)
	}
}

// Close tears down the listening sockets; in-flight sessions are left to
// their own idle/timeout destruction.
func (d *Daemon) Close() error {
	if d.ln != nil {
		d.ln.Close()
	}
	if d.udpConn != nil {
		d.udpConn.Close()
	}
	if d.metStore != nil {
		d.metStore.Close()
	}
	return nil
}
