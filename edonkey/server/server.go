package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/anacrolix/log"
	"github.com/rs/dnscache"

	"github.com/hydranode/hydranode/addr"
)

// Server is one known ed2k server, keyed by its dialable endpoint.
// Exactly one Server in a ServerList is ever the active connection; the
// rest are queried only over UDP (spec.md §4.J).
type Server struct {
	Endpoint    addr.Endpoint
	Name        string
	Description string
	StaticIP    bool // host was given by name/static address vs. learned dynamically

	mu              sync.Mutex
	users, files    uint32
	ping            time.Duration
	consecutiveFail int
	lastLoginAttempt time.Time
}

// Stats is a snapshot of a server's last-known status, extending the
// teacher-adjacent observability surface with the static/dynamic-IP flag
// `hncore/ed2k/serverlist.cpp` tracks (SPEC_FULL.md's supplemental
// features note).
type Stats struct {
	Users, Files    uint32
	Ping            time.Duration
	ConsecutiveFail int
	StaticIP        bool
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Users: s.users, Files: s.files, Ping: s.ping, ConsecutiveFail: s.consecutiveFail, StaticIP: s.StaticIP}
}

func (s *Server) recordStatus(users, files uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.files = users, files
	s.consecutiveFail = 0
}

func (s *Server) recordPingFailure() (dropNow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFail++
	return s.consecutiveFail >= PingFailuresBeforeDrop
}

func (s *Server) recordPingSuccess(rtt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ping = rtt
	s.consecutiveFail = 0
}

func (s *Server) readyForLoginAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastLoginAttempt) >= LoginRetryCooldown*time.Second
}

func (s *Server) recordLoginAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLoginAttempt = time.Now()
}

// ServerList holds every known server keyed by endpoint plus the single
// currently connected one, generalizing the teacher's dialer/retry
// bookkeeping (socket.go) from one peer connection to a whole list of
// interchangeable servers queried round-robin.
type ServerList struct {
	mu       sync.Mutex
	servers  map[addr.Endpoint]*Server
	order    []addr.Endpoint // round-robin cursor order
	cursor   int
	active   *Server
	resolver *dnscache.Resolver
	logger   log.Logger
}

// New builds an empty ServerList.
func New(logger log.Logger) *ServerList {
	return &ServerList{
		servers:  map[addr.Endpoint]*Server{},
		resolver: &dnscache.Resolver{},
		logger:   logger,
	}
}

// Add registers a server, replacing nothing if it's already known.
func (l *ServerList) Add(s *Server) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.servers[s.Endpoint]; exists {
		return
	}
	l.servers[s.Endpoint] = s
	l.order = append(l.order, s.Endpoint)
}

// Remove drops a server from the list, e.g. after PingFailuresBeforeDrop
// consecutive UDP ping timeouts (spec.md §4.J failure policy).
func (l *ServerList) Remove(ep addr.Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.servers, ep)
	for i, o := range l.order {
		if o == ep {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if l.active != nil && l.active.Endpoint == ep {
		l.active = nil
	}
}

// Get returns the known Server for ep, if any.
func (l *ServerList) Get(ep addr.Endpoint) (*Server, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.servers[ep]
	return s, ok
}

// Len reports how many servers are known.
func (l *ServerList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.servers)
}

// Active returns the currently connected server, if any.
func (l *ServerList) Active() (*Server, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active, l.active != nil
}

// SetActive marks s as the connected server.
func (l *ServerList) SetActive(s *Server) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = s
}

// NextForUDP returns the next server in round-robin order to query over
// UDP for stats/sources, skipping the active server (it's already
// queried over its live TCP connection).
func (l *ServerList) NextForUDP() (*Server, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.order) == 0 {
		return nil, false
	}
	for i := 0; i < len(l.order); i++ {
		ep := l.order[l.cursor]
		l.cursor = (l.cursor + 1) % len(l.order)
		s := l.servers[ep]
		if s == nil {
			continue
		}
		if l.active != nil && s.Endpoint == l.active.Endpoint {
			continue
		}
		return s, true
	}
	return nil, false
}

// ResolveHost resolves a server supplied by hostname in config, caching
// the result the way dnscache is meant to (spec.md's expanded I./J.
// section: "dnscache-backed hostname resolution for servers supplied by
// name").
func (l *ServerList) ResolveHost(ctx context.Context, host string, port uint16) (addr.Endpoint, error) {
	ips, err := l.resolver.LookupHost(ctx, host)
	if err != nil {
		return addr.Endpoint{}, fmt.Errorf("server: resolve %q: %w", host, err)
	}
	if len(ips) == 0 {
		return addr.Endpoint{}, fmt.Errorf("server: %q resolved to no addresses", host)
	}
	ip := net.ParseIP(ips[0])
	if ip == nil || ip.To4() == nil {
		return addr.Endpoint{}, fmt.Errorf("server: %q resolved to non-IPv4 address %q", host, ips[0])
	}
	return addr.NewEndpoint(ip, port)
}
