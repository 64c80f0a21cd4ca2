package server

import (
	"encoding/binary"
	"fmt"
	"net"

	"go.etcd.io/bbolt"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/wire"
)

// server.met tag opcodes (spec.md §6 "server.met tag table"), reused as
// bucket-value field markers rather than ed2k tag-list bytes: each
// server's record is a small tag-list blob under its endpoint key, so a
// future format revision can add fields without a schema migration.
const (
	metTagName        = 0x01
	metTagDescription = 0x0b
	metTagPing        = 0x0c
	metTagFailCount   = 0x0d
	metTagPreference  = 0x0e
	metTagMaxUsers    = 0x87
	metTagSoftLimit   = 0x88
	metTagHardLimit   = 0x89
	metTagLastPing    = 0x90
	metTagVersion     = 0x91
	metTagUDPFlags    = 0x92
	metTagAuxPorts    = 0x93
	metTagLowIDUsers  = 0x94
)

var serversBucket = []byte("servers")

// Store persists a ServerList to a bbolt-backed server.met file, the
// generalization of partdata's own bbolt-sidecar persistence discipline
// applied to the server list instead of per-download part state.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (creating if absent) the bbolt database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("server: open server.met: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(serversBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: init server.met: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (st *Store) Close() error { return st.db.Close() }

// Save persists every server in list, keyed by its endpoint.
func (st *Store) Save(list *ServerList) error {
	list.mu.Lock()
	eps := make([]addr.Endpoint, 0, len(list.servers))
	servers := make([]*Server, 0, len(list.servers))
	for ep, s := range list.servers {
		eps = append(eps, ep)
		servers = append(servers, s)
	}
	list.mu.Unlock()

	return st.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(serversBucket)
		for i, s := range servers {
			key := endpointKey(eps[i])
			if err := b.Put(key, encodeServerRecord(s)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadInto populates list with every server persisted in the store.
func (st *Store) LoadInto(list *ServerList) error {
	return st.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(serversBucket)
		return b.ForEach(func(k, v []byte) error {
			ep, err := decodeEndpointKey(k)
			if err != nil {
				return err
			}
			s, err := decodeServerRecord(ep, v)
			if err != nil {
				return err
			}
			list.Add(s)
			return nil
		})
	})
}

func endpointKey(ep addr.Endpoint) []byte {
	key := make([]byte, 6)
	copy(key[:4], ep.IP[:])
	binary.BigEndian.PutUint16(key[4:], ep.Port)
	return key
}

func decodeEndpointKey(k []byte) (addr.Endpoint, error) {
	if len(k) != 6 {
		return addr.Endpoint{}, fmt.Errorf("server: malformed server.met key length %d", len(k))
	}
	return addr.NewEndpoint(net.IPv4(k[0], k[1], k[2], k[3]), binary.BigEndian.Uint16(k[4:]))
}

func encodeServerRecord(s *Server) []byte {
	var w wire.Writer
	tags := []wire.Tag{
		{Opcode: metTagName, Type: wire.TagStr, S: s.Name},
		{Opcode: metTagDescription, Type: wire.TagStr, S: s.Description},
	}
	stats := s.Stats()
	tags = append(tags,
		wire.Tag{Opcode: metTagFailCount, Type: wire.TagU32, U: uint32(stats.ConsecutiveFail)},
		wire.Tag{Opcode: metTagPing, Type: wire.TagU32, U: uint32(stats.Ping.Milliseconds())},
	)
	if stats.StaticIP {
		tags = append(tags, wire.Tag{Opcode: metTagPreference, Type: wire.TagU8, U: 1})
	}
	wire.WriteTagList(&w, tags)
	return w.Bytes()
}

func decodeServerRecord(ep addr.Endpoint, data []byte) (*Server, error) {
	r := wire.NewReader(data)
	tags, err := wire.ReadTagList(r)
	if err != nil {
		return nil, err
	}
	s := &Server{Endpoint: ep}
	for _, t := range tags {
		switch t.Opcode {
		case metTagName:
			s.Name = t.S
		case metTagDescription:
			s.Description = t.S
		case metTagPreference:
			s.StaticIP = t.U != 0
		}
	}
	return s, nil
}
