package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// identity is this node's persisted client hash and secure-identification
// key pair, generated once and reused across restarts so returning peers
// keep recognizing us (spec.md §4.I's Credits/SecIdent binds a peer's
// trust record to our hash, which would otherwise reset every run).
type identity struct {
	hash [16]byte
	key  *rsa.PrivateKey
}

const identityKeyBits = 1024

// loadOrCreateIdentity reads dir/identity.pem, generating and persisting a
// fresh one if absent. The file holds the RSA key only; the 16-byte
// client hash is derived from the key's public modulus so a single file
// is the only state that needs to survive a restart.
func loadOrCreateIdentity(dir string) (identity, error) {
	path := filepath.Join(dir, "identity.pem")
	if data, err := os.ReadFile(path); err == nil {
		key, err := parseIdentityPEM(data)
		if err != nil {
			return identity{}, fmt.Errorf("hydranode: parse %s: %w", path, err)
		}
		return identity{hash: hashFromKey(key), key: key}, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, identityKeyBits)
	if err != nil {
		return identity{}, fmt.Errorf("hydranode: generate identity key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return identity{}, fmt.Errorf("hydranode: %w", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return identity{}, fmt.Errorf("hydranode: write %s: %w", path, err)
	}
	return identity{hash: hashFromKey(key), key: key}, nil
}

func parseIdentityPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// hashFromKey derives a stable 16-byte client hash from the key's public
// modulus, rather than a second independent random value, so the
// identity file is the sole source of truth for both fields.
func hashFromKey(key *rsa.PrivateKey) [16]byte {
	n := key.PublicKey.N.Bytes()
	var out [16]byte
	for i, b := range n {
		out[i%16] ^= b
	}
	return out
}
