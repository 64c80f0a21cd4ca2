package peer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/binary"
	"fmt"

	"github.com/hydranode/hydranode/edonkey/proto"
)

// challengeMessage builds the byte sequence a Signature is computed over:
// the challenge value bound to an IP (spec.md §4.I: "computed over the
// challenge bound to an ip (remote or local depending on protocol
// version)").
func challengeMessage(challenge uint32, ip [4]byte) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], challenge)
	copy(buf[4:8], ip[:])
	return buf[:]
}

// issueSecIdentState sends SecIdentState to begin the credit/secure-id
// handshake with an ident-capable peer (spec.md §4.I "Credits & Secure
// Identification").
func (s *Session) issueSecIdentState(challenge uint32, needKey bool) error {
	state := byte(SecIdentSigNeeded)
	if needKey {
		state = SecIdentKeyAndSigNeeded
	}
	msg := proto.SecIdentState{State: state, Challenge: challenge}
	return s.sendFrame(proto.OpSecIdentState, msg.Encode())
}

// onSecIdentState answers a peer's challenge: sends PublicKey first if
// asked, then Signature.
func (s *Session) onSecIdentState(payload []byte, ourKey *rsa.PrivateKey, ourIP [4]byte) error {
	req, err := proto.DecodeSecIdentState(payload)
	if err != nil {
		return fmt.Errorf("peer: SecIdentState: %w", err)
	}
	if req.State == SecIdentKeyAndSigNeeded {
		pk := proto.PublicKey{Key: x509.MarshalPKCS1PublicKey(&ourKey.PublicKey)}
		if err := s.sendFrame(proto.OpPublicKey, pk.Encode()); err != nil {
			return err
		}
	}
	sig, err := signChallenge(ourKey, req.Challenge, ourIP)
	if err != nil {
		return fmt.Errorf("peer: sign challenge: %w", err)
	}
	msg := proto.Signature{Sig: sig}
	return s.sendFrame(proto.OpSignature, msg.Encode())
}

func signChallenge(key *rsa.PrivateKey, challenge uint32, ip [4]byte) ([]byte, error) {
	digest := sha1.Sum(challengeMessage(challenge, ip))
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, digest[:])
}

// onPublicKey caches a peer's public key pending signature verification.
func (s *Session) onPublicKey(payload []byte, userHash [16]byte) error {
	pk, err := proto.DecodePublicKey(payload)
	if err != nil {
		return fmt.Errorf("peer: PublicKey: %w", err)
	}
	key, err := x509.ParsePKCS1PublicKey(pk.Key)
	if err != nil {
		return fmt.Errorf("peer: invalid public key: %w", err)
	}
	s.credits.Bind(userHash, key)
	return nil
}

// onSignature verifies a peer's Signature against its cached public key
// and our previously issued challenge; on success the credit record
// stays bound, on failure it's cleared (spec.md §4.I: "Verification uses
// the cached key: on success the peer's credit record is bound; on
// failure credits are cleared").
func (s *Session) onSignature(payload []byte, userHash [16]byte, challenge uint32, peerIP [4]byte) error {
	sig, err := proto.DecodeSignature(payload)
	if err != nil {
		return fmt.Errorf("peer: Signature: %w", err)
	}
	key, ok := s.credits.Key(userHash)
	if !ok {
		s.credits.Clear(userHash)
		return fmt.Errorf("peer: signature received with no cached public key")
	}
	digest := sha1.Sum(challengeMessage(challenge, peerIP))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA1, digest[:], sig.Sig); err != nil {
		s.credits.Clear(userHash)
		return fmt.Errorf("peer: signature verification failed: %w", err)
	}
	s.credits.Bind(userHash, key)
	return nil
}
