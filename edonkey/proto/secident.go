package proto

import "github.com/hydranode/hydranode/wire"

// SecIdentState is opcode 0x87: the challenge a peer sends asking us to
// sign Challenge; State says whether our public key must be sent too
// (spec.md §6).
type SecIdentState struct {
	State     byte
	Challenge uint32
}

func (f SecIdentState) Encode() []byte {
	var w wire.Writer
	w.U8(f.State)
	w.U32(f.Challenge)
	return w.Bytes()
}

func DecodeSecIdentState(payload []byte) (SecIdentState, error) {
	r := wire.NewReader(payload)
	state, err := r.U8()
	if err != nil {
		return SecIdentState{}, err
	}
	challenge, err := r.U32()
	if err != nil {
		return SecIdentState{}, err
	}
	return SecIdentState{State: state, Challenge: challenge}, nil
}

// PublicKey is opcode 0x85: a raw DER-encoded RSA public key blob.
type PublicKey struct {
	Key []byte
}

func (f PublicKey) Encode() []byte {
	var w wire.Writer
	w.U8(byte(len(f.Key)))
	w.Raw(f.Key)
	return w.Bytes()
}

func DecodePublicKey(payload []byte) (PublicKey, error) {
	r := wire.NewReader(payload)
	n, err := r.U8()
	if err != nil {
		return PublicKey{}, err
	}
	key, err := r.Raw(int(n))
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{Key: append([]byte(nil), key...)}, nil
}

// Signature is opcode 0x86: the signed challenge answering SecIdentState.
type Signature struct {
	Sig []byte
}

func (f Signature) Encode() []byte {
	var w wire.Writer
	w.U8(byte(len(f.Sig)))
	w.Raw(f.Sig)
	return w.Bytes()
}

func DecodeSignature(payload []byte) (Signature, error) {
	r := wire.NewReader(payload)
	n, err := r.U8()
	if err != nil {
		return Signature{}, err
	}
	sig, err := r.Raw(int(n))
	if err != nil {
		return Signature{}, err
	}
	return Signature{Sig: append([]byte(nil), sig...)}, nil
}

// Message is opcode 0x4e: a free-text chat message exchanged between
// peers.
type Message struct {
	Text string
}

func (f Message) Encode() []byte {
	var w wire.Writer
	w.Str(f.Text)
	return w.Bytes()
}

func DecodeMessage(payload []byte) (Message, error) {
	r := wire.NewReader(payload)
	text, err := r.Str()
	if err != nil {
		return Message{}, err
	}
	return Message{Text: text}, nil
}

// ChangeId is opcode 0x4d: the server's notice that a client's assigned
// user ID changed (e.g. after a high-ID/low-ID renegotiation).
type ChangeId struct {
	OldID uint32
	NewID uint32
}

func (f ChangeId) Encode() []byte {
	var w wire.Writer
	w.U32(f.OldID)
	w.U32(f.NewID)
	return w.Bytes()
}

func DecodeChangeId(payload []byte) (ChangeId, error) {
	r := wire.NewReader(payload)
	oldID, err := r.U32()
	if err != nil {
		return ChangeId{}, err
	}
	newID, err := r.U32()
	if err != nil {
		return ChangeId{}, err
	}
	return ChangeId{OldID: oldID, NewID: newID}, nil
}
