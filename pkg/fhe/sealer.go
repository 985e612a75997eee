// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package fhe

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = chacha20poly1305.KeySize
	ProofSize = blake2b.Size256
)

// Sealer is a development stand-in for a real FHE library. Ciphertexts are
// XChaCha20-Poly1305 sealed integers and input proofs are keyed blake2b MACs
// over the handle. Anyone holding the keys can decrypt, so production
// deployments plug in a real library behind Capability instead.
type Sealer struct {
	aead     cipher.AEAD
	proofKey []byte
}

var _ Capability = (*Sealer)(nil)

func NewSealer(key, proofKey []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("fhe: sealing key: %w", err)
	}
	if len(proofKey) == 0 || len(proofKey) > blake2b.Size {
		return nil, fmt.Errorf("fhe: proof key must be 1..%d bytes", blake2b.Size)
	}
	return &Sealer{
		aead:     aead,
		proofKey: clone(proofKey),
	}, nil
}

// Encrypt produces an external handle and its input proof, as a client
// library would before submission.
func (s *Sealer) Encrypt(v uint64) ([]byte, []byte, error) {
	handle, err := s.seal(v)
	if err != nil {
		return nil, nil, err
	}
	proof, err := s.prove(handle)
	if err != nil {
		return nil, nil, err
	}
	return handle, proof, nil
}

func (s *Sealer) Import(handle, proof []byte) (Value, error) {
	if len(handle) != s.aead.NonceSize()+8+s.aead.Overhead() {
		return Value{}, ErrInvalidProof
	}
	expected, err := s.prove(handle)
	if err != nil {
		return Value{}, err
	}
	if subtle.ConstantTimeCompare(expected, proof) != 1 {
		return Value{}, ErrInvalidProof
	}
	return ValueOf(handle), nil
}

func (s *Sealer) CompareGE(a, b Value) (Bool, error) {
	x, err := s.Decrypt(a.h)
	if err != nil {
		return Bool{}, err
	}
	y, err := s.Decrypt(b.h)
	if err != nil {
		return Bool{}, err
	}
	var r uint64
	if x >= y {
		r = 1
	}
	h, err := s.seal(r)
	if err != nil {
		return Bool{}, err
	}
	return Bool{h: h}, nil
}

// Decrypt reveals a handle. Only the oracle side may call this.
func (s *Sealer) Decrypt(handle []byte) (uint64, error) {
	ns := s.aead.NonceSize()
	if len(handle) < ns+s.aead.Overhead() {
		return 0, ErrInvalidHandle
	}
	plain, err := s.aead.Open(nil, handle[:ns], handle[ns:], nil)
	if err != nil || len(plain) != 8 {
		return 0, ErrInvalidHandle
	}
	return binary.BigEndian.Uint64(plain), nil
}

func (s *Sealer) DecryptBool(b Bool) (bool, error) {
	v, err := s.Decrypt(b.h)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

func (s *Sealer) seal(v uint64) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+8+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], v)
	return s.aead.Seal(nonce, nonce, plain[:], nil), nil
}

func (s *Sealer) prove(handle []byte) ([]byte, error) {
	h, err := blake2b.New256(s.proofKey)
	if err != nil {
		return nil, err
	}
	h.Write(handle)
	return h.Sum(nil), nil
}
