// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Package gateway contains the client-side contract of the decryption
// oracle: request submission, the plaintext bundle wire format and
// verification of the oracle's decryption proofs.
package gateway

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"strconv"

	"github.com/hdevalence/ed25519consensus"
	"github.com/near/borsh-go"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidProof    = errors.New("gateway: invalid decryption proof")
	ErrMalformedBundle = errors.New("gateway: malformed plaintext bundle")
	ErrUnknownRequest  = errors.New("gateway: unknown request")
	ErrNoSigners       = errors.New("gateway: no oracle signers configured")
)

// RequestID is assigned by the oracle network. Zero is never issued.
type RequestID uint64

func (id RequestID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Oracle is the decryption network client.
type Oracle interface {
	// Asks the oracle to decrypt (level, category, severity) handles.
	RequestDecryption(handles [3][]byte) (RequestID, error)
}

// Verifier authenticates oracle callbacks.
type Verifier interface {
	Verify(id RequestID, bundle, proof []byte) error
	VerifyFailure(id RequestID, proof []byte) error
}

// Bundle is the decrypted plaintext delivered with a successful callback.
type Bundle struct {
	Level    uint64
	Category uint64
	Severity uint64
}

const bundleSize = 24

func EncodeBundle(b Bundle) ([]byte, error) {
	return borsh.Serialize(b)
}

func DecodeBundle(buf []byte) (Bundle, error) {
	var b Bundle
	if len(buf) != bundleSize {
		return b, ErrMalformedBundle
	}
	if err := borsh.Deserialize(&b, buf); err != nil {
		return b, ErrMalformedBundle
	}
	return b, nil
}

const (
	statusOK     byte = 1
	statusFailed byte = 2
)

var digestDomain = []byte("envmon/gateway/v1")

// Digest is the message oracle signers sign for a callback.
func Digest(id RequestID, failed bool, bundle []byte) [32]byte {
	buf := make([]byte, 0, len(digestDomain)+9+len(bundle))
	buf = append(buf, digestDomain...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(id))
	if failed {
		buf = append(buf, statusFailed)
	} else {
		buf = append(buf, statusOK)
	}
	buf = append(buf, bundle...)
	return blake2b.Sum256(buf)
}

// SignerSet accepts a proof produced by any of its oracle keys.
type SignerSet struct {
	keys []ed25519.PublicKey
}

var _ Verifier = (*SignerSet)(nil)

func NewSignerSet(keys ...ed25519.PublicKey) *SignerSet {
	return &SignerSet{keys: keys}
}

func (s *SignerSet) Verify(id RequestID, bundle, proof []byte) error {
	return s.verify(Digest(id, false, bundle), proof)
}

func (s *SignerSet) VerifyFailure(id RequestID, proof []byte) error {
	return s.verify(Digest(id, true, nil), proof)
}

func (s *SignerSet) verify(digest [32]byte, proof []byte) error {
	if len(s.keys) == 0 {
		return ErrNoSigners
	}
	if len(proof) != ed25519.SignatureSize {
		return ErrInvalidProof
	}
	for _, k := range s.keys {
		if ed25519consensus.Verify(k, digest[:], proof) {
			return nil
		}
	}
	return ErrInvalidProof
}

// Sign produces the proof for a successful callback.
func Sign(key ed25519.PrivateKey, id RequestID, bundle []byte) []byte {
	d := Digest(id, false, bundle)
	return ed25519.Sign(key, d[:])
}

// SignFailure produces the proof for a failure callback.
func SignFailure(key ed25519.PrivateKey, id RequestID) []byte {
	d := Digest(id, true, nil)
	return ed25519.Sign(key, d[:])
}
