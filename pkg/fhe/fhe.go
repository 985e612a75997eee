// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Package fhe defines the narrow capability the monitoring contract needs
// from a confidential computation library. Values are opaque handles; only
// the gateway oracle can turn them back into plaintext.
package fhe

import (
	"encoding/base64"
	"errors"
)

var (
	ErrInvalidProof  = errors.New("fhe: invalid input proof")
	ErrInvalidHandle = errors.New("fhe: malformed ciphertext handle")
)

// Capability imports externally encrypted inputs and computes on them
// without revealing plaintext.
type Capability interface {
	// Import checks the input proof and wraps an external handle.
	Import(handle, proof []byte) (Value, error)

	// CompareGE returns an encrypted a >= b.
	CompareGE(a, b Value) (Bool, error)
}

// Value is an encrypted unsigned integer.
type Value struct {
	h []byte
}

func ValueOf(handle []byte) Value {
	return Value{h: clone(handle)}
}

func (v Value) Handle() []byte {
	return clone(v.h)
}

func (v Value) IsZero() bool {
	return len(v.h) == 0
}

func (v Value) MarshalText() ([]byte, error) {
	return encodeText(v.h), nil
}

func (v *Value) UnmarshalText(buf []byte) (err error) {
	v.h, err = decodeText(buf)
	return
}

// Bool is an encrypted boolean.
type Bool struct {
	h []byte
}

func (b Bool) Handle() []byte {
	return clone(b.h)
}

func (b Bool) MarshalText() ([]byte, error) {
	return encodeText(b.h), nil
}

func (b *Bool) UnmarshalText(buf []byte) (err error) {
	b.h, err = decodeText(buf)
	return
}

func encodeText(h []byte) []byte {
	buf := make([]byte, base64.StdEncoding.EncodedLen(len(h)))
	base64.StdEncoding.Encode(buf, h)
	return buf
}

func decodeText(buf []byte) ([]byte, error) {
	h := make([]byte, base64.StdEncoding.DecodedLen(len(buf)))
	n, err := base64.StdEncoding.Decode(h, buf)
	if err != nil {
		return nil, ErrInvalidHandle
	}
	return h[:n], nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
