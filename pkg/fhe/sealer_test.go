// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package fhe

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T) *Sealer {
	s, err := NewSealer(bytes.Repeat([]byte{1}, KeySize), []byte("input-verifier"))
	require.NoError(t, err)
	return s
}

func TestSealerImport(t *testing.T) {
	s := newTestSealer(t)
	handle, proof, err := s.Encrypt(120)
	require.NoError(t, err)

	v, err := s.Import(handle, proof)
	require.NoError(t, err, "valid proof")
	assert.Equal(t, handle, v.Handle(), "handle is kept")

	n, err := s.Decrypt(v.Handle())
	require.NoError(t, err)
	assert.Equal(t, uint64(120), n, "roundtrip")

	bad := append([]byte{}, proof...)
	bad[0] ^= 0xff
	_, err = s.Import(handle, bad)
	assert.ErrorIs(t, err, ErrInvalidProof, "tampered proof")

	_, err = s.Import(handle[:10], proof)
	assert.ErrorIs(t, err, ErrInvalidProof, "short handle")
}

func TestSealerForeignProof(t *testing.T) {
	s := newTestSealer(t)
	other, err := NewSealer(bytes.Repeat([]byte{1}, KeySize), []byte("another-verifier"))
	require.NoError(t, err)
	handle, proof, err := other.Encrypt(7)
	require.NoError(t, err)
	_, err = s.Import(handle, proof)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestSealerCompare(t *testing.T) {
	s := newTestSealer(t)
	enc := func(v uint64) Value {
		h, p, err := s.Encrypt(v)
		require.NoError(t, err)
		val, err := s.Import(h, p)
		require.NoError(t, err)
		return val
	}
	for _, c := range []struct {
		a, b uint64
		ge   bool
	}{
		{10, 5, true},
		{5, 5, true},
		{4, 5, false},
	} {
		r, err := s.CompareGE(enc(c.a), enc(c.b))
		require.NoError(t, err)
		ge, err := s.DecryptBool(r)
		require.NoError(t, err)
		assert.Equal(t, c.ge, ge, "%d >= %d", c.a, c.b)
	}
}

func TestValueText(t *testing.T) {
	v := ValueOf([]byte{1, 2, 3})
	buf, err := json.Marshal(struct{ V Value }{v})
	require.NoError(t, err)
	var out struct{ V Value }
	require.NoError(t, json.Unmarshal(buf, &out))
	assert.Equal(t, v.Handle(), out.V.Handle())
	assert.True(t, Value{}.IsZero())
}

func TestNewSealerKeys(t *testing.T) {
	_, err := NewSealer([]byte("short"), []byte("p"))
	assert.Error(t, err, "bad sealing key")
	_, err = NewSealer(bytes.Repeat([]byte{1}, KeySize), nil)
	assert.Error(t, err, "empty proof key")
}
