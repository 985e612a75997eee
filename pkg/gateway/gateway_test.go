// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package gateway

import (
	"bytes"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/envmon/pkg/fhe"
)

func testKey(seed byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
}

func TestBundleCodec(t *testing.T) {
	buf, err := EncodeBundle(Bundle{Level: 120, Category: 1, Severity: 3})
	require.NoError(t, err)
	assert.Len(t, buf, bundleSize, "fixed size")

	b, err := DecodeBundle(buf)
	require.NoError(t, err)
	assert.Equal(t, Bundle{Level: 120, Category: 1, Severity: 3}, b)

	_, err = DecodeBundle(buf[:10])
	assert.ErrorIs(t, err, ErrMalformedBundle, "short bundle")
	_, err = DecodeBundle(append(buf, 0))
	assert.ErrorIs(t, err, ErrMalformedBundle, "trailing bytes")
}

func TestSignerSet(t *testing.T) {
	k1, k2 := testKey(1), testKey(2)
	set := NewSignerSet(k1.Public().(ed25519.PublicKey))
	bundle, _ := EncodeBundle(Bundle{Level: 1})

	assert.NoError(t, set.Verify(7, bundle, Sign(k1, 7, bundle)), "valid proof")
	assert.ErrorIs(t, set.Verify(8, bundle, Sign(k1, 7, bundle)), ErrInvalidProof, "wrong request")
	assert.ErrorIs(t, set.Verify(7, bundle, Sign(k2, 7, bundle)), ErrInvalidProof, "unknown signer")
	assert.ErrorIs(t, set.Verify(7, bundle, []byte("short")), ErrInvalidProof, "short proof")

	assert.NoError(t, set.VerifyFailure(7, SignFailure(k1, 7)), "valid failure")
	assert.ErrorIs(t, set.VerifyFailure(7, Sign(k1, 7, nil)), ErrInvalidProof, "success proof is no failure proof")

	assert.ErrorIs(t, NewSignerSet().Verify(7, bundle, Sign(k1, 7, bundle)), ErrNoSigners)
}

func TestSimOracleResolve(t *testing.T) {
	s, err := fhe.NewSealer(bytes.Repeat([]byte{9}, fhe.KeySize), []byte("proof"))
	require.NoError(t, err)
	o := NewSimOracle(s, testKey(1))
	set := NewSignerSet(o.PublicKey())

	var handles [3][]byte
	for i, v := range []uint64{120, 1, 4} {
		handles[i], _, err = s.Encrypt(v)
		require.NoError(t, err)
	}
	id, err := o.RequestDecryption(handles)
	require.NoError(t, err)
	assert.Equal(t, RequestID(1), id, "first id")
	assert.Equal(t, 1, o.Pending())

	cb, err := o.Resolve(id)
	require.NoError(t, err)
	assert.False(t, cb.Failed)
	assert.NoError(t, set.Verify(id, cb.Bundle, cb.Proof))
	b, err := DecodeBundle(cb.Bundle)
	require.NoError(t, err)
	assert.Equal(t, Bundle{Level: 120, Category: 1, Severity: 4}, b)

	_, err = o.Resolve(id)
	assert.ErrorIs(t, err, ErrUnknownRequest, "resolved once")
	assert.Equal(t, 0, o.Pending())
}

func TestSimOracleGarbage(t *testing.T) {
	s, err := fhe.NewSealer(bytes.Repeat([]byte{9}, fhe.KeySize), []byte("proof"))
	require.NoError(t, err)
	o := NewSimOracle(s, testKey(1))
	id, err := o.RequestDecryption([3][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	cb, err := o.Resolve(id)
	require.NoError(t, err)
	assert.True(t, cb.Failed, "undecryptable handles fail")
	assert.NoError(t, NewSignerSet(o.PublicKey()).VerifyFailure(id, cb.Proof))
}

func TestSimOracleAsync(t *testing.T) {
	s, err := fhe.NewSealer(bytes.Repeat([]byte{9}, fhe.KeySize), []byte("proof"))
	require.NoError(t, err)
	o := NewSimOracle(s, testKey(1))
	done := make(chan Callback, 1)
	o.Start(time.Millisecond, 1, func(cb Callback) { done <- cb })

	id, err := o.RequestDecryption([3][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	select {
	case cb := <-done:
		assert.Equal(t, id, cb.RequestID)
		assert.True(t, cb.Failed, "fail rate 1")
	case <-time.After(5 * time.Second):
		t.Fatal("no callback delivered")
	}
}

func TestSimOracleResume(t *testing.T) {
	o := NewSimOracle(nil, testKey(1))
	o.Resume(41)
	id, err := o.RequestDecryption([3][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	assert.Equal(t, RequestID(42), id)
	o.Resume(10)
	id, _ = o.RequestDecryption([3][]byte{{1}, {2}, {3}})
	assert.Equal(t, RequestID(43), id, "never moves backwards")
}
