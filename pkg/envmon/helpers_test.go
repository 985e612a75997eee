// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"blockwatch.cc/envmon/pkg/bank"
	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/fhe"
	"blockwatch.cc/envmon/pkg/gateway"
)

const (
	OWNER    = "owner.near"
	OPERATOR = "operator.near"
	OTHER    = "other.near"
	ORACLE   = "gateway.near"
	CONTRACT = "envmon.near"
	T0       = int64(1_700_000_000)
	STAKE    = chain.Unit / 100 // 0.01
)

func call(caller chain.AccountID, amount chain.Money, time int64) chain.CallContext {
	return chain.CallContext{
		Caller: caller,
		Amount: amount,
		Time:   time,
	}
}

type testEnv struct {
	m      *Monitor
	sealer *fhe.Sealer
	oracle *gateway.SimOracle
	bank   *bank.Ledger
	events []Event
}

func newEnv(t *testing.T) *testEnv {
	return newEnvWith(t, nil)
}

// newEnvWith replaces the bank ledger as transfer primitive when tr is set.
func newEnvWith(t *testing.T, tr chain.Transferer) *testEnv {
	sealer, err := fhe.NewSealer(bytes.Repeat([]byte{7}, fhe.KeySize), []byte("input-proofs"))
	require.NoError(t, err)
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{3}, ed25519.SeedSize))
	e := &testEnv{
		sealer: sealer,
		oracle: gateway.NewSimOracle(sealer, key),
		bank:   bank.New(CONTRACT),
	}
	if tr == nil {
		tr = e.bank
	}
	e.m, err = New(OWNER, DefaultParams(), Deps{
		Capability: sealer,
		Oracle:     e.oracle,
		Verifier:   gateway.NewSignerSet(e.oracle.PublicKey()),
		Bank:       tr,
	})
	require.NoError(t, err)
	e.m.Subscribe(ListenerFunc(func(ev Event) { e.events = append(e.events, ev) }))
	return e
}

func (e *testEnv) encrypt(t *testing.T, v uint64) EncryptedInput {
	h, p, err := e.sealer.Encrypt(v)
	require.NoError(t, err)
	return EncryptedInput{Handle: h, Proof: p}
}

func (e *testEnv) station(t *testing.T) StationId {
	id, err := e.m.RegisterStation(call(OWNER, 0, T0), "A", OPERATOR)
	require.NoError(t, err)
	return id
}

// submit attaches stake from the operator's funds like a wallet would.
func (e *testEnv) submit(t *testing.T, sid StationId, level, category uint64, stake chain.Money, at int64) ReportId {
	require.NoError(t, e.bank.Mint(OPERATOR, stake))
	require.NoError(t, e.bank.Pay(OPERATOR, CONTRACT, stake))
	id, err := e.m.Submit(call(OPERATOR, stake, at), sid, e.encrypt(t, level), e.encrypt(t, category), e.encrypt(t, 2))
	require.NoError(t, err)
	return id
}

func (e *testEnv) resolve(t *testing.T, rid ReportId, at int64) error {
	r, err := e.m.Report(rid)
	require.NoError(t, err)
	cb, err := e.oracle.Resolve(r.RequestId)
	require.NoError(t, err)
	if cb.Failed {
		return e.m.OnCallbackFailure(call(ORACLE, 0, at), cb.RequestID, cb.Proof)
	}
	return e.m.OnCallback(call(ORACLE, 0, at), cb.RequestID, cb.Bundle, cb.Proof)
}

func (e *testEnv) count(typ EventType) int {
	n := 0
	for _, ev := range e.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
