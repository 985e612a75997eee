// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/envmon/pkg/bank"
	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/db/pebble"
	"blockwatch.cc/envmon/pkg/envmon"
	"blockwatch.cc/envmon/pkg/fhe"
	"blockwatch.cc/envmon/pkg/gateway"
	"blockwatch.cc/envmon/pkg/metrics"
	"blockwatch.cc/envmon/pkg/store"
)

const (
	OWNER    = "owner.near"
	OPERATOR = "operator.near"
	CONTRACT = "envmon.near"
	T0       = int64(1_700_000_000)
)

type testNode struct {
	*Node
	srv    *httptest.Server
	sealer *fhe.Sealer
	oracle *gateway.SimOracle
	kv     *pebble.KVStore
	clock  int64
}

func newTestNode(t *testing.T) *testNode {
	sealer, err := fhe.NewSealer(bytes.Repeat([]byte{5}, fhe.KeySize), []byte("proofs"))
	require.NoError(t, err)
	oracle := gateway.NewSimOracle(sealer, ed25519.NewKeyFromSeed(bytes.Repeat([]byte{6}, ed25519.SeedSize)))
	ledger := bank.New(CONTRACT)
	m, err := envmon.New(OWNER, envmon.DefaultParams(), envmon.Deps{
		Capability: sealer,
		Oracle:     oracle,
		Verifier:   gateway.NewSignerSet(oracle.PublicKey()),
		Bank:       ledger,
	})
	require.NoError(t, err)
	kv, err := pebble.NewKVStore("")
	require.NoError(t, err)
	c := metrics.New()
	m.Subscribe(c)

	tn := &testNode{
		Node:   NewNode(m, ledger, store.New(kv), c),
		sealer: sealer,
		oracle: oracle,
		kv:     kv,
		clock:  T0,
	}
	tn.now = func() int64 { return tn.clock }
	tn.srv = httptest.NewServer(tn.Routes())
	t.Cleanup(func() {
		tn.srv.Close()
		kv.Close()
	})
	return tn
}

func (n *testNode) post(t *testing.T, path string, body interface{}, out interface{}) int {
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(n.srv.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (n *testNode) get(t *testing.T, path string, out interface{}) int {
	resp, err := http.Get(n.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (n *testNode) tx(t *testing.T, method string, caller chain.AccountID, amount chain.Money, args interface{}, out interface{}) int {
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return n.post(t, "/tx", TxRequest{Method: method, Caller: caller, Amount: amount, Args: raw}, out)
}

func (n *testNode) encrypt(t *testing.T, v uint64) envmon.EncryptedInput {
	h, p, err := n.sealer.Encrypt(v)
	require.NoError(t, err)
	return envmon.EncryptedInput{Handle: h, Proof: p}
}

func TestNodeLifecycle(t *testing.T) {
	n := newTestNode(t)
	stake := chain.Unit / 100

	var sid envmon.StationId
	require.Equal(t, 200, n.tx(t, "register_station", OWNER, 0, TxArgs{Location: "Pier 7", Account: OPERATOR}, &sid))
	assert.Equal(t, envmon.StationId(1), sid)
	require.Equal(t, 200, n.tx(t, "set_threshold", OWNER, 0, ThresholdArgs{Category: 1, Critical: 100, Warning: 50}, nil))

	// stake must be funded
	var errResp ErrorResponse
	args := TxArgs{StationId: sid, Level: n.encrypt(t, 120), Category: n.encrypt(t, 1), Severity: n.encrypt(t, 2)}
	assert.Equal(t, http.StatusPaymentRequired, n.tx(t, "submit", OPERATOR, stake, args, &errResp))

	require.Equal(t, 200, n.post(t, "/faucet", FaucetRequest{Account: OPERATOR, Amount: chain.Unit}, nil))
	var rid envmon.ReportId
	require.Equal(t, 200, n.tx(t, "submit", OPERATOR, stake, args, &rid))
	assert.Equal(t, envmon.ReportId(1), rid)

	var bal chain.Money
	n.get(t, "/balance?account="+CONTRACT, &bal)
	assert.Equal(t, stake, bal)

	var claim Claimable
	require.Equal(t, 200, n.get(t, "/claimable?id=1&caller="+OPERATOR, &claim))
	assert.False(t, claim.Claimable)
	assert.Equal(t, envmon.ReasonNotYetAvailable, claim.Reason)

	var errClaim ErrorResponse
	assert.Equal(t, http.StatusTooEarly, n.tx(t, "claim", OPERATOR, 0, TxArgs{ReportId: rid}, &errClaim))
	assert.Equal(t, "timeout", errClaim.Kind)

	cb, err := n.oracle.Resolve(1)
	require.NoError(t, err)
	n.Deliver(cb)

	var report envmon.Report
	require.Equal(t, 200, n.get(t, "/report?id=1", &report))
	assert.Equal(t, envmon.Verified, report.State)
	require.NotNil(t, report.Reading)
	assert.Equal(t, uint64(126), report.Reading.Level)

	var station envmon.Station
	require.Equal(t, 200, n.get(t, "/station?id=1", &station))
	assert.Equal(t, uint64(126), station.LastReading)

	var entries []map[string]interface{}
	require.Equal(t, 200, n.get(t, "/audit?from=0&limit=10", &entries))
	assert.Len(t, entries, 5, "register, threshold, submit, verify, alert")

	resp, err := http.Get(n.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `envmon_alerts_total{category="1"} 1`)
	assert.Contains(t, string(body), `envmon_calls_total{method="claim",result="timeout"} 1`)
}

func TestNodeErrors(t *testing.T) {
	n := newTestNode(t)
	var e ErrorResponse

	assert.Equal(t, http.StatusForbidden, n.tx(t, "register_station", "mallory.near", 0, TxArgs{Location: "X", Account: OPERATOR}, &e))
	assert.Equal(t, "authorization", e.Kind)
	assert.Equal(t, http.StatusBadRequest, n.tx(t, "register_station", OWNER, 0, TxArgs{Location: " ", Account: OPERATOR}, &e))
	assert.Equal(t, "validation", e.Kind)
	assert.Equal(t, http.StatusNotFound, n.get(t, "/report?id=9", &e))
	assert.Equal(t, http.StatusBadRequest, n.tx(t, "nope", OWNER, 0, nil, &e))
	assert.Equal(t, http.StatusConflict, n.tx(t, "unpause", OWNER, 0, nil, &e))
	assert.Equal(t, http.StatusBadRequest, n.get(t, "/report?id=abc", &e))
	assert.Equal(t, http.StatusBadGateway, n.post(t, "/callback", CallbackRequest{RequestId: 7, Bundle: []byte{1}, Proof: make([]byte, 64)}, &e))
	assert.Equal(t, "external", e.Kind)

	resp, err := http.Post(n.srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestNodeFailedCallRefundsAttachedValue(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.bank.Mint(OPERATOR, chain.Unit))
	var e ErrorResponse
	args := TxArgs{StationId: 1, Level: n.encrypt(t, 1), Category: n.encrypt(t, 1), Severity: n.encrypt(t, 1)}
	assert.Equal(t, http.StatusNotFound, n.tx(t, "submit", OPERATOR, chain.Unit/100, args, &e))
	assert.Equal(t, chain.Unit, n.bank.Balance(OPERATOR), "attached value returned")
	assert.Zero(t, n.bank.Balance(CONTRACT))
}

func TestNodeRejectsValueOnNonPayableCall(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.bank.Mint(OWNER, chain.Unit))

	var e ErrorResponse
	assert.Equal(t, http.StatusBadRequest, n.tx(t, "pause", OWNER, chain.Unit, nil, &e))
	assert.Equal(t, "not_payable", e.Code)
	assert.Equal(t, "validation", e.Kind)
	assert.False(t, n.m.Status().Paused)
	assert.Equal(t, chain.Unit, n.bank.Balance(OWNER), "deposit returned")

	tracked := n.m.TotalReceived - n.m.TotalRefunded - n.m.TotalWithdrawn
	assert.Equal(t, tracked, n.bank.Balance(CONTRACT), "held equals tracked")
}

func TestNodeUnknownMethodLabel(t *testing.T) {
	n := newTestNode(t)
	var e ErrorResponse
	assert.Equal(t, http.StatusBadRequest, n.tx(t, "drain-1", OWNER, 0, nil, &e))
	assert.Equal(t, http.StatusBadRequest, n.tx(t, "drain-2", OWNER, 0, nil, &e))
	assert.Equal(t, "unknown", methodLabel("drain-1"))
	assert.Equal(t, "claim", methodLabel("claim"))

	resp, err := http.Get(n.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `envmon_calls_total{method="unknown",result="unknown"} 2`)
	assert.NotContains(t, string(body), "drain-")
}

func TestNodePersists(t *testing.T) {
	n := newTestNode(t)
	require.Equal(t, 200, n.tx(t, "register_station", OWNER, 0, TxArgs{Location: "Dock", Account: OPERATOR}, nil))

	raw, err := n.kv.Get([]byte("state"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Dock")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusLocked, statusOf(envmon.ErrReentrantCall))
	assert.Equal(t, http.StatusBadGateway, statusOf(envmon.ErrInvalidGatewayProof))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}
