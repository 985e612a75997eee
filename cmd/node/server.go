// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/echa/log"
	"github.com/gorilla/schema"

	"blockwatch.cc/envmon/pkg/bank"
	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/envmon"
	"blockwatch.cc/envmon/pkg/gateway"
	"blockwatch.cc/envmon/pkg/metrics"
	"blockwatch.cc/envmon/pkg/store"
)

// oracle deliveries run under this account
const ORACLE_ACCOUNT chain.AccountID = "gateway.near"

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

// Node serializes all contract calls and persists state after each
// successful transaction.
type Node struct {
	mu      sync.Mutex
	m       *envmon.Monitor
	bank    *bank.Ledger
	snap    *store.Snapshot
	metrics *metrics.Collector
	now     func() int64
}

func NewNode(m *envmon.Monitor, ledger *bank.Ledger, snap *store.Snapshot, c *metrics.Collector) *Node {
	return &Node{
		m:       m,
		bank:    ledger,
		snap:    snap,
		metrics: c,
		now:     func() int64 { return time.Now().Unix() },
	}
}

func (n *Node) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tx", n.post(n.handleTx))
	mux.HandleFunc("/callback", n.post(n.handleCallback))
	mux.HandleFunc("/callback/failure", n.post(n.handleCallbackFailure))
	mux.HandleFunc("/faucet", n.post(n.handleFaucet))
	mux.HandleFunc("/status", n.get(n.handleStatus))
	mux.HandleFunc("/station", n.get(n.handleStation))
	mux.HandleFunc("/report", n.get(n.handleReport))
	mux.HandleFunc("/request", n.get(n.handleRequest))
	mux.HandleFunc("/claimable", n.get(n.handleClaimable))
	mux.HandleFunc("/threshold", n.get(n.handleThreshold))
	mux.HandleFunc("/audit", n.get(n.handleAudit))
	mux.HandleFunc("/balance", n.get(n.handleBalance))
	mux.Handle("/metrics", n.metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) (interface{}, error)

func (n *Node) post(fn handlerFunc) http.HandlerFunc {
	return n.wrap(http.MethodPost, fn)
}

func (n *Node) get(fn handlerFunc) http.HandlerFunc {
	return n.wrap(http.MethodGet, fn)
}

func (n *Node) wrap(method string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "invalid method", http.StatusMethodNotAllowed)
			return
		}
		res, err := fn(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// exec runs one contract call. Attached value moves to the contract first
// and goes back to the caller if the call fails.
func (n *Node) exec(method string, caller chain.AccountID, amount chain.Money, fn func(chain.CallContext) (interface{}, error)) (interface{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if amount > 0 {
		if err := n.bank.Pay(caller, n.bank.Account(), amount); err != nil {
			n.metrics.ObserveCall(method, err)
			return nil, &paymentError{err}
		}
	}
	ctx := chain.CallContext{Caller: caller, Amount: amount, Time: n.now()}
	res, err := fn(ctx)
	n.metrics.ObserveCall(method, err)
	if err != nil {
		if amount > 0 {
			if rerr := n.bank.Pay(n.bank.Account(), caller, amount); rerr != nil {
				log.Errorf("Returning %s to %s: %v", amount, caller, rerr)
			}
		}
		return nil, err
	}
	n.metrics.Sync(n.m)
	if err := n.snap.Save(n.m); err != nil {
		log.Errorf("Saving snapshot after %s: %v", method, err)
	}
	return res, nil
}

// Deliver hands an oracle callback to the contract.
func (n *Node) Deliver(cb gateway.Callback) {
	method := "on_callback"
	if cb.Failed {
		method = "on_callback_failure"
	}
	_, err := n.exec(method, ORACLE_ACCOUNT, 0, func(ctx chain.CallContext) (interface{}, error) {
		if cb.Failed {
			return nil, n.m.OnCallbackFailure(ctx, cb.RequestID, cb.Proof)
		}
		return nil, n.m.OnCallback(ctx, cb.RequestID, cb.Bundle, cb.Proof)
	})
	if err != nil {
		log.Warnf("Oracle callback %d rejected: %v", cb.RequestID, err)
		return
	}
	log.Infof("Oracle callback %d applied", cb.RequestID)
}

type TxRequest struct {
	Method string          `json:"method"`
	Caller chain.AccountID `json:"caller"`
	Amount chain.Money     `json:"amount"`
	Args   json.RawMessage `json:"args"`
}

type TxArgs struct {
	StationId envmon.StationId      `json:"station_id"`
	ReportId  envmon.ReportId       `json:"report_id"`
	Location  string                `json:"location"`
	Account   chain.AccountID       `json:"account"`
	Level     envmon.EncryptedInput `json:"level"`
	Category  envmon.EncryptedInput `json:"category"`
	Severity  envmon.EncryptedInput `json:"severity"`
}

type ThresholdArgs struct {
	Category envmon.Category `json:"category"`
	Critical uint64          `json:"critical"`
	Warning  uint64          `json:"warning"`
}

// Methods accepted on /tx. Anything else is counted under one metric label.
var txMethods = map[string]bool{
	"register_station":   true,
	"deactivate_station": true,
	"reactivate_station": true,
	"submit":             true,
	"manual_verify":      true,
	"set_threshold":      true,
	"claim":              true,
	"withdraw_fees":      true,
	"add_operator":       true,
	"remove_operator":    true,
	"transfer_ownership": true,
	"pause":              true,
	"unpause":            true,
}

func methodLabel(method string) string {
	if txMethods[method] {
		return method
	}
	return "unknown"
}

func (n *Node) handleTx(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	var tx TxRequest
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		return nil, &requestError{err}
	}
	var (
		args TxArgs
		th   ThresholdArgs
	)
	if len(tx.Args) > 0 {
		if err := json.Unmarshal(tx.Args, &args); err != nil {
			return nil, &requestError{err}
		}
		if tx.Method == "set_threshold" {
			if err := json.Unmarshal(tx.Args, &th); err != nil {
				return nil, &requestError{err}
			}
		}
	}
	log.Debugf("Tx %q from %s amount %s", tx.Method, tx.Caller, tx.Amount)
	m := n.m
	return n.exec(methodLabel(tx.Method), tx.Caller, tx.Amount, func(ctx chain.CallContext) (interface{}, error) {
		switch tx.Method {
		case "register_station":
			return m.RegisterStation(ctx, args.Location, args.Account)
		case "deactivate_station":
			return nil, m.DeactivateStation(ctx, args.StationId)
		case "reactivate_station":
			return nil, m.ReactivateStation(ctx, args.StationId)
		case "submit":
			return m.Submit(ctx, args.StationId, args.Level, args.Category, args.Severity)
		case "manual_verify":
			return nil, m.ManualVerify(ctx, args.ReportId)
		case "set_threshold":
			return nil, m.SetThreshold(ctx, th.Category, th.Critical, th.Warning)
		case "claim":
			return m.Claim(ctx, args.ReportId)
		case "withdraw_fees":
			return m.WithdrawFees(ctx, args.Account)
		case "add_operator":
			return nil, m.AddOperator(ctx, args.Account)
		case "remove_operator":
			return nil, m.RemoveOperator(ctx, args.Account)
		case "transfer_ownership":
			return nil, m.TransferOwnership(ctx, args.Account)
		case "pause":
			return nil, m.Pause(ctx)
		case "unpause":
			return nil, m.Unpause(ctx)
		default:
			return nil, &requestError{fmt.Errorf("unknown method %q", tx.Method)}
		}
	})
}

type CallbackRequest struct {
	RequestId gateway.RequestID `json:"request_id"`
	Bundle    []byte            `json:"bundle"`
	Proof     []byte            `json:"proof"`
}

func (n *Node) handleCallback(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &requestError{err}
	}
	return n.exec("on_callback", ORACLE_ACCOUNT, 0, func(ctx chain.CallContext) (interface{}, error) {
		return nil, n.m.OnCallback(ctx, req.RequestId, req.Bundle, req.Proof)
	})
}

func (n *Node) handleCallbackFailure(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &requestError{err}
	}
	return n.exec("on_callback_failure", ORACLE_ACCOUNT, 0, func(ctx chain.CallContext) (interface{}, error) {
		return nil, n.m.OnCallbackFailure(ctx, req.RequestId, req.Proof)
	})
}

type FaucetRequest struct {
	Account chain.AccountID `json:"account"`
	Amount  chain.Money     `json:"amount"`
}

// handleFaucet credits development funds so clients can attach stake.
func (n *Node) handleFaucet(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &requestError{err}
	}
	if err := n.bank.Mint(req.Account, req.Amount); err != nil {
		return nil, &requestError{err}
	}
	return n.bank.Balance(req.Account), nil
}

// QueryArgs holds the query-string parameters of read endpoints.
type QueryArgs struct {
	Id       uint64          `schema:"id"`
	Caller   chain.AccountID `schema:"caller"`
	Account  chain.AccountID `schema:"account"`
	Category uint64          `schema:"category"`
	From     uint64          `schema:"from"`
	Limit    uint64          `schema:"limit"`
}

func (n *Node) query(r *http.Request, fn func(QueryArgs) (interface{}, error)) (interface{}, error) {
	var args QueryArgs
	if err := decoder.Decode(&args, r.URL.Query()); err != nil {
		return nil, &requestError{err}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(args)
}

func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return n.query(r, func(QueryArgs) (interface{}, error) {
		return n.m.Status(), nil
	})
}

func (n *Node) handleStation(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return n.query(r, func(a QueryArgs) (interface{}, error) {
		return n.m.Station(envmon.StationId(a.Id))
	})
}

func (n *Node) handleReport(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return n.query(r, func(a QueryArgs) (interface{}, error) {
		return n.m.Report(envmon.ReportId(a.Id))
	})
}

func (n *Node) handleRequest(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return n.query(r, func(a QueryArgs) (interface{}, error) {
		return n.m.Request(gateway.RequestID(a.Id))
	})
}

type Claimable struct {
	Claimable bool   `json:"claimable"`
	Reason    string `json:"reason"`
}

func (n *Node) handleClaimable(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return n.query(r, func(a QueryArgs) (interface{}, error) {
		ok, reason := n.m.CanClaim(chain.CallContext{Caller: a.Caller, Time: n.now()}, envmon.ReportId(a.Id))
		return Claimable{ok, reason}, nil
	})
}

func (n *Node) handleThreshold(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return n.query(r, func(a QueryArgs) (interface{}, error) {
		return n.m.Threshold(envmon.Category(a.Category)), nil
	})
}

func (n *Node) handleAudit(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return n.query(r, func(a QueryArgs) (interface{}, error) {
		if a.Limit == 0 {
			a.Limit = 100
		}
		return n.m.AuditEntries(a.From, a.Limit), nil
	})
}

func (n *Node) handleBalance(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return n.query(r, func(a QueryArgs) (interface{}, error) {
		return n.bank.Balance(a.Account), nil
	})
}

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

type paymentError struct{ err error }

func (e *paymentError) Error() string { return "attach value: " + e.err.Error() }
func (e *paymentError) Unwrap() error { return e.err }

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func statusOf(err error) int {
	var (
		req *requestError
		pay *paymentError
	)
	switch {
	case errors.As(err, &req):
		return http.StatusBadRequest
	case errors.As(err, &pay):
		return http.StatusPaymentRequired
	}
	switch envmon.KindOf(err) {
	case envmon.KindAuthorization:
		return http.StatusForbidden
	case envmon.KindValidation:
		return http.StatusBadRequest
	case envmon.KindNotFound:
		return http.StatusNotFound
	case envmon.KindConflict:
		return http.StatusConflict
	case envmon.KindTimeout:
		return http.StatusTooEarly
	case envmon.KindExternal:
		return http.StatusBadGateway
	case envmon.KindReentrancy:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var e *envmon.Error
	if errors.As(err, &e) {
		resp.Code = e.Code
		resp.Kind = e.Kind.String()
	}
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		log.Error(err)
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		log.Error(err)
		http.Error(w, fmt.Sprintf("marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Date", time.Now().Format(http.TimeFormat))
	w.WriteHeader(code)
	w.Write(buf)
}
