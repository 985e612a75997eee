// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"encoding/json"

	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/audit"
	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/fhe"
	"blockwatch.cc/envmon/pkg/gateway"
)

// audit action tags
const (
	ActionAddOperator       = "access.add_operator"
	ActionRemoveOperator    = "access.remove_operator"
	ActionTransferOwnership = "access.transfer_ownership"
	ActionPause             = "access.pause"
	ActionUnpause           = "access.unpause"
	ActionRegisterStation   = "station.register"
	ActionDeactivateStation = "station.deactivate"
	ActionReactivateStation = "station.reactivate"
	ActionSubmit            = "report.submit"
	ActionVerify            = "report.verify"
	ActionManualVerify      = "report.manual_verify"
	ActionFail              = "report.fail"
	ActionAlert             = "threshold.alert"
	ActionSetThreshold      = "threshold.set"
	ActionClaim             = "refund.claim"
	ActionWithdrawFees      = "refund.withdraw_fees"
)

// Deps are the external collaborators of the contract.
type Deps struct {
	Capability fhe.Capability
	Oracle     gateway.Oracle
	Verifier   gateway.Verifier
	Bank       chain.Transferer
}

// Monitor is the confidential monitoring contract. It is a single-writer
// state machine; callers serialize calls.
type Monitor struct {
	ContractState

	cap       fhe.Capability
	oracle    gateway.Oracle
	verifier  gateway.Verifier
	bank      chain.Transferer
	audit     *audit.Log
	listeners []Listener
	entered   bool
}

var _ Contract = (*Monitor)(nil)

func New(owner chain.AccountID, params Params, deps Deps) (*Monitor, error) {
	if !owner.IsValid() {
		return nil, ErrInvalidAccount.withMsg("owner")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		ContractState: ContractState{
			Owner:  owner,
			Params: params,
		},
		cap:      deps.Capability,
		oracle:   deps.Oracle,
		verifier: deps.Verifier,
		bank:     deps.Bank,
		audit:    audit.New(),
	}
	m.init()
	return m, nil
}

// Subscribe registers a listener for contract events.
func (m *Monitor) Subscribe(l Listener) {
	m.listeners = append(m.listeners, l)
}

// enter guards mutating calls against re-entry from external callouts.
func (m *Monitor) enter() error {
	if m.entered {
		return ErrReentrantCall
	}
	m.entered = true
	return nil
}

func (m *Monitor) exit() {
	m.entered = false
}

func (m *Monitor) onlyOwner(ctx chain.CallContext) error {
	if ctx.Caller != m.Owner {
		return ErrNotOwner
	}
	return nil
}

func (m *Monitor) onlyOperator(ctx chain.CallContext) error {
	if ctx.Caller != m.Owner && !m.Operators[ctx.Caller] {
		return ErrNotOperator
	}
	return nil
}

// Only Submit carries value; everything else must be called without a deposit.
func nonPayable(ctx chain.CallContext) error {
	if ctx.Amount > 0 {
		return ErrNotPayable
	}
	return nil
}

func (m *Monitor) record(ctx chain.CallContext, action string, subject uint64, payload interface{}) uint64 {
	buf, err := json.Marshal(payload)
	if err != nil {
		// payloads are plain structs built below
		panic(err)
	}
	return m.audit.Append(ctx.Caller, action, subject, buf, ctx.Time)
}

func (m *Monitor) emit(ev Event) {
	for _, l := range m.listeners {
		l.OnEvent(ev)
	}
}

func (m *Monitor) AddOperator(ctx chain.CallContext, account chain.AccountID) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := nonPayable(ctx); err != nil {
		return err
	}
	if err := m.onlyOwner(ctx); err != nil {
		return err
	}
	if !account.IsValid() {
		return ErrInvalidAccount
	}
	if m.Operators[account] {
		return ErrAlreadyOperator
	}
	m.Operators[account] = true
	m.record(ctx, ActionAddOperator, 0, struct {
		Account chain.AccountID `json:"account"`
	}{account})
	m.emit(Event{Type: EventOperatorAdded, Actor: ctx.Caller, Time: ctx.Time, Account: account})
	return nil
}

func (m *Monitor) RemoveOperator(ctx chain.CallContext, account chain.AccountID) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := nonPayable(ctx); err != nil {
		return err
	}
	if err := m.onlyOwner(ctx); err != nil {
		return err
	}
	if !m.Operators[account] {
		return ErrNoOperator
	}
	delete(m.Operators, account)
	m.record(ctx, ActionRemoveOperator, 0, struct {
		Account chain.AccountID `json:"account"`
	}{account})
	m.emit(Event{Type: EventOperatorRemoved, Actor: ctx.Caller, Time: ctx.Time, Account: account})
	return nil
}

func (m *Monitor) TransferOwnership(ctx chain.CallContext, account chain.AccountID) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := nonPayable(ctx); err != nil {
		return err
	}
	if err := m.onlyOwner(ctx); err != nil {
		return err
	}
	if !account.IsValid() {
		return ErrInvalidAccount
	}
	prev := m.Owner
	m.Owner = account
	m.record(ctx, ActionTransferOwnership, 0, struct {
		From chain.AccountID `json:"from"`
		To   chain.AccountID `json:"to"`
	}{prev, account})
	m.emit(Event{Type: EventOwnershipTransferred, Actor: ctx.Caller, Time: ctx.Time, Account: account})
	log.Infof("envmon: ownership transferred from %s to %s", prev, account)
	return nil
}

func (m *Monitor) Pause(ctx chain.CallContext) error {
	return m.setPaused(ctx, true)
}

func (m *Monitor) Unpause(ctx chain.CallContext) error {
	return m.setPaused(ctx, false)
}

func (m *Monitor) setPaused(ctx chain.CallContext, paused bool) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := nonPayable(ctx); err != nil {
		return err
	}
	if err := m.onlyOwner(ctx); err != nil {
		return err
	}
	if m.Paused == paused {
		if paused {
			return ErrPaused
		}
		return ErrNotPaused
	}
	m.Paused = paused
	action, typ := ActionPause, EventPaused
	if !paused {
		action, typ = ActionUnpause, EventUnpaused
	}
	m.record(ctx, action, 0, struct {
		Paused bool `json:"paused"`
	}{paused})
	m.emit(Event{Type: typ, Actor: ctx.Caller, Time: ctx.Time})
	log.Warnf("envmon: paused=%t by %s", paused, ctx.Caller)
	return nil
}
