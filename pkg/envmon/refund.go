// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/chain"
)

// refund eligibility reasons
const (
	ReasonTimeout         = "Timeout exceeded"
	ReasonFailed          = "Decryption failed"
	ReasonGatewayTimeout  = "Gateway timeout"
	ReasonNotFound        = "Report does not exist"
	ReasonNotReporter     = "Not the reporter"
	ReasonAlreadyClaimed  = "Refund already claimed"
	ReasonVerified        = "Report already verified"
	ReasonNotYetAvailable = "Refund not available yet"
)

// eligibility re-evaluates refund conditions against the current state.
func (m *Monitor) eligibility(r *Report, caller chain.AccountID, now int64) (string, error) {
	switch {
	case caller != r.Reporter:
		return ReasonNotReporter, ErrNotReporter
	case r.RefundClaimed || r.State == Refunded:
		return ReasonAlreadyClaimed, ErrAlreadyRefunded
	case r.State == Verified:
		return ReasonVerified, ErrAlreadyVerified
	case now > r.ProcessingDeadline:
		return ReasonTimeout, nil
	case r.State == Failed:
		return ReasonFailed, nil
	}
	if req, ok := m.Requests[r.RequestId]; ok && !req.Completed && now > req.RequestedAt+m.Params.GatewayTimeout {
		return ReasonGatewayTimeout, nil
	}
	return ReasonNotYetAvailable, ErrRefundUnavailable
}

// Checks whether the caller could claim a refund right now. Has no side effects.
// Called by: anyone
func (m *Monitor) CanClaim(ctx chain.CallContext, id ReportId) (bool, string) {
	r, ok := m.Reports[id]
	if !ok {
		return false, ReasonNotFound
	}
	reason, err := m.eligibility(r, ctx.Caller, ctx.Time)
	return err == nil, reason
}

// Refunds the stake minus protocol fee. The claim latch and all ledger
// updates happen before the transfer and are reverted if it fails.
// Called by: reporter
func (m *Monitor) Claim(ctx chain.CallContext, id ReportId) (chain.Money, error) {
	if err := m.enter(); err != nil {
		return 0, err
	}
	defer m.exit()
	if err := nonPayable(ctx); err != nil {
		return 0, err
	}
	r, ok := m.Reports[id]
	if !ok {
		return 0, ErrReportNotFound
	}
	reason, err := m.eligibility(r, ctx.Caller, ctx.Time)
	if err != nil {
		return 0, err
	}

	stake := r.Stake
	fee := stake.Bips(m.Params.FeeRateBips)
	refund := stake - fee
	prevState := r.State

	r.RefundClaimed = true
	r.State = Refunded
	m.Fees += fee
	m.ReporterStakes[r.Reporter] -= stake
	if m.ReporterStakes[r.Reporter] == 0 {
		delete(m.ReporterStakes, r.Reporter)
	}
	m.TotalRefunded += refund

	if err := m.bank.Transfer(r.Reporter, refund); err != nil {
		r.RefundClaimed = false
		r.State = prevState
		m.Fees -= fee
		m.ReporterStakes[r.Reporter] += stake
		m.TotalRefunded -= refund
		log.Warnf("envmon: refund of report %d failed: %v", id, err)
		return 0, ErrTransferFailed.wrap(err)
	}

	m.record(ctx, ActionClaim, uint64(id), struct {
		Reason string      `json:"reason"`
		Refund chain.Money `json:"refund"`
		Fee    chain.Money `json:"fee"`
	}{reason, refund, fee})
	m.emit(Event{Type: EventRefundClaimed, Actor: ctx.Caller, Time: ctx.Time, StationId: r.StationId, ReportId: id, Amount: refund, Account: r.Reporter})
	log.Debugf("envmon: report %d refunded %s (fee %s): %s", id, refund, fee, reason)
	return refund, nil
}

// Sends all accumulated protocol fees.
// Called by: owner
func (m *Monitor) WithdrawFees(ctx chain.CallContext, to chain.AccountID) (chain.Money, error) {
	if err := m.enter(); err != nil {
		return 0, err
	}
	defer m.exit()
	if err := nonPayable(ctx); err != nil {
		return 0, err
	}
	if err := m.onlyOwner(ctx); err != nil {
		return 0, err
	}
	if !to.IsValid() {
		return 0, ErrInvalidAccount
	}
	if m.Fees == 0 {
		return 0, ErrNoFees
	}
	amount := m.Fees
	m.Fees = 0
	m.TotalWithdrawn += amount
	if err := m.bank.Transfer(to, amount); err != nil {
		m.Fees = amount
		m.TotalWithdrawn -= amount
		return 0, ErrTransferFailed.wrap(err)
	}
	m.record(ctx, ActionWithdrawFees, 0, struct {
		To     chain.AccountID `json:"to"`
		Amount chain.Money     `json:"amount"`
	}{to, amount})
	m.emit(Event{Type: EventFeesWithdrawn, Actor: ctx.Caller, Time: ctx.Time, Amount: amount, Account: to})
	log.Infof("envmon: withdrew %s fees to %s", amount, to)
	return amount, nil
}
