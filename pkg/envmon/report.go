// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/fhe"
	"blockwatch.cc/envmon/pkg/gateway"
)

type submitPayload struct {
	Station   StationId         `json:"station"`
	Stake     chain.Money       `json:"stake"`
	RequestId gateway.RequestID `json:"request_id"`
	Level     []byte            `json:"level"`
	Category  []byte            `json:"category"`
	Severity  []byte            `json:"severity"`
}

// Submits an encrypted report, locks the attached stake and requests
// decryption from the gateway. This is the only call creating reports.
// Called by: operator
func (m *Monitor) Submit(ctx chain.CallContext, id StationId, level, category, severity EncryptedInput) (ReportId, error) {
	if err := m.enter(); err != nil {
		return 0, err
	}
	defer m.exit()
	if err := m.onlyOperator(ctx); err != nil {
		return 0, err
	}
	s, ok := m.Stations[id]
	if !ok {
		return 0, ErrStationNotFound
	}
	if !s.Active {
		return 0, ErrStationInactive
	}
	stake := ctx.Amount
	if stake < m.Params.MinStake {
		return 0, ErrStakeTooLow
	}
	if stake > m.Params.MaxStake {
		return 0, ErrStakeTooHigh
	}
	if m.Paused {
		return 0, ErrPaused
	}

	// import confidential fields
	var vals [3]fhe.Value
	for i, in := range [3]EncryptedInput{level, category, severity} {
		v, err := m.cap.Import(in.Handle, in.Proof)
		if err != nil {
			return 0, ErrInvalidProof.wrap(err)
		}
		vals[i] = v
	}

	// request decryption before any write so an oracle failure leaves no trace
	reqId, err := m.requestDecryption(vals)
	if err != nil {
		return 0, err
	}

	m.LastReportId++
	rid := m.LastReportId
	m.Reports[rid] = &Report{
		Id:                 rid,
		StationId:          id,
		Level:              vals[0],
		Category:           vals[1],
		Severity:           vals[2],
		Reporter:           ctx.Caller,
		SubmittedAt:        ctx.Time,
		Stake:              stake,
		State:              Pending,
		RequestId:          reqId,
		ProcessingDeadline: ctx.Time + m.Params.MaxTimeout,
		OracleDeadline:     ctx.Time + m.Params.GatewayTimeout,
	}
	m.Requests[reqId] = &GatewayRequest{
		RequestId:   reqId,
		ReportId:    rid,
		Requester:   ctx.Caller,
		RequestedAt: ctx.Time,
	}

	// stake ledger
	s.TotalStaked += stake
	m.ReporterStakes[ctx.Caller] += stake
	m.TotalReceived += stake

	m.record(ctx, ActionSubmit, uint64(rid), submitPayload{
		Station:   id,
		Stake:     stake,
		RequestId: reqId,
		Level:     vals[0].Handle(),
		Category:  vals[1].Handle(),
		Severity:  vals[2].Handle(),
	})
	m.emit(Event{Type: EventReportSubmitted, Actor: ctx.Caller, Time: ctx.Time, StationId: id, ReportId: rid, Amount: stake})
	m.emit(Event{Type: EventDecryptionRequested, Actor: ctx.Caller, Time: ctx.Time, StationId: id, ReportId: rid, RequestId: reqId})
	log.Debugf("envmon: report %d station=%d stake=%s request=%d", rid, id, stake, reqId)
	return rid, nil
}

// Forces a report the oracle never resolved into verified state.
// Called by: owner
func (m *Monitor) ManualVerify(ctx chain.CallContext, id ReportId) error {
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
	r, ok := m.Reports[id]
	if !ok {
		return ErrReportNotFound
	}
	switch r.State {
	case Verified:
		return ErrAlreadyVerified
	case Refunded:
		return ErrAlreadyRefunded
	case Failed:
		return ErrNotPending
	}
	if req, ok := m.Requests[r.RequestId]; ok && !req.Completed {
		// late callbacks for this request are stale from now on
		req.Completed = true
	}
	r.State = Verified

	m.record(ctx, ActionManualVerify, uint64(id), struct {
		Request gateway.RequestID `json:"request"`
	}{r.RequestId})
	m.emit(Event{Type: EventReportVerified, Actor: ctx.Caller, Time: ctx.Time, StationId: r.StationId, ReportId: id, RequestId: r.RequestId})
	log.Infof("envmon: report %d manually verified", id)
	return nil
}
