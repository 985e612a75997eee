// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"math"
	"math/bits"

	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/fhe"
	"blockwatch.cc/envmon/pkg/gateway"
)

func (m *Monitor) requestDecryption(vals [3]fhe.Value) (gateway.RequestID, error) {
	id, err := m.oracle.RequestDecryption([3][]byte{
		vals[0].Handle(),
		vals[1].Handle(),
		vals[2].Handle(),
	})
	if err != nil {
		return 0, ErrOracleUnavailable.wrap(err)
	}
	if _, ok := m.Requests[id]; ok || id == 0 {
		return 0, ErrRequestCollision
	}
	return id, nil
}

// pending resolves a callback's request id back to its report and rejects
// anything that is not an open request of a pending report.
func (m *Monitor) pending(id gateway.RequestID) (*GatewayRequest, *Report, error) {
	req, ok := m.Requests[id]
	if !ok {
		return nil, nil, ErrUnknownRequest
	}
	r, ok := m.Reports[req.ReportId]
	if !ok {
		return nil, nil, ErrUnknownRequest
	}
	if r.RequestId != id || r.State != Pending || req.Completed || req.Failed {
		return nil, nil, ErrStaleRequest
	}
	return req, r, nil
}

// Delivers the decrypted (level, category, severity) of a pending request.
// Called by: oracle
func (m *Monitor) OnCallback(ctx chain.CallContext, id gateway.RequestID, bundle, proof []byte) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := nonPayable(ctx); err != nil {
		return err
	}
	if err := m.verifier.Verify(id, bundle, proof); err != nil {
		return ErrInvalidGatewayProof.wrap(err)
	}
	req, r, err := m.pending(id)
	if err != nil {
		return err
	}
	b, err := gateway.DecodeBundle(bundle)
	if err != nil {
		// a signed but undecodable result is a failed decryption
		log.Warnf("envmon: request %d: %v", id, err)
		m.fail(ctx, req, r)
		return nil
	}

	reading := &Reading{
		Level:      scale(b.Level, m.Params.NoiseBips),
		Category:   Category(b.Category),
		Severity:   scale(b.Severity, m.Params.NoiseBips),
		RevealedAt: ctx.Time,
	}
	req.Completed = true
	r.State = Verified
	r.Reading = reading
	if s, ok := m.Stations[r.StationId]; ok {
		s.LastReading = reading.Level
		s.LastUpdateAt = ctx.Time
	}

	m.record(ctx, ActionVerify, uint64(r.Id), struct {
		RequestId gateway.RequestID `json:"request_id"`
		Reading   *Reading          `json:"reading"`
	}{id, reading})
	m.emit(Event{
		Type:      EventReportVerified,
		Actor:     ctx.Caller,
		Time:      ctx.Time,
		StationId: r.StationId,
		ReportId:  r.Id,
		RequestId: id,
		Category:  reading.Category,
		Level:     reading.Level,
	})
	log.Debugf("envmon: report %d verified level=%d category=%d", r.Id, reading.Level, reading.Category)

	m.evaluate(ctx, r.StationId, r.Id, reading.Category, reading.Level)
	return nil
}

// Reports that the oracle could not decrypt a pending request.
// Called by: oracle
func (m *Monitor) OnCallbackFailure(ctx chain.CallContext, id gateway.RequestID, proof []byte) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := nonPayable(ctx); err != nil {
		return err
	}
	if err := m.verifier.VerifyFailure(id, proof); err != nil {
		return ErrInvalidGatewayProof.wrap(err)
	}
	req, r, err := m.pending(id)
	if err != nil {
		return err
	}
	m.fail(ctx, req, r)
	return nil
}

func (m *Monitor) fail(ctx chain.CallContext, req *GatewayRequest, r *Report) {
	req.Failed = true
	r.State = Failed
	m.record(ctx, ActionFail, uint64(r.Id), struct {
		RequestId gateway.RequestID `json:"request_id"`
	}{req.RequestId})
	m.emit(Event{Type: EventReportFailed, Actor: ctx.Caller, Time: ctx.Time, StationId: r.StationId, ReportId: r.Id, RequestId: req.RequestId})
	log.Debugf("envmon: report %d failed decryption", r.Id)
}

// scale returns v * bips / 10000, saturating on overflow.
func scale(v uint64, bips int) uint64 {
	hi, lo := bits.Mul64(v, uint64(bips))
	if hi >= 10000 {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, 10000)
	return q
}
