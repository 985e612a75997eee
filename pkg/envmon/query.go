// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"encoding/json"

	"blockwatch.cc/envmon/pkg/audit"
	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/gateway"
)

// Views a station
func (m *Monitor) Station(id StationId) (Station, error) {
	s, ok := m.Stations[id]
	if !ok {
		return Station{}, ErrStationNotFound
	}
	return *s, nil
}

// Views a report
func (m *Monitor) Report(id ReportId) (Report, error) {
	r, ok := m.Reports[id]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	c := *r
	if r.Reading != nil {
		reading := *r.Reading
		c.Reading = &reading
	}
	return c, nil
}

// Views a gateway request
func (m *Monitor) Request(id gateway.RequestID) (GatewayRequest, error) {
	req, ok := m.Requests[id]
	if !ok {
		return GatewayRequest{}, ErrUnknownRequest
	}
	return *req, nil
}

// Threshold returns the configured levels; IsSet is false when unconfigured.
func (m *Monitor) Threshold(category Category) AlertThreshold {
	if t, ok := m.Thresholds[category]; ok {
		return *t
	}
	return AlertThreshold{Category: category}
}

// LastRequestId returns the highest gateway request id issued so far.
func (m *Monitor) LastRequestId() gateway.RequestID {
	var last gateway.RequestID
	for id := range m.Requests {
		if id > last {
			last = id
		}
	}
	return last
}

func (m *Monitor) ReporterStake(account chain.AccountID) chain.Money {
	return m.ReporterStakes[account]
}

func (m *Monitor) IsOperator(account chain.AccountID) bool {
	return m.Operators[account]
}

func (m *Monitor) Status() Status {
	return Status{
		Owner:     m.Owner,
		Stations:  uint64(len(m.Stations)),
		Reports:   uint64(len(m.Reports)),
		Fees:      m.Fees,
		Paused:    m.Paused,
		Operators: len(m.Operators),
	}
}

func (m *Monitor) AuditEntry(idx uint64) (audit.Entry, error) {
	return m.audit.Entry(idx)
}

func (m *Monitor) AuditEntries(from, limit uint64) []audit.Entry {
	return m.audit.Range(from, limit)
}

func (m *Monitor) AuditLen() uint64 {
	return m.audit.Len()
}

// VerifyAudit checks a payload against the content hash of an entry.
func (m *Monitor) VerifyAudit(idx uint64, payload []byte) (bool, error) {
	return m.audit.Verify(idx, payload)
}

// MarshalState encodes the persisted contract state.
func (m *Monitor) MarshalState() ([]byte, error) {
	return json.Marshal(&m.ContractState)
}

// Restore replaces state and audit trail with a persisted snapshot.
func (m *Monitor) Restore(state []byte, entries []audit.Entry) error {
	var s ContractState
	if err := json.Unmarshal(state, &s); err != nil {
		return err
	}
	s.init()
	if err := s.Params.Validate(); err != nil {
		return err
	}
	trail := audit.New()
	if err := trail.Restore(entries); err != nil {
		return err
	}
	m.ContractState = s
	m.audit = trail
	return nil
}
