// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	e := newEnv(t)
	st := e.m.Status()
	assert.Equal(t, OWNER, string(st.Owner))
	assert.Zero(t, st.Stations)
	assert.Zero(t, st.Reports)

	sid := e.station(t)
	e.submit(t, sid, 10, 1, STAKE, T0)
	e.submit(t, sid, 20, 1, STAKE, T0)
	st = e.m.Status()
	assert.Equal(t, uint64(1), st.Stations)
	assert.Equal(t, uint64(2), st.Reports)
	assert.Equal(t, 1, st.Operators)
	assert.False(t, st.Paused)
}

func TestReportCopy(t *testing.T) {
	e := newEnv(t)
	sid := e.station(t)
	rid := e.submit(t, sid, 120, 1, STAKE, T0)
	require.NoError(t, e.resolve(t, rid, T0+1))

	r, err := e.m.Report(rid)
	require.NoError(t, err)
	r.Reading.Level = 0
	r.State = Failed

	again, _ := e.m.Report(rid)
	assert.Equal(t, uint64(126), again.Reading.Level, "views do not alias state")
	assert.Equal(t, Verified, again.State)

	_, err = e.m.Report(42)
	assert.ErrorIs(t, err, ErrReportNotFound)
	_, err = e.m.Station(42)
	assert.ErrorIs(t, err, ErrStationNotFound)
	_, err = e.m.Request(42)
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestAuditTrail(t *testing.T) {
	e := newEnv(t)
	sid := e.station(t)
	rid := e.submit(t, sid, 120, 1, STAKE, T0)
	require.NoError(t, e.resolve(t, rid, T0+1))

	entries := e.m.AuditEntries(0, 100)
	require.Len(t, entries, int(e.m.AuditLen()))
	actions := make([]string, 0, len(entries))
	for i, entry := range entries {
		assert.Equal(t, uint64(i), entry.Index)
		assert.NotEmpty(t, entry.Hash)
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{ActionRegisterStation, ActionSubmit, ActionVerify}, actions)
	assert.Equal(t, OPERATOR, string(entries[1].Actor))
	assert.Equal(t, uint64(rid), entries[1].Subject)

	ok, err := e.m.VerifyAudit(1, []byte("forged"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = e.m.VerifyAudit(99, nil)
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	e := newEnv(t)
	sid := e.station(t)
	require.NoError(t, e.m.SetThreshold(call(OWNER, 0, T0), 1, 100, 50))
	r1 := e.submit(t, sid, 120, 1, STAKE, T0)
	r2 := e.submit(t, sid, 30, 1, STAKE, T0)
	require.NoError(t, e.resolve(t, r1, T0+1))
	_, err := e.m.Claim(call(OPERATOR, 0, T0+MAX_TIMEOUT+1), r2)
	require.NoError(t, err)

	state, err := e.m.MarshalState()
	require.NoError(t, err)
	entries := e.m.AuditEntries(0, e.m.AuditLen())

	f := newEnv(t)
	require.NoError(t, f.m.Restore(state, entries))
	again, err := f.m.MarshalState()
	require.NoError(t, err)
	assert.JSONEq(t, string(state), string(again))
	assert.Equal(t, e.m.Status(), f.m.Status())
	assert.Equal(t, e.m.AuditLen(), f.m.AuditLen())

	rep, err := f.m.Report(r1)
	require.NoError(t, err)
	assert.Equal(t, Verified, rep.State)
	assert.Equal(t, uint64(126), rep.Reading.Level)
	assert.Equal(t, mustReport(t, e.m, r1).Level.Handle(), rep.Level.Handle(), "ciphertext handles survive")
	assert.True(t, f.m.Threshold(1).IsSet)
	assert.True(t, f.m.IsOperator(OPERATOR))

	assert.Equal(t, r2, f.m.LastReportId)

	// ids continue once the oracle resumes numbering
	f.oracle.Resume(f.m.LastRequestId())
	rid := f.submit(t, sid, 10, 1, STAKE, T0+10)
	assert.Equal(t, r2+1, rid)

	assert.Error(t, f.m.Restore([]byte("{"), nil))
	assert.Error(t, f.m.Restore(state, entries[1:]), "audit gap")
}

func mustReport(t *testing.T, m *Monitor, id ReportId) Report {
	r, err := m.Report(id)
	require.NoError(t, err)
	return r
}
