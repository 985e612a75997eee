// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/chain"
)

// Upserts alert levels for a pollutant category.
// Called by: owner
func (m *Monitor) SetThreshold(ctx chain.CallContext, category Category, critical, warning uint64) error {
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
	if critical <= warning {
		return ErrInvalidThreshold
	}
	t := &AlertThreshold{
		Category:      category,
		CriticalLevel: critical,
		WarningLevel:  warning,
		IsSet:         true,
	}
	m.Thresholds[category] = t
	m.record(ctx, ActionSetThreshold, uint64(category), t)
	m.emit(Event{Type: EventThresholdSet, Actor: ctx.Caller, Time: ctx.Time, Category: category, Level: warning})
	return nil
}

// evaluate raises an alert when a revealed level reaches the warning level
// of its category. Critical levels are always above warning levels, so one
// comparison covers both. Unconfigured categories never alert.
func (m *Monitor) evaluate(ctx chain.CallContext, station StationId, report ReportId, category Category, level uint64) bool {
	t, ok := m.Thresholds[category]
	if !ok || !t.IsSet || level < t.WarningLevel {
		return false
	}
	m.record(ctx, ActionAlert, uint64(station), struct {
		Report   ReportId `json:"report"`
		Category Category `json:"category"`
		Level    uint64   `json:"level"`
	}{report, category, level})
	m.emit(Event{
		Type:      EventAlertTriggered,
		Actor:     ctx.Caller,
		Time:      ctx.Time,
		StationId: station,
		ReportId:  report,
		Category:  category,
		Level:     level,
	})
	log.Infof("envmon: alert station=%d category=%d level=%d", station, category, level)
	return true
}
