// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"strings"

	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/chain"
)

type stationPayload struct {
	Location string          `json:"location,omitempty"`
	Operator chain.AccountID `json:"operator,omitempty"`
	Active   bool            `json:"active"`
}

// Registers a new monitoring station
// Called by: owner
func (m *Monitor) RegisterStation(ctx chain.CallContext, location string, operator chain.AccountID) (StationId, error) {
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
	location = strings.TrimSpace(location)
	if location == "" {
		return 0, ErrEmptyLocation
	}
	if !operator.IsValid() {
		return 0, ErrInvalidAccount.withMsg("operator")
	}

	m.LastStationId++
	id := m.LastStationId
	m.Stations[id] = &Station{
		Id:           id,
		Location:     location,
		Operator:     operator,
		Active:       true,
		RegisteredAt: ctx.Time,
	}

	// the owner passes every operator check without holding the role
	if operator != m.Owner && !m.Operators[operator] {
		m.Operators[operator] = true
		m.emit(Event{Type: EventOperatorAdded, Actor: ctx.Caller, Time: ctx.Time, Account: operator})
	}

	m.record(ctx, ActionRegisterStation, uint64(id), stationPayload{
		Location: location,
		Operator: operator,
		Active:   true,
	})
	m.emit(Event{Type: EventStationRegistered, Actor: ctx.Caller, Time: ctx.Time, StationId: id, Account: operator})
	log.Debugf("envmon: registered station %d %q operator=%s", id, location, operator)
	return id, nil
}

// Called by: owner
func (m *Monitor) DeactivateStation(ctx chain.CallContext, id StationId) error {
	return m.setStationActive(ctx, id, false)
}

// Called by: owner
func (m *Monitor) ReactivateStation(ctx chain.CallContext, id StationId) error {
	return m.setStationActive(ctx, id, true)
}

func (m *Monitor) setStationActive(ctx chain.CallContext, id StationId, active bool) error {
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
	s, ok := m.Stations[id]
	if !ok {
		return ErrStationNotFound
	}
	if s.Active == active {
		if active {
			return ErrAlreadyActive
		}
		return ErrAlreadyInactive
	}
	s.Active = active

	action, typ := ActionDeactivateStation, EventStationDeactivated
	if active {
		action, typ = ActionReactivateStation, EventStationReactivated
	}
	m.record(ctx, action, uint64(id), stationPayload{Active: active})
	m.emit(Event{Type: typ, Actor: ctx.Caller, Time: ctx.Time, StationId: id})
	log.Debugf("envmon: station %d active=%t", id, active)
	return nil
}
