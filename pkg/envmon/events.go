// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/gateway"
)

type EventType uint8

const (
	EventStationRegistered EventType = iota + 1
	EventStationDeactivated
	EventStationReactivated
	EventReportSubmitted
	EventDecryptionRequested
	EventReportVerified
	EventReportFailed
	EventAlertTriggered
	EventRefundClaimed
	EventFeesWithdrawn
	EventThresholdSet
	EventOperatorAdded
	EventOperatorRemoved
	EventOwnershipTransferred
	EventPaused
	EventUnpaused
)

var eventNames = map[EventType]string{
	EventStationRegistered:    "station_registered",
	EventStationDeactivated:   "station_deactivated",
	EventStationReactivated:   "station_reactivated",
	EventReportSubmitted:      "report_submitted",
	EventDecryptionRequested:  "decryption_requested",
	EventReportVerified:       "report_verified",
	EventReportFailed:         "report_failed",
	EventAlertTriggered:       "alert_triggered",
	EventRefundClaimed:        "refund_claimed",
	EventFeesWithdrawn:        "fees_withdrawn",
	EventThresholdSet:         "threshold_set",
	EventOperatorAdded:        "operator_added",
	EventOperatorRemoved:      "operator_removed",
	EventOwnershipTransferred: "ownership_transferred",
	EventPaused:               "paused",
	EventUnpaused:             "unpaused",
}

func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is emitted after a successful state change. Fields not relevant to
// the event type are zero.
type Event struct {
	Type      EventType         `json:"type"`
	Actor     chain.AccountID   `json:"actor"`
	Time      int64             `json:"time"`
	StationId StationId         `json:"station_id,omitempty"`
	ReportId  ReportId          `json:"report_id,omitempty"`
	RequestId gateway.RequestID `json:"request_id,omitempty"`
	Category  Category          `json:"category,omitempty"`
	Level     uint64            `json:"level,omitempty"`
	Amount    chain.Money       `json:"amount,omitempty"`
	Account   chain.AccountID   `json:"account,omitempty"`
}

type Listener interface {
	OnEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) {
	f(e)
}
