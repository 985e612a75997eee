// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"blockwatch.cc/envmon/pkg/audit"
	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/fhe"
	"blockwatch.cc/envmon/pkg/gateway"
)

const (
	MIN_STAKE       = chain.Milli  // 0.001
	MAX_STAKE       = chain.Unit   // 1.0
	MAX_TIMEOUT     = 24 * 60 * 60 // processing deadline in seconds
	GATEWAY_TIMEOUT = 60 * 60      // oracle deadline in seconds
	FEE_RATE_BPS    = 100          // protocol fee kept on refunds
	NOISE_BPS       = 10500        // public readings are scaled by 1.05
)

type StationId uint64

type ReportId uint64

type Category uint64

type ReportState uint8

const (
	Pending ReportState = iota
	Verified
	Failed
	Refunded
)

func (s ReportState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	case Refunded:
		return "refunded"
	default:
		return "invalid"
	}
}

func (s ReportState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ReportState) UnmarshalText(buf []byte) error {
	switch string(buf) {
	case "pending":
		*s = Pending
	case "verified":
		*s = Verified
	case "failed":
		*s = Failed
	case "refunded":
		*s = Refunded
	default:
		return ErrInvalidState
	}
	return nil
}

// Params are the economic and timing parameters of a deployment.
type Params struct {
	MinStake       chain.Money `yaml:"min_stake" json:"min_stake"`
	MaxStake       chain.Money `yaml:"max_stake" json:"max_stake"`
	MaxTimeout     int64       `yaml:"max_timeout" json:"max_timeout"`
	GatewayTimeout int64       `yaml:"gateway_timeout" json:"gateway_timeout"`
	FeeRateBips    int         `yaml:"fee_rate_bips" json:"fee_rate_bips"`
	NoiseBips      int         `yaml:"noise_bips" json:"noise_bips"`
}

func DefaultParams() Params {
	return Params{
		MinStake:       MIN_STAKE,
		MaxStake:       MAX_STAKE,
		MaxTimeout:     MAX_TIMEOUT,
		GatewayTimeout: GATEWAY_TIMEOUT,
		FeeRateBips:    FEE_RATE_BPS,
		NoiseBips:      NOISE_BPS,
	}
}

func (p Params) Validate() error {
	switch {
	case p.MinStake == 0 || p.MinStake > p.MaxStake:
		return ErrInvalidParams.withMsg("stake bounds")
	case p.MaxTimeout <= 0 || p.GatewayTimeout <= 0:
		return ErrInvalidParams.withMsg("timeouts must be positive")
	case p.FeeRateBips < 0 || p.FeeRateBips > 10000:
		return ErrInvalidParams.withMsg("fee rate out of range")
	case p.NoiseBips <= 0:
		return ErrInvalidParams.withMsg("noise factor must be positive")
	}
	return nil
}

type Station struct {
	Id           StationId       `json:"id"`
	Location     string          `json:"location"`
	Operator     chain.AccountID `json:"operator"`
	Active       bool            `json:"active"`
	RegisteredAt int64           `json:"registered_at"`
	LastReading  uint64          `json:"last_reading"` // noised
	LastUpdateAt int64           `json:"last_update_at"`
	TotalStaked  chain.Money     `json:"total_staked"` // cumulative
}

// EncryptedInput is an externally encrypted value and its input proof.
type EncryptedInput struct {
	Handle []byte `json:"handle"`
	Proof  []byte `json:"proof"`
}

// Reading holds the noised plaintext of a verified report.
type Reading struct {
	Level      uint64   `json:"level"`
	Category   Category `json:"category"`
	Severity   uint64   `json:"severity"`
	RevealedAt int64    `json:"revealed_at"`
}

type Report struct {
	Id                 ReportId          `json:"id"`
	StationId          StationId         `json:"station_id"`
	Level              fhe.Value         `json:"level"`
	Category           fhe.Value         `json:"category"`
	Severity           fhe.Value         `json:"severity"`
	Reporter           chain.AccountID   `json:"reporter"`
	SubmittedAt        int64             `json:"submitted_at"`
	Stake              chain.Money       `json:"stake"`
	State              ReportState       `json:"state"`
	RequestId          gateway.RequestID `json:"request_id"`
	ProcessingDeadline int64             `json:"processing_deadline"`
	OracleDeadline     int64             `json:"oracle_deadline"`
	RefundClaimed      bool              `json:"refund_claimed"`
	Reading            *Reading          `json:"reading,omitempty"`
}

type GatewayRequest struct {
	RequestId   gateway.RequestID `json:"request_id"`
	ReportId    ReportId          `json:"report_id"`
	Requester   chain.AccountID   `json:"requester"`
	RequestedAt int64             `json:"requested_at"`
	Completed   bool              `json:"completed"`
	Failed      bool              `json:"failed"`
}

type AlertThreshold struct {
	Category      Category `json:"category"`
	CriticalLevel uint64   `json:"critical_level"`
	WarningLevel  uint64   `json:"warning_level"`
	IsSet         bool     `json:"is_set"`
}

// Status is the aggregate view used by dashboards.
type Status struct {
	Owner     chain.AccountID `json:"owner"`
	Stations  uint64          `json:"stations"`
	Reports   uint64          `json:"reports"`
	Fees      chain.Money     `json:"fees"`
	Paused    bool            `json:"paused"`
	Operators int             `json:"operators"`
}

// Persisted contract state
type ContractState struct {
	// access control
	Owner     chain.AccountID          `json:"owner"`
	Operators map[chain.AccountID]bool `json:"operators"`
	Paused    bool                     `json:"paused"`
	Params    Params                   `json:"params"`

	// registries (ids start at 1)
	LastStationId StationId                             `json:"last_station_id"`
	Stations      map[StationId]*Station                `json:"stations"`
	LastReportId  ReportId                              `json:"last_report_id"`
	Reports       map[ReportId]*Report                  `json:"reports"`
	Requests      map[gateway.RequestID]*GatewayRequest `json:"requests"` // correlation request -> report
	Thresholds    map[Category]*AlertThreshold          `json:"thresholds"`

	// stake ledger
	ReporterStakes map[chain.AccountID]chain.Money `json:"reporter_stakes"`
	Fees           chain.Money                     `json:"fees"`            // accumulated, not yet withdrawn
	TotalReceived  chain.Money                     `json:"total_received"`  // all stakes ever attached
	TotalRefunded  chain.Money                     `json:"total_refunded"`  // refunds paid out
	TotalWithdrawn chain.Money                     `json:"total_withdrawn"` // fees paid out
}

func (s *ContractState) init() {
	if s.Operators == nil {
		s.Operators = make(map[chain.AccountID]bool)
	}
	if s.Stations == nil {
		s.Stations = make(map[StationId]*Station)
	}
	if s.Reports == nil {
		s.Reports = make(map[ReportId]*Report)
	}
	if s.Requests == nil {
		s.Requests = make(map[gateway.RequestID]*GatewayRequest)
	}
	if s.Thresholds == nil {
		s.Thresholds = make(map[Category]*AlertThreshold)
	}
	if s.ReporterStakes == nil {
		s.ReporterStakes = make(map[chain.AccountID]chain.Money)
	}
}

type Contract interface {
	// Grants the operator role
	// Called by: owner
	AddOperator(ctx chain.CallContext, account chain.AccountID) error

	// Revokes the operator role
	// Called by: owner
	RemoveOperator(ctx chain.CallContext, account chain.AccountID) error

	// Hands the contract to a new owner
	// Called by: owner
	TransferOwnership(ctx chain.CallContext, account chain.AccountID) error

	// Stops new submissions; refunds and callbacks keep working
	// Called by: owner
	Pause(ctx chain.CallContext) error
	Unpause(ctx chain.CallContext) error

	// Registers a monitoring station and grants its operator the operator role
	// Called by: owner
	RegisterStation(ctx chain.CallContext, location string, operator chain.AccountID) (StationId, error)

	// Toggles a station
	// Called by: owner
	DeactivateStation(ctx chain.CallContext, id StationId) error
	ReactivateStation(ctx chain.CallContext, id StationId) error

	// Submits an encrypted report with the attached stake and requests its decryption
	// Called by: operator
	Submit(ctx chain.CallContext, id StationId, level, category, severity EncryptedInput) (ReportId, error)

	// Forces a pending report into verified state after out-of-band
	// confirmation. Failed reports stay failed and remain refundable.
	// Called by: owner
	ManualVerify(ctx chain.CallContext, id ReportId) error

	// Delivers decrypted plaintext for a pending request
	// Called by: oracle
	OnCallback(ctx chain.CallContext, id gateway.RequestID, bundle, proof []byte) error

	// Reports a failed decryption for a pending request
	// Called by: oracle
	OnCallbackFailure(ctx chain.CallContext, id gateway.RequestID, proof []byte) error

	// Upserts the alert levels of a pollutant category
	// Called by: owner
	SetThreshold(ctx chain.CallContext, category Category, critical, warning uint64) error

	// Checks whether the caller may claim a refund now
	// Called by: anyone
	CanClaim(ctx chain.CallContext, id ReportId) (bool, string)

	// Pays back the stake minus protocol fee of a failed or timed out report
	// Called by: reporter
	Claim(ctx chain.CallContext, id ReportId) (chain.Money, error)

	// Sends accumulated protocol fees
	// Called by: owner
	WithdrawFees(ctx chain.CallContext, to chain.AccountID) (chain.Money, error)

	// Read-only views
	Station(id StationId) (Station, error)
	Report(id ReportId) (Report, error)
	Request(id gateway.RequestID) (GatewayRequest, error)
	Threshold(category Category) AlertThreshold
	ReporterStake(account chain.AccountID) chain.Money
	IsOperator(account chain.AccountID) bool
	Status() Status
	AuditEntry(idx uint64) (audit.Entry, error)
	AuditEntries(from, limit uint64) []audit.Entry
}
