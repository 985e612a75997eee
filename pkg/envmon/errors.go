// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package envmon

import (
	"errors"
)

// Kind tells clients whether to retry, wait or give up.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindNotFound
	KindConflict
	KindTimeout
	KindExternal
	KindReentrancy
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	case KindExternal:
		return "external"
	case KindReentrancy:
		return "reentrancy"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code so wrapped copies of a sentinel compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

func (e *Error) withMsg(msg string) *Error {
	c := *e
	c.Msg = e.Msg + ": " + msg
	return &c
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	// authorization
	ErrNotOwner    = newError(KindAuthorization, "not_owner", "caller is not the owner")
	ErrNotOperator = newError(KindAuthorization, "not_operator", "caller is not an operator")
	ErrNotReporter = newError(KindAuthorization, "not_reporter", "caller is not the reporter")

	// validation
	ErrEmptyLocation    = newError(KindValidation, "empty_location", "location is empty")
	ErrInvalidAccount   = newError(KindValidation, "invalid_account", "invalid account")
	ErrStakeTooLow      = newError(KindValidation, "stake_too_low", "stake below minimum")
	ErrStakeTooHigh     = newError(KindValidation, "stake_too_high", "stake above maximum")
	ErrInvalidThreshold = newError(KindValidation, "invalid_threshold", "critical level must exceed warning level")
	ErrInvalidProof     = newError(KindValidation, "invalid_proof", "invalid input proof")
	ErrInvalidParams    = newError(KindValidation, "invalid_params", "invalid parameters")
	ErrInvalidState     = newError(KindValidation, "invalid_state", "invalid report state")
	ErrNotPayable       = newError(KindValidation, "not_payable", "method does not accept a deposit")

	// not found
	ErrStationNotFound = newError(KindNotFound, "station_not_found", "station does not exist")
	ErrReportNotFound  = newError(KindNotFound, "report_not_found", "report does not exist")
	ErrUnknownRequest  = newError(KindNotFound, "unknown_request", "unknown gateway request")

	// state conflict
	ErrAlreadyActive    = newError(KindConflict, "already_active", "station is already active")
	ErrAlreadyInactive  = newError(KindConflict, "already_inactive", "station is already inactive")
	ErrStationInactive  = newError(KindConflict, "station_inactive", "station is not active")
	ErrAlreadyVerified  = newError(KindConflict, "already_verified", "report is already verified")
	ErrAlreadyRefunded  = newError(KindConflict, "already_refunded", "refund already claimed")
	ErrNotPending       = newError(KindConflict, "not_pending", "report is not pending")
	ErrStaleRequest     = newError(KindConflict, "stale_request", "gateway request is no longer pending")
	ErrPaused           = newError(KindConflict, "paused", "contract is paused")
	ErrNotPaused        = newError(KindConflict, "not_paused", "contract is not paused")
	ErrNoFees           = newError(KindConflict, "no_fees", "no fees to withdraw")
	ErrAlreadyOperator  = newError(KindConflict, "already_operator", "account is already an operator")
	ErrNoOperator       = newError(KindConflict, "no_operator", "account is not an operator")
	ErrRequestCollision = newError(KindConflict, "request_collision", "gateway request id already in use")

	// timeout not reached yet
	ErrRefundUnavailable = newError(KindTimeout, "refund_unavailable", "refund not available yet")

	// external
	ErrInvalidGatewayProof = newError(KindExternal, "invalid_gateway_proof", "invalid gateway proof")
	ErrOracleUnavailable   = newError(KindExternal, "oracle_unavailable", "decryption request failed")
	ErrTransferFailed      = newError(KindExternal, "transfer_failed", "fund transfer failed")

	// reentrancy
	ErrReentrantCall = newError(KindReentrancy, "reentrant_call", "reentrant call")
)

// KindOf returns the kind of a contract error or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable is true when repeating the same call later may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindExternal, KindTimeout, KindReentrancy:
		return true
	default:
		return false
	}
}
