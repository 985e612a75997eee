// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package chain

import (
	"errors"
	"math/bits"
	"strconv"
	"strings"
)

type AccountID string

// ZeroAccount is the null identity, never a valid operator or payout target.
const ZeroAccount AccountID = "0x0000000000000000000000000000000000000000"

func (a AccountID) IsValid() bool {
	return a != "" && a != ZeroAccount
}

func (a AccountID) String() string {
	return string(a)
}

// Money is denominated in the smallest native unit (10^-18).
type Money uint64

const (
	Unit  Money = 1_000_000_000_000_000_000
	Milli Money = Unit / 1000
)

func (m Money) Mul(n int) Money {
	return m * Money(n)
}

// Bips returns m * bips / 10000 without intermediate overflow. bips must be
// within [0, 10000].
func (m Money) Bips(bips int) Money {
	hi, lo := bits.Mul64(uint64(m), uint64(bips))
	q, _ := bits.Div64(hi, lo, 10000)
	return Money(q)
}

var ErrInvalidMoney = errors.New("chain: invalid amount")

// ParseMoney reads a decimal amount in whole units, e.g. "0.01".
func ParseMoney(s string) (Money, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" && frac == "" || len(frac) > 18 {
		return 0, ErrInvalidMoney
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil || w > uint64(^Money(0)/Unit) {
		return 0, ErrInvalidMoney
	}
	var f uint64
	if frac != "" {
		if f, err = strconv.ParseUint(frac+strings.Repeat("0", 18-len(frac)), 10, 64); err != nil {
			return 0, ErrInvalidMoney
		}
	}
	m := Money(w) * Unit
	if m+Money(f) < m {
		return 0, ErrInvalidMoney
	}
	return m + Money(f), nil
}

func (m Money) String() string {
	return strconv.FormatUint(uint64(m), 10)
}

// Transaction context available during contract execution
type CallContext struct {
	Caller AccountID // signer account id
	Amount Money     // attached value
	Time   int64     // block time in unix seconds
}

// Transferer moves native value out of the contract account.
type Transferer interface {
	Transfer(to AccountID, amount Money) error
}
