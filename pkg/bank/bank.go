// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Package bank keeps native balances for a node running the contract
// in-process. The contract account's balance is the value it holds.
package bank

import (
	"errors"
	"math"
	"sync"

	"blockwatch.cc/envmon/pkg/chain"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAccount    = errors.New("bank: invalid account")
	ErrOverflow          = errors.New("bank: balance overflow")
)

type Ledger struct {
	mu       sync.Mutex
	account  chain.AccountID
	balances map[chain.AccountID]chain.Money
}

var _ chain.Transferer = (*Ledger)(nil)

func New(account chain.AccountID) *Ledger {
	return &Ledger{
		account:  account,
		balances: make(map[chain.AccountID]chain.Money),
	}
}

// Account is the contract account whose funds Transfer spends.
func (l *Ledger) Account() chain.AccountID {
	return l.account
}

func (l *Ledger) Balance(a chain.AccountID) chain.Money {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[a]
}

// Mint credits new funds, used as a faucet on development nodes.
func (l *Ledger) Mint(to chain.AccountID, amount chain.Money) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !to.IsValid() {
		return ErrInvalidAccount
	}
	if l.balances[to] > math.MaxUint64-amount {
		return ErrOverflow
	}
	l.balances[to] += amount
	return nil
}

// Pay moves funds between two accounts, e.g. a stake attached to a call.
func (l *Ledger) Pay(from, to chain.AccountID, amount chain.Money) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// Transfer pays out of the contract account.
func (l *Ledger) Transfer(to chain.AccountID, amount chain.Money) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(l.account, to, amount)
}

func (l *Ledger) move(from, to chain.AccountID, amount chain.Money) error {
	if !to.IsValid() || !from.IsValid() {
		return ErrInvalidAccount
	}
	if l.balances[from] < amount {
		return ErrInsufficientFunds
	}
	if l.balances[to] > math.MaxUint64-amount {
		return ErrOverflow
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
