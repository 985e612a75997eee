// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Package audit implements the append-only audit trail. Each entry binds an
// actor and an action on a subject to the content hash (a CIDv1) of the
// payload describing the change.
package audit

import (
	"errors"

	cid "github.com/ipfs/go-cid"
	mc "github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"

	"blockwatch.cc/envmon/pkg/chain"
)

var ErrNoEntry = errors.New("audit: entry does not exist")

type Entry struct {
	Index   uint64          `json:"index"`
	Actor   chain.AccountID `json:"actor"`
	Action  string          `json:"action"`
	Subject uint64          `json:"subject"`
	Hash    string          `json:"hash"`
	Time    int64           `json:"time"`
}

type Log struct {
	prefix  cid.Prefix
	entries []Entry
}

func New() *Log {
	return &Log{
		prefix: cid.Prefix{
			Version:  1,
			Codec:    uint64(mc.Raw),
			MhType:   mh.SHA2_256,
			MhLength: -1, // default length
		},
		entries: make([]Entry, 0),
	}
}

// Hash returns the content hash of a payload.
func (l *Log) Hash(payload []byte) string {
	c, err := l.prefix.Sum(payload)
	if err != nil {
		// only reachable with an unsupported multihash type
		panic(err)
	}
	return c.String()
}

// Append records a new entry and returns its index.
func (l *Log) Append(actor chain.AccountID, action string, subject uint64, payload []byte, now int64) uint64 {
	idx := uint64(len(l.entries))
	l.entries = append(l.entries, Entry{
		Index:   idx,
		Actor:   actor,
		Action:  action,
		Subject: subject,
		Hash:    l.Hash(payload),
		Time:    now,
	})
	return idx
}

func (l *Log) Len() uint64 {
	return uint64(len(l.entries))
}

func (l *Log) Entry(idx uint64) (Entry, error) {
	if idx >= uint64(len(l.entries)) {
		return Entry{}, ErrNoEntry
	}
	return l.entries[idx], nil
}

// Range returns up to limit entries starting at from.
func (l *Log) Range(from, limit uint64) []Entry {
	n := uint64(len(l.entries))
	if from >= n || limit == 0 {
		return []Entry{}
	}
	to := from + limit
	if to > n || to < from {
		to = n
	}
	out := make([]Entry, to-from)
	copy(out, l.entries[from:to])
	return out
}

// Verify checks payload against the hash recorded at idx.
func (l *Log) Verify(idx uint64, payload []byte) (bool, error) {
	e, err := l.Entry(idx)
	if err != nil {
		return false, err
	}
	want, err := cid.Decode(e.Hash)
	if err != nil {
		return false, err
	}
	got, err := want.Prefix().Sum(payload)
	if err != nil {
		return false, err
	}
	return got.Equals(want), nil
}

// Restore replaces the log with previously persisted entries. Indexes must
// be contiguous from zero.
func (l *Log) Restore(entries []Entry) error {
	for i, e := range entries {
		if e.Index != uint64(i) {
			return errors.New("audit: non-contiguous entry index")
		}
		if _, err := cid.Decode(e.Hash); err != nil {
			return err
		}
	}
	l.entries = append(make([]Entry, 0, len(entries)), entries...)
	return nil
}
