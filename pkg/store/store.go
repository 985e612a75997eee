// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/audit"
	"blockwatch.cc/envmon/pkg/db"
	"blockwatch.cc/envmon/pkg/db/pebble"
	"blockwatch.cc/envmon/pkg/envmon"
)

var ErrNoSnapshot = errors.New("store: no snapshot")

const (
	keyState    = "state"
	prefixAudit = "audit/"
)

func auditKey(idx uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixAudit, idx))
}

// Snapshot persists contract state and the append-only audit trail. Audit
// entries are written once; later saves only add the new tail.
type Snapshot struct {
	db.KVStore
	saved uint64
}

func New(kv db.KVStore) *Snapshot {
	return &Snapshot{KVStore: kv}
}

// Save writes the current state and all audit entries not yet persisted
// in one atomic batch.
func (s *Snapshot) Save(m *envmon.Monitor) error {
	state, err := m.MarshalState()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	n := m.AuditLen()
	batch := s.NewBatch()
	defer batch.Close()
	if err := batch.Put([]byte(keyState), state); err != nil {
		return err
	}
	if n > s.saved {
		for _, e := range m.AuditEntries(s.saved, n-s.saved) {
			buf, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal audit entry %d: %w", e.Index, err)
			}
			if err := batch.Put(auditKey(e.Index), buf); err != nil {
				return err
			}
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	log.Debugf("store: saved state (%d bytes) audit %d..%d", len(state), s.saved, n)
	s.saved = n
	return nil
}

// Load restores the last saved snapshot into m.
func (s *Snapshot) Load(m *envmon.Monitor) error {
	state, err := s.Get([]byte(keyState))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNoSnapshot
		}
		return err
	}
	entries, err := s.loadAudit()
	if err != nil {
		return err
	}
	if err := m.Restore(state, entries); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	s.saved = uint64(len(entries))
	log.Infof("store: restored %d reports, %d audit entries", m.LastReportId, len(entries))
	return nil
}

func (s *Snapshot) loadAudit() ([]audit.Entry, error) {
	// '/' + 1 bounds the prefix range
	it, err := s.NewIterator([]byte(prefixAudit), []byte("audit0"))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	entries := make([]audit.Entry, 0)
	for it.Next() {
		buf, err := it.Value()
		if err != nil {
			return nil, err
		}
		var e audit.Entry
		if err := json.Unmarshal(buf, &e); err != nil {
			return nil, fmt.Errorf("unmarshal audit entry %s: %w", it.Key(), err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
