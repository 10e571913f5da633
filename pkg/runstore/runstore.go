/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package runstore archives run artifacts (run metadata and verification
// findings) in a badger key-value store, so surrounding tooling can
// inspect results across runs. Depending on your deployment this may or
// may not be the right retention policy; it is deliberately simple.
package runstore

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/types"
)

// RunMeta summarizes one completed run.
type RunMeta struct {
	RunID    uuid.UUID `json:"runId"`
	Seed     int64     `json:"seed"`
	Ticks    uint64    `json:"ticks"`
	Matches  uint64    `json:"matches"`
	Findings int       `json:"findings"`
}

func runKey(runID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("run-%s", runID))
}

func findingKey(runID uuid.UUID, n int) []byte {
	return []byte(fmt.Sprintf("finding-%s-%010d", runID, n))
}

func findingPrefix(runID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("finding-%s-", runID))
}

// Store is a badger-backed run artifact store.
type Store struct {
	db *badger.DB
}

// Open opens a store at dirPath. An empty path opens an in-memory store,
// which is what tests use.
func Open(dirPath string) (*Store, error) {
	var badgerOpts badger.Options
	if dirPath == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(dirPath).WithSyncWrites(false).WithTruncate(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.WithMessage(err, "could not open backing db")
	}

	return &Store{db: db}, nil
}

// PutRun records run metadata.
func (s *Store) PutRun(meta *RunMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.WithMessage(err, "could not marshal run metadata")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(meta.RunID), data)
	})
}

// GetRun fetches run metadata by id.
func (s *Store) GetRun(runID uuid.UUID) (*RunMeta, error) {
	meta := &RunMeta{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, meta)
		})
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "could not fetch run %s", runID)
	}
	return meta, nil
}

// PutFindings records a run's findings, numbered in report order.
func (s *Store) PutFindings(runID uuid.UUID, findings []status.Finding) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for n, f := range findings {
			data, err := json.Marshal(f)
			if err != nil {
				return errors.WithMessage(err, "could not marshal finding")
			}
			if err := txn.Set(findingKey(runID, n), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Findings returns a run's findings in report order, optionally filtered
// by channel ("" matches all).
func (s *Store) Findings(runID uuid.UUID, channel types.ChannelID) ([]status.Finding, error) {
	var findings []status.Finding
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = findingPrefix(runID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var f status.Finding
				if err := json.Unmarshal(val, &f); err != nil {
					return err
				}
				if channel == "" || f.Channel == channel {
					findings = append(findings, f)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "could not iterate findings for run %s", runID)
	}
	return findings, nil
}

// Sync flushes the store to stable storage.
func (s *Store) Sync() error {
	return s.db.Sync()
}

// Close closes the backing db.
func (s *Store) Close() error {
	return s.db.Close()
}
