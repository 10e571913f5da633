/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package tracelog persists trace records in a write-ahead log on disk,
// giving run tooling random access and retention truncation that the
// streaming trace format cannot offer.
package tracelog

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/wal"

	"github.com/verikit-labs/verikit/pkg/eventlog"
)

// Log is a WAL-backed trace store. It implements eventlog.Sink so a bench
// can record straight into it.
type Log struct {
	mutex sync.Mutex
	log   *wal.Log

	// Index of the next entry to append at the level of the underlying wal.
	idx uint64
}

// Open opens or creates a trace log at path.
func Open(path string) (*Log, error) {
	log, err := wal.Open(path, &wal.Options{
		NoSync: true,
		NoCopy: true,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "could not open trace WAL")
	}

	// The LastIndex obtained from the tidwall implementation happens to be
	// the next index in terms of our abstraction, as the underlying
	// implementation starts counting at 1 and we start at 0.
	idx, err := log.LastIndex()
	if err != nil {
		return nil, errors.WithMessage(err, "failed obtaining last WAL index")
	}

	return &Log{
		log: log,
		idx: idx,
	}, nil
}

// IsEmpty reports whether the log holds no entries.
func (l *Log) IsEmpty() (bool, error) {
	firstIndex, err := l.log.FirstIndex()
	if err != nil {
		return false, errors.WithMessage(err, "could not read first index")
	}
	return firstIndex == 0, nil
}

// Len returns the number of entries in the log.
func (l *Log) Len() uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.idx
}

// Append serializes the record and appends it to the log.
func (l *Log) Append(record *eventlog.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.WithMessage(err, "could not marshal trace record")
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	if err := l.log.Write(l.idx+1, data); err != nil {
		return errors.WithMessagef(err, "could not append trace record %d", l.idx+1)
	}
	l.idx++
	return nil
}

// Intercept implements eventlog.Sink.
func (l *Log) Intercept(record *eventlog.Record) error {
	return l.Append(record)
}

// Iterate invokes fn for every stored record in append order, stopping at
// the first error.
func (l *Log) Iterate(fn func(idx uint64, record *eventlog.Record) error) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	firstIndex, err := l.log.FirstIndex()
	if err != nil {
		return errors.WithMessage(err, "could not read first index")
	}
	if firstIndex == 0 {
		return nil
	}

	lastIndex, err := l.log.LastIndex()
	if err != nil {
		return errors.WithMessage(err, "could not read last index")
	}

	for i := firstIndex; i <= lastIndex; i++ {
		data, err := l.log.Read(i)
		if err != nil {
			return errors.WithMessagef(err, "could not read entry %d", i)
		}
		record := &eventlog.Record{}
		if err := json.Unmarshal(data, record); err != nil {
			return errors.WithMessagef(err, "could not unmarshal entry %d", i)
		}
		if err := fn(i-1, record); err != nil {
			return err
		}
	}
	return nil
}

// TruncateFront drops all entries before the given zero-based index,
// retaining it and everything after.
func (l *Log) TruncateFront(idx uint64) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return errors.WithMessage(l.log.TruncateFront(idx+1), "could not truncate trace WAL")
}

// Sync flushes the log to stable storage.
func (l *Log) Sync() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return errors.WithMessage(l.log.Sync(), "could not sync trace WAL")
}

// Close closes the underlying log.
func (l *Log) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return errors.WithMessage(l.log.Close(), "could not close trace WAL")
}
