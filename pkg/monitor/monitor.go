/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package monitor implements the monitor engine: a per-edge sampling loop
// that converts interface-level activity into transactions. Monitors are
// non-blocking by construction: an edge is either captured or it is not,
// and a missed capture is never retried.
package monitor

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/driver"
	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

// CaptureFn samples the interface on one clock edge. It returns the
// captured fields and true when the interface-specific capture predicate
// holds (e.g. simultaneous valid and ready), or false to skip the edge.
type CaptureFn func(io driver.IO) (transaction.Fields, bool)

// Dest receives every captured transaction. Destinations are registered
// at setup; a scoreboard channel, the event bus, and free-form callbacks
// are all expressed as Dest functions.
type Dest func(now types.Tick, txn *transaction.Transaction)

// Monitor continuously samples one interface.
type Monitor struct {
	id      types.MonitorID
	io      driver.IO
	reset   func() bool
	capture CaptureFn
	dests   []Dest
	stamper *transaction.Stamper
	logger  logging.Logger

	captured uint64
}

// New constructs a monitor. The interface must be bound; reset may be nil
// when the bench has no reset signal.
func New(id types.MonitorID, io driver.IO, reset func() bool, capture CaptureFn,
	stamper *transaction.Stamper, logger logging.Logger) (*Monitor, error) {

	if io == nil {
		return nil, errors.Errorf("monitor %s not bound to an interface", id)
	}
	if capture == nil {
		return nil, errors.Errorf("monitor %s requires a capture callback", id)
	}
	return &Monitor{
		id:      id,
		io:      io,
		reset:   reset,
		capture: capture,
		stamper: stamper,
		logger:  logging.Named(logger, "monitor/"+string(id)),
	}, nil
}

// ID returns the monitor's identity.
func (m *Monitor) ID() types.MonitorID {
	return m.id
}

// Captured returns the number of transactions produced so far.
func (m *Monitor) Captured() uint64 {
	return m.captured
}

// AddDest registers a destination for captured transactions. Setup-time
// only, never concurrent with Run.
func (m *Monitor) AddDest(dest Dest) {
	m.dests = append(m.dests, dest)
}

// Run is the monitor's cooperative loop: suspend until the next clock
// edge, skip the edge while reset is asserted, otherwise sample and fan
// out at most one transaction.
func (m *Monitor) Run(ctx *sched.TaskCtx) error {
	for {
		if err := ctx.WaitEdge(); err != nil {
			return err
		}
		if m.reset != nil && m.reset() {
			continue
		}

		fields, ok := m.capture(m.io)
		if !ok {
			continue
		}

		txn := transaction.New(fields)
		if err := m.stamper.Stamp(txn, ctx.Now(), string(m.id)); err != nil {
			return err
		}
		m.captured++
		m.logger.Debug("captured", zap.Uint64("seq", uint64(txn.Seq())), zap.Uint64("tick", uint64(ctx.Now())))

		for _, dest := range m.dests {
			dest(ctx.Now(), txn)
		}
	}
}
