/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package scoreboard

import (
	"strings"

	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

// State is the per-channel matching state, derived from queue occupancy.
type State int

const (
	// Empty means both queues are drained.
	Empty State = iota

	// ReferencePending means a reference transaction awaits its actual.
	ReferencePending

	// ActualPending means an actual transaction awaits its reference.
	ActualPending
)

func (s State) String() string {
	switch s {
	case ReferencePending:
		return "REFERENCE_PENDING"
	case ActualPending:
		return "ACTUAL_PENDING"
	default:
		return "EMPTY"
	}
}

// Predicate decides whether a reference and an actual transaction match.
type Predicate func(ref, act *transaction.Transaction) bool

// FieldEqual is the default predicate: field-wise equality.
func FieldEqual(ref, act *transaction.Transaction) bool {
	return ref.Equal(act)
}

type entry struct {
	txn *transaction.Transaction
	at  types.Tick
}

// Channel matches reference transactions against actual transactions
// within a bounded reorder window. Every transaction entering the channel
// is consumed exactly once: matched, reported as a mismatch, or reported
// as a timeout.
type Channel struct {
	id        types.ChannelID
	window    types.Tick
	predicate Predicate
	reporter  *status.Reporter
	logger    logging.Logger

	refQ []entry
	actQ []entry

	matches uint64
	onMatch func(now types.Tick, ref, act *transaction.Transaction)
}

func newChannel(id types.ChannelID, window types.Tick, predicate Predicate,
	reporter *status.Reporter, logger logging.Logger) *Channel {

	if predicate == nil {
		predicate = FieldEqual
	}
	return &Channel{
		id:        id,
		window:    window,
		predicate: predicate,
		reporter:  reporter,
		logger:    logging.Named(logger, "scoreboard/"+string(id)),
	}
}

// ID returns the channel's identity.
func (c *Channel) ID() types.ChannelID {
	return c.id
}

// Window returns the configured match window W.
func (c *Channel) Window() types.Tick {
	return c.window
}

// Matches returns the number of matched pairs so far.
func (c *Channel) Matches() uint64 {
	return c.matches
}

// State derives the channel's matching state. Both queues non-empty is
// transient: matching drains it before any push returns.
func (c *Channel) State() State {
	switch {
	case len(c.refQ) > 0:
		return ReferencePending
	case len(c.actQ) > 0:
		return ActualPending
	default:
		return Empty
	}
}

// Depths returns the reference and actual queue depths.
func (c *Channel) Depths() (ref, act int) {
	return len(c.refQ), len(c.actQ)
}

// PushReference appends an expected transaction and attempts matching.
func (c *Channel) PushReference(now types.Tick, txn *transaction.Transaction) {
	c.refQ = append(c.refQ, entry{txn: txn, at: now})
	c.match(now)
}

// PushActual appends an observed transaction and attempts matching.
func (c *Channel) PushActual(now types.Tick, txn *transaction.Transaction) {
	c.actQ = append(c.actQ, entry{txn: txn, at: now})
	c.match(now)
}

// match pops head pairs while both queues are non-empty, classifying each
// pair as a match or a mismatch. Queue order resolves same-tick pushes:
// whichever push happened first is first in its queue.
func (c *Channel) match(now types.Tick) {
	for len(c.refQ) > 0 && len(c.actQ) > 0 {
		ref := c.refQ[0]
		act := c.actQ[0]
		c.refQ = c.refQ[1:]
		c.actQ = c.actQ[1:]

		if c.predicate(ref.txn, act.txn) {
			c.matches++
			c.logger.Debug("match",
				zap.Uint64("refSeq", uint64(ref.txn.Seq())),
				zap.Uint64("actSeq", uint64(act.txn.Seq())),
				zap.Uint64("tick", uint64(now)))
			if c.onMatch != nil {
				c.onMatch(now, ref.txn, act.txn)
			}
			continue
		}

		c.reporter.Report(status.Finding{
			Kind:    status.Mismatch,
			Channel: c.id,
			Seq:     ref.txn.Seq(),
			Tick:    now,
			Txn:     ref.txn.String(),
			Detail:  "actual " + act.txn.String() + "; diff: " + strings.Join(ref.txn.Diff(act.txn), ", "),
		})
	}
}

// expire reports a timeout for every head entry whose age has reached the
// match window, consuming it. Called once per clock edge.
func (c *Channel) expire(now types.Tick) {
	for len(c.refQ) > 0 && now-c.refQ[0].at >= c.window {
		e := c.refQ[0]
		c.refQ = c.refQ[1:]
		c.reporter.Report(status.Finding{
			Kind:    status.MatchTimeout,
			Channel: c.id,
			Seq:     e.txn.Seq(),
			Tick:    now,
			Age:     now - e.at,
			Txn:     e.txn.String(),
			Detail:  "reference transaction never matched by an actual",
		})
	}
	for len(c.actQ) > 0 && now-c.actQ[0].at >= c.window {
		e := c.actQ[0]
		c.actQ = c.actQ[1:]
		c.reporter.Report(status.Finding{
			Kind:    status.MatchTimeout,
			Channel: c.id,
			Seq:     e.txn.Seq(),
			Tick:    now,
			Age:     now - e.at,
			Txn:     e.txn.String(),
			Detail:  "actual transaction never matched by a reference",
		})
	}
}

// drain reports every remaining entry as unconsumed and empties the
// channel. Called at test teardown.
func (c *Channel) drain(now types.Tick) {
	for _, e := range c.refQ {
		c.reporter.Report(status.Finding{
			Kind:    status.Unconsumed,
			Channel: c.id,
			Seq:     e.txn.Seq(),
			Tick:    now,
			Age:     now - e.at,
			Txn:     e.txn.String(),
			Detail:  "reference transaction unconsumed at teardown",
		})
	}
	for _, e := range c.actQ {
		c.reporter.Report(status.Finding{
			Kind:    status.Unconsumed,
			Channel: c.id,
			Seq:     e.txn.Seq(),
			Tick:    now,
			Age:     now - e.at,
			Txn:     e.txn.String(),
			Detail:  "actual transaction unconsumed at teardown",
		})
	}
	c.refQ = nil
	c.actQ = nil
}
