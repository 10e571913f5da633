/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package scoreboard implements out-of-order matching of expected against
// observed transactions on named channels, each with a bounded reorder
// window measured in clock ticks.
package scoreboard

import (
	"github.com/pkg/errors"

	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

// Scoreboard owns the set of matching channels. Channels are created at
// setup; the scoreboard's own task walks them in creation order every
// clock edge to expire aged entries.
type Scoreboard struct {
	reporter *status.Reporter
	logger   logging.Logger

	channels []*Channel
	byID     map[types.ChannelID]*Channel
	onMatch  func(channel types.ChannelID, now types.Tick, ref, act *transaction.Transaction)
}

// New returns an empty scoreboard reporting into the given reporter.
func New(reporter *status.Reporter, logger logging.Logger) *Scoreboard {
	return &Scoreboard{
		reporter: reporter,
		logger:   logger,
		byID:     map[types.ChannelID]*Channel{},
	}
}

// AddChannel creates a channel with the given match window. A nil
// predicate selects field-wise equality.
func (s *Scoreboard) AddChannel(id types.ChannelID, window types.Tick, predicate Predicate) (*Channel, error) {
	if _, dup := s.byID[id]; dup {
		return nil, errors.Errorf("scoreboard channel %s already exists", id)
	}
	c := newChannel(id, window, predicate, s.reporter, s.logger)
	c.onMatch = func(now types.Tick, ref, act *transaction.Transaction) {
		if s.onMatch != nil {
			s.onMatch(id, now, ref, act)
		}
	}
	s.channels = append(s.channels, c)
	s.byID[id] = c
	return c, nil
}

// Channel returns a channel by name, nil if absent.
func (s *Scoreboard) Channel(id types.ChannelID) *Channel {
	return s.byID[id]
}

// Channels returns all channels in creation order.
func (s *Scoreboard) Channels() []*Channel {
	out := make([]*Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// OnMatch registers a callback fired on every successful match, across
// all channels. Setup-time only; used by the bench for tracing.
func (s *Scoreboard) OnMatch(fn func(channel types.ChannelID, now types.Tick, ref, act *transaction.Transaction)) {
	s.onMatch = fn
}

// Run is the scoreboard's cooperative loop: every clock edge, expire aged
// head entries on every channel in creation order.
func (s *Scoreboard) Run(ctx *sched.TaskCtx) error {
	for {
		if err := ctx.WaitEdge(); err != nil {
			return err
		}
		for _, c := range s.channels {
			c.expire(ctx.Now())
		}
	}
}

// Matches sums matched pairs across channels.
func (s *Scoreboard) Matches() uint64 {
	var total uint64
	for _, c := range s.channels {
		total += c.matches
	}
	return total
}

// Drain reports every unconsumed transaction on every channel. Called at
// test teardown; a non-empty channel at teardown is a finding.
func (s *Scoreboard) Drain(now types.Tick) {
	for _, c := range s.channels {
		c.drain(now)
	}
}
