/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package bench

import (
	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/verikit-labs/verikit/pkg/runstore"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/types"
)

// Result summarizes a completed run.
type Result struct {
	RunID    uuid.UUID
	Seed     int64
	Ticks    types.Tick
	Matches  uint64
	Findings []status.Finding

	// TaskErrs holds fatal task exit errors other than cancellation.
	TaskErrs []error
}

// Failed reports whether the run produced any finding or task error.
func (r *Result) Failed() bool {
	return len(r.Findings) > 0 || len(r.TaskErrs) > 0
}

// Teardown cancels all tasks (unwinding held locks and recording aborted
// deliveries), drains the scoreboard, checks every blocking driver's
// queue, and archives the run when a store is configured. It is
// idempotent in effect but meant to be called exactly once, after the
// final Run.
func (b *Bench) Teardown() (*Result, error) {
	if b.tornDown {
		return nil, errors.New("bench already torn down")
	}
	b.tornDown = true

	now := b.scheduler.Now()
	b.scheduler.Shutdown()

	// Unconsumed transactions: a reportable error for every blocking
	// driver queue and every scoreboard channel still holding entries.
	for _, d := range b.driverOrder {
		if d.NonBlocking() {
			continue
		}
		for _, txn := range d.Pending() {
			b.reporter.Report(status.Finding{
				Kind:   status.Unconsumed,
				Driver: d.ID(),
				Seq:    txn.Seq(),
				Tick:   now,
				Age:    now - txn.CreatedAt(),
				Txn:    txn.String(),
				Detail: "transaction still queued at teardown",
			})
		}
	}
	b.sb.Drain(now)

	result := &Result{
		RunID:    b.runID,
		Seed:     b.cfg.Seed,
		Ticks:    now,
		Matches:  b.sb.Matches(),
		Findings: b.reporter.Findings(),
		TaskErrs: b.scheduler.Errs(),
	}

	if b.cfg.RunStorePath != "" {
		if err := b.archive(result); err != nil {
			return result, err
		}
	}

	b.logger.Info("teardown complete",
		zap.Uint64("ticks", uint64(result.Ticks)),
		zap.Uint64("matches", result.Matches),
		zap.Int("findings", len(result.Findings)))
	return result, nil
}

func (b *Bench) archive(result *Result) error {
	store, err := runstore.Open(b.cfg.RunStorePath)
	if err != nil {
		return errors.WithMessage(err, "could not open run store")
	}
	defer store.Close()

	if err := store.PutRun(&runstore.RunMeta{
		RunID:    result.RunID,
		Seed:     result.Seed,
		Ticks:    uint64(result.Ticks),
		Matches:  result.Matches,
		Findings: len(result.Findings),
	}); err != nil {
		return err
	}
	return store.PutFindings(result.RunID, result.Findings)
}
