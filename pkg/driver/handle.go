/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import (
	"github.com/verikit-labs/verikit/pkg/events"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/transaction"
)

// Handle tracks one enqueued transaction through its lifecycle and lets
// the enqueuing task await its PRE_DRIVE or POST_DRIVE event.
type Handle struct {
	driver     *Driver
	txn        *transaction.Transaction
	preDriven  bool
	postDriven bool
	failedErr  error
}

// Txn returns the transaction this handle tracks.
func (h *Handle) Txn() *transaction.Transaction {
	return h.txn
}

// Done reports whether the given lifecycle event has fired for this
// transaction. ENQUEUE is trivially done: handles exist only for enqueued
// transactions.
func (h *Handle) Done(kind events.Kind) bool {
	switch kind {
	case events.Enqueue:
		return true
	case events.PreDrive:
		return h.preDriven
	default:
		return h.postDriven
	}
}

// Failed returns the delivery error, if the delivery timed out, was
// cancelled, or otherwise failed.
func (h *Handle) Failed() error {
	return h.failedErr
}

func (h *Handle) fail(err error) {
	h.failedErr = err
}

// Await suspends the calling task until the given lifecycle event fires
// for this transaction, or returns the delivery error if the delivery
// terminated without it.
func (h *Handle) Await(ctx *sched.TaskCtx, kind events.Kind) error {
	if err := ctx.WaitCond(func() bool {
		return h.Done(kind) || h.failedErr != nil
	}); err != nil {
		return err
	}
	if !h.Done(kind) {
		return h.failedErr
	}
	return nil
}
