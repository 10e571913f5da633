/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sched

import (
	"github.com/verikit-labs/verikit/pkg/types"
)

// TaskCtx is the handle a task body uses to suspend itself. It is valid
// only on the task's own goroutine and only while the task is the running
// task.
type TaskCtx struct {
	task *Task

	// Remaining edge budget for bounded deliveries. Negative means
	// unbounded; a derived context decrements on every WaitEdge.
	edgeBudget int
	budgeted   bool
}

// Now returns the current logical clock tick.
func (c *TaskCtx) Now() types.Tick {
	return c.task.s.now
}

// Task returns the task this context belongs to.
func (c *TaskCtx) Task() *Task {
	return c.task
}

// Cancelled reports whether the task has been cancelled.
func (c *TaskCtx) Cancelled() bool {
	return c.task.cancelled
}

// WithEdgeBudget derives a context whose WaitEdge fails with
// ErrEdgeBudget after n edges. Used by drivers to bound deliveries.
func (c *TaskCtx) WithEdgeBudget(n int) *TaskCtx {
	return &TaskCtx{task: c.task, edgeBudget: n, budgeted: true}
}

// suspend parks the task with the given reason and hands control back to
// the scheduler. It returns when the scheduler resumes the task, or
// immediately with ErrCancelled if the task is already cancelled.
func (c *TaskCtx) suspend(kind WaitKind, cond func() bool, lockName string) error {
	t := c.task
	if t.cancelled {
		return ErrCancelled
	}
	t.wait = kind
	t.cond = cond
	t.lockName = lockName

	t.s.yieldC <- yield{task: t}
	<-t.resumeC

	if t.cancelled {
		return ErrCancelled
	}
	return nil
}

// WaitEdge suspends the task until the next clock edge.
func (c *TaskCtx) WaitEdge() error {
	if c.budgeted {
		if c.edgeBudget <= 0 {
			return ErrEdgeBudget
		}
		c.edgeBudget--
	}
	return c.suspend(WaitEdge, nil, "")
}

// WaitEdges suspends the task for n consecutive clock edges.
func (c *TaskCtx) WaitEdges(n int) error {
	for i := 0; i < n; i++ {
		if err := c.WaitEdge(); err != nil {
			return err
		}
	}
	return nil
}

// WaitCond suspends the task until cond holds. The condition is evaluated
// by the scheduler while no task is running, so it may freely read shared
// engine state. A condition that already holds still yields once, keeping
// resumption order deterministic.
func (c *TaskCtx) WaitCond(cond func() bool) error {
	return c.suspend(WaitCond, cond, "")
}

// WaitLock is WaitCond tagged as a lock wait for status and tracing.
func (c *TaskCtx) WaitLock(lockName string, cond func() bool) error {
	return c.suspend(WaitLock, cond, lockName)
}
