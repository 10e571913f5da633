/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sched implements the cooperative deterministic scheduler that
// everything else in the engine runs on. Tasks are resumable units with a
// single pending suspension reason; the scheduler resumes eligible tasks
// in registration order, one at a time, so runs with a fixed seed are
// exactly reproducible and shared state needs no synchronization.
package sched

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/types"
)

// ErrStopped is returned when an operation is attempted on a scheduler
// that has shut down.
var ErrStopped = errors.New("scheduler stopped")

// ErrCancelled is returned from suspension points of a task that has been
// cancelled. Task bodies must propagate it so deferred cleanup runs.
var ErrCancelled = errors.New("task cancelled")

// ErrEdgeBudget is returned from WaitEdge when a delivery's configured
// edge budget is exhausted.
var ErrEdgeBudget = errors.New("edge budget exhausted")

// WaitKind is the reason a task is suspended.
type WaitKind int

const (
	// WaitNone marks a task that is running or has never suspended.
	WaitNone WaitKind = iota

	// WaitEdge suspends until the next clock edge.
	WaitEdge

	// WaitCond suspends until a condition over shared state holds.
	WaitCond

	// WaitLock suspends until a driver lock is grantable. Mechanically a
	// condition wait; kept distinct for status and tracing.
	WaitLock
)

func (k WaitKind) String() string {
	switch k {
	case WaitEdge:
		return "edge"
	case WaitCond:
		return "cond"
	case WaitLock:
		return "lock"
	default:
		return "none"
	}
}

// TaskFn is the body of a cooperative task. It runs until it returns,
// suspending only through the TaskCtx it is given.
type TaskFn func(ctx *TaskCtx) error

// Observer receives scheduler lifecycle notifications. Used by the bench
// to record traces; set once before Run, never mutated concurrently.
type Observer interface {
	OnTick(now types.Tick)
	OnResume(now types.Tick, id types.TaskID, name string)
	OnSuspend(now types.Tick, id types.TaskID, name string, reason WaitKind)
	OnDone(now types.Tick, id types.TaskID, name string, err error)
}

type yield struct {
	task *Task
	done bool
	err  error
}

// Task is a registered cooperative task. All fields are owned by the
// scheduler goroutine, except while the task itself is the single running
// task.
type Task struct {
	id   types.TaskID
	name string
	fn   TaskFn

	s       *Scheduler
	resumeC chan struct{}

	wait         WaitKind
	cond         func() bool
	lockName     string
	edgeEligible bool
	started      bool
	done         bool
	cancelled    bool
	err          error
}

// ID returns the task's registration-order id.
func (t *Task) ID() types.TaskID {
	return t.id
}

// Name returns the task's registered name.
func (t *Task) Name() string {
	return t.name
}

// Done reports whether the task has run to completion.
func (t *Task) Done() bool {
	return t.done
}

// Err returns the task's exit error, nil until done.
func (t *Task) Err() error {
	return t.err
}

// Scheduler owns the single logical timeline. It must be driven from one
// goroutine; tasks run one at a time on goroutines of their own, handing
// control back at every suspension point.
type Scheduler struct {
	logger   logging.Logger
	observer Observer

	tasks  []*Task
	yieldC chan yield
	now    types.Tick

	stopped bool
}

// New returns an idle scheduler at tick zero.
func New(logger logging.Logger) *Scheduler {
	return &Scheduler{
		logger: logging.Named(logger, "sched"),
		yieldC: make(chan yield),
	}
}

// SetObserver installs the lifecycle observer. Must be called before Run.
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
}

// Now returns the current logical clock tick.
func (s *Scheduler) Now() types.Tick {
	return s.now
}

// Tasks returns all registered tasks in registration order.
func (s *Scheduler) Tasks() []*Task {
	out := make([]*Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Register adds a task. Tasks registered while the scheduler is settling
// a tick join the scan of the current delta cycle, which is how run-time
// coroutines (e.g. a testcase's wait task) are attached. The task body
// does not start until the scheduler next scans for eligible tasks.
func (s *Scheduler) Register(name string, fn TaskFn) (*Task, error) {
	if s.stopped {
		return nil, ErrStopped
	}
	t := &Task{
		id:      types.TaskID(len(s.tasks)),
		name:    name,
		fn:      fn,
		s:       s,
		resumeC: make(chan struct{}),
	}
	s.tasks = append(s.tasks, t)
	go t.run()
	return t, nil
}

func (t *Task) run() {
	// Block until first resumed; the scheduler owns all task state until then.
	<-t.resumeC

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if e, ok := r.(error); ok {
					err = errors.Wrapf(e, "panic in task %s", t.name)
				} else {
					err = errors.Errorf("panic in task %s: %v", t.name, r)
				}
			}
		}()
		if t.cancelled {
			// Cancelled before ever running; never invoke the body.
			err = ErrCancelled
			return
		}
		err = t.fn(&TaskCtx{task: t})
	}()

	t.s.yieldC <- yield{task: t, done: true, err: err}
}

func (t *Task) eligible() bool {
	if t.done {
		return false
	}
	if !t.started {
		return true
	}
	if t.cancelled {
		// Wake the task so its suspension point returns ErrCancelled and
		// it can unwind through its deferred releases.
		return true
	}
	switch t.wait {
	case WaitEdge:
		return t.edgeEligible
	case WaitCond, WaitLock:
		return t.cond()
	default:
		return false
	}
}

// resume hands control to the task and blocks until it suspends or ends.
// This is the only place a task runs; at most one task runs at any time.
func (s *Scheduler) resume(t *Task) {
	t.started = true
	t.edgeEligible = false
	t.wait = WaitNone
	t.cond = nil

	if s.observer != nil {
		s.observer.OnResume(s.now, t.id, t.name)
	}

	t.resumeC <- struct{}{}
	y := <-s.yieldC
	if y.task != t {
		// A task other than the running one yielded; the single-runner
		// invariant is broken and no recovery is meaningful.
		panic(errors.Errorf("task %s yielded while %s was running", y.task.name, t.name))
	}

	if y.done {
		t.done = true
		t.err = y.err
		if t.err != nil && !errors.Is(t.err, ErrCancelled) {
			s.logger.Error("task failed", zap.String("task", t.name), zap.Error(t.err))
		}
		if s.observer != nil {
			s.observer.OnDone(s.now, t.id, t.name, t.err)
		}
		return
	}

	if s.observer != nil {
		s.observer.OnSuspend(s.now, t.id, t.name, t.wait)
	}
}

// settle runs delta cycles at the current tick: scan tasks in
// registration order, resume every eligible one, repeat until a full scan
// makes no progress. Conditions are evaluated by the scheduler between
// task slices, so they observe quiescent shared state.
func (s *Scheduler) settle() {
	for {
		progressed := false
		for i := 0; i < len(s.tasks); i++ {
			t := s.tasks[i]
			if t.eligible() {
				s.resume(t)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// advance moves the clock one edge and makes edge-waiters eligible.
func (s *Scheduler) advance() {
	s.now++
	if s.observer != nil {
		s.observer.OnTick(s.now)
	}
	for _, t := range s.tasks {
		if !t.done && t.wait == WaitEdge {
			t.edgeEligible = true
		}
	}
}

// RunTicks advances the simulation by up to n clock edges, settling all
// eligible tasks before and after every edge. It returns early when every
// task has completed.
func (s *Scheduler) RunTicks(n int) error {
	if s.stopped {
		return ErrStopped
	}
	target := s.now + types.Tick(n)
	for {
		s.settle()
		if s.allDone() || s.now >= target {
			return nil
		}
		s.advance()
	}
}

func (s *Scheduler) allDone() bool {
	for _, t := range s.tasks {
		if !t.done {
			return false
		}
	}
	return true
}

// Cancel marks a task cancelled. Its next (or current) suspension point
// returns ErrCancelled; the task is expected to unwind promptly without
// suspending again.
func (s *Scheduler) Cancel(t *Task) {
	if !t.done {
		t.cancelled = true
	}
}

// Shutdown cancels every task and settles until all have unwound. After
// Shutdown the scheduler accepts no further work.
func (s *Scheduler) Shutdown() {
	for _, t := range s.tasks {
		s.Cancel(t)
	}
	s.settle()
	s.stopped = true
}

// Errs returns the exit errors of completed tasks, excluding clean exits
// and cancellations.
func (s *Scheduler) Errs() []error {
	var errs []error
	for _, t := range s.tasks {
		if t.done && t.err != nil && !errors.Is(t.err, ErrCancelled) {
			errs = append(errs, errors.WithMessagef(t.err, "task %s", t.name))
		}
	}
	return errs
}
