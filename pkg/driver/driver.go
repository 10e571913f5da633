/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package driver implements the driver engine: a FIFO queue of
// transactions for one interface, serialized delivery, and the exclusive
// lock sequences use to group enqueues.
package driver

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/events"
	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

// ErrNotBound is returned when a driver with no attached interface is
// asked to enqueue. A programming error: fatal, never retried.
var ErrNotBound = errors.New("driver not bound to an interface")

// ErrLockViolation is returned on release without ownership or double
// acquisition by the same owner. A programming error: fatal.
var ErrLockViolation = errors.New("lock ownership violation")

// IO is the interface-binding abstraction the engine drives through.
// Both operations are synchronous and never suspend.
type IO interface {
	Get(name string, def uint64) uint64
	Set(name string, v uint64)
}

// DeliveryFn performs the interface-level delivery of one transaction.
// It may suspend at clock edges any number of times through ctx; the
// driver bounds the number of edges when configured to.
type DeliveryFn func(ctx *sched.TaskCtx, io IO, txn *transaction.Transaction) error

// Opt configures a driver at registration.
type Opt interface{}

type nonBlockingOpt struct{}

// NonBlocking marks a driver whose queue may legitimately never drain
// (e.g. a perpetual backpressure responder). Such drivers are exempt from
// the unconsumed-queue check at teardown.
func NonBlocking() Opt {
	return nonBlockingOpt{}
}

type maxDeliveryEdgesOpt int

// MaxDeliveryEdges bounds a single delivery to n clock edges. Exceeding
// the bound records a DELIVERY_TIMEOUT finding; the transaction is
// consumed, not retried. Zero means unbounded.
func MaxDeliveryEdges(n int) Opt {
	return maxDeliveryEdgesOpt(n)
}

// Driver owns one interface and the FIFO of transactions pending on it.
// All mutation goes through the driver's own operations; no external task
// touches the queue directly.
type Driver struct {
	id       types.DriverID
	io       IO
	deliver  DeliveryFn
	bus      *events.Bus
	stamper  *transaction.Stamper
	reporter *status.Reporter
	logger   logging.Logger

	queue    []*Handle
	inFlight *Handle

	maxDeliveryEdges int
	nonBlocking      bool

	lockHolder  types.LockOwner
	lockWaiters []types.LockOwner
}

// New constructs a driver. io may be nil (an unbound driver), in which
// case every enqueue fails with ErrNotBound.
func New(id types.DriverID, io IO, deliver DeliveryFn, bus *events.Bus,
	stamper *transaction.Stamper, reporter *status.Reporter, logger logging.Logger, opts ...Opt) *Driver {

	d := &Driver{
		id:       id,
		io:       io,
		deliver:  deliver,
		bus:      bus,
		stamper:  stamper,
		reporter: reporter,
		logger:   logging.Named(logger, "driver/"+string(id)),
	}
	for _, opt := range opts {
		switch v := opt.(type) {
		case nonBlockingOpt:
			d.nonBlocking = true
		case maxDeliveryEdgesOpt:
			d.maxDeliveryEdges = int(v)
		}
	}
	return d
}

// ID returns the driver's identity.
func (d *Driver) ID() types.DriverID {
	return d.id
}

// IO returns the attached interface handle, nil if unbound.
func (d *Driver) IO() IO {
	return d.io
}

// NonBlocking reports whether the driver is exempt from teardown checks.
func (d *Driver) NonBlocking() bool {
	return d.nonBlocking
}

// QueueLen returns the number of transactions pending delivery, excluding
// any transaction currently in flight.
func (d *Driver) QueueLen() int {
	return len(d.queue)
}

// Pending returns the transactions still queued, in delivery order. Used
// by the bench's teardown check.
func (d *Driver) Pending() []*transaction.Transaction {
	out := make([]*transaction.Transaction, len(d.queue))
	for i, h := range d.queue {
		out[i] = h.txn
	}
	return out
}

// Enqueue stamps the transaction, appends it to the FIFO tail, and
// publishes ENQUEUE synchronously before returning. The returned handle
// lets the caller await the transaction's lifecycle events.
func (d *Driver) Enqueue(now types.Tick, txn *transaction.Transaction) (*Handle, error) {
	if d.io == nil {
		return nil, errors.WithMessagef(ErrNotBound, "enqueue on driver %s", d.id)
	}
	if err := d.stamper.Stamp(txn, now, string(d.id)); err != nil {
		return nil, err
	}

	h := &Handle{driver: d, txn: txn}
	d.queue = append(d.queue, h)

	d.logger.Debug("enqueue", zap.Uint64("seq", uint64(txn.Seq())), zap.Int("depth", len(d.queue)))

	if err := d.bus.Publish(events.Event{Kind: events.Enqueue, Driver: d.id, Txn: txn}); err != nil {
		return nil, err
	}
	return h, nil
}

// Run is the driver's cooperative loop: dequeue head, publish PRE_DRIVE,
// deliver, publish POST_DRIVE; suspend while the queue is empty. Queue
// order is preserved and at most one delivery is in flight at a time.
func (d *Driver) Run(ctx *sched.TaskCtx) error {
	for {
		if err := ctx.WaitCond(func() bool { return len(d.queue) > 0 }); err != nil {
			return err
		}

		h := d.queue[0]
		d.queue = d.queue[1:]
		d.inFlight = h

		if err := d.bus.Publish(events.Event{Kind: events.PreDrive, Driver: d.id, Txn: h.txn}); err != nil {
			return err
		}
		h.preDriven = true

		if err := d.drive(ctx, h); err != nil {
			return err
		}
		d.inFlight = nil
	}
}

func (d *Driver) drive(ctx *sched.TaskCtx, h *Handle) error {
	dctx := ctx
	if d.maxDeliveryEdges > 0 {
		dctx = ctx.WithEdgeBudget(d.maxDeliveryEdges)
	}

	err := d.deliver(dctx, d.io, h.txn)
	switch {
	case err == nil:
		if err := d.bus.Publish(events.Event{Kind: events.PostDrive, Driver: d.id, Txn: h.txn}); err != nil {
			return err
		}
		h.postDriven = true
		return nil

	case errors.Is(err, sched.ErrEdgeBudget):
		// Surfaced as a finding, not retried; the transaction is consumed.
		d.reporter.Report(status.Finding{
			Kind:   status.DeliveryTimeout,
			Driver: d.id,
			Seq:    h.txn.Seq(),
			Tick:   ctx.Now(),
			Txn:    h.txn.String(),
			Detail: "handshake not accepted within configured edge bound",
		})
		h.fail(errors.WithMessagef(err, "delivery timeout on driver %s", d.id))
		return nil

	case errors.Is(err, sched.ErrCancelled):
		// In-flight delivery aborted by cancellation: record the outcome
		// so the queue state is never silently inconsistent.
		d.reporter.Report(status.Finding{
			Kind:   status.Cancelled,
			Driver: d.id,
			Seq:    h.txn.Seq(),
			Tick:   ctx.Now(),
			Txn:    h.txn.String(),
			Detail: "delivery aborted by task cancellation",
		})
		h.fail(sched.ErrCancelled)
		return err

	default:
		h.fail(err)
		return errors.WithMessagef(err, "delivery failed on driver %s", d.id)
	}
}
