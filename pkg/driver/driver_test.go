/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver_test

import (
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/verikit-labs/verikit/pkg/driver"
	"github.com/verikit-labs/verikit/pkg/events"
	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/simio"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

func txnWithData(data uint64) *transaction.Transaction {
	return transaction.New(transaction.Fields{"data": transaction.U(data)})
}

var _ = Describe("Driver", func() {
	var (
		s        *sched.Scheduler
		bus      *events.Bus
		stamper  *transaction.Stamper
		reporter *status.Reporter
		signals  *simio.Signals
	)

	BeforeEach(func() {
		s = sched.New(logging.NilLogger)
		bus = events.NewBus(logging.NilLogger)
		stamper = transaction.NewStamper()
		reporter = status.NewReporter()
		signals = simio.New()
	})

	newDriver := func(deliver driver.DeliveryFn, opts ...driver.Opt) *driver.Driver {
		d := driver.New("stream", signals, deliver, bus, stamper, reporter, logging.NilLogger, opts...)
		_, err := s.Register("drv/stream", d.Run)
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	subscribeAll := func(trace *[]string) {
		for _, kind := range []events.Kind{events.Enqueue, events.PreDrive, events.PostDrive} {
			kind := kind
			_, err := bus.Subscribe(kind, func(ev events.Event) {
				*trace = append(*trace, fmt.Sprintf("%s:%d", ev.Kind, ev.Txn.Seq()))
			})
			Expect(err).NotTo(HaveOccurred())
		}
	}

	It("delivers transactions in FIFO order with a full lifecycle each", func() {
		var trace []string
		subscribeAll(&trace)

		d := newDriver(func(ctx *sched.TaskCtx, io driver.IO, txn *transaction.Transaction) error {
			return ctx.WaitEdge()
		})

		var awaitedAt types.Tick
		_, err := s.Register("producer", func(ctx *sched.TaskCtx) error {
			_, err := d.Enqueue(ctx.Now(), txnWithData(1))
			if err != nil {
				return err
			}
			h2, err := d.Enqueue(ctx.Now(), txnWithData(2))
			if err != nil {
				return err
			}
			if err := h2.Await(ctx, events.PostDrive); err != nil {
				return err
			}
			awaitedAt = ctx.Now()
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(s.RunTicks(5)).To(Succeed())

		Expect(trace).To(Equal([]string{
			"ENQUEUE:1", "ENQUEUE:2",
			"PRE_DRIVE:1", "POST_DRIVE:1",
			"PRE_DRIVE:2", "POST_DRIVE:2",
		}))
		Expect(awaitedAt).To(Equal(types.Tick(2)))
		Expect(d.QueueLen()).To(Equal(0))
		Expect(reporter.Failed()).To(BeFalse())
	})

	It("publishes ENQUEUE before Enqueue returns", func() {
		fired := false
		_, err := bus.Subscribe(events.Enqueue, func(events.Event) { fired = true })
		Expect(err).NotTo(HaveOccurred())

		d := driver.New("stream", signals, nil, bus, stamper, reporter, logging.NilLogger)
		h, err := d.Enqueue(0, txnWithData(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(fired).To(BeTrue())
		Expect(h.Txn().Seq()).To(Equal(types.SeqNo(1)))
		Expect(h.Done(events.Enqueue)).To(BeTrue())
		Expect(h.Done(events.PreDrive)).To(BeFalse())
	})

	It("rejects enqueue on an unbound driver", func() {
		d := driver.New("unbound", nil, nil, bus, stamper, reporter, logging.NilLogger)
		_, err := d.Enqueue(0, txnWithData(1))
		Expect(errors.Is(err, driver.ErrNotBound)).To(BeTrue())
	})

	It("records a delivery timeout and consumes the transaction", func() {
		var trace []string
		subscribeAll(&trace)

		d := newDriver(func(ctx *sched.TaskCtx, io driver.IO, txn *transaction.Transaction) error {
			for {
				if err := ctx.WaitEdge(); err != nil {
					return err
				}
			}
		}, driver.MaxDeliveryEdges(3))

		var h1, h2 *driver.Handle
		_, err := s.Register("producer", func(ctx *sched.TaskCtx) error {
			var err error
			h1, err = d.Enqueue(ctx.Now(), txnWithData(1))
			if err != nil {
				return err
			}
			h2, err = d.Enqueue(ctx.Now(), txnWithData(2))
			return err
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(s.RunTicks(10)).To(Succeed())

		findings := reporter.Findings()
		Expect(findings).To(HaveLen(2))
		Expect(findings[0].Kind).To(Equal(status.DeliveryTimeout))
		Expect(findings[0].Seq).To(Equal(types.SeqNo(1)))
		Expect(findings[0].Tick).To(Equal(types.Tick(3)))
		Expect(findings[1].Seq).To(Equal(types.SeqNo(2)))
		Expect(findings[1].Tick).To(Equal(types.Tick(6)))

		// Neither transaction completes, both were consumed.
		Expect(trace).To(Equal([]string{
			"ENQUEUE:1", "ENQUEUE:2",
			"PRE_DRIVE:1", "PRE_DRIVE:2",
		}))
		Expect(errors.Is(h1.Failed(), sched.ErrEdgeBudget)).To(BeTrue())
		Expect(errors.Is(h2.Failed(), sched.ErrEdgeBudget)).To(BeTrue())
		Expect(s.Errs()).To(BeEmpty())
	})

	It("unblocks awaiters when a delivery times out", func() {
		d := newDriver(func(ctx *sched.TaskCtx, io driver.IO, txn *transaction.Transaction) error {
			for {
				if err := ctx.WaitEdge(); err != nil {
					return err
				}
			}
		}, driver.MaxDeliveryEdges(2))

		var awaitErr error
		_, err := s.Register("producer", func(ctx *sched.TaskCtx) error {
			h, err := d.Enqueue(ctx.Now(), txnWithData(1))
			if err != nil {
				return err
			}
			awaitErr = h.Await(ctx, events.PostDrive)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(s.RunTicks(10)).To(Succeed())
		Expect(errors.Is(awaitErr, sched.ErrEdgeBudget)).To(BeTrue())
	})

	It("exposes pending transactions for teardown checks", func() {
		d := newDriver(func(ctx *sched.TaskCtx, io driver.IO, txn *transaction.Transaction) error {
			for {
				if err := ctx.WaitEdge(); err != nil {
					return err
				}
			}
		})

		_, err := s.Register("producer", func(ctx *sched.TaskCtx) error {
			for i := uint64(1); i <= 3; i++ {
				if _, err := d.Enqueue(ctx.Now(), txnWithData(i)); err != nil {
					return err
				}
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(s.RunTicks(2)).To(Succeed())

		// The head of the queue is in flight, the rest are pending.
		pending := d.Pending()
		Expect(pending).To(HaveLen(2))
		Expect(pending[0].Seq()).To(Equal(types.SeqNo(2)))
		Expect(pending[1].Seq()).To(Equal(types.SeqNo(3)))
	})
})

var _ = Describe("Driver lock", func() {
	var (
		s *sched.Scheduler
		d *driver.Driver
	)

	BeforeEach(func() {
		s = sched.New(logging.NilLogger)
		d = driver.New("stream", simio.New(), nil, events.NewBus(logging.NilLogger),
			transaction.NewStamper(), status.NewReporter(), logging.NilLogger)
	})

	holdFor := func(owner types.LockOwner, edges int, trace *[]string) {
		_, err := s.Register(string(owner), func(ctx *sched.TaskCtx) error {
			if err := d.AcquireLock(ctx, owner); err != nil {
				return err
			}
			*trace = append(*trace, fmt.Sprintf("%s+@%d", owner, ctx.Now()))
			if err := ctx.WaitEdges(edges); err != nil {
				return err
			}
			if err := d.ReleaseLock(owner); err != nil {
				return err
			}
			*trace = append(*trace, fmt.Sprintf("%s-@%d", owner, ctx.Now()))
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
	}

	It("grants the lock exclusively in first-come order", func() {
		var trace []string
		holdFor("a", 2, &trace)
		holdFor("b", 1, &trace)
		holdFor("c", 1, &trace)

		Expect(s.RunTicks(10)).To(Succeed())
		Expect(trace).To(Equal([]string{
			"a+@0", "a-@2",
			"b+@2", "b-@3",
			"c+@3", "c-@4",
		}))
		Expect(d.LockHolder()).To(Equal(types.NoOwner))
		Expect(s.Errs()).To(BeEmpty())
	})

	It("rejects acquisition with an empty owner", func() {
		var acquireErr error
		_, err := s.Register("anon", func(ctx *sched.TaskCtx) error {
			acquireErr = d.AcquireLock(ctx, types.NoOwner)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(s.RunTicks(1)).To(Succeed())
		Expect(errors.Is(acquireErr, driver.ErrLockViolation)).To(BeTrue())
	})

	It("rejects double acquisition by the holder", func() {
		var secondErr error
		_, err := s.Register("greedy", func(ctx *sched.TaskCtx) error {
			if err := d.AcquireLock(ctx, "greedy"); err != nil {
				return err
			}
			secondErr = d.AcquireLock(ctx, "greedy")
			return d.ReleaseLock("greedy")
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(s.RunTicks(1)).To(Succeed())
		Expect(errors.Is(secondErr, driver.ErrLockViolation)).To(BeTrue())
		Expect(s.Errs()).To(BeEmpty())
	})

	It("rejects release by a non-holder", func() {
		err := d.ReleaseLock("stranger")
		Expect(errors.Is(err, driver.ErrLockViolation)).To(BeTrue())
	})

	It("withdraws a cancelled waiter from the grant queue", func() {
		var trace []string
		holdFor("a", 3, &trace)

		var waiterErr error
		waiter, err := s.Register("b", func(ctx *sched.TaskCtx) error {
			waiterErr = d.AcquireLock(ctx, "b")
			return waiterErr
		})
		Expect(err).NotTo(HaveOccurred())
		holdFor("c", 1, &trace)

		Expect(s.RunTicks(1)).To(Succeed())
		s.Cancel(waiter)
		Expect(s.RunTicks(10)).To(Succeed())

		Expect(errors.Is(waiterErr, sched.ErrCancelled)).To(BeTrue())
		Expect(trace).To(Equal([]string{
			"a+@0", "a-@3",
			"c+@3", "c-@4",
		}))
	})
})
