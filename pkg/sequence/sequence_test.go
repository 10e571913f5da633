/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sequence_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/verikit-labs/verikit/pkg/driver"
	"github.com/verikit-labs/verikit/pkg/events"
	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/random"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/sequence"
	"github.com/verikit-labs/verikit/pkg/simio"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

func newTestDriver(id types.DriverID) *driver.Driver {
	return driver.New(id, simio.New(), nil, events.NewBus(logging.NilLogger),
		transaction.NewStamper(), status.NewReporter(), logging.NilLogger)
}

var _ = Describe("Coordinator", func() {
	var (
		s           *sched.Scheduler
		coordinator *sequence.Coordinator
		stream      *driver.Driver
	)

	newCoordinator := func(seed int64) {
		s = sched.New(logging.NilLogger)
		coordinator = sequence.NewCoordinator(s, random.NewSource(seed), logging.NilLogger)
		stream = newTestDriver("stream")
	}

	BeforeEach(func() {
		newCoordinator(random.DefaultSeed)
	})

	It("resolves arguments in declaration order from the shared source", func() {
		desc := sequence.Descriptor{
			Name:     "traffic",
			Requires: []string{"stream"},
			Args: []sequence.ArgSpec{
				{Name: "length", Kind: sequence.IntRange, Min: 100, Max: 1000},
				{Name: "backpressure", Kind: sequence.FloatRange, FMin: 0.1, FMax: 0.9},
				{Name: "mode", Kind: sequence.Choice, Choices: []string{"burst", "trickle"}},
			},
		}

		resolve := func(seed int64) (int64, float64, string) {
			newCoordinator(seed)
			var length int64
			var bp float64
			var mode string
			_, err := coordinator.Register(desc, func(ctx *sequence.Ctx) error {
				length = ctx.Arg("length").I
				bp = ctx.Arg("backpressure").F
				mode = ctx.Arg("mode").S
				return nil
			}, map[string]*driver.Driver{"stream": stream})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.RunTicks(1)).To(Succeed())
			return length, bp, mode
		}

		l1, b1, m1 := resolve(42)
		l2, b2, m2 := resolve(42)
		Expect(l1).To(Equal(l2))
		Expect(b1).To(Equal(b2))
		Expect(m1).To(Equal(m2))

		Expect(l1).To(BeNumerically(">=", 100))
		Expect(l1).To(BeNumerically("<=", 1000))
		Expect(b1).To(BeNumerically(">=", 0.1))
		Expect(b1).To(BeNumerically("<", 0.9))
		Expect([]string{"burst", "trickle"}).To(ContainElement(m1))
	})

	It("hands the body its bound drivers and identity", func() {
		var boundTo *driver.Driver
		var name types.SequenceID
		var owner types.LockOwner

		desc := sequence.Descriptor{Name: "traffic", Requires: []string{"stream"}}
		task, err := coordinator.Register(desc, func(ctx *sequence.Ctx) error {
			boundTo = ctx.Driver("stream")
			name = ctx.Name()
			owner = ctx.Owner()
			return nil
		}, map[string]*driver.Driver{"stream": stream})
		Expect(err).NotTo(HaveOccurred())
		Expect(task.Name()).To(Equal("seq/traffic"))

		Expect(s.RunTicks(1)).To(Succeed())
		Expect(boundTo).To(BeIdenticalTo(stream))
		Expect(name).To(Equal(types.SequenceID("traffic")))
		Expect(owner).To(Equal(types.LockOwner("seq/traffic")))
	})

	It("rejects a descriptor without a name", func() {
		_, err := coordinator.Register(sequence.Descriptor{}, func(ctx *sequence.Ctx) error {
			return nil
		}, nil)
		Expect(err).To(MatchError("sequence descriptor requires a name"))
	})

	It("rejects unbound required roles", func() {
		desc := sequence.Descriptor{Name: "traffic", Requires: []string{"stream"}}
		_, err := coordinator.Register(desc, func(ctx *sequence.Ctx) error { return nil }, nil)
		Expect(err).To(MatchError(`sequence traffic: required role "stream" not bound`))
	})

	It("rejects bindings for undeclared roles", func() {
		desc := sequence.Descriptor{Name: "traffic"}
		_, err := coordinator.Register(desc, func(ctx *sequence.Ctx) error { return nil },
			map[string]*driver.Driver{"extra": stream})
		Expect(err).To(MatchError(`sequence traffic: binding for undeclared role "extra"`))
	})

	It("rejects malformed argument tables", func() {
		body := func(ctx *sequence.Ctx) error { return nil }

		_, err := coordinator.Register(sequence.Descriptor{
			Name: "t",
			Args: []sequence.ArgSpec{{Kind: sequence.IntRange}},
		}, body, nil)
		Expect(err).To(MatchError("sequence t: argument spec without a name"))

		_, err = coordinator.Register(sequence.Descriptor{
			Name: "t",
			Args: []sequence.ArgSpec{
				{Name: "x", Kind: sequence.IntRange},
				{Name: "x", Kind: sequence.IntRange},
			},
		}, body, nil)
		Expect(err).To(MatchError(`sequence t: duplicate argument "x"`))

		_, err = coordinator.Register(sequence.Descriptor{
			Name: "t",
			Args: []sequence.ArgSpec{{Name: "x", Kind: sequence.Choice}},
		}, body, nil)
		Expect(err).To(MatchError(`sequence t: argument "x" has no choices`))

		_, err = coordinator.Register(sequence.Descriptor{
			Name: "t",
			Args: []sequence.ArgSpec{{
				Name:    "x",
				Kind:    sequence.Choice,
				Choices: []string{"a", "b"},
				Weights: []float64{1},
			}},
		}, body, nil)
		Expect(err).To(MatchError(`sequence t: argument "x" has 1 weights for 2 choices`))
	})

	It("turns undeclared role access into a task failure", func() {
		desc := sequence.Descriptor{Name: "traffic"}
		task, err := coordinator.Register(desc, func(ctx *sequence.Ctx) error {
			ctx.Driver("ghost")
			return nil
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.RunTicks(1)).To(Succeed())
		Expect(task.Err()).To(MatchError(ContainSubstring(`undeclared role "ghost"`)))
	})
})

var _ = Describe("Ctx.Lock", func() {
	var (
		s           *sched.Scheduler
		coordinator *sequence.Coordinator
		a, b        *driver.Driver
	)

	BeforeEach(func() {
		s = sched.New(logging.NilLogger)
		coordinator = sequence.NewCoordinator(s, random.NewSource(1), logging.NilLogger)
		a = newTestDriver("a")
		b = newTestDriver("b")
	})

	register := func(name types.SequenceID, body sequence.Body) *sched.Task {
		task, err := coordinator.Register(sequence.Descriptor{
			Name:     name,
			Requires: []string{"a", "b"},
		}, body, map[string]*driver.Driver{"a": a, "b": b})
		Expect(err).NotTo(HaveOccurred())
		return task
	}

	It("holds all drivers until released", func() {
		var holders []string
		register("first", func(ctx *sequence.Ctx) error {
			release, err := ctx.Lock(ctx.Driver("a"), ctx.Driver("b"))
			if err != nil {
				return err
			}
			holders = append(holders, string(a.LockHolder()), string(b.LockHolder()))
			if err := ctx.WaitEdge(); err != nil {
				return err
			}
			release()
			return nil
		})

		Expect(s.RunTicks(5)).To(Succeed())
		Expect(holders).To(Equal([]string{"seq/first", "seq/first"}))
		Expect(a.LockHolder()).To(Equal(types.NoOwner))
		Expect(b.LockHolder()).To(Equal(types.NoOwner))
	})

	It("serializes sequences contending for the same driver", func() {
		var order []string
		body := func(ctx *sequence.Ctx) error {
			release, err := ctx.Lock(ctx.Driver("a"))
			if err != nil {
				return err
			}
			defer release()
			order = append(order, string(ctx.Name()))
			return ctx.WaitEdge()
		}
		register("first", body)
		register("second", body)

		Expect(s.RunTicks(5)).To(Succeed())
		Expect(order).To(Equal([]string{"first", "second"}))
		Expect(s.Errs()).To(BeEmpty())
	})

	It("releases held locks when a later acquisition fails", func() {
		var lockErr error
		task := register("greedy", func(ctx *sequence.Ctx) error {
			// Taking b's lock out of band makes the second acquisition in
			// Lock wait; cancellation then unwinds it.
			if err := b.AcquireLock(ctx.TaskCtx, ctx.Owner()); err != nil {
				return err
			}
			_, lockErr = ctx.Lock(ctx.Driver("a"), ctx.Driver("b"))
			if err := b.ReleaseLock(ctx.Owner()); err != nil {
				return err
			}
			return nil
		})

		Expect(s.RunTicks(5)).To(Succeed())
		Expect(task.Done()).To(BeTrue())
		Expect(task.Err()).NotTo(HaveOccurred())
		Expect(errors.Is(lockErr, driver.ErrLockViolation)).To(BeTrue())

		// The failed Lock released a again before returning.
		Expect(a.LockHolder()).To(Equal(types.NoOwner))
		Expect(b.LockHolder()).To(Equal(types.NoOwner))
	})
})
