/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package bench_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/verikit-labs/verikit/config"
	"github.com/verikit-labs/verikit/pkg/bench"
	"github.com/verikit-labs/verikit/pkg/eventlog"
	"github.com/verikit-labs/verikit/pkg/events"
	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/simio"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/stream"
	"github.com/verikit-labs/verikit/pkg/types"
)

// memSink collects trace records in memory.
type memSink struct {
	records []eventlog.Record
}

func (m *memSink) Intercept(record *eventlog.Record) error {
	m.records = append(m.records, *record)
	return nil
}

// wireStream builds the canonical stream bench: a monitor feeding the
// scoreboard (registered first, so it samples signal state before the
// driver updates it on the same edge), the initiator driver, and a model
// pushing every enqueued transaction as the channel's reference.
func wireStream(b *bench.Bench, signals *simio.Signals) {
	_, err := b.RegisterMonitor("stream", signals, stream.Capture, bench.WithScoreboard(nil))
	Expect(err).NotTo(HaveOccurred())
	_, err = b.RegisterDriver("stream", signals, stream.Initiator)
	Expect(err).NotTo(HaveOccurred())

	_, err = b.Subscribe(events.Enqueue, func(ev events.Event) {
		b.Scoreboard().Channel("stream").PushReference(b.Now(), ev.Txn)
	})
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Bench", func() {
	It("validates its configuration", func() {
		cfg := config.Default()
		cfg.MatchWindow = -1
		_, err := bench.New(cfg, logging.NilLogger)
		Expect(err).To(HaveOccurred())
	})

	It("rejects duplicate driver registration", func() {
		b, err := bench.New(nil, logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())

		signals := simio.New()
		_, err = b.RegisterDriver("stream", signals, stream.Initiator)
		Expect(err).NotTo(HaveOccurred())
		_, err = b.RegisterDriver("stream", signals, stream.Initiator)
		Expect(err).To(MatchError("driver stream already registered"))
	})

	It("rejects sequences bound to unknown drivers", func() {
		b, err := bench.New(nil, logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())

		desc, body := stream.TrafficSeq()
		err = b.RegisterSequence(desc, body, map[string]string{"stream": "ghost"})
		Expect(err).To(MatchError(`sequence stream_traffic: role "stream" bound to unknown driver "ghost"`))
	})

	It("runs a directed stream test end to end", func() {
		b, err := bench.New(nil, logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())

		signals := simio.New()
		signals.Set("ready", 1)
		wireStream(b, signals)

		err = b.RegisterTask("directed", func(ctx *sched.TaskCtx) error {
			d := b.Driver("stream")
			if _, err := d.Enqueue(ctx.Now(), stream.Txn(0xa5)); err != nil {
				return err
			}
			h, err := d.Enqueue(ctx.Now(), stream.Txn(0x5a))
			if err != nil {
				return err
			}
			return h.Await(ctx, events.PostDrive)
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Run(10)).To(Succeed())

		result, err := b.Teardown()
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Failed()).To(BeFalse())
		Expect(result.Matches).To(Equal(uint64(2)))
		Expect(result.Findings).To(BeEmpty())
		Expect(result.Seed).To(Equal(int64(12345)))
	})

	It("produces identical traces for identical seeds", func() {
		run := func() []eventlog.Record {
			sink := &memSink{}
			b, err := bench.New(nil, logging.NilLogger, bench.WithSink(sink))
			Expect(err).NotTo(HaveOccurred())

			signals := simio.New()
			signals.Set("ready", 1)
			wireStream(b, signals)

			desc, body := stream.TrafficSeq()
			Expect(b.RegisterSequence(desc, body, map[string]string{"stream": "stream"})).To(Succeed())

			Expect(b.Run(50)).To(Succeed())
			return sink.records
		}

		first := run()
		second := run()
		Expect(first).NotTo(BeEmpty())
		Expect(second).To(Equal(first))
	})

	It("reports unconsumed work at teardown", func() {
		b, err := bench.New(nil, logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())

		// Never ready: the first delivery stalls forever, the second stays
		// queued.
		signals := simio.New()
		signals.Set("ready", 0)
		_, err = b.RegisterDriver("stream", signals, stream.Initiator)
		Expect(err).NotTo(HaveOccurred())

		err = b.RegisterTask("stimulus", func(ctx *sched.TaskCtx) error {
			d := b.Driver("stream")
			if _, err := d.Enqueue(ctx.Now(), stream.Txn(1)); err != nil {
				return err
			}
			_, err := d.Enqueue(ctx.Now(), stream.Txn(2))
			return err
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Run(5)).To(Succeed())

		result, err := b.Teardown()
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Failed()).To(BeTrue())
		Expect(result.TaskErrs).To(BeEmpty())

		counts := map[status.Kind]int{}
		for _, f := range result.Findings {
			counts[f.Kind]++
		}
		Expect(counts[status.Cancelled]).To(Equal(1))
		Expect(counts[status.Unconsumed]).To(Equal(1))

		_, err = b.Teardown()
		Expect(err).To(MatchError("bench already torn down"))
	})

	It("exempts non-blocking drivers from the teardown queue check", func() {
		cfg := config.Default()
		cfg.Drivers = []config.DriverConfig{{Name: "backpressure", NonBlocking: true}}

		b, err := bench.New(cfg, logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())

		signals := simio.New()
		_, err = b.RegisterDriver("backpressure", signals, stream.Responder)
		Expect(err).NotTo(HaveOccurred())

		err = b.RegisterTask("stimulus", func(ctx *sched.TaskCtx) error {
			d := b.Driver("backpressure")
			for i := 0; i < 3; i++ {
				if _, err := d.Enqueue(ctx.Now(), stream.Backpressure(false, 100)); err != nil {
					return err
				}
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Run(5)).To(Succeed())

		result, err := b.Teardown()
		Expect(err).NotTo(HaveOccurred())

		for _, f := range result.Findings {
			Expect(f.Kind).NotTo(Equal(status.Unconsumed))
		}
	})

	It("applies per-driver delivery bounds from configuration", func() {
		cfg := config.Default()
		cfg.Drivers = []config.DriverConfig{{Name: "stream", MaxDeliveryEdges: 2}}

		b, err := bench.New(cfg, logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())

		signals := simio.New()
		signals.Set("ready", 0)
		_, err = b.RegisterDriver("stream", signals, stream.Initiator)
		Expect(err).NotTo(HaveOccurred())

		err = b.RegisterTask("stimulus", func(ctx *sched.TaskCtx) error {
			_, err := b.Driver("stream").Enqueue(ctx.Now(), stream.Txn(1))
			return err
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Run(5)).To(Succeed())

		findings := b.Reporter().Findings()
		Expect(findings).To(HaveLen(1))
		Expect(findings[0].Kind).To(Equal(status.DeliveryTimeout))
		Expect(findings[0].Driver).To(Equal(types.DriverID("stream")))
		Expect(findings[0].Tick).To(Equal(types.Tick(2)))
	})

	It("surfaces task failures from Run", func() {
		b, err := bench.New(nil, logging.NilLogger)
		Expect(err).NotTo(HaveOccurred())

		err = b.RegisterTask("broken", func(ctx *sched.TaskCtx) error {
			return errors.New("wiring error")
		})
		Expect(err).NotTo(HaveOccurred())

		err = b.Run(1)
		Expect(err).To(MatchError("task broken: wiring error"))
	})

	It("records engine lifecycle into the sink", func() {
		sink := &memSink{}
		b, err := bench.New(nil, logging.NilLogger, bench.WithSink(sink))
		Expect(err).NotTo(HaveOccurred())

		signals := simio.New()
		signals.Set("ready", 1)
		wireStream(b, signals)

		err = b.RegisterTask("directed", func(ctx *sched.TaskCtx) error {
			_, err := b.Driver("stream").Enqueue(ctx.Now(), stream.Txn(3))
			return err
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Run(5)).To(Succeed())

		kinds := map[eventlog.Kind]int{}
		for _, r := range sink.records {
			kinds[r.Kind]++
		}
		Expect(kinds[eventlog.KindTick]).To(BeNumerically(">", 0))
		Expect(kinds[eventlog.KindResume]).To(BeNumerically(">", 0))
		Expect(kinds[eventlog.KindSuspend]).To(BeNumerically(">", 0))
		Expect(kinds[eventlog.KindBus]).To(Equal(3))
		Expect(kinds[eventlog.KindMatch]).To(Equal(1))
	})

	It("pauses monitors while reset is asserted", func() {
		signals := simio.New()
		signals.Set("ready", 1)
		signals.SetReset(true)

		b, err := bench.New(nil, logging.NilLogger, bench.WithReset(signals.Reset))
		Expect(err).NotTo(HaveOccurred())

		m, err := b.RegisterMonitor("stream", signals, stream.Capture)
		Expect(err).NotTo(HaveOccurred())

		signals.Set("valid", 1)
		Expect(b.Run(3)).To(Succeed())
		Expect(m.Captured()).To(Equal(uint64(0)))

		signals.SetReset(false)
		Expect(b.Run(2)).To(Succeed())
		Expect(m.Captured()).To(Equal(uint64(2)))
	})
})
