/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package bench

import (
	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/eventlog"
	"github.com/verikit-labs/verikit/pkg/events"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

// The bench is the scheduler's observer and the bus/scoreboard/reporter
// hook; it fans all lifecycle events into the configured trace sink.
// Recording stops on the first sink failure so a broken trace never
// stalls a run.

func (b *Bench) record(record *eventlog.Record) {
	if b.sink == nil || b.sinkErr != nil {
		return
	}
	if err := b.sink.Intercept(record); err != nil {
		b.sinkErr = err
		b.logger.Error("trace sink failed, recording disabled", zap.Error(err))
	}
}

// OnTick implements sched.Observer.
func (b *Bench) OnTick(now types.Tick) {
	b.record(&eventlog.Record{Kind: eventlog.KindTick, Tick: uint64(now)})
}

// OnResume implements sched.Observer.
func (b *Bench) OnResume(now types.Tick, id types.TaskID, name string) {
	b.record(&eventlog.Record{
		Kind: eventlog.KindResume,
		Tick: uint64(now),
		Task: name,
	})
}

// OnSuspend implements sched.Observer.
func (b *Bench) OnSuspend(now types.Tick, id types.TaskID, name string, reason sched.WaitKind) {
	b.record(&eventlog.Record{
		Kind:   eventlog.KindSuspend,
		Tick:   uint64(now),
		Task:   name,
		Reason: reason.String(),
	})
}

// OnDone implements sched.Observer.
func (b *Bench) OnDone(now types.Tick, id types.TaskID, name string, err error) {
	record := &eventlog.Record{
		Kind: eventlog.KindDone,
		Tick: uint64(now),
		Task: name,
	}
	if err != nil {
		record.Detail = err.Error()
	}
	b.record(record)
}

func (b *Bench) onBusEvent(ev events.Event) {
	b.record(&eventlog.Record{
		Kind:   eventlog.KindBus,
		Tick:   uint64(b.scheduler.Now()),
		Topic:  ev.Kind.String(),
		Driver: string(ev.Driver),
		Seq:    uint64(ev.Txn.Seq()),
	})
}

func (b *Bench) onMatch(channel types.ChannelID, now types.Tick, ref, act *transaction.Transaction) {
	b.record(&eventlog.Record{
		Kind:    eventlog.KindMatch,
		Tick:    uint64(now),
		Channel: string(channel),
		Seq:     uint64(ref.Seq()),
		Detail:  "actual seq=" + act.String(),
	})
}

func (b *Bench) onFinding(f status.Finding) {
	b.record(&eventlog.Record{
		Kind:    eventlog.KindFinding,
		Tick:    uint64(f.Tick),
		Driver:  string(f.Driver),
		Channel: string(f.Channel),
		Seq:     uint64(f.Seq),
		Detail:  string(f.Kind) + ": " + f.Detail,
	})
}
