/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/types"
)

// Handler receives a published event. Handlers run synchronously on the
// publisher's task and may themselves enqueue new transactions, which in
// turn publishes further events re-entrantly.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

type fireKey struct {
	kind Kind
	seq  types.SeqNo
}

// Bus is the typed publish/subscribe channel for lifecycle notifications.
// Delivery is synchronous and in subscription order. The bus tolerates
// recursive publish of different topics, but publishing the same topic
// twice for the same transaction is a programming error.
type Bus struct {
	logger      logging.Logger
	subs        [numKinds][]subscription
	publishing  [numKinds]bool
	fired       map[fireKey]struct{}
	interceptor func(Event)
	nextSubID   int
}

// NewBus returns an empty bus.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		logger: logging.Named(logger, "bus"),
		fired:  map[fireKey]struct{}{},
	}
}

// Intercept registers a hook invoked before subscribers on every publish.
// It is intended for trace recording and is set once at bench setup.
func (b *Bus) Intercept(fn func(Event)) {
	b.interceptor = fn
}

// Subscribe registers a handler for the given topic and returns a
// subscription id usable with Unsubscribe. Registration during an
// in-progress publish to the same topic is forbidden.
func (b *Bus) Subscribe(kind Kind, handler Handler) (int, error) {
	if kind < 0 || kind >= numKinds {
		return 0, errors.Errorf("unknown topic %d", kind)
	}
	if b.publishing[kind] {
		return 0, errors.Errorf("subscribe to %s during in-progress publish", kind)
	}
	b.nextSubID++
	b.subs[kind] = append(b.subs[kind], subscription{id: b.nextSubID, handler: handler})
	return b.nextSubID, nil
}

// Unsubscribe removes a previously registered handler. Removal during an
// in-progress publish to the same topic is forbidden.
func (b *Bus) Unsubscribe(kind Kind, id int) error {
	if kind < 0 || kind >= numKinds {
		return errors.Errorf("unknown topic %d", kind)
	}
	if b.publishing[kind] {
		return errors.Errorf("unsubscribe from %s during in-progress publish", kind)
	}
	for i, sub := range b.subs[kind] {
		if sub.id == id {
			b.subs[kind] = append(b.subs[kind][:i], b.subs[kind][i+1:]...)
			return nil
		}
	}
	return errors.Errorf("no subscription %d on topic %s", id, kind)
}

// Publish delivers the event synchronously to every current subscriber of
// the topic, in subscription order, before returning. The subscriber list
// is snapshotted at publish time, so handlers observe a consistent set
// even if registration happens between publishes.
func (b *Bus) Publish(ev Event) error {
	if ev.Kind < 0 || ev.Kind >= numKinds {
		return errors.Errorf("unknown topic %d", ev.Kind)
	}

	key := fireKey{kind: ev.Kind, seq: ev.Txn.Seq()}
	if _, dup := b.fired[key]; dup {
		return errors.Errorf("%s already fired for transaction seq=%d", ev.Kind, ev.Txn.Seq())
	}
	b.fired[key] = struct{}{}

	// The full lifecycle ends at PostDrive; dropping the earlier topics
	// there keeps the fired set to one entry per completed transaction.
	if ev.Kind == PostDrive {
		delete(b.fired, fireKey{kind: Enqueue, seq: ev.Txn.Seq()})
		delete(b.fired, fireKey{kind: PreDrive, seq: ev.Txn.Seq()})
	}

	b.logger.Debug("publish",
		zap.Stringer("topic", ev.Kind),
		zap.String("driver", string(ev.Driver)),
		zap.Uint64("seq", uint64(ev.Txn.Seq())))

	if b.interceptor != nil {
		b.interceptor(ev)
	}

	snapshot := b.subs[ev.Kind]
	b.publishing[ev.Kind] = true
	defer func() {
		b.publishing[ev.Kind] = false
	}()

	for _, sub := range snapshot {
		sub.handler(ev)
	}
	return nil
}
