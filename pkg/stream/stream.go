/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package stream provides the valid/ready stream interface reference
// implementation: an initiator delivery, a backpressure responder
// delivery, a monitor capture, and the stock stimulus sequences. It
// exercises every engine feature and doubles as the canonical example of
// wiring a new interface type.
package stream

import (
	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/driver"
	"github.com/verikit-labs/verikit/pkg/events"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/sequence"
	"github.com/verikit-labs/verikit/pkg/transaction"
)

// Txn builds a stream data transaction.
func Txn(data uint64) *transaction.Transaction {
	return transaction.New(transaction.Fields{"data": transaction.U(data)})
}

// Backpressure builds a responder transaction: drive ready to the given
// level and hold it for the given number of cycles.
func Backpressure(ready bool, cycles uint64) *transaction.Transaction {
	return transaction.New(transaction.Fields{
		"ready":  transaction.B(ready),
		"cycles": transaction.U(cycles),
	})
}

// Initiator delivers a data transaction with a valid/ready handshake:
// assert valid with the data, hold until ready is sampled high on an
// edge, then drop valid.
func Initiator(ctx *sched.TaskCtx, io driver.IO, txn *transaction.Transaction) error {
	io.Set("data", txn.Uint("data", 0))
	io.Set("valid", 1)
	for {
		if err := ctx.WaitEdge(); err != nil {
			return err
		}
		if io.Get("ready", 1) != 0 {
			break
		}
	}
	io.Set("valid", 0)
	return nil
}

// Responder delivers a backpressure transaction: drive ready to the
// requested level and hold it for the requested number of cycles.
func Responder(ctx *sched.TaskCtx, io driver.IO, txn *transaction.Transaction) error {
	ready := uint64(0)
	if v, ok := txn.Field("ready"); ok && v.Kind == transaction.KindBool && v.Bool {
		ready = 1
	}
	io.Set("ready", ready)
	cycles := txn.Uint("cycles", 1)
	return ctx.WaitEdges(int(cycles))
}

// Capture is the stream monitor predicate: a transfer occurs on any edge
// where valid and ready are simultaneously high.
func Capture(io driver.IO) (transaction.Fields, bool) {
	if io.Get("valid", 1) == 0 || io.Get("ready", 1) == 0 {
		return nil, false
	}
	return transaction.Fields{"data": transaction.U(io.Get("data", 0))}, true
}

// TrafficSeq generates random traffic on a stream interface, locking and
// releasing the driver for each packet.
//
// Randomized arguments: length (number of transactions to produce).
func TrafficSeq() (sequence.Descriptor, sequence.Body) {
	desc := sequence.Descriptor{
		Name:     "stream_traffic",
		Requires: []string{"stream"},
		Args: []sequence.ArgSpec{
			{Name: "length", Kind: sequence.IntRange, Min: 100, Max: 1000},
		},
	}
	body := func(ctx *sequence.Ctx) error {
		length := ctx.Arg("length").I
		ctx.Logger().Info("generating random transactions", zap.Int64("length", length))
		stream := ctx.Driver("stream")
		for i := int64(0); i < length; i++ {
			release, err := ctx.Lock(stream)
			if err != nil {
				return err
			}
			_, err = stream.Enqueue(ctx.Now(), Txn(ctx.Random().Bits(32)))
			release()
			if err != nil {
				return err
			}
		}
		return nil
	}
	return desc, body
}

// BackpressureSeq generates random backpressure on a stream's ready
// signal, holding the driver lock for its whole lifetime and pacing
// itself on each item's PRE_DRIVE event.
//
// Randomized arguments: minInterval and maxInterval bound how long ready
// is held constant; backpressure weights how often ready is low, with
// values approaching 1 meaning always backpressure.
func BackpressureSeq() (sequence.Descriptor, sequence.Body) {
	desc := sequence.Descriptor{
		Name:     "stream_backpressure",
		Requires: []string{"stream"},
		Args: []sequence.ArgSpec{
			{Name: "minInterval", Kind: sequence.IntRange, Min: 1, Max: 10},
			{Name: "maxInterval", Kind: sequence.IntRange, Min: 10, Max: 20},
			{Name: "backpressure", Kind: sequence.FloatRange, FMin: 0.1, FMax: 0.9},
		},
	}
	body := func(ctx *sequence.Ctx) error {
		stream := ctx.Driver("stream")
		minIv := ctx.Arg("minInterval").I
		maxIv := ctx.Arg("maxInterval").I
		bp := ctx.Arg("backpressure").F

		release, err := ctx.Lock(stream)
		if err != nil {
			return err
		}
		defer release()

		for {
			ready := !ctx.Random().WeightedBool(bp)
			cycles := uint64(ctx.Random().IntRange(minIv, maxIv))
			h, err := stream.Enqueue(ctx.Now(), Backpressure(ready, cycles))
			if err != nil {
				return err
			}
			if err := h.Await(ctx.TaskCtx, events.PreDrive); err != nil {
				return err
			}
		}
	}
	return desc, body
}
