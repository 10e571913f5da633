/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sequence implements the sequence coordinator. A sequence is an
// independently scheduled stimulus program declared by a descriptor:
// the driver roles it requires and a table of randomized arguments, each
// resolved once per instantiation from the bench-wide seeded source.
package sequence

import (
	"fmt"

	"github.com/verikit-labs/verikit/pkg/driver"
	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/random"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/types"
)

// ArgKind declares how a randomized argument resolves.
type ArgKind int

const (
	// IntRange resolves to a uniform integer in [Min, Max].
	IntRange ArgKind = iota

	// FloatRange resolves to a uniform float in [FMin, FMax).
	FloatRange

	// Choice resolves to one of Choices, weighted by Weights when given.
	Choice
)

// ArgSpec declares one randomized argument. Specs are a slice, not a map,
// so resolution order matches declaration order and stays deterministic.
type ArgSpec struct {
	Name    string
	Kind    ArgKind
	Min     int64
	Max     int64
	FMin    float64
	FMax    float64
	Choices []string
	Weights []float64
}

// Arg is a resolved argument value.
type Arg struct {
	I int64
	F float64
	S string
}

// Descriptor declares a sequence: its name, the driver roles it requires,
// and its randomized argument table.
type Descriptor struct {
	Name     types.SequenceID
	Requires []string
	Args     []ArgSpec
}

// Body is the sequence program. It runs as a cooperative task and must
// propagate errors from every suspension point so held locks unwind.
type Body func(ctx *Ctx) error

// Ctx is the execution context handed to a sequence body: its scheduler
// context, the drivers bound to its roles, resolved arguments, the shared
// random source, and a named logger.
type Ctx struct {
	*sched.TaskCtx

	name    types.SequenceID
	drivers map[string]*driver.Driver
	args    map[string]Arg
	rng     *random.Source
	logger  logging.Logger
}

// Name returns the sequence's identity.
func (c *Ctx) Name() types.SequenceID {
	return c.name
}

// Driver returns the driver bound to a required role. Asking for an
// undeclared role panics: the descriptor is the contract.
func (c *Ctx) Driver(role string) *driver.Driver {
	d, ok := c.drivers[role]
	if !ok {
		panic(fmt.Sprintf("sequence %s references undeclared role %q", c.name, role))
	}
	return d
}

// Arg returns a resolved randomized argument by name.
func (c *Ctx) Arg(name string) Arg {
	a, ok := c.args[name]
	if !ok {
		panic(fmt.Sprintf("sequence %s references undeclared argument %q", c.name, name))
	}
	return a
}

// Random returns the bench-wide seeded random source.
func (c *Ctx) Random() *random.Source {
	return c.rng
}

// Logger returns the sequence's named logger.
func (c *Ctx) Logger() logging.Logger {
	return c.logger
}

// Owner returns the lock owner identity of this sequence.
func (c *Ctx) Owner() types.LockOwner {
	return types.LockOwner("seq/" + string(c.name))
}

// Lock acquires the lock on every given driver, in argument order, and
// returns a release function. The caller must defer the release so the
// locks unwind on every exit path, including failure and cancellation.
// If acquisition fails midway, locks already taken are released before
// the error is returned.
func (c *Ctx) Lock(drivers ...*driver.Driver) (func(), error) {
	owner := c.Owner()
	held := make([]*driver.Driver, 0, len(drivers))

	release := func() {
		// Reverse order of acquisition.
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].ReleaseLock(owner); err != nil {
				// Release of a held lock can only fail if ownership was
				// corrupted elsewhere; this is unrecoverable.
				panic(err)
			}
		}
		held = held[:0]
	}

	for _, d := range drivers {
		if err := d.AcquireLock(c.TaskCtx, owner); err != nil {
			release()
			return nil, err
		}
		held = append(held, d)
	}
	return release, nil
}
