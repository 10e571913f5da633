/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sequence

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/verikit-labs/verikit/pkg/driver"
	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/random"
	"github.com/verikit-labs/verikit/pkg/sched"
)

// Coordinator instantiates sequences as scheduler tasks. Argument
// resolution happens at registration, in declaration order, from the
// shared seeded source: same seed and same registration order means the
// same resolved values on every run.
type Coordinator struct {
	scheduler *sched.Scheduler
	rng       *random.Source
	logger    logging.Logger
}

// NewCoordinator returns a coordinator drawing from the given source.
func NewCoordinator(scheduler *sched.Scheduler, rng *random.Source, logger logging.Logger) *Coordinator {
	return &Coordinator{
		scheduler: scheduler,
		rng:       rng,
		logger:    logger,
	}
}

// Register resolves the descriptor's arguments, binds its required roles
// to drivers, and schedules the body as a task named after the sequence.
// Every required role must be bound; extra bindings are rejected.
func (c *Coordinator) Register(desc Descriptor, body Body, bind map[string]*driver.Driver) (*sched.Task, error) {
	if desc.Name == "" {
		return nil, errors.New("sequence descriptor requires a name")
	}

	drivers := make(map[string]*driver.Driver, len(desc.Requires))
	for _, role := range desc.Requires {
		d, ok := bind[role]
		if !ok || d == nil {
			return nil, errors.Errorf("sequence %s: required role %q not bound", desc.Name, role)
		}
		drivers[role] = d
	}
	for role := range bind {
		if _, ok := drivers[role]; !ok {
			return nil, errors.Errorf("sequence %s: binding for undeclared role %q", desc.Name, role)
		}
	}

	args, err := c.resolveArgs(desc)
	if err != nil {
		return nil, err
	}

	logger := logging.Named(c.logger, "seq/"+string(desc.Name))
	for name, arg := range args {
		logger.Debug("resolved argument",
			zap.String("arg", name),
			zap.Int64("i", arg.I),
			zap.Float64("f", arg.F),
			zap.String("s", arg.S))
	}

	return c.scheduler.Register("seq/"+string(desc.Name), func(tctx *sched.TaskCtx) error {
		return body(&Ctx{
			TaskCtx: tctx,
			name:    desc.Name,
			drivers: drivers,
			args:    args,
			rng:     c.rng,
			logger:  logger,
		})
	})
}

func (c *Coordinator) resolveArgs(desc Descriptor) (map[string]Arg, error) {
	args := make(map[string]Arg, len(desc.Args))
	for _, spec := range desc.Args {
		if spec.Name == "" {
			return nil, errors.Errorf("sequence %s: argument spec without a name", desc.Name)
		}
		if _, dup := args[spec.Name]; dup {
			return nil, errors.Errorf("sequence %s: duplicate argument %q", desc.Name, spec.Name)
		}
		switch spec.Kind {
		case IntRange:
			args[spec.Name] = Arg{I: c.rng.IntRange(spec.Min, spec.Max)}
		case FloatRange:
			args[spec.Name] = Arg{F: c.rng.Float64Range(spec.FMin, spec.FMax)}
		case Choice:
			if len(spec.Choices) == 0 {
				return nil, errors.Errorf("sequence %s: argument %q has no choices", desc.Name, spec.Name)
			}
			weights := spec.Weights
			if len(weights) == 0 {
				weights = make([]float64, len(spec.Choices))
				for i := range weights {
					weights[i] = 1
				}
			}
			if len(weights) != len(spec.Choices) {
				return nil, errors.Errorf("sequence %s: argument %q has %d weights for %d choices",
					desc.Name, spec.Name, len(weights), len(spec.Choices))
			}
			args[spec.Name] = Arg{S: spec.Choices[c.rng.Choose(weights)]}
		default:
			return nil, errors.Errorf("sequence %s: argument %q has unknown kind %d", desc.Name, spec.Name, spec.Kind)
		}
	}
	return args, nil
}
