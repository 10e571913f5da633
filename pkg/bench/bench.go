/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package bench is the composition root of the engine: it wires the
// scheduler, event bus, drivers, monitors, sequences, and scoreboard
// together under one configuration and one seeded random source, and
// enforces the teardown checks.
package bench

import (
	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/verikit-labs/verikit/config"
	"github.com/verikit-labs/verikit/pkg/driver"
	"github.com/verikit-labs/verikit/pkg/eventlog"
	"github.com/verikit-labs/verikit/pkg/events"
	"github.com/verikit-labs/verikit/pkg/logging"
	"github.com/verikit-labs/verikit/pkg/monitor"
	"github.com/verikit-labs/verikit/pkg/random"
	"github.com/verikit-labs/verikit/pkg/scoreboard"
	"github.com/verikit-labs/verikit/pkg/sched"
	"github.com/verikit-labs/verikit/pkg/sequence"
	"github.com/verikit-labs/verikit/pkg/status"
	"github.com/verikit-labs/verikit/pkg/transaction"
	"github.com/verikit-labs/verikit/pkg/types"
)

// Opt configures a bench at construction.
type Opt interface{}

type sinkOpt struct{ sink eventlog.Sink }

// WithSink records every engine lifecycle event into the given sink. The
// caller owns the sink's lifecycle.
func WithSink(sink eventlog.Sink) Opt {
	return sinkOpt{sink: sink}
}

type resetOpt struct{ reset func() bool }

// WithReset attaches the bench's reset probe. Monitors suspend sampling
// while it reports true.
func WithReset(reset func() bool) Opt {
	return resetOpt{reset: reset}
}

// Bench owns one verification run. Registration order of drivers,
// monitors, sequences, and tasks determines scheduling order, which is
// what makes runs reproducible for a fixed seed.
type Bench struct {
	cfg    *config.Config
	logger logging.Logger
	runID  uuid.UUID

	scheduler   *sched.Scheduler
	bus         *events.Bus
	rng         *random.Source
	stamper     *transaction.Stamper
	reporter    *status.Reporter
	sb          *scoreboard.Scoreboard
	coordinator *sequence.Coordinator

	drivers     map[types.DriverID]*driver.Driver
	driverOrder []*driver.Driver
	monitors    []*monitor.Monitor

	sink    eventlog.Sink
	sinkErr error
	reset   func() bool

	tornDown bool
}

// New constructs a bench. A nil cfg uses config.Default().
func New(cfg *config.Config, logger logging.Logger, opts ...Opt) (*Bench, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NilLogger
	}

	b := &Bench{
		cfg:       cfg,
		logger:    logging.Named(logger, "bench"),
		runID:     uuid.New(),
		scheduler: sched.New(logger),
		bus:       events.NewBus(logger),
		rng:       random.NewSource(cfg.Seed),
		stamper:   transaction.NewStamper(),
		reporter:  status.NewReporter(),
		drivers:   map[types.DriverID]*driver.Driver{},
	}
	b.sb = scoreboard.New(b.reporter, logger)
	b.coordinator = sequence.NewCoordinator(b.scheduler, b.rng, logger)

	for _, opt := range opts {
		switch v := opt.(type) {
		case sinkOpt:
			b.sink = v.sink
		case resetOpt:
			b.reset = v.reset
		}
	}

	b.scheduler.SetObserver(b)
	b.bus.Intercept(b.onBusEvent)
	b.sb.OnMatch(b.onMatch)
	b.reporter.Observe(b.onFinding)

	// The scoreboard's expiry loop is always the first registered task,
	// so channel timeouts observe each edge before any later-registered
	// component runs on it.
	if _, err := b.scheduler.Register("scoreboard", b.sb.Run); err != nil {
		return nil, err
	}

	b.logger.Info("bench created",
		zap.String("run", b.runID.String()),
		zap.Int64("seed", cfg.Seed))
	return b, nil
}

// RunID returns the run's unique identity.
func (b *Bench) RunID() uuid.UUID {
	return b.runID
}

// Now returns the current logical clock tick.
func (b *Bench) Now() types.Tick {
	return b.scheduler.Now()
}

// Random returns the bench-wide seeded random source.
func (b *Bench) Random() *random.Source {
	return b.rng
}

// Scoreboard returns the bench's scoreboard.
func (b *Bench) Scoreboard() *scoreboard.Scoreboard {
	return b.sb
}

// Reporter returns the bench's finding reporter.
func (b *Bench) Reporter() *status.Reporter {
	return b.reporter
}

// Driver returns a registered driver by name, nil if absent.
func (b *Bench) Driver(name string) *driver.Driver {
	return b.drivers[types.DriverID(name)]
}

// Subscribe registers a handler on the lifecycle bus.
func (b *Bench) Subscribe(kind events.Kind, handler events.Handler) (int, error) {
	return b.bus.Subscribe(kind, handler)
}

// RegisterDriver creates a driver, schedules its run loop, and returns
// it. Per-driver configuration overrides the global delivery bound.
func (b *Bench) RegisterDriver(name string, io driver.IO, deliver driver.DeliveryFn, opts ...driver.Opt) (*driver.Driver, error) {
	id := types.DriverID(name)
	if _, dup := b.drivers[id]; dup {
		return nil, errors.Errorf("driver %s already registered", name)
	}

	maxEdges := b.cfg.MaxDeliveryEdges
	if dc := b.cfg.Driver(name); dc != nil {
		if dc.MaxDeliveryEdges > 0 {
			maxEdges = dc.MaxDeliveryEdges
		}
		if dc.NonBlocking {
			opts = append(opts, driver.NonBlocking())
		}
	}
	if maxEdges > 0 {
		opts = append([]driver.Opt{driver.MaxDeliveryEdges(maxEdges)}, opts...)
	}

	d := driver.New(id, io, deliver, b.bus, b.stamper, b.reporter, b.logger, opts...)
	if _, err := b.scheduler.Register("drv/"+name, d.Run); err != nil {
		return nil, err
	}
	b.drivers[id] = d
	b.driverOrder = append(b.driverOrder, d)
	return d, nil
}

// MonitorOpt configures a monitor at registration.
type MonitorOpt interface{}

type scoreboardOpt struct{ predicate scoreboard.Predicate }

// WithScoreboard attaches the monitor to a scoreboard channel named after
// it: every capture is pushed as an actual. The channel's window comes
// from configuration; a nil predicate selects field-wise equality.
func WithScoreboard(predicate scoreboard.Predicate) MonitorOpt {
	return scoreboardOpt{predicate: predicate}
}

type destOpt struct{ dest monitor.Dest }

// WithDest attaches a free-form destination for captured transactions.
func WithDest(dest monitor.Dest) MonitorOpt {
	return destOpt{dest: dest}
}

// RegisterMonitor creates a monitor, schedules its sampling loop, and
// returns it.
func (b *Bench) RegisterMonitor(name string, io driver.IO, capture monitor.CaptureFn, opts ...MonitorOpt) (*monitor.Monitor, error) {
	m, err := monitor.New(types.MonitorID(name), io, b.reset, capture, b.stamper, b.logger)
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		switch v := opt.(type) {
		case scoreboardOpt:
			window := b.cfg.MatchWindow
			if cc := b.cfg.Channel(name); cc != nil && cc.Window > 0 {
				window = cc.Window
			}
			ch, err := b.sb.AddChannel(types.ChannelID(name), types.Tick(window), v.predicate)
			if err != nil {
				return nil, err
			}
			m.AddDest(func(now types.Tick, txn *transaction.Transaction) {
				ch.PushActual(now, txn)
			})
		case destOpt:
			m.AddDest(v.dest)
		}
	}

	if _, err := b.scheduler.Register("mon/"+name, m.Run); err != nil {
		return nil, err
	}
	b.monitors = append(b.monitors, m)
	return m, nil
}

// RegisterSequence instantiates a sequence, binding its required roles to
// registered drivers by name.
func (b *Bench) RegisterSequence(desc sequence.Descriptor, body sequence.Body, bind map[string]string) error {
	drivers := make(map[string]*driver.Driver, len(bind))
	for role, name := range bind {
		d, ok := b.drivers[types.DriverID(name)]
		if !ok {
			return errors.Errorf("sequence %s: role %q bound to unknown driver %q", desc.Name, role, name)
		}
		drivers[role] = d
	}
	_, err := b.coordinator.Register(desc, body, drivers)
	return err
}

// RegisterTask schedules a free-form cooperative task, e.g. a testcase's
// run-length wait.
func (b *Bench) RegisterTask(name string, fn sched.TaskFn) error {
	_, err := b.scheduler.Register(name, fn)
	return err
}

// Run advances the simulation by up to the given number of clock edges.
// Task failures other than cancellation are fatal and returned.
func (b *Bench) Run(ticks int) error {
	if err := b.scheduler.RunTicks(ticks); err != nil {
		return err
	}
	if errs := b.scheduler.Errs(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
