// Package acquisition implements the real-hardware periodic driver: on
// each tick it walks the channel mapping in order, reads or computes a
// value per entry, and publishes one register line to the register map.
package acquisition

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxionwatt/daqbridge/internal/daq"
	"github.com/fluxionwatt/daqbridge/internal/mapping"
	"github.com/fluxionwatt/daqbridge/internal/pluginapi"
	"github.com/fluxionwatt/daqbridge/internal/regmap"
	"github.com/fluxionwatt/daqbridge/internal/scheduler"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const tickInterval = 125 * time.Millisecond

// Config configures the acquisition driver.
type Config struct {
	Entries []*mapping.Entry
}

// Driver is the acquisition instance: a pluginapi.Instance that, while
// active, reads every mapped channel once per 125ms tick and publishes the
// resulting register line in a single remap call.
type Driver struct {
	id   string
	regs *regmap.Map
	cap  daq.Capability

	mu  sync.Mutex
	cfg Config

	active atomic.Bool
	log    logrus.FieldLogger

	sched   *scheduler.Scheduler
	jobID   uuid.UUID
	cancel  context.CancelFunc
	tickCtx context.Context
	wg      sync.WaitGroup
}

// New constructs an unstarted acquisition driver.
func New(id string, regs *regmap.Map, cap daq.Capability, cfg Config) *Driver {
	return &Driver{id: id, regs: regs, cap: cap, cfg: cfg}
}

// WithScheduler switches the driver's tick source from its default
// time.Ticker loop to a job registered on sched. Must be called before
// Init.
func (d *Driver) WithScheduler(sched *scheduler.Scheduler) *Driver {
	d.sched = sched
	return d
}

// ID satisfies pluginapi.Instance.
func (d *Driver) ID() string { return d.id }

// Type satisfies pluginapi.Instance.
func (d *Driver) Type() string { return "acquisition" }

// Active reports whether the driver is currently ticking.
func (d *Driver) Active() bool { return d.active.Load() }

// Init starts the tick loop under parent.
func (d *Driver) Init(parent context.Context, env *pluginapi.HostEnv) error {
	if env != nil && env.Logs != nil {
		d.log = env.Logs.Acquisition().WithField("driver", "acquisition")
	} else {
		d.log = logrus.StandardLogger().WithField("driver", "acquisition")
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.tickCtx = ctx
	d.active.Store(true)

	if d.sched != nil {
		id, err := d.sched.RunEvery(tickInterval, func() { d.runTick(d.tickCtx) })
		if err != nil {
			return fmt.Errorf("acquisition: register scheduler job: %w", err)
		}
		d.jobID = id
		return nil
	}

	d.wg.Add(1)
	go d.run(ctx)
	return nil
}

// Close stops the tick loop and marks the driver inactive.
func (d *Driver) Close() error {
	d.active.Store(false)
	if d.sched != nil {
		_ = d.sched.RemoveJob(d.jobID)
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	return nil
}

// UpdateConfig swaps in a new mapping entry list.
func (d *Driver) UpdateConfig(cfg pluginapi.InstanceConfig) error {
	c, ok := cfg.(Config)
	if !ok {
		return nil
	}
	d.mu.Lock()
	d.cfg = c
	d.mu.Unlock()
	return nil
}

// Get returns the number of mapped entries, for status reporting.
func (d *Driver) Get() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cfg.Entries)
}

func (d *Driver) run(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runTick(ctx)
		}
	}
}

func (d *Driver) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && d.log != nil {
			d.log.WithField("panic", r).Error("acquisition: tick panicked, continuing")
		}
	}()

	d.mu.Lock()
	entries := d.cfg.Entries
	d.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	width := 0
	for _, e := range entries {
		if end := e.ModbusChannel + e.Width(); end > width {
			width = end
		}
	}
	line := make([]uint16, width)

	now := time.Now()
	for _, e := range entries {
		switch e.Type {
		case mapping.Counter:
			d.readCounter(ctx, e, now, line)
		case mapping.AnalogCurrent:
			d.readAnalog(ctx, e, line, d.cap.ReadCurrent)
		case mapping.AnalogVoltage:
			d.readAnalog(ctx, e, line, d.cap.ReadVoltage)
		default:
			// Coder, DigitalInput, DigitalOutput: reserved, not yet driven
			// from this path.
		}
	}

	d.regs.RemapAnalogInputRegisters(line)
}

func (d *Driver) readAnalog(ctx context.Context, e *mapping.Entry, line []uint16, read func(context.Context, string, string) (float64, error)) {
	x, err := read(ctx, e.Module, e.Channel)
	if err != nil {
		if d.log != nil {
			d.log.WithError(err).WithFields(logrus.Fields{"module": e.Module, "channel": e.Channel}).
				Warn("acquisition: analog read failed")
		}
		return
	}
	reg := mapping.LinearRescale(x, e.MinSource, e.MaxSource, e.MinDest, e.MaxDest)
	if e.ModbusChannel >= 0 && e.ModbusChannel < len(line) {
		line[e.ModbusChannel] = reg
	}
}

func (d *Driver) readCounter(ctx context.Context, e *mapping.Entry, now time.Time, line []uint16) {
	c, err := d.cap.ReadCounter(ctx, e.Module, e.Channel)
	if err != nil {
		if d.log != nil {
			d.log.WithError(err).WithFields(logrus.Fields{"module": e.Module, "channel": e.Channel}).
				Warn("acquisition: counter read failed")
		}
		return
	}
	prevTime, prevValue := e.SetCounterState(now, c)

	var deltaSeconds float64
	if !prevTime.IsZero() {
		// Truncate to whole seconds, matching niToModbusBridge.cpp's
		// duration_cast<seconds>: frequency only updates once a full
		// second has elapsed, not on every 125ms tick.
		deltaSeconds = float64(now.Sub(prevTime) / time.Second)
	}
	deltaCount := c - prevValue
	freq := mapping.CounterFrequency(deltaCount, deltaSeconds)
	freqReg := mapping.LinearRescale(freq, e.MinSource, e.MaxSource, e.MinDest, e.MaxDest)
	hi, lo := mapping.SplitWords(c)

	base := e.ModbusChannel
	if base >= 0 && base+2 < len(line) {
		line[base] = freqReg
		line[base+1] = hi
		line[base+2] = lo
	}
}
