// Package simulation implements the synthetic signal generator that
// stands in for real hardware acquisition: periodic analog, counter,
// coder, and relay patterns written straight into the register map.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
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

const (
	tickInterval  = 250 * time.Millisecond
	analogA       = 50.0
	analogOmega   = 2 * math.Pi / 1000
	counterFreq   = 32768
	relayModule   = "Mod6"
	relayChanFmt  = "/port0/line%d"
	relayCount    = 4
	coderEveryN   = 4
)

// Config configures the simulation driver.
type Config struct {
	AnalogChannels int
	Compatibility  bool
}

// Driver is the simulation instance: a pluginapi.Instance that, while
// active, writes synthetic readings into the register map on a 250ms
// cadence.
type Driver struct {
	id   string
	regs *regmap.Map
	cap  daq.Capability

	mu  sync.Mutex
	cfg Config

	tick   uint64
	active atomic.Bool

	log logrus.FieldLogger

	sched   *scheduler.Scheduler
	jobID   uuid.UUID
	cancel  context.CancelFunc
	tickCtx context.Context
	wg      sync.WaitGroup
}

// New constructs an unstarted simulation driver.
func New(id string, regs *regmap.Map, cap daq.Capability, cfg Config) *Driver {
	return &Driver{id: id, regs: regs, cap: cap, cfg: cfg}
}

// WithScheduler switches the driver's tick source from its default
// time.Ticker loop to a job registered on sched, exercising the same
// runTick logic through gocron instead of duplicating it. Must be called
// before Init.
func (d *Driver) WithScheduler(sched *scheduler.Scheduler) *Driver {
	d.sched = sched
	return d
}

// ID satisfies pluginapi.Instance.
func (d *Driver) ID() string { return d.id }

// Type satisfies pluginapi.Instance.
func (d *Driver) Type() string { return "simulation" }

// Active reports whether the driver is currently ticking.
func (d *Driver) Active() bool { return d.active.Load() }

// Init starts the tick loop under parent, immediately marking the driver
// active.
func (d *Driver) Init(parent context.Context, env *pluginapi.HostEnv) error {
	if env != nil && env.Logs != nil {
		d.log = env.Logs.Run().WithField("driver", "simulation")
	} else {
		d.log = logrus.StandardLogger().WithField("driver", "simulation")
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.tickCtx = ctx
	d.active.Store(true)

	if d.sched != nil {
		id, err := d.sched.RunEvery(tickInterval, func() { d.runTick(d.tickCtx) })
		if err != nil {
			return fmt.Errorf("simulation: register scheduler job: %w", err)
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

// UpdateConfig swaps in a new Config.
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

// Get returns the current tick counter, for status reporting.
func (d *Driver) Get() any {
	return atomic.LoadUint64(&d.tick)
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
			d.log.WithField("panic", r).Error("simulation: tick panicked, continuing")
		}
	}()

	k := atomic.AddUint64(&d.tick, 1) - 1

	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	// One tick builds one register line — shim, then analogs, then the
	// counter words, then the coder words, appended in that order and
	// remapped with a single call. Writing each section to the register
	// map separately (as earlier analog/counter/coder writes did) lets a
	// later section clobber an earlier one at the same base address;
	// niToModbusBridge.cpp's onSimulationTimerTimeOut avoids exactly that
	// by building one vector across simulateAnalogicInputs/
	// simulateCounters/simulateCoders and remapping it once.
	line := d.buildAnalogRegisters(cfg, k)
	line = d.appendCounter(line, k)
	line = d.appendCoder(line, k)
	d.regs.RemapAnalogInputRegisters(line)

	d.driveRelay(ctx, k)
}

func (d *Driver) buildAnalogRegisters(cfg Config, k uint64) []uint16 {
	var out []uint16
	if cfg.Compatibility {
		out = append(out, 0) // alignment shim
	}
	for c := 0; c < cfg.AnalogChannels; c++ {
		v := analogA*math.Sin(analogOmega*float64(k)) + analogA
		noise := (rand.Float64()*2 - 1) * 0.1 * v
		v += noise
		reg := mapping.LinearRescale(v, 0, 100, 0, 65535)
		out = append(out, reg)
	}
	return out
}

func (d *Driver) appendCounter(line []uint16, k uint64) []uint16 {
	hi, lo := mapping.SplitWords(uint32(k))
	return append(line, counterFreq, hi, lo)
}

// appendCoder appends the current coder word pair every tick; the
// underlying value advances only every coderEveryN ticks (the integer
// division holds it steady across the rest of the window), matching
// simulateCoders incrementing m_simulatedCodersValue only when
// m_simulationCounter % 4 == 0 while still emitting its value each cycle.
func (d *Driver) appendCoder(line []uint16, k uint64) []uint16 {
	hi, lo := mapping.SplitWords(uint32(k / coderEveryN))
	return append(line, hi, lo)
}

func (d *Driver) driveRelay(ctx context.Context, k uint64) {
	if d.cap == nil {
		return
	}
	line := int(k % relayCount)
	channel := fmt.Sprintf(relayChanFmt, line)
	if err := d.cap.SetRelay(ctx, relayModule, channel, true); err != nil && d.log != nil {
		d.log.WithError(err).Warn("simulation: relay drive failed")
	}
	for i := 0; i < relayCount; i++ {
		if i == line {
			continue
		}
		_ = d.cap.SetRelay(ctx, relayModule, fmt.Sprintf(relayChanFmt, i), false)
	}
}
