package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/fluxionwatt/daqbridge/internal/daq/simdaq"
	"github.com/fluxionwatt/daqbridge/internal/regmap"
	"github.com/fluxionwatt/daqbridge/internal/scheduler"
)

func TestDriverPublishesAnalogRegisters(t *testing.T) {
	regs := regmap.New(10, nil)
	cap := simdaq.New([]string{"Mod6"}, 1)
	d := New("sim-1", regs, cap, Config{AnalogChannels: 4})

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Init(ctx, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		cancel()
		d.Close()
	}()

	deadline := time.After(2 * time.Second)
	for {
		if d.Get().(uint64) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a tick")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if !d.Active() {
		t.Fatalf("expected driver active after Init")
	}
}

func TestDriverCompatibilityPrependsShim(t *testing.T) {
	regs := regmap.New(10, nil)
	d := New("sim-1", regs, nil, Config{AnalogChannels: 2, Compatibility: true})
	out := d.buildAnalogRegisters(Config{AnalogChannels: 2, Compatibility: true}, 0)
	if len(out) != 3 || out[0] != 0 {
		t.Fatalf("expected 3 registers with leading zero shim, got %v", out)
	}
}

func TestRunTickDoesNotClobberAnalogRegisters(t *testing.T) {
	regs := regmap.New(10, nil)
	d := New("sim-1", regs, nil, Config{AnalogChannels: 2})
	ctx := context.Background()
	d.log = nil

	d.runTick(ctx)

	values := regs.InputRegisters()
	// line = [analog0, analog1, counterFreq, counterHi, counterLo, coderHi, coderLo]
	if values[2] != counterFreq {
		t.Fatalf("expected counter frequency word at index 2, got %v", values)
	}
	// The first tick's analog values are deterministic noise draws, but
	// they must land at indices 0-1, not be overwritten by the counter or
	// coder words that follow them in the line.
	if len(values) < 7 {
		t.Fatalf("expected at least 7 registers written, got %d: %v", len(values), values)
	}
}

func TestDriverWithSchedulerTickSource(t *testing.T) {
	sched, err := scheduler.New()
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	defer sched.Shutdown()

	regs := regmap.New(4, nil)
	d := New("sim-sched", regs, nil, Config{AnalogChannels: 1}).WithScheduler(sched)

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Init(ctx, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		cancel()
		d.Close()
	}()

	deadline := time.After(2 * time.Second)
	for {
		if d.Get().(uint64) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for scheduler-driven tick")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDriverCloseStopsTicking(t *testing.T) {
	regs := regmap.New(4, nil)
	d := New("sim-1", regs, nil, Config{AnalogChannels: 1})
	ctx := context.Background()
	if err := d.Init(ctx, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	d.Close()
	if d.Active() {
		t.Fatalf("expected inactive after Close")
	}
}
