package acquisition

import (
	"context"
	"testing"
	"time"

	"github.com/fluxionwatt/daqbridge/internal/daq/simdaq"
	"github.com/fluxionwatt/daqbridge/internal/mapping"
	"github.com/fluxionwatt/daqbridge/internal/regmap"
	"github.com/fluxionwatt/daqbridge/internal/scheduler"
)

func TestDriverPublishesAnalogAndCounterEntries(t *testing.T) {
	regs := regmap.New(10, nil)
	cap := simdaq.New([]string{"m1"}, 1)

	entries := []*mapping.Entry{
		{Type: mapping.AnalogCurrent, Module: "m1", Channel: "c0", MinSource: 0, MaxSource: 20, MinDest: 0, MaxDest: 65535, ModbusChannel: 0},
		{Type: mapping.Counter, Module: "m1", Channel: "ctr0", MinSource: 0, MaxSource: 1000, MinDest: 0, MaxDest: 65535, ModbusChannel: 1},
	}

	d := New("acq-1", regs, cap, Config{Entries: entries})
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
		v, ok := regs.ReadRegister(0)
		if ok && v != 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a published analog register")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDriverWithSchedulerTickSource(t *testing.T) {
	sched, err := scheduler.New()
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	defer sched.Shutdown()

	regs := regmap.New(10, nil)
	cap := simdaq.New([]string{"m1"}, 1)
	entries := []*mapping.Entry{
		{Type: mapping.AnalogCurrent, Module: "m1", Channel: "c0", MinSource: 0, MaxSource: 20, MinDest: 0, MaxDest: 65535, ModbusChannel: 0},
	}

	d := New("acq-sched", regs, cap, Config{Entries: entries}).WithScheduler(sched)

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
		v, ok := regs.ReadRegister(0)
		if ok && v != 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for scheduler-driven tick")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDriverActiveLifecycle(t *testing.T) {
	regs := regmap.New(4, nil)
	d := New("acq-1", regs, nil, Config{})
	ctx := context.Background()
	if err := d.Init(ctx, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !d.Active() {
		t.Fatalf("expected active after Init")
	}
	d.Close()
	if d.Active() {
		t.Fatalf("expected inactive after Close")
	}
}
