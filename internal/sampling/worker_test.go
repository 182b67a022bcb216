package sampling

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxionwatt/daqbridge/internal/daq"
	"github.com/fluxionwatt/daqbridge/internal/snapshot"
)

type fakeCap struct {
	calls     int32
	failFirst int32
	value     float64
}

func (f *fakeCap) ReadBurst(ctx context.Context, module string, spec daq.BurstSpec) ([][]float64, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failFirst {
		return nil, fmt.Errorf("simulated failure")
	}
	burst := make([][]float64, spec.SamplesPerChan)
	for i := range burst {
		row := make([]float64, spec.ChannelCount)
		for c := range row {
			row[c] = f.value
		}
		burst[i] = row
	}
	return burst, nil
}
func (f *fakeCap) ReadCurrent(context.Context, string, string) (float64, error)  { return 0, nil }
func (f *fakeCap) ReadVoltage(context.Context, string, string) (float64, error)  { return 0, nil }
func (f *fakeCap) ReadCounter(context.Context, string, string) (uint32, error)   { return 0, nil }
func (f *fakeCap) ResetCounter(context.Context, string, string) error            { return nil }
func (f *fakeCap) SetRelay(context.Context, string, string, bool) error          { return nil }
func (f *fakeCap) Inventory(context.Context) ([]string, error)                   { return nil, nil }

func TestWorkerPublishesSnapshot(t *testing.T) {
	cap := &fakeCap{value: 42}
	buf := snapshot.New(2)
	cfg := Config{
		Module:       "m1",
		Spec:         daq.BurstSpec{SampleRateHz: 1000, SamplesPerChan: 5, ChannelCount: 2},
		TickInterval: 10 * time.Millisecond,
		MaxRetries:   1,
	}
	w := New("m1", cap, cfg, buf)

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Init(ctx, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		cancel()
		w.Close()
	}()

	deadline := time.After(2 * time.Second)
	for {
		if cur := buf.Current(); cur != nil {
			if cur[0] != 42 || cur[1] != 42 {
				t.Fatalf("unexpected snapshot values: %v", cur)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot publish")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorkerRetriesOnFailure(t *testing.T) {
	cap := &fakeCap{value: 7, failFirst: 2}
	buf := snapshot.New(1)
	cfg := Config{
		Module:          "m1",
		Spec:            daq.BurstSpec{SampleRateHz: 1000, SamplesPerChan: 3, ChannelCount: 1},
		TickInterval:    20 * time.Millisecond,
		MaxRetries:      5,
		RetryMinBackoff: time.Millisecond,
		RetryMaxBackoff: 2 * time.Millisecond,
	}
	w := New("m1", cap, cfg, buf)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Init(ctx, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer w.Close()

	deadline := time.After(2 * time.Second)
	for {
		if cur := buf.Current(); cur != nil {
			if cur[0] != 7 {
				t.Fatalf("expected published value 7 after retries, got %v", cur[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot after retries")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
