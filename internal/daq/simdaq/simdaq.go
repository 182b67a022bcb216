// Package simdaq is a synthetic implementation of daq.Capability: it
// generates deterministic-shaped but noisy analog signals, free-running
// counters, and relay state, with no real hardware behind it. It backs both
// the simulation driver and tests that need a Capability without a device.
package simdaq

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/fluxionwatt/daqbridge/internal/daq"
)

// Simulator is a daq.Capability that fabricates readings in memory.
// Safe for concurrent use; one mutex per operation class mirrors the
// discipline a real capability needs between task creation and reads.
type Simulator struct {
	start time.Time
	rnd   *rand.Rand

	analogMu sync.Mutex
	analog   map[string]float64 // module/channel -> base value

	counterMu sync.Mutex
	counters  map[string]uint32

	relayMu sync.Mutex
	relays  map[string]bool

	modules []string
}

// New creates a Simulator exposing the given module names, seeded from
// seed for reproducible test runs.
func New(modules []string, seed int64) *Simulator {
	return &Simulator{
		start:    time.Now(),
		rnd:      rand.New(rand.NewSource(seed)),
		analog:   make(map[string]float64),
		counters: make(map[string]uint32),
		relays:   make(map[string]bool),
		modules:  modules,
	}
}

func key(module, channel string) string {
	return module + "/" + channel
}

// ReadBurst fabricates a [sample][channel] matrix: one column per channel,
// each a noisy sine wave evaluated at the requested sample rate.
func (s *Simulator) ReadBurst(ctx context.Context, module string, spec daq.BurstSpec) ([][]float64, error) {
	if spec.SamplesPerChan <= 0 || spec.ChannelCount <= 0 {
		return nil, fmt.Errorf("simdaq: invalid burst spec for module %q", module)
	}
	elapsed := time.Since(s.start).Seconds()
	dt := 1.0 / spec.SampleRateHz
	out := make([][]float64, spec.SamplesPerChan)
	for i := 0; i < spec.SamplesPerChan; i++ {
		t := elapsed + float64(i)*dt
		row := make([]float64, spec.ChannelCount)
		for c := 0; c < spec.ChannelCount; c++ {
			freq := 1.0 + float64(c)*0.3
			noise := (s.rnd.Float64() - 0.5) * 0.05
			row[c] = 5 + 5*math.Sin(2*math.Pi*freq*t) + noise
		}
		out[i] = row
	}
	return out, nil
}

func (s *Simulator) scalar(module, channel string, base, amplitude float64) float64 {
	s.analogMu.Lock()
	defer s.analogMu.Unlock()
	k := key(module, channel)
	if _, ok := s.analog[k]; !ok {
		s.analog[k] = base
	}
	elapsed := time.Since(s.start).Seconds()
	noise := (s.rnd.Float64() - 0.5) * (amplitude * 0.02)
	return s.analog[k] + amplitude*math.Sin(2*math.Pi*0.5*elapsed) + noise
}

// ReadCurrent returns a synthetic current-like scalar around 4-20mA scale.
func (s *Simulator) ReadCurrent(ctx context.Context, module, channel string) (float64, error) {
	return s.scalar(module, channel, 12, 8), nil
}

// ReadVoltage returns a synthetic voltage-like scalar around mains scale.
func (s *Simulator) ReadVoltage(ctx context.Context, module, channel string) (float64, error) {
	return s.scalar(module, channel, 230, 10), nil
}

// ReadCounter returns the running count for a counter channel, advancing it
// each call as if pulses kept arriving.
func (s *Simulator) ReadCounter(ctx context.Context, module, channel string) (uint32, error) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	k := key(module, channel)
	s.counters[k] += uint32(1 + s.rnd.Intn(5))
	return s.counters[k], nil
}

// ResetCounter zeroes a counter channel.
func (s *Simulator) ResetCounter(ctx context.Context, module, channel string) error {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	s.counters[key(module, channel)] = 0
	return nil
}

// SetRelay records a relay's commanded state.
func (s *Simulator) SetRelay(ctx context.Context, module, channel string, on bool) error {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()
	s.relays[key(module, channel)] = on
	return nil
}

// RelayState reports the last commanded state of a relay, for tests and
// status reporting.
func (s *Simulator) RelayState(module, channel string) bool {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()
	return s.relays[key(module, channel)]
}

// Inventory returns the configured module names.
func (s *Simulator) Inventory(ctx context.Context) ([]string, error) {
	return s.modules, nil
}
