// Package daq defines the hardware capability surface that sampling
// workers and the periodic drivers read and write through, independent of
// whatever acquisition backend is actually wired in.
package daq

import "context"

// BurstSpec describes how a module's read task should be configured: a
// sample rate and a sample count per channel. The voltage module's 5,581
// figure is a deliberately prime count chosen to decorrelate 50/60 Hz line
// noise; it is carried here as plain configuration, never hard-coded in a
// sampling worker.
type BurstSpec struct {
	SampleRateHz   float64
	SamplesPerChan int
	ChannelCount   int
}

// Capability is the hardware surface a sampling worker or periodic driver
// operates against. A concrete implementation owns whatever tasks,
// channels, or device handles are needed to satisfy it; none of that state
// is shared across goroutines — callers serialize access per operation
// class (voltage, current, counters, alarms) themselves.
type Capability interface {
	// ReadBurst performs one create-task / configure-clock / read / stop-task
	// cycle for module, returning a [sample][channel] matrix of raw
	// readings per spec.
	ReadBurst(ctx context.Context, module string, spec BurstSpec) ([][]float64, error)

	// ReadCurrent and ReadVoltage return a single scalar reading for an
	// analog channel, used by the acquisition driver's per-tick path.
	ReadCurrent(ctx context.Context, module, channel string) (float64, error)
	ReadVoltage(ctx context.Context, module, channel string) (float64, error)

	// ReadCounter returns the raw 32-bit running count for a counter
	// channel.
	ReadCounter(ctx context.Context, module, channel string) (uint32, error)

	// ResetCounter zeroes a counter channel's running count.
	ResetCounter(ctx context.Context, module, channel string) error

	// SetRelay drives a digital output channel, used by the Alarm Router.
	SetRelay(ctx context.Context, module, channel string, on bool) error

	// Inventory reports the modules this capability currently exposes.
	Inventory(ctx context.Context) ([]string, error)
}
