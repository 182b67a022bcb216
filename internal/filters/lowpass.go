// Package filters implements the signal-conditioning stages applied to raw
// burst reads before they are published into a snapshot: an optional
// one-pole low-pass, a per-channel oversampling average, and a rolling
// two-point window.
package filters

import "math"

// LowPass is a single-pole RC-equivalent low-pass filter, one instance per
// channel. It is safe for reconfiguration between calls but not for
// concurrent use from multiple goroutines on the same channel.
type LowPass struct {
	alpha   float64
	primed  bool
	lastOut float64
}

// NewLowPass builds a LowPass configured for cutoff fc (Hz) and sample
// interval dt (seconds).
func NewLowPass(fc, dt float64) *LowPass {
	lp := &LowPass{}
	lp.Configure(fc, dt)
	return lp
}

// Configure recomputes the mixing coefficient alpha = 1 - exp(-2*pi*fc*dt).
// If fc <= 0 or dt <= 0, alpha is forced to 0 and the filter becomes a
// pass-through holding its last output.
func (lp *LowPass) Configure(fc, dt float64) {
	if fc <= 0 || dt <= 0 {
		lp.alpha = 0
		return
	}
	lp.alpha = 1 - math.Exp(-2*math.Pi*fc*dt)
}

// Apply mixes input x into the filter's running output and returns the new
// output: y = y_prev + alpha*(x - y_prev). The first call seeds y_prev = x.
func (lp *LowPass) Apply(x float64) float64 {
	if !lp.primed {
		lp.lastOut = x
		lp.primed = true
		return lp.lastOut
	}
	lp.lastOut = lp.lastOut + lp.alpha*(x-lp.lastOut)
	return lp.lastOut
}

// Reset clears the filter's memory so the next Apply call reseeds it.
func (lp *LowPass) Reset() {
	lp.primed = false
	lp.lastOut = 0
}
