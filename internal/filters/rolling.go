package filters

// RollingWindow publishes the two-point average of a freshly computed
// per-channel value vector and the previously published vector, channel by
// channel. If there is no previous vector, or its length differs, the new
// value is published unchanged.
type RollingWindow struct {
	prev []float64
}

// NewRollingWindow returns an empty rolling window (no previous snapshot).
func NewRollingWindow() *RollingWindow {
	return &RollingWindow{}
}

// Apply returns the two-point average of cur and the previously seen
// vector, then remembers cur for the next call.
func (w *RollingWindow) Apply(cur []float64) []float64 {
	out := make([]float64, len(cur))
	if w.prev != nil && len(w.prev) == len(cur) {
		for i, v := range cur {
			out[i] = (v + w.prev[i]) / 2
		}
	} else {
		copy(out, cur)
	}

	prev := make([]float64, len(cur))
	copy(prev, cur)
	w.prev = prev

	return out
}

// Reset discards the remembered previous vector.
func (w *RollingWindow) Reset() {
	w.prev = nil
}
