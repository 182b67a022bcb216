// Package sampling implements one worker per hardware module: a burst read
// followed by filtering, oversampling, and rolling-window post-processing,
// published into a snapshot buffer for every other component to read.
package sampling

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/fluxionwatt/daqbridge/internal/daq"
	"github.com/fluxionwatt/daqbridge/internal/filters"
	"github.com/fluxionwatt/daqbridge/internal/pluginapi"
	"github.com/fluxionwatt/daqbridge/internal/snapshot"
	"github.com/sirupsen/logrus"
)

// Config configures one worker instance.
type Config struct {
	Module          string
	Spec            daq.BurstSpec
	TickInterval    time.Duration
	LowPassCutoff   float64 // Hz; <= 0 disables the low-pass stage
	RollingWindow   bool
	MaxRetries      int
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration
}

// Worker reads a burst from one module on a fixed interval and publishes
// the post-processed result into a snapshot.Buffer. It implements
// pluginapi.Instance so the process manager can start, reconfigure, and
// stop it like any other driver.
type Worker struct {
	id  string
	cap daq.Capability

	mu      sync.Mutex
	cfg     Config
	filters []*filters.LowPass
	rolling *filters.RollingWindow
	buf     *snapshot.Buffer

	log logrus.FieldLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an unstarted worker for id, reading from cap according to
// cfg, publishing into buf.
func New(id string, cap daq.Capability, cfg Config, buf *snapshot.Buffer) *Worker {
	w := &Worker{
		id:      id,
		cap:     cap,
		cfg:     cfg,
		rolling: filters.NewRollingWindow(),
		buf:     buf,
	}
	w.configureFilters()
	return w
}

func (w *Worker) configureFilters() {
	dt := 1.0 / w.cfg.Spec.SampleRateHz
	w.filters = make([]*filters.LowPass, w.cfg.Spec.ChannelCount)
	for i := range w.filters {
		w.filters[i] = filters.NewLowPass(w.cfg.LowPassCutoff, dt)
	}
}

// ID satisfies pluginapi.Instance.
func (w *Worker) ID() string { return w.id }

// Type satisfies pluginapi.Instance.
func (w *Worker) Type() string { return "sampling" }

// Init starts the worker's tick loop under parent.
func (w *Worker) Init(parent context.Context, env *pluginapi.HostEnv) error {
	if env != nil && env.Logs != nil {
		w.log = env.Logs.Sampling().WithField("module", w.id)
	} else {
		w.log = logrus.StandardLogger().WithField("module", w.id)
	}

	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Close stops the tick loop and waits for it to exit.
func (w *Worker) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

// UpdateConfig swaps in a new Config and reconfigures the low-pass stage in
// place (alpha only, per the filter's reconfiguration contract).
func (w *Worker) UpdateConfig(cfg pluginapi.InstanceConfig) error {
	c, ok := cfg.(Config)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = c
	dt := 1.0 / w.cfg.Spec.SampleRateHz
	for _, f := range w.filters {
		f.Configure(w.cfg.LowPassCutoff, dt)
	}
	return nil
}

// Get returns the worker's snapshot buffer for inspection.
func (w *Worker) Get() any {
	return w.buf
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.mu.Lock()
	interval := w.cfg.TickInterval
	w.mu.Unlock()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	w.mu.Lock()
	spec := w.cfg.Spec
	module := w.cfg.Module
	maxRetries := w.cfg.MaxRetries
	minBackoff, maxBackoff := w.cfg.RetryMinBackoff, w.cfg.RetryMaxBackoff
	w.mu.Unlock()

	if maxRetries <= 0 {
		maxRetries = 1
	}
	if minBackoff <= 0 {
		minBackoff = 10 * time.Millisecond
	}
	if maxBackoff <= 0 {
		maxBackoff = 100 * time.Millisecond
	}

	var burst [][]float64
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		burst, err = w.cap.ReadBurst(ctx, module, spec)
		if err == nil {
			break
		}
		if w.log != nil {
			w.log.WithError(err).Warn("sampling: burst read failed, retrying")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitterBackoff(minBackoff, maxBackoff)):
		}
	}
	if err != nil {
		if w.log != nil {
			w.log.WithError(err).Error("sampling: burst read failed, aborting tick")
		}
		return
	}

	values := w.postProcess(burst)
	w.buf.Restore(values)
}

func (w *Worker) postProcess(burst [][]float64) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	channels := w.buf.Width()
	filtered := make([][]float64, len(burst))
	for i, row := range burst {
		out := make([]float64, channels)
		for c := 0; c < channels && c < len(row); c++ {
			if w.cfg.LowPassCutoff > 0 {
				out[c] = w.filters[c].Apply(row[c])
			} else {
				out[c] = row[c]
			}
		}
		filtered[i] = out
	}

	averaged := filters.OversampleMatrix(filtered)
	if w.cfg.RollingWindow {
		averaged = w.rolling.Apply(averaged)
	}
	return averaged
}

func jitterBackoff(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	return min + time.Duration(rand.Int63n(span))
}
