// Package hotreload watches the channel and alarm mapping CSV files for
// changes and invokes a reload callback, so edited mapping files take
// effect without a process restart.
package hotreload

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher watches a fixed set of files for write/create/rename events and
// debounces bursts of events (editors often emit several per save) into a
// single reload call.
type Watcher struct {
	fsw      *fsnotify.Watcher
	log      logrus.FieldLogger
	debounce time.Duration
	onChange func(path string)

	mu sync.Mutex
}

// New watches the given files, calling onChange at most once per debounce
// window per file after it settles.
func New(paths []string, debounce time.Duration, onChange func(path string), log logrus.FieldLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil && log != nil {
			log.WithError(err).WithField("path", p).Warn("hotreload: failed to watch file")
		}
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Watcher{fsw: fsw, log: log, debounce: debounce, onChange: onChange}, nil
}

// Run processes events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	pending := make(map[string]*time.Timer)
	defer func() {
		w.mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			if t, exists := pending[ev.Name]; exists {
				t.Stop()
			}
			path := ev.Name
			pending[path] = time.AfterFunc(w.debounce, func() {
				if w.onChange != nil {
					w.onChange(path)
				}
			})
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.WithError(err).Warn("hotreload: watcher error")
			}
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
