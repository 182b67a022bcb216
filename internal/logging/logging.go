// Package logging gives every component family its own append-only,
// timestamped log file: one *logrus.Logger per concern, reopenable on
// SIGHUP/SIGUSR1 without dropping in-flight writes.
package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fluxionwatt/daqbridge/internal/paths"
)

// Loggers bundles one logrus.Logger per component family: run (orchestrator
// lifecycle), sampling (workers), acquisition (mapping + acquisition
// driver), modbus (TCP server), tls (control server), audit (coil writes /
// TLS commands).
type Loggers struct {
	mu sync.Mutex
	dir string
	debug bool

	files map[string]*os.File
	logs  map[string]*logrus.Logger
}

var components = []string{"run", "sampling", "acquisition", "modbus", "tls", "audit"}

// New opens one log file per component under dir, creating dir if needed.
func New(dir string, debug bool) (*Loggers, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create dir %s: %w", dir, err)
	}

	l := &Loggers{
		dir:   dir,
		debug: debug,
		files: make(map[string]*os.File, len(components)),
		logs:  make(map[string]*logrus.Logger, len(components)),
	}

	for _, c := range components {
		if err := l.open(c); err != nil {
			l.Close()
			return nil, err
		}
	}

	return l, nil
}

func (l *Loggers) open(component string) error {
	p := l.dir + "/" + component + ".log"
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", p, err)
	}

	lg := logrus.New()
	lg.SetOutput(f)
	lg.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	if l.debug {
		lg.SetLevel(logrus.DebugLevel)
	}

	l.files[component] = f
	l.logs[component] = lg
	return nil
}

func (l *Loggers) get(component string) *logrus.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logs[component]
}

func (l *Loggers) Run() *logrus.Logger         { return l.get("run") }
func (l *Loggers) Sampling() *logrus.Logger    { return l.get("sampling") }
func (l *Loggers) Acquisition() *logrus.Logger { return l.get("acquisition") }
func (l *Loggers) Modbus() *logrus.Logger      { return l.get("modbus") }
func (l *Loggers) TLS() *logrus.Logger         { return l.get("tls") }
func (l *Loggers) Audit() *logrus.Logger       { return l.get("audit") }

// Reopen closes and reopens every log file in place, for log rotation.
func (l *Loggers) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range components {
		if f := l.files[c]; f != nil {
			_ = f.Close()
		}
		if err := l.open(c); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every underlying log file.
func (l *Loggers) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range l.files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// FromPaths is a convenience constructor reading the log directory out of a
// Paths struct.
func FromPaths(p paths.Paths, debug bool) (*Loggers, error) {
	return New(p.LogDir, debug)
}
