// Package orchestrator wires every subsystem together: configuration,
// logging, the audit trail, the event bus, the register map, the mapping
// engine, the hardware capability, the driver manager, and the three
// network-facing servers (Modbus/TCP, TLS control, status API). It also
// owns the one cross-cutting invariant that doesn't belong to any single
// component: simulation and acquisition are mutually exclusive.
package orchestrator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"gorm.io/gorm"

	"github.com/fluxionwatt/daqbridge/internal/acquisition"
	"github.com/fluxionwatt/daqbridge/internal/alarm"
	"github.com/fluxionwatt/daqbridge/internal/audit"
	"github.com/fluxionwatt/daqbridge/internal/broadcaster"
	"github.com/fluxionwatt/daqbridge/internal/config"
	"github.com/fluxionwatt/daqbridge/internal/daq"
	"github.com/fluxionwatt/daqbridge/internal/daq/simdaq"
	"github.com/fluxionwatt/daqbridge/internal/eventbus"
	"github.com/fluxionwatt/daqbridge/internal/hotreload"
	"github.com/fluxionwatt/daqbridge/internal/logging"
	"github.com/fluxionwatt/daqbridge/internal/mapping"
	"github.com/fluxionwatt/daqbridge/internal/modbusserver"
	"github.com/fluxionwatt/daqbridge/internal/paths"
	"github.com/fluxionwatt/daqbridge/internal/pluginapi"
	"github.com/fluxionwatt/daqbridge/internal/regmap"
	"github.com/fluxionwatt/daqbridge/internal/sampling"
	"github.com/fluxionwatt/daqbridge/internal/scheduler"
	"github.com/fluxionwatt/daqbridge/internal/simulation"
	"github.com/fluxionwatt/daqbridge/internal/snapshot"
	"github.com/fluxionwatt/daqbridge/internal/statusapi"
	"github.com/fluxionwatt/daqbridge/internal/tlsserver"
)

const (
	simulationID  = "main"
	acquisitionID = "main"

	defaultSampleRateHz   = 50000
	defaultSamplesPerChan = 5581
	defaultChannelCount   = 4
	defaultSamplingTick   = 500 * time.Millisecond
)

// Gateway owns every long-lived dependency of a running daqbridge process.
type Gateway struct {
	cfg   *config.Config
	paths paths.Paths
	logs  *logging.Loggers
	db    *gorm.DB
	bus   *eventbus.Bus

	sru          config.SRU
	entries      []*mapping.Entry
	alarmEntries []*mapping.AlarmEntry

	regs *regmap.Map
	cap  daq.Capability

	mgr    *pluginapi.Manager
	router *alarm.Router

	modbus  *modbusserver.Server
	tls     *tlsserver.Server
	status  *statusapi.Server
	sched   *scheduler.Scheduler
	watcher *hotreload.Watcher

	rosterBroadcast *broadcaster.Broadcaster

	mu           sync.Mutex
	samplingBufs map[string]*snapshot.Buffer
}

// New bootstraps every dependency but does not start any listener or
// driver; call Run to bring the gateway up.
func New(cfg *config.Config, p paths.Paths) (*Gateway, error) {
	logs, err := logging.FromPaths(p, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: logging: %w", err)
	}

	db, err := audit.Open(p.SQLitePath, logs.Audit())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: audit db: %w", err)
	}

	sru, err := config.LoadSRU(p.SRUIni)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: sru: %w", err)
	}

	entries, err := mapping.LoadEntries(p.MappingCSV, logs.Acquisition())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: mapping entries: %w", err)
	}
	alarmEntries, err := mapping.LoadAlarmEntries(p.AlarmCSV, logs.Acquisition())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: alarm entries: %w", err)
	}

	regs := regmap.New(sru.InputRegisterCount(), logs.Modbus())
	cap := simdaq.New(modulesOf(entries), 1)

	var bus *eventbus.Bus
	if cfg.MQTT.Enable {
		bus, err = eventbus.New("127.0.0.1:1883", logs.Run())
		if err != nil {
			return nil, fmt.Errorf("orchestrator: eventbus: %w", err)
		}
	}

	g := &Gateway{
		cfg: cfg, paths: p, logs: logs, db: db, bus: bus,
		sru: sru, entries: entries, alarmEntries: alarmEntries,
		regs: regs, cap: cap,
		rosterBroadcast: broadcaster.New(),
		samplingBufs:    make(map[string]*snapshot.Buffer),
	}

	g.router = alarm.New(cap, alarmEntries, logs.Acquisition(), g.onAlarmEvent)

	env := &pluginapi.HostEnv{Conf: cfg, Paths: p, Logs: logs, DB: db, WG: &sync.WaitGroup{}}
	if bus != nil {
		env.MQTT = bus.Server()
	}
	g.mgr = pluginapi.NewManager(context.Background(), env)

	simulation.RegisterFactory()
	acquisition.RegisterFactory()
	sampling.RegisterFactory()

	g.modbus = modbusserver.New(modbusserver.Config{
		ListenAddr:    fmt.Sprintf("%s:%d", cfg.Modbus.ListenAddr, cfg.Modbus.Port),
		SlaveID:       cfg.Modbus.SlaveID,
		Compatibility: cfg.Modbus.Compatibility,
	}, regs, g.router, logs.Modbus(), g.rosterBroadcast)

	g.tls = tlsserver.New(tlsserver.Config{
		ListenAddr:  fmt.Sprintf(":%d", cfg.TLS.Port),
		CertFile:    p.TLSCertFile,
		KeyFile:     p.TLSKeyFile,
		TransferDir: p.DataDir,
	}, g, g, g.onTLSCommand, logs.TLS())

	g.status = statusapi.New(g, g, g)

	if sched, err := scheduler.New(); err == nil {
		g.sched = sched
	} else if logs.Run() != nil {
		logs.Run().WithError(err).Warn("orchestrator: scheduler unavailable, drivers fall back to plain tickers")
	}

	return g, nil
}

func modulesOf(entries []*mapping.Entry) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range entries {
		if _, ok := seen[e.Module]; !ok {
			seen[e.Module] = struct{}{}
			out = append(out, e.Module)
		}
	}
	return out
}

func (g *Gateway) onAlarmEvent(entry *mapping.AlarmEntry, addr uint16, state bool, routed bool) {
	detail := fmt.Sprintf("coil=%d state=%v routed=%v", addr, state, routed)
	audit.Write(g.db, g.logs.Audit(), "alarm", "coil_write", detail, "")
	if g.bus != nil && entry != nil {
		g.bus.Publish(fmt.Sprintf("daqbridge/alarm/%s/%s", entry.Module, entry.Channel), "alarm", "coil_write", detail)
	}
}

func (g *Gateway) onTLSCommand(action, detail, peer string) {
	audit.Write(g.db, g.logs.Audit(), "tls", action, detail, peer)
}

// ReopenLogs closes and reopens every component log file in place, for use
// from a SIGUSR1 handler during log rotation.
func (g *Gateway) ReopenLogs() error {
	return g.logs.Reopen()
}

// Run starts every listener and driver, blocking until ctx is canceled,
// then tears everything down in reverse order.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.startSamplingWorkers(ctx)

	if g.cfg.Simulator.Enable {
		if err := g.StartSimulation(); err != nil {
			g.logs.Run().WithError(err).Warn("orchestrator: failed to auto-start simulation")
		}
	}

	watcher, err := hotreload.New([]string{g.paths.MappingCSV, g.paths.AlarmCSV}, 300*time.Millisecond, g.onMappingChanged, g.logs.Acquisition())
	if err == nil {
		g.watcher = watcher
		go watcher.Run(ctx)
	} else {
		g.logs.Acquisition().WithError(err).Warn("orchestrator: mapping hot-reload unavailable")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.modbus.Serve(ctx); err != nil && g.logs.Modbus() != nil {
			g.logs.Modbus().WithError(err).Error("orchestrator: modbus server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.tls.Serve(ctx); err != nil && g.logs.TLS() != nil {
			g.logs.TLS().WithError(err).Error("orchestrator: tls server stopped")
		}
	}()

	if g.cfg.StatusAPI.Enable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.serveStatusAPI(ctx)
		}()
	}

	<-ctx.Done()
	_ = g.modbus.Close()
	_ = g.tls.Close()
	if g.watcher != nil {
		_ = g.watcher.Close()
	}
	g.mgr.DestroyAll()
	if g.bus != nil {
		_ = g.bus.Close()
	}
	if g.sched != nil {
		_ = g.sched.Shutdown()
	}
	wg.Wait()
	g.logs.Close()
	return nil
}

func (g *Gateway) serveStatusAPI(ctx context.Context) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	g.status.Route(app)

	ln, err := net.Listen("tcp", g.cfg.StatusAPI.Addr)
	if err != nil {
		g.logs.Run().WithError(err).Error("orchestrator: status API listen failed")
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	if err := app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		select {
		case <-ctx.Done():
		default:
			g.logs.Run().WithError(err).Error("orchestrator: status API stopped")
		}
	}
}

func (g *Gateway) onMappingChanged(path string) {
	entries, err := mapping.LoadEntries(g.paths.MappingCSV, g.logs.Acquisition())
	if err != nil {
		g.logs.Acquisition().WithError(err).Warn("orchestrator: mapping reload failed")
		return
	}
	alarmEntries, err := mapping.LoadAlarmEntries(g.paths.AlarmCSV, g.logs.Acquisition())
	if err != nil {
		g.logs.Acquisition().WithError(err).Warn("orchestrator: alarm mapping reload failed")
		return
	}

	g.mu.Lock()
	g.entries = entries
	g.alarmEntries = alarmEntries
	g.mu.Unlock()

	if inst, ok := g.mgr.Get("acquisition", acquisitionID); ok {
		_ = inst.UpdateConfig(acquisition.Config{Entries: entries})
	}
	g.logs.Acquisition().WithField("path", path).Info("orchestrator: mapping reloaded")
}

func (g *Gateway) startSamplingWorkers(ctx context.Context) {
	for _, module := range modulesOf(g.entries) {
		buf := snapshot.New(defaultChannelCount)
		g.mu.Lock()
		g.samplingBufs[module] = buf
		g.mu.Unlock()

		cfg := sampling.Config{
			Module:          module,
			Spec:            daq.BurstSpec{SampleRateHz: defaultSampleRateHz, SamplesPerChan: defaultSamplesPerChan, ChannelCount: defaultChannelCount},
			TickInterval:    defaultSamplingTick,
			MaxRetries:      3,
			RetryMinBackoff: 10 * time.Millisecond,
			RetryMaxBackoff: 100 * time.Millisecond,
		}
		if _, err := g.mgr.CreateWithContext(ctx, "sampling", module, sampling.FactoryConfig{Cap: g.cap, Buf: buf, Config: cfg}); err != nil {
			g.logs.Sampling().WithError(err).WithField("module", module).Warn("orchestrator: failed to start sampling worker")
		}
	}
}

// StartSimulation satisfies tlsserver.DriverControl: stops acquisition (if
// running) and starts the simulation driver.
func (g *Gateway) StartSimulation() error {
	_ = g.mgr.Destroy("acquisition", acquisitionID)
	drv := simulation.FactoryConfig{Regs: g.regs, Cap: g.cap, Config: simulation.Config{AnalogChannels: g.sru.NAnalogIn, Compatibility: g.sru.CompatibilityMode}}
	_, err := g.mgr.Create("simulation", simulationID, drv)
	if err == nil {
		g.rosterBroadcast.Signal()
	}
	return err
}

// StopSimulation satisfies tlsserver.DriverControl.
func (g *Gateway) StopSimulation() error {
	err := g.mgr.Destroy("simulation", simulationID)
	g.rosterBroadcast.Signal()
	return err
}

// StartAcquisition satisfies tlsserver.DriverControl: stops simulation (if
// running) and starts the acquisition driver.
func (g *Gateway) StartAcquisition() error {
	_ = g.mgr.Destroy("simulation", simulationID)
	g.mu.Lock()
	entries := g.entries
	g.mu.Unlock()
	drv := acquisition.FactoryConfig{Regs: g.regs, Cap: g.cap, Config: acquisition.Config{Entries: entries}}
	_, err := g.mgr.Create("acquisition", acquisitionID, drv)
	if err == nil {
		g.rosterBroadcast.Signal()
	}
	return err
}

// StopAcquisition satisfies tlsserver.DriverControl.
func (g *Gateway) StopAcquisition() error {
	err := g.mgr.Destroy("acquisition", acquisitionID)
	g.rosterBroadcast.Signal()
	return err
}

// ReadCurrent satisfies tlsserver.AnalogReader.
func (g *Gateway) ReadCurrent(ctx context.Context, module, channel string) (float64, error) {
	return g.cap.ReadCurrent(ctx, module, channel)
}

// ReadVoltage satisfies tlsserver.AnalogReader.
func (g *Gateway) ReadVoltage(ctx context.Context, module, channel string) (float64, error) {
	return g.cap.ReadVoltage(ctx, module, channel)
}

// Snapshots satisfies statusapi.SnapshotSource.
func (g *Gateway) Snapshots() map[string][]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string][]float64, len(g.samplingBufs))
	for module, buf := range g.samplingBufs {
		out[module] = buf.Current()
	}
	return out
}

// SimulationActive satisfies statusapi.DriverSource.
func (g *Gateway) SimulationActive() bool {
	_, ok := g.mgr.Get("simulation", simulationID)
	return ok
}

// AcquisitionActive satisfies statusapi.DriverSource.
func (g *Gateway) AcquisitionActive() bool {
	_, ok := g.mgr.Get("acquisition", acquisitionID)
	return ok
}

// ModbusClients satisfies statusapi.ClientSource.
func (g *Gateway) ModbusClients() []string {
	snap := g.modbus.Roster().Snapshot()
	out := make([]string, 0, len(snap))
	for _, peer := range snap {
		out = append(out, peer)
	}
	return out
}

// TLSClients satisfies statusapi.ClientSource.
func (g *Gateway) TLSClients() []string {
	return g.tls.Roster().Snapshot()
}
