// Package statusapi exposes a read-only JSON surface over the running
// gateway's state: current module snapshots, driver active flags, and
// connected Modbus/TLS clients, plus host resource stats via gopsutil. It is
// deliberately not a control surface — every route is a GET.
package statusapi

import (
	"runtime"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/fluxionwatt/daqbridge/internal/response"
)

// SnapshotSource reports the current value line for each tracked module.
type SnapshotSource interface {
	Snapshots() map[string][]float64
}

// DriverSource reports whether the simulation/acquisition drivers are
// currently ticking.
type DriverSource interface {
	SimulationActive() bool
	AcquisitionActive() bool
}

// ClientSource reports the connected-peer rosters for both front ends.
type ClientSource interface {
	ModbusClients() []string
	TLSClients() []string
}

// Server holds the dependencies the status routes read from. All fields are
// read-only views; Server never mutates gateway state.
type Server struct {
	Snapshots SnapshotSource
	Drivers   DriverSource
	Clients   ClientSource

	startedAt time.Time
}

// New constructs a status server, recording the process start time for the
// uptime field of /status/host.
func New(snapshots SnapshotSource, drivers DriverSource, clients ClientSource) *Server {
	return &Server{Snapshots: snapshots, Drivers: drivers, Clients: clients, startedAt: time.Now()}
}

// Route registers the status routes onto app.
func (s *Server) Route(app *fiber.App) *fiber.App {
	grp := app.Group("/status")
	grp.Get("/snapshots", s.handleSnapshots)
	grp.Get("/drivers", s.handleDrivers)
	grp.Get("/clients", s.handleClients)
	grp.Get("/host", s.handleHost)
	return app
}

func (s *Server) handleSnapshots(c fiber.Ctx) error {
	return response.OK(c, s.Snapshots.Snapshots())
}

func (s *Server) handleDrivers(c fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"simulationActive":  s.Drivers.SimulationActive(),
		"acquisitionActive": s.Drivers.AcquisitionActive(),
	})
}

func (s *Server) handleClients(c fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"modbus": s.Clients.ModbusClients(),
		"tls":    s.Clients.TLSClients(),
	})
}

func (s *Server) handleHost(c fiber.Ctx) error {
	data := fiber.Map{
		"uptimeSeconds": time.Since(s.startedAt).Seconds(),
		"goroutines":    runtime.NumGoroutine(),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		data["cpuPercent"] = percentages[0]
	}
	if v, err := mem.VirtualMemory(); err == nil {
		data["memUsedPercent"] = v.UsedPercent
	}
	if up, err := host.Uptime(); err == nil {
		data["hostUptimeSeconds"] = up
	}

	return response.OK(c, data)
}
