package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fluxionwatt/daqbridge/internal/config"
	"github.com/fluxionwatt/daqbridge/internal/paths"
)

func writeTestFixtures(t *testing.T, dir string) paths.Paths {
	t.Helper()
	p := paths.Default(dir)

	mapping := "0;AnalogCurrent;m1;c0;0;20;0;65535;0\n" +
		"1;Counter;m1;ctr0;0;1000;0;65535;1\n"
	if err := os.WriteFile(p.MappingCSV, []byte(mapping), 0o644); err != nil {
		t.Fatalf("write mapping csv: %v", err)
	}

	alarms := "0;m1;relay;r0;0\n"
	if err := os.WriteFile(p.AlarmCSV, []byte(alarms), 0o644); err != nil {
		t.Fatalf("write alarm csv: %v", err)
	}

	sru := "[exlog]\ncompatibilitylayer = false\n[exlogmapping]\nnbanalogsin = 8\nnbanalogsout = 0\nnbcounters = 2\nnbcoders = 0\nnbalarms = 1\n"
	if err := os.WriteFile(p.SRUIni, []byte(sru), 0o644); err != nil {
		t.Fatalf("write sru ini: %v", err)
	}

	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}

	return p
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	var cfg config.Config
	cfg.Modbus.ListenAddr = "127.0.0.1"
	cfg.Modbus.Port = 0
	cfg.Modbus.MaxClients = 25
	cfg.Modbus.SlaveID = 1
	cfg.TLS.Port = 0
	cfg.MQTT.Enable = false
	cfg.StatusAPI.Enable = false
	cfg.Simulator.Enable = false
	return &cfg
}

func TestNewWiresAllDependencies(t *testing.T) {
	dir := t.TempDir()
	p := writeTestFixtures(t, dir)
	cfg := testConfig(t)

	g, err := New(cfg, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.regs.Size() == 0 {
		t.Fatalf("expected a non-empty register map")
	}
	if len(g.entries) != 2 {
		t.Fatalf("expected 2 mapping entries, got %d", len(g.entries))
	}
	if len(g.alarmEntries) != 1 {
		t.Fatalf("expected 1 alarm entry, got %d", len(g.alarmEntries))
	}
}

func TestSimulationAcquisitionMutualExclusion(t *testing.T) {
	dir := t.TempDir()
	p := writeTestFixtures(t, dir)
	cfg := testConfig(t)

	g, err := New(cfg, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.startSamplingWorkers(ctx)

	if err := g.StartSimulation(); err != nil {
		t.Fatalf("StartSimulation: %v", err)
	}
	if !g.SimulationActive() {
		t.Fatalf("expected simulation active")
	}

	if err := g.StartAcquisition(); err != nil {
		t.Fatalf("StartAcquisition: %v", err)
	}
	if g.SimulationActive() {
		t.Fatalf("expected simulation inactive once acquisition starts")
	}
	if !g.AcquisitionActive() {
		t.Fatalf("expected acquisition active")
	}

	g.mgr.DestroyAll()
}

func TestRunStartsAndStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	p := writeTestFixtures(t, dir)
	cfg := testConfig(t)

	g, err := New(cfg, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not shut down in time")
	}
}

func TestModulesOfDedups(t *testing.T) {
	dir := t.TempDir()
	p := writeTestFixtures(t, dir)
	cfg := testConfig(t)

	g, err := New(cfg, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mods := modulesOf(g.entries)
	if len(mods) != 1 || mods[0] != "m1" {
		t.Fatalf("expected one deduped module %q, got %v", "m1", mods)
	}
	if filepath.Base(p.MappingCSV) != "mapping.csv" {
		t.Fatalf("unexpected mapping csv path: %s", p.MappingCSV)
	}
}
