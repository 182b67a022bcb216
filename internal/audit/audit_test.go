package audit

import (
	"path/filepath"
	"testing"
)

func TestWriteAndRecent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "audit.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	Write(db, nil, "modbus", "coil_write", map[string]any{"addr": 5, "state": true}, "127.0.0.1:1234")
	Write(db, nil, "tls", "startModbusSimulation", nil, "127.0.0.1:5555")

	events, err := Recent(db, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Source != "tls" {
		t.Fatalf("expected most recent event first (tls), got %s", events[0].Source)
	}
}

func TestWriteNilDBIsNoop(t *testing.T) {
	Write(nil, nil, "modbus", "coil_write", nil, "")
}
