package mapping

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLinearRescaleBounds(t *testing.T) {
	if got := LinearRescale(0, 0, 100, 0, 1000); got != 0 {
		t.Fatalf("expected 0 at s_min, got %d", got)
	}
	if got := LinearRescale(100, 0, 100, 0, 1000); got != 1000 {
		t.Fatalf("expected 1000 at s_max, got %d", got)
	}
	if got := LinearRescale(50, 0, 100, 0, 1000); got != 500 {
		t.Fatalf("expected 500 at midpoint, got %d", got)
	}
}

func TestLinearRescaleClampsOutOfRange(t *testing.T) {
	if got := LinearRescale(-10, 0, 100, 0, 1000); got != 0 {
		t.Fatalf("expected clamp to d_min, got %d", got)
	}
	if got := LinearRescale(200, 0, 100, 0, 1000); got != 1000 {
		t.Fatalf("expected clamp to d_max, got %d", got)
	}
}

func TestLinearRescaleDegenerateRange(t *testing.T) {
	if got := LinearRescale(5, 10, 10, 3, 300); got != 3 {
		t.Fatalf("expected d_min on degenerate source range, got %d", got)
	}
}

func TestLinearRescaleMonotone(t *testing.T) {
	prev := LinearRescale(0, 0, 100, 20, 520)
	for x := 1.0; x <= 100; x++ {
		cur := LinearRescale(x, 0, 100, 20, 520)
		if cur < prev {
			t.Fatalf("rescale not monotone non-decreasing at x=%v: prev=%d cur=%d", x, prev, cur)
		}
		prev = cur
	}
}

func TestCounterFrequency(t *testing.T) {
	if got := CounterFrequency(100, 0); got != 0 {
		t.Fatalf("expected 0 for zero delta time, got %v", got)
	}
	if got := CounterFrequency(100, 2); got != 50 {
		t.Fatalf("expected 50, got %v", got)
	}
}

func TestSplitWords(t *testing.T) {
	hi, lo := SplitWords(0x0001ABCD)
	if hi != 0x0001 || lo != 0xABCD {
		t.Fatalf("unexpected split: hi=%x lo=%x", hi, lo)
	}
}

func TestLoadEntriesSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.csv")
	content := "1;AnalogCurrent;mod1;ch1;0;100;0;1000;0\n" +
		"not-a-number;AnalogCurrent;mod1;ch1;0;100;0;1000;1\n" +
		"\n" +
		"2;Counter;mod2;ch2;0;100;0;1000;2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := LoadEntries(path, nil)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 valid entries, got %d", len(entries))
	}
	if entries[1].Width() != 3 {
		t.Fatalf("expected counter entry width 3, got %d", entries[1].Width())
	}
}

func TestLoadAlarmEntriesRequiresAllFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarmsMapping.csv")
	content := "1;mod1;high;ch1;5\n" +
		"2;mod1;low;ch2;notanumber\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := LoadAlarmEntries(path, nil)
	if err != nil {
		t.Fatalf("LoadAlarmEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 valid entry, got %d", len(entries))
	}
	if entries[0].ModbusCoilChannel != 5 {
		t.Fatalf("unexpected coil channel: %d", entries[0].ModbusCoilChannel)
	}
}

func TestEntrySetCounterState(t *testing.T) {
	e := &Entry{Type: Counter}
	t0 := time.Now()
	prevTime, prevValue := e.SetCounterState(t0, 10)
	if !prevTime.IsZero() || prevValue != 0 {
		t.Fatalf("expected zero-value previous state on first call")
	}
	t1 := t0.Add(time.Second)
	prevTime2, prevValue2 := e.SetCounterState(t1, 20)
	if prevValue2 != 10 || !prevTime2.Equal(t0) {
		t.Fatalf("expected previous state (t0, 10), got (%v, %d)", prevTime2, prevValue2)
	}
}
