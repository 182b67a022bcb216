// Package mapping loads the CSV files that describe how physical channels
// land in the Modbus register map, and implements the linear rescale used
// to convert a raw physical reading into a register value.
package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ModuleType identifies the kind of channel a mapping entry describes.
type ModuleType int

const (
	AnalogCurrent ModuleType = iota
	AnalogVoltage
	DigitalInput
	DigitalOutput
	Counter
	Coder
)

func parseModuleType(s string) (ModuleType, bool) {
	switch s {
	case "AnalogCurrent":
		return AnalogCurrent, true
	case "AnalogVoltage":
		return AnalogVoltage, true
	case "DigitalInput":
		return DigitalInput, true
	case "DigitalOutput":
		return DigitalOutput, true
	case "Counter":
		return Counter, true
	case "Coder":
		return Coder, true
	default:
		return 0, false
	}
}

// Entry is one row of the channel mapping: a physical channel, its source
// range, its destination register range, and where it lands in the
// register map. Counter entries additionally carry mutable runtime state
// (prev/curr time and value) owned exclusively by the acquisition driver.
type Entry struct {
	Index         int
	Type          ModuleType
	Module        string
	Channel       string
	MinSource     float64
	MaxSource     float64
	MinDest       uint16
	MaxDest       uint16
	ModbusChannel int

	mu        sync.Mutex
	PrevTime  time.Time
	CurrTime  time.Time
	PrevValue uint32
	CurrValue uint32
}

// Width reports how many consecutive registers this entry occupies:
// 1 for analogs and digitals, 2 for coders, 3 for counters (freq, hi, lo).
func (e *Entry) Width() int {
	switch e.Type {
	case Coder:
		return 2
	case Counter:
		return 3
	default:
		return 1
	}
}

// SetCounterState atomically updates the counter runtime state and returns
// the previous (time, value) pair for delta computation.
func (e *Entry) SetCounterState(now time.Time, value uint32) (time.Time, uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prevTime, prevValue := e.CurrTime, e.CurrValue
	e.PrevTime, e.PrevValue = prevTime, prevValue
	e.CurrTime, e.CurrValue = now, value
	return prevTime, prevValue
}

// LinearRescale maps x from [sMin, sMax] onto [dMin, dMax], clamped to the
// destination range, per the acquisition rescale contract. Returns dMin on
// a degenerate source range (sMin >= sMax) since the scale factor is
// otherwise undefined.
func LinearRescale(x, sMin, sMax float64, dMin, dMax uint16) uint16 {
	if sMax <= sMin {
		return dMin
	}
	scale := (float64(dMax) - float64(dMin)) / (sMax - sMin)
	y := float64(dMin) + scale*(x-sMin)
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return dMin
	}
	lo, hi := float64(dMin), float64(dMax)
	if lo > hi {
		lo, hi = hi, lo
	}
	if y < lo {
		y = lo
	}
	if y > hi {
		y = hi
	}
	return uint16(math.Floor(y))
}

// LoadEntries reads a semicolon-separated channel mapping file. Each row
// must supply index;module_type;module;channel;min_source;max_source;
// min_dest;max_dest;modbus_channel. A row that fails to parse is logged and
// skipped; the file load never aborts because of one bad row.
func LoadEntries(path string, log logrus.FieldLogger) ([]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapping: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var entries []*Entry
	lineNo := 0
	for {
		lineNo++
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if log != nil {
				log.WithField("line", lineNo).WithError(err).Warn("mapping: skipping malformed row")
			}
			continue
		}
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}
		entry, ok := parseEntry(row, log, lineNo)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(row []string, log logrus.FieldLogger, lineNo int) (*Entry, bool) {
	if len(row) != 9 {
		warnSkip(log, lineNo, "expected 9 fields, got %d", len(row))
		return nil, false
	}
	idx, err := strconv.Atoi(row[0])
	if err != nil {
		warnSkip(log, lineNo, "bad index: %v", err)
		return nil, false
	}
	mt, ok := parseModuleType(row[1])
	if !ok {
		warnSkip(log, lineNo, "unknown module_type %q", row[1])
		return nil, false
	}
	minSource, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		warnSkip(log, lineNo, "bad min_source: %v", err)
		return nil, false
	}
	maxSource, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		warnSkip(log, lineNo, "bad max_source: %v", err)
		return nil, false
	}
	minDest, err := strconv.ParseUint(row[6], 10, 16)
	if err != nil {
		warnSkip(log, lineNo, "bad min_dest: %v", err)
		return nil, false
	}
	maxDest, err := strconv.ParseUint(row[7], 10, 16)
	if err != nil {
		warnSkip(log, lineNo, "bad max_dest: %v", err)
		return nil, false
	}
	modbusChannel, err := strconv.Atoi(row[8])
	if err != nil {
		warnSkip(log, lineNo, "bad modbus_channel: %v", err)
		return nil, false
	}
	if minSource >= maxSource || minDest > maxDest {
		warnSkip(log, lineNo, "invalid range min_source=%v max_source=%v min_dest=%v max_dest=%v",
			minSource, maxSource, minDest, maxDest)
		return nil, false
	}
	return &Entry{
		Index:         idx,
		Type:          mt,
		Module:        row[2],
		Channel:       row[3],
		MinSource:     minSource,
		MaxSource:     maxSource,
		MinDest:       uint16(minDest),
		MaxDest:       uint16(maxDest),
		ModbusChannel: modbusChannel,
	}, true
}

func warnSkip(log logrus.FieldLogger, lineNo int, format string, args ...any) {
	if log == nil {
		return
	}
	log.WithField("line", lineNo).Warnf("mapping: skipping row: "+format, args...)
}
