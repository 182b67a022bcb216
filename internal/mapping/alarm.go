package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// AlarmEntry binds a coil address in the Modbus register map to a hardware
// digital output. Unlike channel mapping rows, every field must parse for
// the row to be accepted.
type AlarmEntry struct {
	Index             int
	Module            string
	AlarmRole         string
	Channel           string
	ModbusCoilChannel uint16
}

// LoadAlarmEntries reads a semicolon-separated alarm routing file:
// index;module;alarm_role;channel;modbus_coil_channel. A row with any
// unparseable field is logged and skipped.
func LoadAlarmEntries(path string, log logrus.FieldLogger) ([]*AlarmEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapping: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var entries []*AlarmEntry
	lineNo := 0
	for {
		lineNo++
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if log != nil {
				log.WithField("line", lineNo).WithError(err).Warn("mapping: skipping malformed alarm row")
			}
			continue
		}
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}
		if len(row) != 5 {
			warnSkip(log, lineNo, "expected 5 fields, got %d", len(row))
			continue
		}
		idx, err := strconv.Atoi(row[0])
		if err != nil {
			warnSkip(log, lineNo, "bad index: %v", err)
			continue
		}
		coil, err := strconv.ParseUint(row[4], 10, 16)
		if err != nil {
			warnSkip(log, lineNo, "bad modbus_coil_channel: %v", err)
			continue
		}
		entries = append(entries, &AlarmEntry{
			Index:             idx,
			Module:            row[1],
			AlarmRole:         row[2],
			Channel:           row[3],
			ModbusCoilChannel: uint16(coil),
		})
	}
	return entries, nil
}
