// Package regmap implements the flat register and coil arrays that back
// the Modbus/TCP server's reply path: the single place raw acquisition
// output lands before a client ever sees it.
package regmap

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// MODBUS_MAX_READ_REGISTERS and MODBUS_MAX_READ_BITS bound a single remap
// call, mirroring the protocol's own per-request read limits.
const (
	MaxReadRegisters = 125
	MaxReadBits      = 2000

	NumCoils    = 20
	NumDiscrete = 20

	// DefaultRegisterCap is the nominal allocation; LoadOrGrow widens past
	// it (logging a warning) rather than silently truncating the input
	// register count an SRU descriptor implies.
	DefaultRegisterCap = 512
)

// Map holds the flat arrays a Modbus server reads from and a sampling or
// acquisition pipeline writes into. A single mutex serializes every access,
// so a register overwrite can never interleave with a client read mid-word.
type Map struct {
	mu sync.Mutex

	inputRegisters []uint16
	coils          [NumCoils]bool
	discrete       [NumDiscrete]bool

	log logrus.FieldLogger
}

// New allocates a Map with n input registers, growing past
// DefaultRegisterCap (and logging a warning) if n exceeds it rather than
// capping the allocation.
func New(n int, log logrus.FieldLogger) *Map {
	if n > DefaultRegisterCap && log != nil {
		log.WithField("requested", n).WithField("default_cap", DefaultRegisterCap).
			Warn("regmap: input register count exceeds default allocation, growing map")
	}
	return &Map{
		inputRegisters: make([]uint16, n),
		log:            log,
	}
}

// Size reports the number of input registers currently allocated.
func (m *Map) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputRegisters)
}

// InputRegisters returns a copy of the entire input register array.
func (m *Map) InputRegisters() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint16, len(m.inputRegisters))
	copy(out, m.inputRegisters)
	return out
}

// ReadRegister returns the value at addr, or (0, false) if out of range.
func (m *Map) ReadRegister(addr int) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 || addr >= len(m.inputRegisters) {
		return 0, false
	}
	return m.inputRegisters[addr], true
}

// WriteRegister sets a single register at addr, growing the backing array
// if addr is beyond its current length. Used by acquisition/simulation
// drivers to publish one entry's result without a full remap.
func (m *Map) WriteRegister(addr int, v uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 {
		return
	}
	if addr >= len(m.inputRegisters) {
		grown := make([]uint16, addr+1)
		copy(grown, m.inputRegisters)
		m.inputRegisters = grown
	}
	m.inputRegisters[addr] = v
}

// RemapAnalogInputRegisters overwrites the first min(len(values),
// MaxReadRegisters) input registers under exclusive access. Extra values
// beyond the cap are silently dropped, matching the protocol's own
// per-request ceiling rather than an out-of-bounds write.
func (m *Map) RemapAnalogInputRegisters(values []uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(values)
	if n > MaxReadRegisters {
		n = MaxReadRegisters
	}
	if n > len(m.inputRegisters) {
		n = len(m.inputRegisters)
	}
	copy(m.inputRegisters[:n], values[:n])
}

// RemapCoils overwrites the first min(len(values), MaxReadBits, NumCoils)
// coil bits under exclusive access.
func (m *Map) RemapCoils(values []bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(values)
	if n > MaxReadBits {
		n = MaxReadBits
	}
	if n > NumCoils {
		n = NumCoils
	}
	copy(m.coils[:n], values[:n])
}

// ReadCoil returns the coil state at addr, or (false, false) if out of
// range.
func (m *Map) ReadCoil(addr int) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 || addr >= NumCoils {
		return false, false
	}
	return m.coils[addr], true
}

// WriteCoil sets a single coil's state, returning false if addr is out of
// range.
func (m *Map) WriteCoil(addr int, state bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 || addr >= NumCoils {
		return false
	}
	m.coils[addr] = state
	return true
}

// ReadDiscrete returns the discrete input state at addr.
func (m *Map) ReadDiscrete(addr int) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 || addr >= NumDiscrete {
		return false, false
	}
	return m.discrete[addr], true
}

// WriteDiscrete sets a single discrete input's state.
func (m *Map) WriteDiscrete(addr int, state bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 || addr >= NumDiscrete {
		return false
	}
	m.discrete[addr] = state
	return true
}
