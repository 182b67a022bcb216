// Package alarm routes coil writes arriving over Modbus to hardware
// digital outputs, via a CSV-loaded address map.
package alarm

import (
	"context"
	"fmt"

	"github.com/fluxionwatt/daqbridge/internal/daq"
	"github.com/fluxionwatt/daqbridge/internal/mapping"
	"github.com/sirupsen/logrus"
)

// CoilSink is the single-method capability the Modbus server needs to
// route a coil write, so it depends only on this narrow interface rather
// than the whole orchestrator.
type CoilSink interface {
	SetCoil(addr uint16, state bool) error
}

// EventFunc is called once per routed (or dropped) coil write, letting the
// caller emit an audit record or event-bus message without the router
// importing either package directly.
type EventFunc func(entry *mapping.AlarmEntry, addr uint16, state bool, routed bool)

// Router maps a coil address to a hardware digital-output channel and
// drives it through a daq.Capability. It implements CoilSink.
type Router struct {
	cap     daq.Capability
	byCoil  map[uint16]*mapping.AlarmEntry
	log     logrus.FieldLogger
	onEvent EventFunc
}

// New builds a Router from a loaded alarm mapping.
func New(cap daq.Capability, entries []*mapping.AlarmEntry, log logrus.FieldLogger, onEvent EventFunc) *Router {
	byCoil := make(map[uint16]*mapping.AlarmEntry, len(entries))
	for _, e := range entries {
		byCoil[e.ModbusCoilChannel] = e
	}
	return &Router{cap: cap, byCoil: byCoil, log: log, onEvent: onEvent}
}

// SetCoil routes a coil write to its hardware channel. A coil address with
// no entry in the alarm map is logged and dropped without any hardware
// call, per the invariant that an unmapped coil write never reaches the
// capability surface.
func (r *Router) SetCoil(addr uint16, state bool) error {
	entry, ok := r.byCoil[addr]
	if !ok {
		if r.log != nil {
			r.log.WithField("coil", addr).Warn("alarm: coil write has no mapped entry, dropping")
		}
		if r.onEvent != nil {
			r.onEvent(nil, addr, state, false)
		}
		return nil
	}

	err := r.cap.SetRelay(context.Background(), entry.Module, entry.Channel, state)
	if err != nil && r.log != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"coil": addr, "module": entry.Module, "channel": entry.Channel,
		}).Error("alarm: hardware write failed")
	}
	if r.onEvent != nil {
		r.onEvent(entry, addr, state, err == nil)
	}
	if err != nil {
		return fmt.Errorf("alarm: set relay %s/%s: %w", entry.Module, entry.Channel, err)
	}
	return nil
}

// Entries returns every loaded alarm mapping entry, ordered by coil
// address ascending is not guaranteed; callers that need ordering should
// sort.
func (r *Router) Entries() []*mapping.AlarmEntry {
	out := make([]*mapping.AlarmEntry, 0, len(r.byCoil))
	for _, e := range r.byCoil {
		out = append(out, e)
	}
	return out
}
