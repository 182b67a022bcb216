// Package pluginapi defines the lifecycle contract shared by every
// long-running driver in the gateway: sampling workers, the simulation and
// acquisition drivers, and anything else that starts once, runs under a
// context, accepts hot-reloaded configuration, and stops cleanly.
package pluginapi

import "context"

// InstanceConfig is the generic configuration payload handed to an
// instance's UpdateConfig. Concrete instance types assert it to their own
// configuration struct.
type InstanceConfig any

// Instance is one running copy of a driver: a sampling worker bound to a
// module, the simulation driver, or the acquisition driver.
type Instance interface {
	// ID returns the instance's unique identifier, e.g. "module-3".
	ID() string

	// Type returns the driver type name, e.g. "sampling", "simulation".
	Type() string

	// Init starts the instance under parent, using env for shared
	// dependencies (logging, config, storage, the event bus).
	Init(parent context.Context, env *HostEnv) error

	// Close stops the instance and releases its resources. Must be safe to
	// call even if Init failed partway through.
	Close() error

	// UpdateConfig applies a new configuration without a restart.
	UpdateConfig(cfg InstanceConfig) error

	// Get returns the instance's current state for inspection (status API,
	// diagnostics).
	Get() any
}

// Factory constructs instances of one driver type.
type Factory interface {
	// Type returns the driver type name this factory builds.
	Type() string

	// New constructs an instance with the given ID and configuration. The
	// instance is not yet started; the caller must call Init.
	New(id string, cfg InstanceConfig) (Instance, error)
}
