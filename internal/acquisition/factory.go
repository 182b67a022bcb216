package acquisition

import (
	"fmt"
	"sync"

	"github.com/fluxionwatt/daqbridge/internal/daq"
	"github.com/fluxionwatt/daqbridge/internal/pluginapi"
	"github.com/fluxionwatt/daqbridge/internal/regmap"
)

// FactoryConfig is the pluginapi.InstanceConfig this package's factory
// expects: the shared register map and capability plus the driver Config.
type FactoryConfig struct {
	Regs   *regmap.Map
	Cap    daq.Capability
	Config Config
}

type factory struct{}

func (factory) Type() string { return "acquisition" }

func (factory) New(id string, cfg pluginapi.InstanceConfig) (pluginapi.Instance, error) {
	fc, ok := cfg.(FactoryConfig)
	if !ok {
		return nil, fmt.Errorf("acquisition: factory expects FactoryConfig, got %T", cfg)
	}
	return New(id, fc.Regs, fc.Cap, fc.Config), nil
}

var registerOnceGuard sync.Once

// RegisterFactory registers the acquisition driver factory with pluginapi.
// Safe to call more than once; subsequent calls are no-ops.
func RegisterFactory() {
	registerOnceGuard.Do(func() { pluginapi.RegisterFactory(factory{}) })
}
