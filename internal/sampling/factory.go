package sampling

import (
	"fmt"
	"sync"

	"github.com/fluxionwatt/daqbridge/internal/daq"
	"github.com/fluxionwatt/daqbridge/internal/pluginapi"
	"github.com/fluxionwatt/daqbridge/internal/snapshot"
)

// FactoryConfig is the pluginapi.InstanceConfig this package's factory
// expects: the capability and destination buffer plus the worker Config.
type FactoryConfig struct {
	Cap    daq.Capability
	Buf    *snapshot.Buffer
	Config Config
}

type factory struct{}

func (factory) Type() string { return "sampling" }

func (factory) New(id string, cfg pluginapi.InstanceConfig) (pluginapi.Instance, error) {
	fc, ok := cfg.(FactoryConfig)
	if !ok {
		return nil, fmt.Errorf("sampling: factory expects FactoryConfig, got %T", cfg)
	}
	return New(id, fc.Cap, fc.Config, fc.Buf), nil
}

var registerOnceGuard sync.Once

// RegisterFactory registers the sampling worker factory with pluginapi.
// Safe to call more than once; subsequent calls are no-ops.
func RegisterFactory() {
	registerOnceGuard.Do(func() { pluginapi.RegisterFactory(factory{}) })
}
