package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SRU is the descriptor loaded from INI at startup: it fixes the
// input-register layout before any mapping entries are loaded.
type SRU struct {
	CompatibilityMode bool
	NAnalogIn         int
	NAnalogOut        int
	NCounters         int
	NCoders           int
	NAlarms           int
}

// LoadSRU reads `[exlog] compatibilitylayer` and `[exlogmapping]
// nbanalogsin, nbanalogsout, nbcounters, nbcoders, nbalarms` from an INI
// file, defaulting missing keys to 64/0/8/0/4 as specified.
func LoadSRU(iniPath string) (SRU, error) {
	v := viper.New()
	v.SetConfigFile(iniPath)
	v.SetConfigType("ini")

	v.SetDefault("exlog.compatibilitylayer", false)
	v.SetDefault("exlogmapping.nbanalogsin", 64)
	v.SetDefault("exlogmapping.nbanalogsout", 0)
	v.SetDefault("exlogmapping.nbcounters", 8)
	v.SetDefault("exlogmapping.nbcoders", 0)
	v.SetDefault("exlogmapping.nbalarms", 4)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return SRU{}, fmt.Errorf("sru: read %s: %w", iniPath, err)
		}
	}

	return SRU{
		CompatibilityMode: v.GetBool("exlog.compatibilitylayer"),
		NAnalogIn:         v.GetInt("exlogmapping.nbanalogsin"),
		NAnalogOut:        v.GetInt("exlogmapping.nbanalogsout"),
		NCounters:         v.GetInt("exlogmapping.nbcounters"),
		NCoders:           v.GetInt("exlogmapping.nbcoders"),
		NAlarms:           v.GetInt("exlogmapping.nbalarms"),
	}, nil
}

// InputRegisterCount returns n_analog_in + n_analog_out + 2*n_coders +
// 3*n_counters, plus one leading zero-padding register when compatibility
// mode is on.
func (s SRU) InputRegisterCount() int {
	n := s.NAnalogIn + s.NAnalogOut + 2*s.NCoders + 3*s.NCounters
	if s.CompatibilityMode {
		n++
	}
	return n
}
