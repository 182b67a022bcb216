// Package config loads the gateway's application configuration (network
// ports, simulator toggle, paths) via viper. The domain-specific SRU
// descriptor lives in sru.go as a separate INI-backed loader, since it is a
// distinct externally-specified format (`[exlog]`/`[exlogmapping]`).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the gateway's top-level application configuration.
type Config struct {
	Debug   bool   `mapstructure:"debug"`
	RootDir string `mapstructure:"root_dir"`

	Modbus struct {
		ListenAddr    string `mapstructure:"listen_addr"`
		Port          uint16 `mapstructure:"port"`
		MaxClients    int    `mapstructure:"max_clients"`
		SlaveID       uint8  `mapstructure:"slave_id"`
		Compatibility bool   `mapstructure:"compatibility"`
	} `mapstructure:"modbus"`

	TLS struct {
		Port uint16 `mapstructure:"port"`
	} `mapstructure:"tls"`

	MQTT struct {
		Enable bool `mapstructure:"enable"`
	} `mapstructure:"mqtt"`

	StatusAPI struct {
		Enable bool   `mapstructure:"enable"`
		Addr   string `mapstructure:"addr"`
	} `mapstructure:"status_api"`

	Simulator struct {
		Enable bool `mapstructure:"enable"`
	} `mapstructure:"simulator"`
}

// Load reads configuration from configFile (if non-empty) plus the
// DAQBRIDGE_* environment namespace, falling back to built-in defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("DAQBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("root_dir", ".")
	v.SetDefault("modbus.listen_addr", "0.0.0.0")
	v.SetDefault("modbus.port", 502)
	v.SetDefault("modbus.max_clients", 25) // NB_CONNECTION
	v.SetDefault("modbus.slave_id", 1)
	v.SetDefault("modbus.compatibility", false)
	v.SetDefault("tls.port", 8222)
	v.SetDefault("mqtt.enable", true)
	v.SetDefault("status_api.enable", true)
	v.SetDefault("status_api.addr", ":8280")
	v.SetDefault("simulator.enable", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("daqbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/daqbridge")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal failed: %w", err)
	}

	if cfg.Modbus.SlaveID > 255 {
		return nil, fmt.Errorf("config: modbus.slave_id %d out of range [0,255]", cfg.Modbus.SlaveID)
	}

	return &cfg, nil
}
