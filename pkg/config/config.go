// Package config loads the broadcaster configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/illmade-knight/pi-broadcast/pkg/helpers/loadgen"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the file.
const (
	EnvEndpoint = "PIBROADCAST_ENDPOINT"
	EnvExchange = "PIBROADCAST_EXCHANGE"
	EnvLogLevel = "PIBROADCAST_LOG_LEVEL"
)

type BrokerConfig struct {
	Endpoint string `yaml:"endpoint"`
	Exchange string `yaml:"exchange"`
}

type DeviceConfig struct {
	Key string `yaml:"key"`
	// RateHz is only used by the simulator.
	RateHz float64 `yaml:"rate_hz"`
}

type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Devices  []DeviceConfig `yaml:"devices"`
	LogLevel string         `yaml:"log_level"`
}

// Load reads the YAML file at path (if path is non-empty), then applies
// environment overrides. It does not validate; call Validate once flags have
// been applied too.
func Load(path string) (*Config, error) {
	cfg := &Config{LogLevel: "info"}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML from '%s': %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Broker.Endpoint = v
	}
	if v := os.Getenv(EnvExchange); v != "" {
		c.Broker.Exchange = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// DeviceKeys returns the configured device keys in file order.
func (c *Config) DeviceKeys() []string {
	keys := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		keys = append(keys, d.Key)
	}
	return keys
}

// Validate checks the broker settings and, when requireDevices is set, the device list.
func (c *Config) Validate(requireDevices bool) error {
	var errs []error
	if c.Broker.Endpoint == "" {
		errs = append(errs, errors.New("validation error: broker.endpoint is not set"))
	}
	if c.Broker.Exchange == "" {
		errs = append(errs, errors.New("validation error: broker.exchange is not set"))
	}
	if requireDevices && len(c.Devices) == 0 {
		errs = append(errs, errors.New("validation error: no devices defined"))
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		switch {
		case d.Key == "":
			errs = append(errs, fmt.Errorf("validation error: devices[%d] is missing a key", i))
		case seen[d.Key]:
			errs = append(errs, fmt.Errorf("validation error: devices[%d] duplicates key %q", i, d.Key))
		}
		if d.RateHz < 0 {
			errs = append(errs, fmt.Errorf("validation error: devices[%d] has a negative rate_hz", i))
		} else if _, ok := loadgen.TickInterval(d.RateHz); d.RateHz != 0 && !ok {
			errs = append(errs, fmt.Errorf("validation error: devices[%d] rate_hz %v is out of range (must give a tick interval between 1ns and %v)", i, d.RateHz, time.Duration(math.MaxInt64)))
		}
		seen[d.Key] = true
	}
	return errors.Join(errs...)
}
