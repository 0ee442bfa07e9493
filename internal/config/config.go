// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/gas-monitor/internal/gpio"
	"github.com/sweeney/gas-monitor/internal/serial"
	"github.com/sweeney/gas-monitor/internal/store"
	"github.com/sweeney/gas-monitor/internal/supervisor"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "gas-monitor.yaml"

type SerialConfig struct {
	Port        string        `yaml:"port"` // empty = first enumerated port
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Settle      time.Duration `yaml:"settle"` // wait after open for boards that reset on DTR
	Attempts    int           `yaml:"attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

type LinkConfig struct {
	DemoFallback   bool          `yaml:"demo_fallback"`
	OnLinkLost     string        `yaml:"on_link_lost"` // "reconnect" or "demo"
	HealthInterval time.Duration `yaml:"health_interval"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
}

type LogConfig struct {
	Path          string        `yaml:"path"`
	SaveEvery     int           `yaml:"save_every"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"` // cron spec; empty disables scheduled pruning
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

type MQTTConfig struct {
	Broker    string        `yaml:"broker"` // empty disables publishing
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
}

type AlarmConfig struct {
	Enabled bool   `yaml:"enabled"`
	Chip    string `yaml:"chip"`
	Pin     int    `yaml:"pin"`
}

// Config is the complete daemon configuration.
type Config struct {
	Serial SerialConfig `yaml:"serial"`
	Link   LinkConfig   `yaml:"link"`
	Log    LogConfig    `yaml:"log"`
	HTTP   HTTPConfig   `yaml:"http"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Alarm  AlarmConfig  `yaml:"alarm"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Serial: SerialConfig{
			Baud:        serial.DefaultBaud,
			ReadTimeout: serial.DefaultReadTimeout,
			Settle:      serial.DefaultSettle,
			Attempts:    serial.DefaultAttempts,
			Backoff:     serial.DefaultBackoff,
		},
		Link: LinkConfig{
			DemoFallback:   true,
			OnLinkLost:     string(supervisor.PolicyDemo),
			HealthInterval: 5 * time.Second,
			PollInterval:   100 * time.Millisecond,
			RetryInterval:  30 * time.Second,
		},
		Log: LogConfig{
			Path:          "gas_log.json",
			SaveEvery:     store.DefaultSaveEvery,
			Retention:     store.DefaultRetention,
			PruneSchedule: "@daily",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			ClientID:  "gas-monitor",
			Heartbeat: 15 * time.Minute,
		},
		Alarm: AlarmConfig{
			Chip: gpio.DefaultChip,
			Pin:  gpio.DefaultPinAlarm,
		},
	}
}

// Load reads path over the defaults and validates the result. A missing
// file is not an error when path is DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error

	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("serial.read_timeout must be positive"))
	}
	if c.Serial.Settle < 0 {
		errs = append(errs, fmt.Errorf("serial.settle must not be negative"))
	}
	if c.Serial.Attempts < 1 {
		errs = append(errs, fmt.Errorf("serial.attempts must be at least 1, got %d", c.Serial.Attempts))
	}
	if c.Serial.Backoff < serial.MinBackoff {
		errs = append(errs, fmt.Errorf("serial.backoff must be at least %v, got %v", serial.MinBackoff, c.Serial.Backoff))
	}

	if _, err := supervisor.ParsePolicy(c.Link.OnLinkLost); err != nil {
		errs = append(errs, fmt.Errorf("link.on_link_lost: %w", err))
	}
	if c.Link.HealthInterval <= 0 {
		errs = append(errs, fmt.Errorf("link.health_interval must be positive"))
	}
	if c.Link.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("link.poll_interval must be positive"))
	}
	if c.Link.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf("link.retry_interval must not be negative"))
	}

	if c.Log.Path == "" {
		errs = append(errs, fmt.Errorf("log.path is required"))
	}
	if c.Log.SaveEvery < 1 {
		errs = append(errs, fmt.Errorf("log.save_every must be at least 1, got %d", c.Log.SaveEvery))
	}
	if c.Log.Retention <= 0 {
		errs = append(errs, fmt.Errorf("log.retention must be positive"))
	}
	if c.Log.PruneSchedule != "" {
		if _, err := cron.ParseStandard(c.Log.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("log.prune_schedule: %w", err))
		}
	}

	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		errs = append(errs, fmt.Errorf("mqtt.client_id is required with a broker"))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("mqtt.heartbeat must not be negative"))
	}
	if c.Alarm.Enabled {
		if c.Alarm.Chip == "" {
			errs = append(errs, fmt.Errorf("alarm.chip is required when the alarm is enabled"))
		}
		if c.Alarm.Pin < 0 {
			errs = append(errs, fmt.Errorf("alarm.pin must not be negative, got %d", c.Alarm.Pin))
		}
	}

	return errors.Join(errs...)
}
