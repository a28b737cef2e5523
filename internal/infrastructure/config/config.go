package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the greenhouse agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Journal   JournalConfig   `yaml:"journal"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the device running the agent.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains everything the secure session needs to reach the broker.
// It is passed by value into the session and never mutated afterwards.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Keepalive int                 `yaml:"keepalive"`
	Subscribe MQTTSubscribeConfig `yaml:"subscribe"`
	Presence  MQTTPresenceConfig  `yaml:"presence"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// PublishTimeout bounds a waiting publish (seconds). Zero means keepalive.
	PublishTimeout int `yaml:"publish_timeout"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	CACert   string `yaml:"ca_cert"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTSubscribeConfig is the single subscription issued on every connect.
type MQTTSubscribeConfig struct {
	Topic string `yaml:"topic"`
	QoS   int    `yaml:"qos"`
}

// MQTTPresenceConfig holds the birth/death announcement parameters.
//
// A pair (topic + payload) is only active when both values are non-empty.
// The death pair doubles as the Last Will registered with the broker.
type MQTTPresenceConfig struct {
	BirthTopic   string `yaml:"birth_topic"`
	BirthPayload string `yaml:"birth_payload"`
	DeathTopic   string `yaml:"death_topic"`
	DeathPayload string `yaml:"death_payload"`
	QoS          int    `yaml:"qos"`
	Retain       bool   `yaml:"retain"`
}

// MQTTReconnectConfig contains MQTT reconnection backoff bounds (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TelemetryConfig controls the periodic counter publisher.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Topic    string `yaml:"topic"`
	Interval int    `yaml:"interval"`
	QoS      int    `yaml:"qos"`
}

// JournalConfig contains settings for the SQLite session event journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default values shared by defaultConfig and the presence topic convention.
const (
	DefaultClientID     = "raspi-1-ecole-iot"
	DefaultPort         = 8883
	DefaultBirthPayload = "online"
	DefaultDeathPayload = "offline"

	presenceTopicPrefix = "greenhouse/devices/"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file in the working directory (never overrides the real environment)
//  4. Environment variables (override file values)
//
// When optional is true a missing file is tolerated, so a device can be configured
// purely through its environment.
//
// Parameters:
//   - path: Path to the YAML configuration file
//   - optional: Whether a missing file is acceptable
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// A missing .env is the normal case outside development.
	_ = godotenv.Load() //nolint:errcheck // Optional file

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   DefaultClientID,
			Name: "Greenhouse controller",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port:     DefaultPort,
				ClientID: DefaultClientID,
			},
			Keepalive: 60,
			Subscribe: MQTTSubscribeConfig{
				Topic: "#",
				QoS:   1,
			},
			Presence: MQTTPresenceConfig{
				BirthPayload: DefaultBirthPayload,
				DeathPayload: DefaultDeathPayload,
				QoS:          1,
				Retain:       true,
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:  true,
			Topic:    "greenhouse/telemetry/counter",
			Interval: 10,
			QoS:      1,
		},
		Journal: JournalConfig{
			Enabled:     false,
			Path:        "./data/greenhouse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// The MQTT variable names match the ones used by the device provisioning scripts.
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("MQTT_BROKER_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTT_BROKER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MQTT_BROKER_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("MQTT_CA_CERT"); v != "" {
		cfg.MQTT.Broker.CACert = v
	}

	// Journal
	if v := os.Getenv("GREENHOUSE_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// InfluxDB
	if v := os.Getenv("GREENHOUSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GREENHOUSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// applyDerivedDefaults fills values that depend on other settings.
func (c *Config) applyDerivedDefaults() {
	if c.MQTT.Presence.BirthTopic == "" && c.MQTT.Presence.DeathTopic == "" {
		topic := PresenceTopic(c.MQTT.Broker.ClientID)
		c.MQTT.Presence.BirthTopic = topic
		c.MQTT.Presence.DeathTopic = topic
	}
	if c.MQTT.PublishTimeout <= 0 {
		c.MQTT.PublishTimeout = c.MQTT.Keepalive
	}
}

// PresenceTopic returns the presence topic carrying birth and death payloads
// for a device identity.
//
// Example: greenhouse/devices/raspi-1-ecole-iot
func PresenceTopic(clientID string) string {
	return presenceTopicPrefix + clientID
}

// Validate checks the configuration for errors.
//
// Credentials and the CA certificate are not required here: the session
// constructor enforces them, so a config can be validated before secrets
// have been provisioned.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Keepalive < 0 {
		errs = append(errs, "mqtt.keepalive must not be negative")
	}
	if !validQoS(c.MQTT.Subscribe.QoS) {
		errs = append(errs, "mqtt.subscribe.qos must be 0, 1, or 2")
	}
	if !validQoS(c.MQTT.Presence.QoS) {
		errs = append(errs, "mqtt.presence.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 0 || c.MQTT.Reconnect.MaxDelay < 0 {
		errs = append(errs, "mqtt.reconnect delays must not be negative")
	} else if c.MQTT.Reconnect.InitialDelay > c.MQTT.Reconnect.MaxDelay {
		errs = append(errs, "mqtt.reconnect.initial_delay must not exceed max_delay")
	}

	// Telemetry validation
	if c.Telemetry.Enabled {
		if c.Telemetry.Topic == "" {
			errs = append(errs, "telemetry.topic is required when telemetry is enabled")
		}
		if c.Telemetry.Interval <= 0 {
			errs = append(errs, "telemetry.interval must be positive")
		}
		if !validQoS(c.Telemetry.QoS) {
			errs = append(errs, "telemetry.qos must be 0, 1, or 2")
		}
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validQoS(qos int) bool {
	return qos >= 0 && qos <= 2
}

// KeepaliveDuration returns the MQTT keepalive as a Duration.
func (m MQTTConfig) KeepaliveDuration() time.Duration {
	return time.Duration(m.Keepalive) * time.Second
}

// PublishTimeoutDuration returns the bound applied to waiting publishes.
// It falls back to the keepalive interval when unset.
func (m MQTTConfig) PublishTimeoutDuration() time.Duration {
	if m.PublishTimeout > 0 {
		return time.Duration(m.PublishTimeout) * time.Second
	}
	return m.KeepaliveDuration()
}

// TelemetryInterval returns the telemetry publish interval as a Duration.
func (c *Config) TelemetryInterval() time.Duration {
	return time.Duration(c.Telemetry.Interval) * time.Second
}
