package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAddonOptionsPath is where the Home Assistant supervisor mounts the
// add-on options file.
const DefaultAddonOptionsPath = "/data/options.json"

// Config is the root configuration structure for the AVE bridge.
// All configuration is loaded from YAML, optionally overlaid with the add-on
// options file, and can be overridden by environment variables.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Sync       SyncConfig       `yaml:"sync"`
	Hub        HubConfig        `yaml:"hub"`
	Devices    []DeviceConfig   `yaml:"devices"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig contains the AVE web server connection settings.
type ControllerConfig struct {
	Host string `yaml:"host"`
	// Port is fixed by the controller firmware. Default: 14001
	Port         int      `yaml:"port"`
	Subprotocols []string `yaml:"subprotocols"`
	// ReconnectDelay is the fixed pause between connection attempts (seconds).
	ReconnectDelay   int `yaml:"reconnect_delay"`
	HandshakeTimeout int `yaml:"handshake_timeout"`
}

// SyncConfig contains the synchronisation policy flags.
type SyncConfig struct {
	// PollInterval is the antitheft status poll period (seconds).
	PollInterval        int  `yaml:"poll_interval"`
	AntitheftOnInterval bool `yaml:"antitheft_on_interval"`
	LightsOnStartup     bool `yaml:"lights_on_startup"`
	SubscribeToEvents   bool `yaml:"subscribe_to_events"`
}

// HubConfig contains Home Assistant settings.
type HubConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	HardwareID     string `yaml:"hardware_id"`
	DiscoveryTopic string `yaml:"discovery_prefix"`
	RequestTimeout int    `yaml:"request_timeout"`
	HealthInterval int    `yaml:"health_interval"`
}

// DeviceConfig describes one statically known controller device.
type DeviceConfig struct {
	Type       int    `yaml:"type"`
	ID         int    `yaml:"id"`
	ExternalID string `yaml:"external_id"`
	Label      string `yaml:"label"`
}

// DatabaseConfig contains SQLite state journal settings.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Host      string             `yaml:"host"`
	Port      int                `yaml:"port"`
	Timeouts  APITimeoutConfig   `yaml:"timeouts"`
	WebSocket APIWebSocketConfig `yaml:"websocket"`
}

// APIWebSocketConfig contains the live state stream settings.
type APIWebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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
	// Verbose forces debug level, matching the add-on "verbose" option.
	Verbose bool `yaml:"verbose"`
}

// addonOptions mirrors the flat options.json written by the HA supervisor.
// Pointer fields distinguish "absent" from zero values.
type addonOptions struct {
	WebServerAddress *string `json:"web_server_address"`
	PollInterval     *int    `json:"poll_interval"`
	Verbose          *bool   `json:"verbose"`
	SyncAntitheft    *bool   `json:"sync_antitheft"`
	SyncLights       *bool   `json:"sync_lights"`
	SubscribeEvents  *bool   `json:"subscribe_events"`
	HardwareID       *string `json:"hardware_id"`
	MQTTHost         *string `json:"mqtt_host"`
	MQTTPort         *int    `json:"mqtt_port"`
	MQTTUsername     *string `json:"mqtt_username"`
	MQTTPassword     *string `json:"mqtt_password"`
}

// Load reads configuration from a YAML file and applies overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); an empty path skips this step
//  3. Add-on options file, if present (AVEWS_ADDON_OPTIONS or /data/options.json)
//  4. Environment variables (override everything above)
//
// Parameters:
//   - path: Path to the YAML configuration file, may be empty
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If a file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	optionsPath := os.Getenv("AVEWS_ADDON_OPTIONS")
	if optionsPath == "" {
		optionsPath = DefaultAddonOptionsPath
	}
	if err := applyAddonOptions(cfg, optionsPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the add-on defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Host:             "192.168.1.10",
			Port:             14001,
			Subprotocols:     []string{"binary", "base64"},
			ReconnectDelay:   5,
			HandshakeTimeout: 10,
		},
		Sync: SyncConfig{
			PollInterval:        10,
			AntitheftOnInterval: true,
		},
		Hub: HubConfig{
			URL:            "http://supervisor/core/api",
			HardwareID:     "avews",
			DiscoveryTopic: "homeassistant",
			RequestTimeout: 10,
			HealthInterval: 30,
		},
		Devices: DefaultDevices(),
		Database: DatabaseConfig{
			Path:          "/data/avews.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "core-mosquitto",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
			WebSocket: APIWebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
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

// DefaultDevices returns the antitheft sensors wired to the controller out of the box.
func DefaultDevices() []DeviceConfig {
	return []DeviceConfig{
		{Type: 12, ID: 1, ExternalID: "at_pt_garage", Label: "Perimetrale Garage"},
		{Type: 12, ID: 2, ExternalID: "at_ir_garage", Label: "IR Garage"},
		{Type: 12, ID: 3, ExternalID: "at_pt_rustico", Label: "Perimetrale rustico"},
		{Type: 12, ID: 4, ExternalID: "at_ir_rustico", Label: "IR rustico"},
		{Type: 12, ID: 5, ExternalID: "at_pt_p0", Label: "Perimetrale PT"},
		{Type: 12, ID: 6, ExternalID: "at_ir_p0", Label: "IR PT"},
		{Type: 12, ID: 7, ExternalID: "at_pt_p1", Label: "Perimetrale P1"},
		{Type: 12, ID: 8, ExternalID: "at_ir_p1", Label: "IR P1"},
	}
}

// applyAddonOptions overlays the flat add-on options file onto cfg.
// A missing file is not an error.
func applyAddonOptions(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading add-on options: %w", err)
	}

	var opts addonOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("parsing add-on options: %w", err)
	}

	if opts.WebServerAddress != nil {
		cfg.Controller.Host = *opts.WebServerAddress
	}
	if opts.PollInterval != nil {
		cfg.Sync.PollInterval = *opts.PollInterval
	}
	if opts.Verbose != nil {
		cfg.Logging.Verbose = *opts.Verbose
	}
	if opts.SyncAntitheft != nil {
		cfg.Sync.AntitheftOnInterval = *opts.SyncAntitheft
	}
	if opts.SyncLights != nil {
		cfg.Sync.LightsOnStartup = *opts.SyncLights
	}
	if opts.SubscribeEvents != nil {
		cfg.Sync.SubscribeToEvents = *opts.SubscribeEvents
	}
	if opts.HardwareID != nil {
		cfg.Hub.HardwareID = *opts.HardwareID
	}
	if opts.MQTTHost != nil {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Broker.Host = *opts.MQTTHost
	}
	if opts.MQTTPort != nil {
		cfg.MQTT.Broker.Port = *opts.MQTTPort
	}
	if opts.MQTTUsername != nil {
		cfg.MQTT.Auth.Username = *opts.MQTTUsername
	}
	if opts.MQTTPassword != nil {
		cfg.MQTT.Auth.Password = *opts.MQTTPassword
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AVEWS_SECTION_KEY, plus the
// SUPERVISOR_TOKEN injected by the Home Assistant supervisor.
func applyEnvOverrides(cfg *Config) {
	// Controller
	if v := os.Getenv("AVEWS_CONTROLLER_HOST"); v != "" {
		cfg.Controller.Host = v
	}
	if v := os.Getenv("AVEWS_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.PollInterval = n
		}
	}

	// Hub
	if v := os.Getenv("SUPERVISOR_TOKEN"); v != "" {
		cfg.Hub.Token = v
	}
	if v := os.Getenv("AVEWS_HUB_URL"); v != "" {
		cfg.Hub.URL = v
	}

	// Database
	if v := os.Getenv("AVEWS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("AVEWS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AVEWS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AVEWS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("AVEWS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Controller validation
	if c.Controller.Host == "" {
		errs = append(errs, "controller.host is required")
	}
	if c.Controller.Port < 1 || c.Controller.Port > 65535 {
		errs = append(errs, "controller.port must be between 1 and 65535")
	}
	if c.Controller.ReconnectDelay < 0 {
		errs = append(errs, "controller.reconnect_delay must not be negative")
	}

	// Sync validation
	if c.Sync.AntitheftOnInterval && c.Sync.PollInterval < 1 {
		errs = append(errs, "sync.poll_interval must be at least 1 second when antitheft polling is enabled")
	}

	// Hub validation
	if c.Hub.HardwareID == "" {
		errs = append(errs, "hub.hardware_id is required")
	} else if strings.ContainsAny(c.Hub.HardwareID, "/+# ") {
		errs = append(errs, "hub.hardware_id must not contain '/', '+', '#' or spaces")
	}

	// Device validation
	seen := make(map[[2]int]bool, len(c.Devices))
	for i, d := range c.Devices {
		key := [2]int{d.Type, d.ID}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("devices[%d]: duplicate type %d id %d", i, d.Type, d.ID))
		}
		seen[key] = true
		if d.ExternalID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d]: external_id is required", i))
		}
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ControllerURL returns the WebSocket URL of the AVE web server.
func (c *Config) ControllerURL() string {
	return fmt.Sprintf("ws://%s:%d", c.Controller.Host, c.Controller.Port)
}

// GetPollInterval returns the antitheft poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Sync.PollInterval) * time.Second
}

// GetReconnectDelay returns the controller reconnect delay as a Duration.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.Controller.ReconnectDelay) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
