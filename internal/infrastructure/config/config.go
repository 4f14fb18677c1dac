package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for mqtt-journal.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Journal     JournalConfig     `yaml:"journal"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Archive     ArchiveConfig     `yaml:"archive"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Console     ConsoleConfig     `yaml:"console"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	TLS            MQTTTLSConfig       `yaml:"tls"`
	QoS            int                 `yaml:"qos"`
	Topics         []string            `yaml:"topics"`
	ConnectTimeout int                 `yaml:"connect_timeout"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TLS       bool   `yaml:"tls"`
	ClientID  string `yaml:"client_id"`
	KeepAlive int    `yaml:"keep_alive"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig contains certificate paths used when Broker.TLS is enabled.
type MQTTTLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
//
// Reconnection is performed by the paho client, never by the session core.
// It is disabled by default.
type MQTTReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"`
	MaxDelay     int  `yaml:"max_delay"`
}

// JournalConfig contains in-memory message journal settings.
type JournalConfig struct {
	Capacity   int `yaml:"capacity"`
	BufferSize int `yaml:"buffer_size"`
}

// PersistenceConfig contains journal file persistence settings.
type PersistenceConfig struct {
	Directory        string `yaml:"directory"`
	AutosaveInterval int    `yaml:"autosave_interval"`
	SaveOnExit       bool   `yaml:"save_on_exit"`
}

// ArchiveConfig contains SQLite message archive settings.
type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// ConsoleConfig controls the per-message console printer.
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
	Color   bool `yaml:"color"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path (skipped when path is ""), then environment
// variables. The result is validated before it is returned.
//
// The broker variables keep the names used by the original client scripts
// (MQTT_HOST, MQTT_PORT, MQTT_TOPIC, ...). Settings without such a name use
// MQTTJOURNAL_<SECTION>_<KEY>.
//
// A missing client_id is replaced with a generated "mqttjournal-xxxxxxxx-sub".
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = GenerateClientID("sub")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "broker.hivemq.com",
				Port:      1883,
				KeepAlive: 60,
			},
			QoS:            0,
			Topics:         []string{"test/topic"},
			ConnectTimeout: 10,
			Reconnect: MQTTReconnectConfig{
				Enabled:      false,
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Journal: JournalConfig{
			Capacity:   1000,
			BufferSize: 256,
		},
		Persistence: PersistenceConfig{
			Directory:  ".",
			SaveOnExit: true,
		},
		Archive: ArchiveConfig{
			Path:          "./data/mqttjournal.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Console: ConsoleConfig{
			Enabled: true,
			Color:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// envOverride maps one environment variable onto a config field. set
// receives the non-empty value and reports parse errors.
type envOverride struct {
	name string
	set  func(cfg *Config, v string) error
}

func envString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func envInt(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

var envOverrides = []envOverride{
	{"MQTT_HOST", envString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"MQTT_PORT", envInt(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"MQTT_USERNAME", envString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"MQTT_PASSWORD", envString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"MQTT_CLIENT_ID", envString(func(c *Config) *string { return &c.MQTT.Broker.ClientID })},
	{"MQTT_TOPIC", func(c *Config, v string) error {
		c.MQTT.Topics = []string{v}
		return nil
	}},
	{"MQTT_QOS", envInt(func(c *Config) *int { return &c.MQTT.QoS })},
	{"MQTT_USE_SSL", func(c *Config, v string) error {
		c.MQTT.Broker.TLS = strings.EqualFold(v, "true")
		return nil
	}},
	{"MQTT_CA_CERT_PATH", envString(func(c *Config) *string { return &c.MQTT.TLS.CAFile })},
	{"MQTT_CERT_FILE_PATH", envString(func(c *Config) *string { return &c.MQTT.TLS.CertFile })},
	{"MQTT_KEY_FILE_PATH", envString(func(c *Config) *string { return &c.MQTT.TLS.KeyFile })},
	{"MQTTJOURNAL_JOURNAL_CAPACITY", envInt(func(c *Config) *int { return &c.Journal.Capacity })},
	{"MQTTJOURNAL_PERSISTENCE_DIRECTORY", envString(func(c *Config) *string { return &c.Persistence.Directory })},
	{"MQTTJOURNAL_ARCHIVE_PATH", envString(func(c *Config) *string { return &c.Archive.Path })},
	{"MQTTJOURNAL_INFLUXDB_TOKEN", envString(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"MQTTJOURNAL_API_PORT", envInt(func(c *Config) *int { return &c.API.Port })},
	{"MQTTJOURNAL_LOGGING_LEVEL", envString(func(c *Config) *string { return &c.Logging.Level })},
}

// applyEnvOverrides applies every set variable and joins the parse errors.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, o := range envOverrides {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		if err := o.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.name, err))
		}
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// Validate reports every problem at once, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.MQTT.Broker.Host != "", "mqtt.broker.host is required")
	check(validPort(c.MQTT.Broker.Port), "mqtt.broker.port must be between 1 and 65535")
	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	check(c.MQTT.ConnectTimeout >= 0, "mqtt.connect_timeout must not be negative")
	check((c.MQTT.TLS.CertFile == "") == (c.MQTT.TLS.KeyFile == ""),
		"mqtt.tls.cert_file and mqtt.tls.key_file must be set together")

	check(c.Journal.Capacity >= 1, "journal.capacity must be at least 1")
	check(c.Journal.BufferSize >= 0, "journal.buffer_size must not be negative")

	check(!c.Archive.Enabled || c.Archive.Path != "", "archive.path is required when the archive is enabled")
	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
	check(!c.API.Enabled || validPort(c.API.Port), "api.port must be between 1 and 65535")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// GenerateClientID returns "mqttjournal-<8 hex>" with "-role" appended
// when role is set.
func GenerateClientID(role string) string {
	id := "mqttjournal-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if role != "" {
		id += "-" + role
	}
	return id
}

// GetConnectTimeout returns mqtt.connect_timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetAutosaveInterval returns persistence.autosave_interval as a Duration;
// zero disables autosave.
func (c *Config) GetAutosaveInterval() time.Duration {
	return time.Duration(c.Persistence.AutosaveInterval) * time.Second
}
