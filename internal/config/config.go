package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Cloud struct {
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`

	PollIntervalSeconds int `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	DailySummaryTTLSecs int `json:"daily_summary_ttl_seconds" yaml:"daily_summary_ttl_seconds"`

	TokenCacheFile string `json:"token_cache_file" yaml:"token_cache_file"`
}

// Enabled flags are pointers so an absent key defaults to on while an
// explicit `enabled: false` still turns the surface off.
type MQTT struct {
	Enabled         *bool  `json:"enabled" yaml:"enabled"`
	BrokerURL       string `json:"broker_url" yaml:"broker_url"`
	ClientID        string `json:"client_id" yaml:"client_id"`
	Username        string `json:"username" yaml:"username"`
	Password        string `json:"password" yaml:"password"`
	DiscoveryPrefix string `json:"discovery_prefix" yaml:"discovery_prefix"`
	BaseTopic       string `json:"base_topic" yaml:"base_topic"`
}

type HTTP struct {
	Enabled         *bool  `json:"enabled" yaml:"enabled"`
	Addr            string `json:"addr" yaml:"addr"`
	EnableWebsocket *bool  `json:"enable_websocket" yaml:"enable_websocket"`
}

type Datadog struct {
	AgentAddr string   `json:"agent_addr" yaml:"agent_addr"`
	Namespace string   `json:"namespace" yaml:"namespace"`
	Tags      []string `json:"tags" yaml:"tags"`
}

type Config struct {
	ConfigFile string        `json:"-" yaml:"-"`
	LogLevel   zerolog.Level `json:"-" yaml:"-"`
	LogFile    string        `json:"log_file" yaml:"log_file"`

	Cloud   Cloud   `json:"cloud" yaml:"cloud"`
	MQTT    MQTT    `json:"mqtt" yaml:"mqtt"`
	HTTP    HTTP    `json:"http" yaml:"http"`
	Datadog Datadog `json:"datadog" yaml:"datadog"`

	DBFile               string `json:"db_file" yaml:"db_file"`
	ReadingRetentionDays int    `json:"reading_retention_days" yaml:"reading_retention_days"`

	NtfyTopic string `json:"ntfy_topic" yaml:"ntfy_topic"`

	BoostDurationHours   int `json:"boost_duration_hours" yaml:"boost_duration_hours"`
	VacationDurationDays int `json:"vacation_duration_days" yaml:"vacation_duration_days"`
}

// Load reads the config file (YAML or JSON, by extension), applies defaults
// and environment overrides, and validates the result.
func Load(path string, logLevel string) (Config, error) {
	var cfg Config
	cfg.ConfigFile = path
	cfg.LogLevel = ParseLogLevel(logLevel)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			applyEnvOverrides(&cfg)
			return cfg, cfg.validate()
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension %q", ext)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, cfg.validate()
}

func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func boolDefault(v *bool, def bool) *bool {
	if v != nil {
		return v
	}
	return &def
}

func applyDefaults(cfg *Config) {
	cfg.MQTT.Enabled = boolDefault(cfg.MQTT.Enabled, true)
	cfg.HTTP.Enabled = boolDefault(cfg.HTTP.Enabled, true)
	cfg.HTTP.EnableWebsocket = boolDefault(cfg.HTTP.EnableWebsocket, true)

	if cfg.Cloud.PollIntervalSeconds == 0 {
		cfg.Cloud.PollIntervalSeconds = 60
	}
	if cfg.Cloud.DailySummaryTTLSecs == 0 {
		cfg.Cloud.DailySummaryTTLSecs = 300
	}
	if cfg.Cloud.TokenCacheFile == "" {
		cfg.Cloud.TokenCacheFile = "data/tokens.json"
	}
	if cfg.MQTT.BrokerURL == "" {
		cfg.MQTT.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "cala2mqtt"
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "cala2mqtt"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8093"
	}
	if cfg.DBFile == "" {
		cfg.DBFile = "data/cala.db"
	}
	if cfg.ReadingRetentionDays == 0 {
		cfg.ReadingRetentionDays = 30
	}
	if cfg.Datadog.Namespace == "" {
		cfg.Datadog.Namespace = "cala2mqtt."
	}
	if cfg.BoostDurationHours == 0 {
		cfg.BoostDurationHours = 4
	}
	if cfg.VacationDurationDays == 0 {
		cfg.VacationDurationDays = 7
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CALA_EMAIL"); v != "" {
		cfg.Cloud.Email = v
	}
	if v := os.Getenv("CALA_PASSWORD"); v != "" {
		cfg.Cloud.Password = v
	}
	if v := os.Getenv("CALA_MQTT_BROKER"); v != "" {
		cfg.MQTT.BrokerURL = v
	}
}

func (cfg *Config) validate() error {
	var problems []string

	if cfg.Cloud.Email == "" {
		problems = append(problems, "cloud.email is required")
	}
	if cfg.Cloud.Password == "" {
		problems = append(problems, "cloud.password is required")
	}
	if cfg.Cloud.PollIntervalSeconds < 15 {
		problems = append(problems, "cloud.poll_interval_seconds must be at least 15")
	}
	if cfg.BoostDurationHours < 1 || cfg.BoostDurationHours > 24 {
		problems = append(problems, "boost_duration_hours must be between 1 and 24")
	}
	if cfg.VacationDurationDays < 1 || cfg.VacationDurationDays > 90 {
		problems = append(problems, "vacation_duration_days must be between 1 and 90")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
