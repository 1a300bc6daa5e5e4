package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"wmnmon/internal/anomaly"
	"wmnmon/internal/incident"
)

const (
	DefaultBrokerPort        = 8883
	DefaultClientID          = "wmnmon"
	DefaultListen            = "127.0.0.1:8089"
	DefaultHistoryCapacity   = 800
	DefaultAnomalyWindow     = 60
	DefaultAnomalyMinSamples = 30
	DefaultZThreshold        = 3.0
	DefaultOnlineGraceSec    = 20
	DefaultRSSIWeakDBm       = -80.0
	DefaultLatencyWarnMs     = 150.0
	DefaultJitterWarnMs      = 50.0
	DefaultLossWarnPct       = 3.0
	DefaultExplainTimeoutSec = 30
	DefaultReconnectMinSec   = 1
	DefaultReconnectMaxSec   = 30
)

// Config holds all collector settings.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Rules     RulesConfig     `yaml:"rules"`
	Explainer ExplainerConfig `yaml:"explainer"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Doctor    DoctorConfig    `yaml:"doctor"`
}

// BrokerConfig configures the MQTT subscription.
type BrokerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TLS             bool   `yaml:"tls"`
	ClientID        string `yaml:"client_id"`
	ReconnectMinSec int    `yaml:"reconnect_min_sec"`
	ReconnectMaxSec int    `yaml:"reconnect_max_sec"`
}

// ServerConfig configures the read-only HTTP/websocket API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// StoreConfig bounds the in-memory device store.
type StoreConfig struct {
	HistoryCapacity int `yaml:"history_capacity"`
}

// AnomalyConfig tunes the latency z-score detector.
type AnomalyConfig struct {
	Window     int     `yaml:"window"`
	MinSamples int     `yaml:"min_samples"`
	ZThreshold float64 `yaml:"z_threshold"`
}

// RulesConfig holds the incident correlation thresholds.
type RulesConfig struct {
	OnlineGraceSec int     `yaml:"online_grace_sec"`
	RSSIWeakDBm    float64 `yaml:"rssi_weak_dbm"`
	LatencyWarnMs  float64 `yaml:"latency_warn_ms"`
	JitterWarnMs   float64 `yaml:"jitter_warn_ms"`
	LossWarnPct    float64 `yaml:"loss_warn_pct"`
}

// ExplainerConfig points at the external explanation service.
type ExplainerConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ArchiveConfig enables the optional SQLite message archive. Empty path
// disables archiving.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// DoctorConfig holds connectivity-diagnostics settings.
type DoctorConfig struct {
	STUNServers []string `yaml:"stun_servers"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Broker.Host == "" {
		return fmt.Errorf("broker.host is required")
	}
	if cfg.Broker.Port <= 0 || cfg.Broker.Port > 65535 {
		return fmt.Errorf("broker.port %d out of range", cfg.Broker.Port)
	}
	if cfg.Anomaly.Window < 2 {
		return fmt.Errorf("anomaly.window must be at least 2")
	}
	if cfg.Anomaly.MinSamples < 1 {
		return fmt.Errorf("anomaly.min_samples must be at least 1")
	}
	if cfg.Anomaly.ZThreshold <= 0 {
		return fmt.Errorf("anomaly.z_threshold must be positive")
	}
	if cfg.Rules.OnlineGraceSec <= 0 {
		return fmt.Errorf("rules.online_grace_sec must be positive")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = DefaultBrokerPort
	}
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = DefaultClientID
	}
	if cfg.Broker.ReconnectMinSec == 0 {
		cfg.Broker.ReconnectMinSec = DefaultReconnectMinSec
	}
	if cfg.Broker.ReconnectMaxSec == 0 {
		cfg.Broker.ReconnectMaxSec = DefaultReconnectMaxSec
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Store.HistoryCapacity == 0 {
		cfg.Store.HistoryCapacity = DefaultHistoryCapacity
	}
	if cfg.Anomaly.Window == 0 {
		cfg.Anomaly.Window = DefaultAnomalyWindow
	}
	if cfg.Anomaly.MinSamples == 0 {
		cfg.Anomaly.MinSamples = DefaultAnomalyMinSamples
	}
	if cfg.Anomaly.ZThreshold == 0 {
		cfg.Anomaly.ZThreshold = DefaultZThreshold
	}
	if cfg.Rules.OnlineGraceSec == 0 {
		cfg.Rules.OnlineGraceSec = DefaultOnlineGraceSec
	}
	if cfg.Rules.RSSIWeakDBm == 0 {
		cfg.Rules.RSSIWeakDBm = DefaultRSSIWeakDBm
	}
	if cfg.Rules.LatencyWarnMs == 0 {
		cfg.Rules.LatencyWarnMs = DefaultLatencyWarnMs
	}
	if cfg.Rules.JitterWarnMs == 0 {
		cfg.Rules.JitterWarnMs = DefaultJitterWarnMs
	}
	if cfg.Rules.LossWarnPct == 0 {
		cfg.Rules.LossWarnPct = DefaultLossWarnPct
	}
	if cfg.Explainer.TimeoutSec == 0 {
		cfg.Explainer.TimeoutSec = DefaultExplainTimeoutSec
	}
}

// Detector converts the YAML section into detector configuration.
func (c AnomalyConfig) Detector() anomaly.Config {
	return anomaly.Config{
		Window:     c.Window,
		MinSamples: c.MinSamples,
		ZThreshold: c.ZThreshold,
	}
}

// IncidentRules assembles the correlator rules from config.
func (cfg Config) IncidentRules() incident.Rules {
	return incident.Rules{
		OnlineGrace:   time.Duration(cfg.Rules.OnlineGraceSec) * time.Second,
		RSSIWeakDBm:   cfg.Rules.RSSIWeakDBm,
		LatencyWarnMs: cfg.Rules.LatencyWarnMs,
		JitterWarnMs:  cfg.Rules.JitterWarnMs,
		LossWarnPct:   cfg.Rules.LossWarnPct,
		Anomaly:       cfg.Anomaly.Detector(),
	}
}

// ExplainTimeout returns the explainer request timeout.
func (cfg Config) ExplainTimeout() time.Duration {
	return time.Duration(cfg.Explainer.TimeoutSec) * time.Second
}
