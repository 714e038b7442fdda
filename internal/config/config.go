// Package config loads application settings from the environment, with an
// optional YAML file under ~/.config/hgping and an optional .env file for
// local development. Environment variables always win.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config carries every setting the tool reads. YAML tags feed the
// `hgping config` command output.
type Config struct {
	// Bugzilla REST endpoint used for bug attachments and history.
	BMOAPIURL string `yaml:"bmo_api_url"`

	// Default repository for one-shot commands and the webapp.
	TargetRepo string `yaml:"target_repo"`

	// Pulse message queue settings.
	PulseHost       string `yaml:"pulse_host"`
	PulsePort       int    `yaml:"pulse_port"`
	PulseExchange   string `yaml:"pulse_exchange"`
	PulseQueueName  string `yaml:"pulse_queue_name"`
	PulseRoutingKey string `yaml:"pulse_routing_key"`
	PulseUser       string `yaml:"pulse_user"`
	PulsePassword   string `yaml:"-"`

	// Generic ping ingestion service settings.
	TMOBaseURL        string `yaml:"tmo_base_url"`
	TMOPingNamespace  string `yaml:"tmo_ping_namespace"`
	TMOPingDoctype    string `yaml:"tmo_ping_doctype"`
	TMOPingDocversion string `yaml:"tmo_ping_docversion"`

	// Webapp bind address.
	ListenAddr string `yaml:"listen_addr"`

	// HTTP client timeout for hgweb and Bugzilla requests.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	LogLevel string `yaml:"log_level"`
}

// Load builds a Config from defaults, the optional YAML config file, and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A .env file is optional and only a convenience for development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "hgping"))
	}
	// A missing config file is fine, we run from env + defaults.
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	cfg := &Config{
		BMOAPIURL:         v.GetString("bmo_api_url"),
		TargetRepo:        v.GetString("target_repo"),
		PulseHost:         v.GetString("pulse_host"),
		PulsePort:         v.GetInt("pulse_port"),
		PulseExchange:     v.GetString("pulse_exchange"),
		PulseQueueName:    v.GetString("pulse_queue_name"),
		PulseRoutingKey:   v.GetString("pulse_routing_key"),
		PulseUser:         v.GetString("pulse_username"),
		PulsePassword:     v.GetString("pulse_password"),
		TMOBaseURL:        v.GetString("tmo_base_url"),
		TMOPingNamespace:  v.GetString("tmo_ping_namespace"),
		TMOPingDoctype:    v.GetString("tmo_ping_doctype"),
		TMOPingDocversion: v.GetString("tmo_ping_docversion"),
		ListenAddr:        v.GetString("listen_addr"),
		HTTPTimeout:       v.GetDuration("http_timeout"),
		LogLevel:          v.GetString("log_level"),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bmo_api_url", "https://bugzilla.mozilla.org/rest")
	v.SetDefault("target_repo", "https://hg.mozilla.org/mozilla-central/")
	v.SetDefault("pulse_host", "pulse.mozilla.org")
	v.SetDefault("pulse_port", 5671)
	v.SetDefault("pulse_exchange", "exchange/hgpushes/v2")
	v.SetDefault("pulse_queue_name", "hgpush_commit_telemetry")
	v.SetDefault("pulse_routing_key", "integration/mozilla-inbound")
	v.SetDefault("tmo_base_url", "https://incoming.telemetry.mozilla.org/submit")
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
}

// ValidatePulse checks the settings the queue listener cannot run without.
func (c *Config) ValidatePulse() error {
	if c.PulseUser == "" {
		return fmt.Errorf("config: PULSE_USERNAME is required")
	}
	if c.PulseQueueName == "" {
		return fmt.Errorf("config: PULSE_QUEUE_NAME is required")
	}
	if c.PulseRoutingKey == "" {
		return fmt.Errorf("config: PULSE_ROUTING_KEY is required")
	}
	return nil
}

// ValidateTMO checks the settings ping transmission cannot run without.
func (c *Config) ValidateTMO() error {
	if c.TMOPingNamespace == "" {
		return fmt.Errorf("config: TMO_PING_NAMESPACE is required")
	}
	if c.TMOPingDoctype == "" {
		return fmt.Errorf("config: TMO_PING_DOCTYPE is required")
	}
	if c.TMOPingDocversion == "" {
		return fmt.Errorf("config: TMO_PING_DOCVERSION is required")
	}
	return nil
}
