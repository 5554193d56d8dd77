// Package config loads the spoofsent configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Relay   RelayConfig   `yaml:"relay"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Hostname   string `yaml:"hostname"` // HELO name for the authenticated SMTP path
}

// StorageConfig contains file persistence settings
type StorageConfig struct {
	DataDir string `yaml:"data_dir"` // root for drafts/, campaigns/, templates/, uploads/
	LogFile string `yaml:"log_file"` // send log JSON array
	KeyFile string `yaml:"key_file"` // vault key
	RunsDB  string `yaml:"runs_db"`  // campaign run journal (bbolt)
}

// RelayConfig contains local MTA relay settings for the spoofed path
type RelayConfig struct {
	MainCf      string `yaml:"main_cf"`      // postfix configuration file
	MailCommand string `yaml:"mail_command"` // mail client binary
	Service     string `yaml:"service"`      // systemd unit name
}

// SMTPConfig contains authenticated-path client settings
type SMTPConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Default: /metrics
}

// Load reads and validates a configuration file. An empty path yields the
// default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8025"
	}
	if c.Server.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "localhost"
		}
		c.Server.Hostname = hostname
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.LogFile == "" {
		c.Storage.LogFile = filepath.Join(c.Storage.DataDir, "log.json")
	}
	if c.Storage.KeyFile == "" {
		c.Storage.KeyFile = filepath.Join(c.Storage.DataDir, ".vault.key")
	}
	if c.Storage.RunsDB == "" {
		c.Storage.RunsDB = filepath.Join(c.Storage.DataDir, "runs.db")
	}
	if c.Relay.MainCf == "" {
		c.Relay.MainCf = "/etc/postfix/main.cf"
	}
	if c.Relay.MailCommand == "" {
		c.Relay.MailCommand = "mail"
	}
	if c.Relay.Service == "" {
		c.Relay.Service = "postfix"
	}
	if c.SMTP.ConnectTimeout == 0 {
		c.SMTP.ConnectTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}
	if c.SMTP.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative")
	}
	return nil
}

// DraftsDir returns the draft store directory.
func (c *Config) DraftsDir() string { return filepath.Join(c.Storage.DataDir, "drafts") }

// CampaignsDir returns the campaign store directory.
func (c *Config) CampaignsDir() string { return filepath.Join(c.Storage.DataDir, "campaigns") }

// TemplatesDir returns the template catalog directory.
func (c *Config) TemplatesDir() string { return filepath.Join(c.Storage.DataDir, "templates") }

// UploadsDir returns the directory uploaded HTML bodies and images resolve against.
func (c *Config) UploadsDir() string { return filepath.Join(c.Storage.DataDir, "uploads") }

// MailboxFile returns the mailbox store path.
func (c *Config) MailboxFile() string { return filepath.Join(c.Storage.DataDir, "mailboxes.json") }
