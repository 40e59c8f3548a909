// Package config loads vigil configuration from a YAML file, with
// environment variable overrides for the deployment-specific values
// (target URL, selector, SNS topics, AWS credentials).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level vigil configuration.
type Config struct {
	Target  TargetConfig  `yaml:"target"`
	Monitor MonitorConfig `yaml:"monitor"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Notify  NotifyConfig  `yaml:"notify"`
	State   StateConfig   `yaml:"state"`
	API     APIConfig     `yaml:"api"`
}

// TargetConfig identifies the watched page fragment.
type TargetConfig struct {
	URL      string `yaml:"url"`
	Selector string `yaml:"selector"`
}

// MonitorConfig controls the two periodic loops.
type MonitorConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	MaxChanges         int           `yaml:"max_changes"`
	FailAlertThreshold int           `yaml:"fail_alert_threshold"`
}

// FetchConfig controls how page content is retrieved.
type FetchConfig struct {
	Mode         string        `yaml:"mode"` // http | browser
	Timeout      time.Duration `yaml:"timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
	UserAgent    string        `yaml:"user_agent"`
	AllowPrivate bool          `yaml:"allow_private"`
}

// NotifyConfig controls delivery retry behavior and lists the channels.
type NotifyConfig struct {
	MaxAttempts int             `yaml:"max_attempts"`
	BaseBackoff time.Duration   `yaml:"base_backoff"`
	MaxBackoff  time.Duration   `yaml:"max_backoff"`
	RateLimit   float64         `yaml:"rate_limit"` // sends per second, 0 = unlimited
	Channels    []ChannelConfig `yaml:"channels"`
}

// ChannelConfig defines one notification channel. Type selects which of the
// backend-specific fields apply.
type ChannelConfig struct {
	Type  string   `yaml:"type"` // sns | email | webhook
	Name  string   `yaml:"name"`
	Kinds []string `yaml:"kinds"` // change, health; empty accepts both

	// sns
	TopicARN  string `yaml:"topic_arn"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// email
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`

	// webhook
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// StateConfig locates the SQLite database.
type StateConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// APIConfig controls the status HTTP server. Empty Listen disables it.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// LoadFile reads a YAML configuration file, applies environment overrides
// and defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays the environment variables used by existing deployments:
// URL_LINK, CLASS_ELEMENT, CHANGE_STATUS_TOPIC, HEALTH_STATUS_TOPIC,
// ACCESS_KEY, SECRET_KEY. Topic variables each add an SNS channel; the
// health topic also mirrors change events so its subscribers see both.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("URL_LINK"); v != "" {
		c.Target.URL = v
	}
	if v := os.Getenv("CLASS_ELEMENT"); v != "" {
		c.Target.Selector = v
	}

	access := os.Getenv("ACCESS_KEY")
	secret := os.Getenv("SECRET_KEY")

	if arn := os.Getenv("CHANGE_STATUS_TOPIC"); arn != "" {
		c.upsertChannel(ChannelConfig{
			Type:      "sns",
			Name:      "change-status",
			Kinds:     []string{"change"},
			TopicARN:  arn,
			AccessKey: access,
			SecretKey: secret,
		})
	}
	if arn := os.Getenv("HEALTH_STATUS_TOPIC"); arn != "" {
		c.upsertChannel(ChannelConfig{
			Type:      "sns",
			Name:      "health-status",
			Kinds:     []string{"health", "change"},
			TopicARN:  arn,
			AccessKey: access,
			SecretKey: secret,
		})
	}
	if access != "" || secret != "" {
		for i := range c.Notify.Channels {
			ch := &c.Notify.Channels[i]
			if ch.Type == "sns" && ch.AccessKey == "" && ch.SecretKey == "" {
				ch.AccessKey = access
				ch.SecretKey = secret
			}
		}
	}
}

// upsertChannel replaces a channel with the same name or appends a new one,
// so repeated env application stays idempotent.
func (c *Config) upsertChannel(cc ChannelConfig) {
	for i, existing := range c.Notify.Channels {
		if existing.Name == cc.Name {
			c.Notify.Channels[i] = cc
			return
		}
	}
	c.Notify.Channels = append(c.Notify.Channels, cc)
}

func (c *Config) applyDefaults() {
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = time.Minute
	}
	if c.Monitor.HeartbeatInterval <= 0 {
		c.Monitor.HeartbeatInterval = 2 * time.Hour
	}
	if c.Monitor.MaxChanges == 0 {
		c.Monitor.MaxChanges = 10
	}
	if c.Fetch.Mode == "" {
		c.Fetch.Mode = "http"
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 10 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 << 20
	}
	if c.Notify.MaxAttempts <= 0 {
		c.Notify.MaxAttempts = 3
	}
	if c.Notify.BaseBackoff <= 0 {
		c.Notify.BaseBackoff = 2 * time.Second
	}
	if c.Notify.MaxBackoff <= 0 {
		c.Notify.MaxBackoff = 30 * time.Second
	}
	if c.State.Path == "" {
		c.State.Path = "vigil.db"
	}
	for i := range c.Notify.Channels {
		if ch := &c.Notify.Channels[i]; ch.Type == "email" && ch.Port == 0 {
			ch.Port = 587
		}
	}
}

// Validate rejects configurations the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Target.URL == "" {
		return fmt.Errorf("config: target.url is required (or URL_LINK)")
	}
	if c.Target.Selector == "" {
		return fmt.Errorf("config: target.selector is required (or CLASS_ELEMENT)")
	}
	if c.Fetch.Mode != "http" && c.Fetch.Mode != "browser" {
		return fmt.Errorf("config: fetch.mode must be http or browser, got %q", c.Fetch.Mode)
	}
	for i, ch := range c.Notify.Channels {
		switch ch.Type {
		case "sns":
			if ch.TopicARN == "" {
				return fmt.Errorf("config: channel %d (sns): topic_arn is required", i)
			}
		case "email":
			if ch.Host == "" || ch.From == "" || len(ch.To) == 0 {
				return fmt.Errorf("config: channel %d (email): host, from, and to are required", i)
			}
		case "webhook":
			if ch.URL == "" {
				return fmt.Errorf("config: channel %d (webhook): url is required", i)
			}
		default:
			return fmt.Errorf("config: channel %d: unknown type %q", i, ch.Type)
		}
		for _, k := range ch.Kinds {
			if k != "change" && k != "health" {
				return fmt.Errorf("config: channel %d: unknown kind %q", i, k)
			}
		}
	}
	return nil
}
