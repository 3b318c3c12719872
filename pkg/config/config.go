package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"alert-dispatch/pkg/alert"
	"alert-dispatch/pkg/filter"
	"alert-dispatch/pkg/httpclient"
	"alert-dispatch/pkg/notification"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ALERT_"

// Config represents the root configuration
type Config struct {
	Version  string                  `yaml:"version"`
	Server   ServerConfig            `yaml:"server"`
	Log      LogConfig               `yaml:"log"`
	HTTP     httpclient.Config       `yaml:"http"`
	SMTP     notification.SMTPConfig `yaml:"smtp"`
	Robots   RobotConfig             `yaml:"robots"`
	Alerting AlertingConfig          `yaml:"alerting"`
	Watcher  WatcherConfig           `yaml:"watcher"`
	Restart  RestartConfig           `yaml:"restart"`
	Alerts   []AlertDefinition       `yaml:"alerts"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT"`
	DBPath          string        `yaml:"db" env:"DB"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// RobotConfig overrides the chat robot endpoints, mostly for private deployments
type RobotConfig struct {
	DingTalkURL string `yaml:"dingtalk_url" env:"DINGTALK_URL"`
	WeComURL    string `yaml:"wecom_url" env:"WECOM_URL"`
	LarkURL     string `yaml:"lark_url" env:"LARK_URL"`
}

// AlertingConfig selects which state changes raise alerts
type AlertingConfig struct {
	IncludeStates []string `yaml:"include_states"`
	ExcludeStates []string `yaml:"exclude_states"`
}

// WatcherConfig contains the job state watcher settings
type WatcherConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Cron    string `yaml:"cron" env:"CRON"`
}

// RestartConfig contains the console used to restart jobs
type RestartConfig struct {
	BaseURL       string `yaml:"base_url" env:"BASE_URL"`
	Authorization string `yaml:"authorization" env:"AUTHORIZATION"`
	TeamID        int    `yaml:"team_id" env:"TEAM_ID"`
}

// AlertDefinition is an alert configuration declared in the config file
type AlertDefinition struct {
	Name         string                    `yaml:"name"`
	Types        []string                  `yaml:"types"`
	Email        *alert.EmailParams        `yaml:"email,omitempty"`
	DingTalk     *alert.DingTalkParams     `yaml:"dingtalk,omitempty"`
	WeCom        *alert.WeComParams        `yaml:"wecom,omitempty"`
	Lark         *alert.LarkParams         `yaml:"lark,omitempty"`
	HTTPCallback *alert.HTTPCallbackParams `yaml:"http_callback,omitempty"`
}

// Params converts the definition into a dispatchable config
func (d AlertDefinition) Params() (*alert.ConfigWithParams, error) {
	mask, err := alert.EncodeNames(d.Types)
	if err != nil {
		return nil, fmt.Errorf("alert %s: %w", d.Name, err)
	}
	return &alert.ConfigWithParams{
		AlertName:    d.Name,
		AlertType:    mask,
		Email:        d.Email,
		DingTalk:     d.DingTalk,
		WeCom:        d.WeCom,
		Lark:         d.Lark,
		HTTPCallback: d.HTTPCallback,
	}, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file and applies
// ALERT_* environment overrides
func LoadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	config.setDefaults()

	// Validate
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyEnv overrides scalar sections from ALERT_<SECTION>_<KEY> variables
func (c *Config) applyEnv() error {
	sections := []struct {
		prefix string
		target any
	}{
		{"SERVER_", &c.Server},
		{"LOG_", &c.Log},
		{"HTTP_", &c.HTTP},
		{"SMTP_", &c.SMTP},
		{"ROBOTS_", &c.Robots},
		{"WATCHER_", &c.Watcher},
		{"RESTART_", &c.Restart},
	}
	for _, s := range sections {
		if err := env.ParseWithOptions(s.target, env.Options{Prefix: EnvPrefix + s.prefix}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "alert-dispatch.db"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	def := httpclient.DefaultConfig()
	if c.HTTP.MaxTotal == 0 {
		c.HTTP.MaxTotal = def.MaxTotal
	}
	if c.HTTP.MaxPerRoute == 0 {
		c.HTTP.MaxPerRoute = def.MaxPerRoute
	}
	if c.HTTP.ConnectTimeout == 0 {
		c.HTTP.ConnectTimeout = def.ConnectTimeout
	}
	if c.HTTP.AcquireTimeout == 0 {
		c.HTTP.AcquireTimeout = def.AcquireTimeout
	}
	if c.HTTP.SocketTimeout == 0 {
		c.HTTP.SocketTimeout = def.SocketTimeout
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 25
	}
	if len(c.Alerting.IncludeStates) == 0 {
		c.Alerting.IncludeStates = filter.DefaultAlertStates
	}
	if c.Watcher.Cron == "" {
		c.Watcher.Cron = "@every 30s"
	}
	if c.Restart.TeamID == 0 {
		c.Restart.TeamID = 1
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.HTTP.MaxPerRoute > c.HTTP.MaxTotal {
		return fmt.Errorf("http: max_per_route (%d) exceeds max_total (%d)", c.HTTP.MaxPerRoute, c.HTTP.MaxTotal)
	}
	if c.HTTP.QPS < 0 {
		return errors.New("http: qps must not be negative")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log: unknown format %s", c.Log.Format)
	}

	if _, err := c.StateFilter(); err != nil {
		return fmt.Errorf("alerting: %w", err)
	}

	if c.Watcher.Enabled {
		if _, err := cron.ParseStandard(c.Watcher.Cron); err != nil {
			return fmt.Errorf("watcher: invalid cron %s: %w", c.Watcher.Cron, err)
		}
	}

	seen := make(map[string]bool)
	for i, def := range c.Alerts {
		if def.Name == "" {
			return fmt.Errorf("alert %d: name is required", i)
		}
		if seen[def.Name] {
			return fmt.Errorf("alert %s: duplicate name", def.Name)
		}
		seen[def.Name] = true
		if _, err := def.Params(); err != nil {
			return err
		}
	}

	return nil
}

// StateFilter builds the filter selecting alerting states
func (c *Config) StateFilter() (*filter.Filter, error) {
	return filter.NewFilter(c.Alerting.IncludeStates, c.Alerting.ExcludeStates)
}

// GetAlert returns the alert definition with the given name
func (c *Config) GetAlert(name string) (AlertDefinition, error) {
	for _, def := range c.Alerts {
		if strings.EqualFold(def.Name, name) {
			return def, nil
		}
	}
	return AlertDefinition{}, fmt.Errorf("alert %s not found", name)
}
