// CLAUDE:SUMMARY Loads sosrelay configuration from .env, an optional YAML file and environment variables, then applies defaults and validates.
// Package config holds the sosrelay configuration.
//
// Sources, lowest precedence first: built-in defaults, YAML file, .env file,
// process environment. A .env value never overrides a variable already set
// in the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sosrelay/locator"
)

// DefaultMessage is sent when neither the caller nor the environment supplies one.
const DefaultMessage = "🚨 SOS: Testing alert system."

// Config is the top-level configuration.
type Config struct {
	Phone    string        `yaml:"phone"`
	Message  string        `yaml:"message"`
	AppURL   string        `yaml:"app_url"`
	Timeout  time.Duration `yaml:"timeout"`
	LogLevel string        `yaml:"log_level"`

	Attach    AttachConfig    `yaml:"attach"`
	Launch    LaunchConfig    `yaml:"launch"`
	Scheduled ScheduledConfig `yaml:"scheduled"`

	Journal  string         `yaml:"journal"`
	HTTP     HTTPConfig     `yaml:"http"`
	Severity SeverityConfig `yaml:"severity"`
	SOS      SOSConfig      `yaml:"sos"`
}

// AttachConfig controls reuse of a running remote-debugging browser.
type AttachConfig struct {
	Disabled     bool          `yaml:"disabled"`
	Hosts        []string      `yaml:"hosts"`
	Port         int           `yaml:"port"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	MaxWait      time.Duration `yaml:"max_wait"`
	Settle       time.Duration `yaml:"settle"`
	PostSend     time.Duration `yaml:"post_send"`
	// Locator defaults to the first launch locator.
	Locator locator.Spec `yaml:"locator"`
}

// LaunchConfig controls starting a fresh browser session.
type LaunchConfig struct {
	Disabled bool   `yaml:"disabled"`
	Bin      string `yaml:"bin"`
	// Profile is a browser profile path holding a logged-in session.
	Profile             string         `yaml:"profile"`
	Headless            bool           `yaml:"headless"`
	WindowWidth         int            `yaml:"window_width"`
	WindowHeight        int            `yaml:"window_height"`
	EnableNotifications bool           `yaml:"enable_notifications"`
	EnableSandbox       bool           `yaml:"enable_sandbox"`
	MaxWait             time.Duration  `yaml:"max_wait"`
	Settle              time.Duration  `yaml:"settle"`
	PostSend            time.Duration  `yaml:"post_send"`
	Locators            []locator.Spec `yaml:"locators"`
}

// ScheduledConfig controls the system-browser fallback.
type ScheduledConfig struct {
	Disabled bool          `yaml:"disabled"`
	LeadTime time.Duration `yaml:"lead_time"`
}

// HTTPConfig controls the relay daemon listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// TokenHash is a bcrypt hash of the bearer token required on /v1.
	// Empty disables authentication.
	TokenHash string `yaml:"token_hash"`
	QueueSize int    `yaml:"queue_size"`
}

// SeverityConfig points at the text-classification service. Empty URL disables it.
type SeverityConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SOSConfig shapes the emergency message composed by the relay.
type SOSConfig struct {
	Signature string `yaml:"signature"`
}

// DefaultLocators lists the message box selectors, most specific first.
func DefaultLocators() []locator.Spec {
	return []locator.Spec{
		{Kind: locator.XPath, Expr: "//div[@contenteditable='true' and @data-tab]"},
		{Kind: locator.CSS, Expr: "div[title='Type a message']"},
		{Kind: locator.CSS, Expr: "div.lexical-rich-text-input div[contenteditable='true']"},
	}
}

// Load builds a Config. path may be empty to skip the YAML file. A .env
// file in the working directory is read when present.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PHONE_NUMBER", &c.Phone)
	str("ALERT_MESSAGE", &c.Message)
	str("APP_URL", &c.AppURL)
	str("BROWSER_BIN", &c.Launch.Bin)
	str("BROWSER_PROFILE_PATH", &c.Launch.Profile)
	str("JOURNAL_DB", &c.Journal)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("API_TOKEN_HASH", &c.HTTP.TokenHash)
	str("SEVERITY_URL", &c.Severity.URL)
	str("LOG_LEVEL", &c.LogLevel)

	if v := getenv("REMOTE_DEBUG_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: REMOTE_DEBUG_PORT: %w", err)
		}
		c.Attach.Port = p
	}
	if v := getenv("BROWSER_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BROWSER_HEADLESS: %w", err)
		}
		c.Launch.Headless = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Message == "" {
		c.Message = DefaultMessage
	}
	if c.AppURL == "" {
		c.AppURL = "https://web.whatsapp.com"
	}
	c.AppURL = strings.TrimRight(c.AppURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if len(c.Launch.Locators) == 0 {
		c.Launch.Locators = DefaultLocators()
	}
	if c.Launch.WindowWidth <= 0 {
		c.Launch.WindowWidth = 1200
	}
	if c.Launch.WindowHeight <= 0 {
		c.Launch.WindowHeight = 900
	}
	if c.Launch.MaxWait <= 0 {
		c.Launch.MaxWait = 60 * time.Second
	}
	if c.Launch.Settle <= 0 {
		c.Launch.Settle = 5 * time.Second
	}
	if c.Launch.PostSend <= 0 {
		c.Launch.PostSend = 7 * time.Second
	}

	if len(c.Attach.Hosts) == 0 {
		c.Attach.Hosts = []string{"127.0.0.1", "localhost"}
	}
	if c.Attach.Port == 0 {
		c.Attach.Port = 9222
	}
	if c.Attach.ProbeTimeout <= 0 {
		c.Attach.ProbeTimeout = 2 * time.Second
	}
	if c.Attach.MaxWait <= 0 {
		c.Attach.MaxWait = 45 * time.Second
	}
	if c.Attach.Settle <= 0 {
		c.Attach.Settle = 3 * time.Second
	}
	if c.Attach.PostSend <= 0 {
		c.Attach.PostSend = 3 * time.Second
	}
	if c.Attach.Locator.Expr == "" {
		c.Attach.Locator = c.Launch.Locators[0]
	}

	if c.Scheduled.LeadTime <= 0 {
		c.Scheduled.LeadTime = 15 * time.Second
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8095"
	}
	if c.HTTP.QueueSize <= 0 {
		c.HTTP.QueueSize = 64
	}
	if c.Severity.Timeout <= 0 {
		c.Severity.Timeout = 10 * time.Second
	}
	if c.SOS.Signature == "" {
		c.SOS.Signature = "Sent via sosrelay"
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	u, err := url.Parse(c.AppURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("config: app_url %q must be an absolute http(s) URL", c.AppURL)
	}
	if c.Attach.Port < 1 || c.Attach.Port > 65535 {
		return fmt.Errorf("config: attach port %d out of range", c.Attach.Port)
	}
	if err := c.Attach.Locator.Validate(); err != nil {
		return fmt.Errorf("config: attach: %w", err)
	}
	for i, l := range c.Launch.Locators {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("config: launch locator %d: %w", i, err)
		}
	}
	if c.Attach.Disabled && c.Launch.Disabled && c.Scheduled.Disabled {
		return errors.New("config: every delivery strategy is disabled")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}
