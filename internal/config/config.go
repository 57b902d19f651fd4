package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/garnizeh/talentflow/pkg/flowise"
	"github.com/garnizeh/talentflow/pkg/ollama"
)

// Config is the whole agent configuration. Defaults come first, then the
// YAML file (when given), then environment variables for the secrets.
type Config struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	TokenDuration time.Duration `yaml:"token_duration"`
	DatabasePath  string        `yaml:"database_path"`
	DataDir       string        `yaml:"data_dir"`

	ProfilePath string `yaml:"profile_path"`
	ProfileID   string `yaml:"profile_id"`
	CorpusPath  string `yaml:"corpus_path"`

	Flowise flowise.Config `yaml:"flowise"`
	Ollama  ollama.Config  `yaml:"ollama"`

	Sweep    SweepConfig    `yaml:"sweep"`
	Sources  []SourceConfig `yaml:"sources"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// SweepConfig tunes the scan loop.
type SweepConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Workers       int           `yaml:"workers"`
	PostingBudget time.Duration `yaml:"posting_budget"`
	SourceTimeout time.Duration `yaml:"source_timeout"`
	// RatePerHost caps requests per second against one platform host.
	RatePerHost float64 `yaml:"rate_per_host"`
}

// SourceConfig describes one posting feed to sweep.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	URL      string `yaml:"url"`
}

// DispatchConfig selects how outreach leaves the system.
type DispatchConfig struct {
	// Mode is "log" (dry run) or "email".
	Mode        string     `yaml:"mode"`
	Workers     int        `yaml:"workers"`
	SMTP        SMTPConfig `yaml:"smtp"`
	CalendlyURL string     `yaml:"calendly_url"`
}

// SMTPConfig carries outbound mail settings, shared by the email sender
// and the email notification channel.
type SMTPConfig struct {
	Addr     string `yaml:"addr"`
	Host     string `yaml:"host"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NotifyConfig lists operator notification channels. Empty settings
// disable a channel.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	EmailTo         string `yaml:"email_to"`
	// Log mirrors every notification into the agent log. On by default.
	Log *bool `yaml:"log"`
}

// LogEnabled reports whether the log channel is active.
func (n NotifyConfig) LogEnabled() bool {
	return n.Log == nil || *n.Log
}

// LoadConfig builds the configuration from defaults, the optional YAML
// file at path, and environment overrides for the secrets.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          ":8080",
		JWTSecret:     "supersecretkey",
		APITimeout:    15 * time.Second,
		TokenDuration: 1 * time.Hour,
		DatabasePath:  "talentflow.db",
		DataDir:       "data",
		ProfilePath:   "data/profiles.yaml",
		CorpusPath:    "data/corpus.yaml",
		Flowise:       flowise.DefaultConfig(),
		Ollama:        ollama.DefaultConfig(),
		Sweep: SweepConfig{
			Interval:      5 * time.Minute,
			Workers:       4,
			PostingBudget: 3 * time.Minute,
			SourceTimeout: 2 * time.Minute,
			RatePerHost:   1,
		},
		Dispatch: DispatchConfig{
			Mode:    "log",
			Workers: 2,
		},
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Secrets always win from the environment.
	cfg.Addr = getEnv("TF_ADDR", cfg.Addr)
	cfg.JWTSecret = getEnv("TF_JWT_SECRET", cfg.JWTSecret)
	cfg.DatabasePath = getEnv("TF_DATABASE_PATH", cfg.DatabasePath)
	cfg.Flowise.APIKey = getEnv("TF_FLOWISE_API_KEY", cfg.Flowise.APIKey)
	cfg.Flowise.BaseURL = getEnv("TF_FLOWISE_URL", cfg.Flowise.BaseURL)
	cfg.Ollama.BaseURL = getEnv("TF_OLLAMA_URL", cfg.Ollama.BaseURL)
	cfg.Dispatch.SMTP.Password = getEnv("TF_SMTP_PASSWORD", cfg.Dispatch.SMTP.Password)
	cfg.Notify.SlackWebhookURL = getEnv("TF_SLACK_WEBHOOK_URL", cfg.Notify.SlackWebhookURL)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Dispatch.Mode {
	case "log", "email":
	default:
		return fmt.Errorf("dispatch mode %q is not one of log, email", c.Dispatch.Mode)
	}
	if c.Dispatch.Mode == "email" && c.Dispatch.SMTP.Addr == "" {
		return fmt.Errorf("dispatch mode email requires smtp addr")
	}
	for i, s := range c.Sources {
		if s.Platform == "" || s.URL == "" {
			return fmt.Errorf("source %d: platform and url are required", i)
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
