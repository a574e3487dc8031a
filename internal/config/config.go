package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Reddit   RedditConfig   `yaml:"reddit"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures scrape and analysis intervals for daemon mode.
type ScheduleConfig struct {
	ScrapeInterval  string `yaml:"scrape_interval"`
	AnalyzeInterval string `yaml:"analyze_interval"`
}

// ParseScrapeInterval returns the scrape interval as time.Duration.
func (s ScheduleConfig) ParseScrapeInterval() time.Duration {
	d, err := time.ParseDuration(s.ScrapeInterval)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// ParseAnalyzeInterval returns the analysis interval as time.Duration.
func (s ScheduleConfig) ParseAnalyzeInterval() time.Duration {
	d, err := time.ParseDuration(s.AnalyzeInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// RedditConfig for the Reddit feed walker. Credentials have no defaults;
// they come from the file, a .env file, or the environment.
type RedditConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	UserAgent    string   `yaml:"user_agent"`
	Subreddits   []string `yaml:"subreddits"`
	Tickers      []string `yaml:"tickers"`
	MinAgeDays   float64  `yaml:"min_age_days"`
	MaxAgeDays   float64  `yaml:"max_age_days"`
	ChannelDelay string   `yaml:"channel_delay"`
}

// ParseChannelDelay returns the pause between subreddit walks.
func (r RedditConfig) ParseChannelDelay() time.Duration {
	d, err := time.ParseDuration(r.ChannelDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// AnalysisConfig configures recommendation thresholds.
type AnalysisConfig struct {
	BuyThreshold  float64 `yaml:"buy_threshold"`
	SellThreshold float64 `yaml:"sell_threshold"`
}

// AlertsConfig configures signal alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./tickermood.db"},
		Schedule: ScheduleConfig{
			ScrapeInterval:  "30m",
			AnalyzeInterval: "1h",
		},
		Reddit: RedditConfig{
			Subreddits:   []string{"WallStreetBets"},
			Tickers:      []string{"AAPL", "TSLA", "GOOG"},
			MinAgeDays:   1,
			MaxAgeDays:   3,
			ChannelDelay: "2s",
		},
		Analysis: AnalysisConfig{
			BuyThreshold:  0.7,
			SellThreshold: 0.3,
		},
		Alerts: AlertsConfig{},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
// Unmarshaling over Default() merges the file key by key: nested sections
// keep defaulted fields the file omits, lists replace wholesale.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TICKERMOOD_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Reddit.ClientSecret = v
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		cfg.Reddit.UserAgent = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
