// Package config provides YAML-based configuration loading for Smetabot.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Smetabot configuration, loaded from config.yaml.
type Config struct {
	Platform          string          `yaml:"platform"` // telegram, discord, or slack
	CatalogPath       string          `yaml:"catalog_path"`
	OutputDir         string          `yaml:"output_dir"`
	LockFile          string          `yaml:"lock_file"`
	CatalogReloadCron string          `yaml:"catalog_reload_cron"` // empty disables hot reload
	Company           CompanyConfig   `yaml:"company"`
	Telegram          TelegramConfig  `yaml:"telegram"`
	Discord           DiscordConfig   `yaml:"discord"`
	Slack             SlackConfig     `yaml:"slack"`
	Dashboard         DashboardConfig `yaml:"dashboard"`
}

// CompanyConfig identifies the business on generated proposals.
type CompanyConfig struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
	Email string `yaml:"email"`
}

// TelegramConfig holds the Telegram Bot API credentials.
type TelegramConfig struct {
	Token string `yaml:"token"`
}

// DiscordConfig holds the Discord bot credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackConfig holds the Slack Socket Mode credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	AppToken  string `yaml:"app_token"`
	ChannelID string `yaml:"channel_id"`
}

// DashboardConfig controls the embedded status dashboard.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "telegram"
	}
	if c.CatalogPath == "" {
		c.CatalogPath = "materials.yaml"
	}
	if c.OutputDir == "" {
		c.OutputDir = "smeta_files"
	}
	if c.LockFile == "" {
		c.LockFile = "smetabot.pid"
	}
	if c.Company.Name == "" {
		c.Company.Name = "Studio of Unique Projects"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8350
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "telegram":
		if c.Telegram.Token == "" {
			errs = append(errs, "telegram.token is required")
		}
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required")
		}
	case "slack":
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported (telegram, discord, slack)", c.Platform))
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port < 1 || c.Dashboard.Port > 65535) {
		errs = append(errs, fmt.Sprintf("dashboard.port %d is out of range", c.Dashboard.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
