// Package config loads and validates service configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables before they are merged
// over file values. Double underscore separates nesting levels so keys that
// themselves contain underscores stay addressable,
// e.g. HERALD_MOODLE__PASSWORD -> moodle.password,
// HERALD_DISCORD__WEBHOOK_URL -> discord.webhook_url.
const envPrefix = "HERALD_"

// Config is the root configuration.
type Config struct {
	Moodle     MoodleConfig     `koanf:"moodle" validate:"required"`
	Discord    DiscordConfig    `koanf:"discord"`
	Pushbullet PushbulletConfig `koanf:"pushbullet"`
	Summary    SummaryConfig    `koanf:"summary"`
	Dispatch   DispatchConfig   `koanf:"dispatch"`
	Poll       PollConfig       `koanf:"poll"`
	History    HistoryConfig    `koanf:"history"`
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
}

// MoodleConfig holds the credentials and endpoint of the Moodle instance.
// All three keys are required; polling must not start without them.
type MoodleConfig struct {
	URL       string  `koanf:"url" validate:"required,url"`
	Username  string  `koanf:"username" validate:"required"`
	Password  string  `koanf:"password" validate:"required"`
	RateLimit float64 `koanf:"rate_limit"`
}

type DiscordConfig struct {
	Enabled      bool   `koanf:"enabled"`
	WebhookURL   string `koanf:"webhook_url" validate:"required_if=Enabled true"`
	BotName      string `koanf:"bot_name"`
	ThumbnailURL string `koanf:"thumbnail_url"`
}

type PushbulletConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key" validate:"required_if=Enabled true"`
}

type SummaryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	APIKey       string `koanf:"api_key" validate:"required_if=Enabled true"`
	Model        string `koanf:"model"`
	SystemPrompt string `koanf:"system_prompt"`
	MaxTokens    int    `koanf:"max_tokens"`
}

// DispatchConfig carries the placeholder identity used when a notification
// has no sender or the sender cannot be resolved.
type DispatchConfig struct {
	DefaultSender SenderConfig `koanf:"default_sender"`
}

type SenderConfig struct {
	FullName        string `koanf:"full_name"`
	ProfileImageURL string `koanf:"profile_image_url"`
}

type PollConfig struct {
	Interval       time.Duration `koanf:"interval"`
	RetryBase      time.Duration `koanf:"retry_base"`
	RetryIncrement time.Duration `koanf:"retry_increment"`
}

type HistoryConfig struct {
	Enabled         bool          `koanf:"enabled"`
	DatabaseURL     string        `koanf:"database_url" validate:"required_if=Enabled true"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=text json"`
}

// Default returns the configuration defaults applied before file and env
// values are merged in.
func Default() Config {
	return Config{
		Moodle: MoodleConfig{
			RateLimit: 1,
		},
		Discord: DiscordConfig{
			BotName: "Moodle Herald",
		},
		Summary: SummaryConfig{
			Model:        "gpt-4o-mini",
			SystemPrompt: "Summarize the following Moodle notification in two sentences.",
			MaxTokens:    200,
		},
		Dispatch: DispatchConfig{
			DefaultSender: SenderConfig{
				FullName:        "Moodle Herald",
				ProfileImageURL: "https://avatars.githubusercontent.com/u/68477970",
			},
		},
		Poll: PollConfig{
			Interval:       60 * time.Second,
			RetryBase:      60 * time.Second,
			RetryIncrement: 2 * time.Second,
		},
		History: HistoryConfig{
			MaxOpenConns:    4,
			ConnectTimeout:  10 * time.Second,
			ConnectAttempts: 5,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the YAML file at path, applies HERALD_*
// environment overrides and validates the result. A missing required key is
// a fatal error for the caller: the process must not start polling.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
