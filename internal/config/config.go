package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string         `mapstructure:"mode"`
	Port           int            `mapstructure:"port"`
	LogLevel       string         `mapstructure:"log_level"`
	AllowedOrigins []string       `mapstructure:"allowed_origins"`
	DBPath         string         `mapstructure:"db_path"`
	WS             WSConfig       `mapstructure:"ws"`
	Terminal       TerminalConfig `mapstructure:"terminal"`
	AI             AIConfig       `mapstructure:"ai"`
}

type WSConfig struct {
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	SendBuffer     int   `mapstructure:"send_buffer"`
}

type TerminalConfig struct {
	Shell       string `mapstructure:"shell"`
	LogDir      string `mapstructure:"log_dir"`
	Record      bool   `mapstructure:"record"`
	HistorySize int    `mapstructure:"history_size"`
	Rows        int    `mapstructure:"rows"`
	Cols        int    `mapstructure:"cols"`
}

type AIConfig struct {
	APIKey string   `mapstructure:"api_key"`
	Models []string `mapstructure:"models"`
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults, then applies
// RELAY_* environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port", "RELAY_PORT", "PORT")
	_ = v.BindEnv("ai.api_key", "RELAY_AI_API_KEY", "GEMINI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	switch cfg.Mode {
	case "debug", "release", "test":
	default:
		log.Warn().Str("mode", cfg.Mode).Msg("unknown mode, using release")
		cfg.Mode = "release"
	}
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	cfg.AI.Models = splitList(cfg.AI.Models)

	log.Info().Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("ai", cfg.AI.APIKey != "").Msg("config")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 5000)
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("db_path", "data/chat.db")
	v.SetDefault("ws.max_message_size", 1<<20)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("terminal.shell", "")
	v.SetDefault("terminal.log_dir", "data/terminals")
	v.SetDefault("terminal.record", false)
	v.SetDefault("terminal.history_size", 64*1024)
	v.SetDefault("terminal.rows", 24)
	v.SetDefault("terminal.cols", 80)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.models", []string{})
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RecordDir is where terminal casts are written, or empty when recording
// is off.
func (c *Config) RecordDir() string {
	if !c.Terminal.Record {
		return ""
	}
	return c.Terminal.LogDir
}
