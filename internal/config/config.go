// Package config loads runtime configuration from environment variables and
// an optional YAML config file.
//
// Every key binds to an env var with the SPACENOTE_ prefix, dashes and dots
// mapped to underscores: SPACENOTE_DATABASE_PATH, SPACENOTE_SITE_URL,
// SPACENOTE_TELEGRAM_BOT_TOKEN and so on. A config file named
// spacenote.yaml is read from the working directory or the path in
// SPACENOTE_CONFIG; env vars win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	DatabasePath    string `mapstructure:"database_path"`
	AttachmentsPath string `mapstructure:"attachments_path"`
	ImagesPath      string `mapstructure:"images_path"`

	SiteURL     string   `mapstructure:"site_url"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	TelegramBotToken string `mapstructure:"telegram_bot_token"`

	MaxUploadSize int64 `mapstructure:"max_upload_size"`
	ImageWorkers  int   `mapstructure:"image_workers"`

	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`

	Debug bool `mapstructure:"debug"`
}

// Addr returns the host:port pair the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load resolves the configuration from defaults, the optional config file
// and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPACENOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("SPACENOTE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("spacenote")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3100)
	v.SetDefault("database_path", "spacenote.db")
	v.SetDefault("attachments_path", "data/attachments")
	v.SetDefault("images_path", "data/images")
	v.SetDefault("site_url", "http://localhost:3100")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("max_upload_size", int64(500*1024*1024))
	v.SetDefault("image_workers", 4)
	v.SetDefault("shutdown_grace", 10*time.Second)
	v.SetDefault("debug", false)
}
