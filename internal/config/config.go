package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string         `mapstructure:"mode"`
	Addr     string         `mapstructure:"addr"`
	Log      LogConfig      `mapstructure:"log"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox"`
	Registry RegistryConfig `mapstructure:"registry"`
	Router   RouterConfig   `mapstructure:"router"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Client   ClientConfig   `mapstructure:"client"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MailboxConfig struct {
	KeyPath       string        `mapstructure:"key_path"`
	KeyToken      string        `mapstructure:"key_token"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateInterval  time.Duration `mapstructure:"rate_interval"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

type RegistryConfig struct {
	MaxRooms   int `mapstructure:"max_rooms"`
	MaxMembers int `mapstructure:"max_members"`
}

type RouterConfig struct {
	EvictStale bool `mapstructure:"evict_stale"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	LogLevel       string        `mapstructure:"log_level"`
	ReceiveBackoff time.Duration `mapstructure:"receive_backoff"`
}

var (
	ErrInvalidCapacity = errors.New("capacity must be positive")
	ErrInvalidKeyToken = errors.New("mailbox.key_token must be exactly one byte")
	ErrInvalidFormat   = errors.New("log.format must be console or json")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Token returns the single byte used to derive the global channel key.
func (m MailboxConfig) Token() byte { return m.KeyToken[0] }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("addr", ":7070")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("mailbox.key_path", "/tmp")
	v.SetDefault("mailbox.key_token", "A")
	v.SetDefault("mailbox.queue_capacity", 64)
	v.SetDefault("mailbox.rate_limit", 200)
	v.SetDefault("mailbox.rate_interval", "1s")
	v.SetDefault("mailbox.write_timeout", "5s")

	v.SetDefault("registry.max_rooms", 10)
	v.SetDefault("registry.max_members", 50)

	v.SetDefault("router.evict_stale", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:4318/v1/traces")
	v.SetDefault("tracing.service_name", "relay")
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("client.server_url", "ws://localhost:7070/api/ws/mailbox")
	v.SetDefault("client.log_level", "warn")
	v.SetDefault("client.receive_backoff", "100ms")
}

// Load reads defaults, then the config file, then RELAY_* environment
// variables, then flags bound in flagMap (config key -> flag name).
// An empty path selects config/config.<CONFIG_ENV>.yaml.
func Load(path string, flags *pflag.FlagSet, flagMap map[string]string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagMap {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if explicit {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Debug().Str("module", "config").Str("file", path).Err(err).Msg("config file not loaded, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Mailbox.KeyToken) != 1 {
		return ErrInvalidKeyToken
	}
	checks := map[string]int{
		"mailbox.queue_capacity": c.Mailbox.QueueCapacity,
		"mailbox.rate_limit":     c.Mailbox.RateLimit,
		"registry.max_rooms":     c.Registry.MaxRooms,
		"registry.max_members":   c.Registry.MaxMembers,
	}
	for key, n := range checks {
		if n <= 0 {
			return fmt.Errorf("%s: %w", key, ErrInvalidCapacity)
		}
	}
	durations := map[string]time.Duration{
		"mailbox.rate_interval":  c.Mailbox.RateInterval,
		"mailbox.write_timeout":  c.Mailbox.WriteTimeout,
		"client.receive_backoff": c.Client.ReceiveBackoff,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s: %w", key, ErrInvalidDuration)
		}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return ErrInvalidFormat
	}
	return nil
}
