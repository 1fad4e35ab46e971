package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TICKETBOT"

const (
	DuplicateCheckName  = "name"
	DuplicateCheckOwner = "owner"
)

const (
	DriverMemory  = "memory"
	DriverSQLite  = "sqlite"
	DriverMongoDB = "mongodb"
	DriverRedis   = "redis"
)

type Config struct {
	Discord  DiscordConfig  `mapstructure:"discord"`
	Tickets  TicketsConfig  `mapstructure:"tickets"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Events   EventsConfig   `mapstructure:"events"`
	Lang     LangConfig     `mapstructure:"lang"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
	LogLevel string         `mapstructure:"log_level"`
}

type DiscordConfig struct {
	Token   string `mapstructure:"token"`
	GuildID string `mapstructure:"guild_id"`
}

type TicketsConfig struct {
	StaffRole       string        `mapstructure:"staff_role"`
	DiscordCategory string        `mapstructure:"category"`
	LogChannel      string        `mapstructure:"log_channel"`
	PanelChannel    string        `mapstructure:"panel_channel"`
	TranscriptDir   string        `mapstructure:"transcript_dir"`
	TranscriptLimit int           `mapstructure:"transcript_limit"`
	DeleteDelay     time.Duration `mapstructure:"delete_delay"`
	DuplicateCheck  string        `mapstructure:"duplicate_check"`
	Timezone        string        `mapstructure:"timezone"`
	TimestampLayout string        `mapstructure:"timestamp_layout"`
}

// Location resolves Timezone. "Local" and "" both mean the host zone.
func (t TicketsConfig) Location() (*time.Location, error) {
	if t.Timezone == "" || t.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(t.Timezone)
}

type StorageConfig struct {
	Driver  string        `mapstructure:"driver"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type EventsConfig struct {
	AMQP AMQPConfig `mapstructure:"amqp"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type LangConfig struct {
	Path   string `mapstructure:"path"`
	Active string `mapstructure:"active"`
}

type ShutdownConfig struct {
	FlushDeletions bool          `mapstructure:"flush_deletions"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")

	v.SetDefault("tickets.staff_role", "")
	v.SetDefault("tickets.category", "")
	v.SetDefault("tickets.log_channel", "")
	v.SetDefault("tickets.panel_channel", "")
	v.SetDefault("tickets.transcript_dir", "./transcripts")
	v.SetDefault("tickets.transcript_limit", 100)
	v.SetDefault("tickets.delete_delay", 5*time.Second)
	v.SetDefault("tickets.duplicate_check", DuplicateCheckName)
	v.SetDefault("tickets.timezone", "Local")
	v.SetDefault("tickets.timestamp_layout", "2006-01-02 15:04:05")

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.sqlite.path", "data/tickets.db")
	v.SetDefault("storage.mongodb.uri", "")
	v.SetDefault("storage.mongodb.database", "ticketbot")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "ticket:")

	v.SetDefault("events.amqp.url", "")
	v.SetDefault("events.amqp.exchange", "tickets")

	v.SetDefault("lang.path", "")
	v.SetDefault("lang.active", "en")

	v.SetDefault("shutdown.flush_deletions", true)
	v.SetDefault("shutdown.timeout", 10*time.Second)

	v.SetDefault("log_level", "INFO")
}

// LoadConfig reads defaults, then the optional file at path (JSON or YAML),
// then TICKETBOT_* environment variables. BOT_TOKEN is accepted for the token.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("discord.token", EnvPrefix+"_DISCORD_TOKEN", "BOT_TOKEN"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Tickets.DuplicateCheck {
	case DuplicateCheckName, DuplicateCheckOwner:
	default:
		errs = append(errs, fmt.Errorf("tickets.duplicate_check: unsupported value %q (use %q or %q)",
			c.Tickets.DuplicateCheck, DuplicateCheckName, DuplicateCheckOwner))
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverMongoDB, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported value %q", c.Storage.Driver))
	}

	if _, err := c.Tickets.Location(); err != nil {
		errs = append(errs, fmt.Errorf("tickets.timezone: %w", err))
	}
	if c.Tickets.TranscriptLimit <= 0 || c.Tickets.TranscriptLimit > 100 {
		errs = append(errs, fmt.Errorf("tickets.transcript_limit: must be between 1 and 100, got %d", c.Tickets.TranscriptLimit))
	}
	if c.Tickets.DeleteDelay < 0 {
		errs = append(errs, errors.New("tickets.delete_delay: must not be negative"))
	}
	return errors.Join(errs...)
}
