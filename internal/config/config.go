// Package config loads service settings from defaults, an optional YAML file
// and environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	PromotionLazy  = "lazy"
	PromotionEager = "eager"
)

// Config is the fully resolved service configuration.
type Config struct {
	HTTP      HTTPConfig
	Store     StoreConfig
	DB        DBConfig
	Booking   BookingConfig
	Promotion PromotionConfig
	AMQP      AMQPConfig
	Log       LogConfig
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StoreConfig struct {
	Driver string
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	ConnectAttempts int
}

// DSN builds a libpq-compatible connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type BookingConfig struct {
	ConfirmWindow time.Duration
}

type PromotionConfig struct {
	Mode string
}

// AMQPConfig selects the slot-freed event transport. An empty URL keeps
// events in process.
type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("store.driver", StoreMemory)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "conferencedb")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.connect_attempts", 5)

	v.SetDefault("booking.confirm_window", time.Hour)
	v.SetDefault("promotion.mode", PromotionLazy)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "conference.slots")
	v.SetDefault("amqp.queue", "conference.slot_freed")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load resolves the configuration. file may be empty; when set it must exist.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Port:         v.GetString("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
		Store: StoreConfig{Driver: strings.ToLower(v.GetString("store.driver"))},
		DB: DBConfig{
			Host:            v.GetString("db.host"),
			Port:            v.GetString("db.port"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			Name:            v.GetString("db.name"),
			SSLMode:         v.GetString("db.sslmode"),
			MaxConns:        v.GetInt32("db.max_conns"),
			MinConns:        v.GetInt32("db.min_conns"),
			ConnectAttempts: v.GetInt("db.connect_attempts"),
		},
		Booking:   BookingConfig{ConfirmWindow: v.GetDuration("booking.confirm_window")},
		Promotion: PromotionConfig{Mode: strings.ToLower(v.GetString("promotion.mode"))},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp.url"),
			Exchange: v.GetString("amqp.exchange"),
			Queue:    v.GetString("amqp.queue"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver: unsupported value %q", c.Store.Driver))
	}
	switch c.Promotion.Mode {
	case PromotionLazy, PromotionEager:
	default:
		errs = append(errs, fmt.Errorf("promotion.mode: unsupported value %q", c.Promotion.Mode))
	}
	if c.Booking.ConfirmWindow <= 0 {
		errs = append(errs, errors.New("booking.confirm_window must be positive"))
	}
	if c.DB.ConnectAttempts < 1 {
		errs = append(errs, errors.New("db.connect_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}
