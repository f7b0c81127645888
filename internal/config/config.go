package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/couchcryptid/forecast-etl-service/internal/domain"
)

// Config holds all service settings, loaded from a YAML file with
// FORECAST_* environment overrides.
type Config struct {
	General  GeneralConfig  `mapstructure:"general"`
	Database DatabaseConfig `mapstructure:"database"`
	Provider ProviderConfig `mapstructure:"provider"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

type GeneralConfig struct {
	Debug           bool          `mapstructure:"debug"`
	Cron            string        `mapstructure:"cron"`
	WriteHistory    bool          `mapstructure:"write_history"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=json text"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig points at an InfluxDB 1.x server.
type DatabaseConfig struct {
	Host     string        `mapstructure:"host" validate:"required"`
	Database string        `mapstructure:"database" validate:"required"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ProviderConfig struct {
	Key          string           `mapstructure:"key"`
	BaseURL      string           `mapstructure:"base_url" validate:"required,url"`
	Units        string           `mapstructure:"units"`
	Language     string           `mapstructure:"language"`
	Exclude      []string         `mapstructure:"exclude"`
	ExtendHourly bool             `mapstructure:"extend_hourly"`
	Timeout      time.Duration    `mapstructure:"timeout"`
	Locations    []LocationConfig `mapstructure:"locations" validate:"dive"`
}

type LocationConfig struct {
	Name      string  `mapstructure:"name" validate:"required"`
	Latitude  float64 `mapstructure:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `mapstructure:"longitude" validate:"min=-180,max=180"`
}

// KafkaConfig enables mirroring every written point to a Kafka topic.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

// MQTTConfig enables mirroring every written point to an MQTT broker.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker" validate:"required_if=Enabled true"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// EnvPrefix is prepended to every environment override, e.g. FORECAST_PROVIDER_KEY.
const EnvPrefix = "FORECAST"

var validate = validator.New()

// Load reads the config file named by CONFIG_FILE (or the first config.yaml
// found on the search path), applies environment overrides and defaults, and
// validates the result. A missing provider key is an error.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/forecast-etl")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.General.LogLevel = strings.ToLower(cfg.General.LogLevel)
	cfg.General.LogFormat = strings.ToLower(cfg.General.LogFormat)
	cfg.General.Cron = strings.TrimSpace(cfg.General.Cron)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.cron", "")
	v.SetDefault("general.write_history", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "json")
	v.SetDefault("general.http_addr", "")
	v.SetDefault("general.shutdown_timeout", "10s")

	v.SetDefault("database.host", "http://localhost:8086")
	v.SetDefault("database.database", "weather")
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.timeout", "10s")

	v.SetDefault("provider.key", "")
	v.SetDefault("provider.base_url", "https://api.darksky.net/forecast")
	v.SetDefault("provider.units", "auto")
	v.SetDefault("provider.language", "en")
	v.SetDefault("provider.exclude", []string{"minutely", "currently", "alerts", "flags"})
	v.SetDefault("provider.extend_hourly", true)
	v.SetDefault("provider.timeout", "10s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "forecast-points")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "forecast-etl")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "forecast")
}

func (c *Config) validate() error {
	if c.Provider.Key == "" {
		return errors.New("provider.key is required")
	}
	if c.General.ShutdownTimeout <= 0 {
		return errors.New("invalid general.shutdown_timeout")
	}
	if c.Database.Timeout <= 0 {
		return errors.New("invalid database.timeout")
	}
	if c.Provider.Timeout <= 0 {
		return errors.New("invalid provider.timeout")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.enabled is true but kafka.brokers is empty")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Locations returns the configured locations as domain values.
func (c *Config) Locations() []domain.Location {
	locs := make([]domain.Location, 0, len(c.Provider.Locations))
	for _, l := range c.Provider.Locations {
		locs = append(locs, domain.Location{
			Name:      l.Name,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
		})
	}
	return locs
}

// FetchOptions returns the provider request options.
func (c *Config) FetchOptions() domain.FetchOptions {
	return domain.FetchOptions{
		Exclude:      c.Provider.Exclude,
		Units:        c.Provider.Units,
		Language:     c.Provider.Language,
		ExtendHourly: c.Provider.ExtendHourly,
	}
}
