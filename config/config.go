// Package config reads the device configuration from the environment (and a .env file)
// and the facet table from a YAML file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

const (
	TransportMQTT3 = "mqtt3"
	TransportMQTT5 = "mqtt5"
)

// minBufferSize fits the shortest registration traffic with a short id.
const minBufferSize = 32

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Broker         string        `env:"MEEM_BROKER"`
	Port           int           `env:"MEEM_PORT" envDefault:"1883"`
	Root           string        `env:"MEEM_ROOT" envDefault:"meem"`
	ID             string        `env:"MEEM_ID"`   // generated and stored when empty
	Name           string        `env:"MEEM_NAME"` // human readable, stored next to the id
	FacetFile      string        `env:"MEEM_FACETS" envDefault:"facets.yaml"`
	Transport      string        `env:"MEEM_TRANSPORT" envDefault:"mqtt3"`
	BufferSize     int           `env:"MEEM_BUFFER" envDefault:"128"`
	AnnounceFacets bool          `env:"MEEM_ANNOUNCE_FACETS"`
	Discover       bool          `env:"MEEM_DISCOVER"`
	StateDB        string        `env:"MEEM_STATE_DB" envDefault:"meem.db"`
	GpioChip       string        `env:"MEEM_GPIO_CHIP"`
	HealthPort     int           `env:"MEEM_HEALTH_PORT" envDefault:"8080"`
	RetryInterval  time.Duration `env:"MEEM_RETRY_INTERVAL" envDefault:"5s"`
	LoopInterval   time.Duration `env:"MEEM_LOOP_INTERVAL" envDefault:"10ms"`
	KafkaBroker    string        `env:"MEEM_KAFKA_BROKER"` // tap disabled when empty
	KafkaPort      int           `env:"MEEM_KAFKA_PORT" envDefault:"9092"`
	KafkaTopic     string        `env:"MEEM_KAFKA_TOPIC" envDefault:"meem"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that can be checked without touching the network.
func (c *Config) Validate() error {
	if c.Broker == "" && !c.Discover {
		return fmt.Errorf("%w: no broker and discovery disabled", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	if c.Transport != TransportMQTT3 && c.Transport != TransportMQTT5 {
		return fmt.Errorf("%w: transport %q, want %s or %s", ErrInvalidConfig, c.Transport, TransportMQTT3, TransportMQTT5)
	}
	if c.BufferSize < minBufferSize {
		return fmt.Errorf("%w: buffer size %d, minimum %d", ErrInvalidConfig, c.BufferSize, minBufferSize)
	}
	if c.RetryInterval <= 0 || c.LoopInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	return nil
}

// TapEnabled reports whether facet traffic should be mirrored into kafka.
func (c *Config) TapEnabled() bool {
	return c.KafkaBroker != ""
}
