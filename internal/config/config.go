// Package config loads the indexer YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
	NATS       NATSConfig       `yaml:"nats"`
	RPC        RPCConfig        `yaml:"rpc"`
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Contracts  ContractsConfig  `yaml:"contracts"`
	Blacklist  BlacklistConfig  `yaml:"blacklist"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory|postgres
	PostgresDSN string `yaml:"postgres_dsn"`
}

type NATSConfig struct {
	URL          string        `yaml:"url"`
	Stream       string        `yaml:"stream"`
	Subjects     []string      `yaml:"subjects"`
	Durable      string        `yaml:"durable"`
	AckWait      time.Duration `yaml:"ack_wait"`
	WatchStream  string        `yaml:"watch_stream"`
	WatchSubject string        `yaml:"watch_subject"`
}

type RPCConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	WSEndpoint string        `yaml:"ws_endpoint"` // optional, enables chain head tracking
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"` // 0 keeps entries forever
}

type ClickHouseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ContractsConfig names the protocol contracts the decoder watches.
type ContractsConfig struct {
	ProtocolToken  string `yaml:"protocol_token"`
	TokenManager   string `yaml:"token_manager"`
	BondingCurve   string `yaml:"bonding_curve"`
	Auction        string `yaml:"auction"`
	VestingManager string `yaml:"vesting_manager"`
}

// BlacklistConfig lists intents that are never staged.
// Nil slices fall back to the built-in blacklist.
type BlacklistConfig struct {
	Subjects []string `yaml:"subjects"`
	Auctions []string `yaml:"auctions"`
}

// Default returns a configuration for a local memory-backed run.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Store:   StoreConfig{Driver: DriverMemory},
		NATS: NATSConfig{
			URL:          "nats://127.0.0.1:4222",
			Stream:       "MOXIE_EVENTS",
			Subjects:     []string{"moxie.events.>"},
			Durable:      "moxie-indexer",
			AckWait:      30 * time.Second,
			WatchStream:  "MOXIE_WATCH",
			WatchSubject: "moxie.watch",
		},
		RPC: RPCConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Redis: RedisConfig{
			Prefix: "moxie:metadata:",
		},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads path over Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err = yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent field.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, postgres", c.Store.Driver))
	}

	if c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required"))
	}
	if c.NATS.Stream == "" {
		errs = append(errs, errors.New("nats.stream is required"))
	}
	if len(c.NATS.Subjects) == 0 {
		errs = append(errs, errors.New("nats.subjects is required"))
	}
	if c.NATS.Durable == "" {
		errs = append(errs, errors.New("nats.durable is required"))
	}
	if c.ClickHouse.Enabled && c.ClickHouse.DSN == "" {
		errs = append(errs, errors.New("clickhouse.dsn is required when clickhouse is enabled"))
	}
	if c.Contracts.ProtocolToken == "" {
		errs = append(errs, errors.New("contracts.protocol_token is required"))
	}

	return errors.Join(errs...)
}
