package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/fjod/go_cart/storefront/internal/chat"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendPebble = "pebble"
	BackendMongo  = "mongo"
)

type Config struct {
	HTTPPort        string
	LogLevel        string
	Env             string
	CartBackend     string
	RedisAddr       string
	RedisPassword   string
	CartTTL         time.Duration
	CartIdleTimeout time.Duration
	PebbleDir       string
	MongoURI        string
	MongoDBName     string
	MongoMaxPool    uint64
	MongoMinPool    uint64
	CatalogDBPath   string
	KafkaBrokers    []string
	WhatsAppPhone   string
	WhatsAppBaseURL string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Flags returns the command-line flags, each also readable from its env var.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "http-port", Value: "8080", Sources: cli.EnvVars("HTTP_PORT")},
		&cli.StringFlag{Name: "log-level", Value: "info", Sources: cli.EnvVars("LOG_LEVEL")},
		&cli.StringFlag{Name: "env", Value: "prod", Sources: cli.EnvVars("APP_ENV")},
		&cli.StringFlag{
			Name:    "cart-backend",
			Value:   BackendMemory,
			Usage:   "where carts are mirrored: memory, redis, pebble or mongo",
			Sources: cli.EnvVars("CART_BACKEND"),
		},
		&cli.StringFlag{Name: "redis-addr", Value: "localhost:6379", Sources: cli.EnvVars("REDIS_ADDR")},
		&cli.StringFlag{Name: "redis-password", Sources: cli.EnvVars("REDIS_PASSWORD")},
		&cli.DurationFlag{
			Name:    "cart-ttl",
			Usage:   "expiry of mirrored carts in redis, 0 keeps them forever",
			Sources: cli.EnvVars("CART_TTL"),
		},
		&cli.DurationFlag{
			Name:    "cart-idle-timeout",
			Value:   30 * time.Minute,
			Usage:   "unused carts are dropped from memory after this long and reload from the backend",
			Sources: cli.EnvVars("CART_IDLE_TIMEOUT"),
		},
		&cli.StringFlag{Name: "pebble-dir", Value: "./data/carts", Sources: cli.EnvVars("PEBBLE_DIR")},
		&cli.StringFlag{Name: "mongo-uri", Value: "mongodb://localhost:27017", Sources: cli.EnvVars("MONGO_URI")},
		&cli.StringFlag{Name: "mongo-db", Value: "storefront", Sources: cli.EnvVars("MONGO_DB_NAME")},
		&cli.UintFlag{Name: "mongo-max-pool-size", Value: 100, Sources: cli.EnvVars("MONGO_MAX_POOL_SIZE")},
		&cli.UintFlag{Name: "mongo-min-pool-size", Value: 10, Sources: cli.EnvVars("MONGO_MIN_POOL_SIZE")},
		&cli.StringFlag{Name: "catalog-db", Value: "./data/catalog.db", Sources: cli.EnvVars("CATALOG_DB_PATH")},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "enables the add-item consumer and order handoff publishing",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{Name: "whatsapp-phone", Value: chat.DefaultRecipient, Sources: cli.EnvVars("WHATSAPP_PHONE")},
		&cli.StringFlag{Name: "whatsapp-base-url", Value: chat.DefaultBaseURL, Sources: cli.EnvVars("WHATSAPP_BASE_URL")},
		&cli.DurationFlag{Name: "request-timeout", Value: 30 * time.Second, Sources: cli.EnvVars("REQUEST_TIMEOUT")},
		&cli.DurationFlag{Name: "shutdown-timeout", Value: 10 * time.Second, Sources: cli.EnvVars("SHUTDOWN_TIMEOUT")},
	}
}

func FromCommand(cmd *cli.Command) (*Config, error) {
	cfg := &Config{
		HTTPPort:        cmd.String("http-port"),
		LogLevel:        cmd.String("log-level"),
		Env:             cmd.String("env"),
		CartBackend:     cmd.String("cart-backend"),
		RedisAddr:       cmd.String("redis-addr"),
		RedisPassword:   cmd.String("redis-password"),
		CartTTL:         cmd.Duration("cart-ttl"),
		CartIdleTimeout: cmd.Duration("cart-idle-timeout"),
		PebbleDir:       cmd.String("pebble-dir"),
		MongoURI:        cmd.String("mongo-uri"),
		MongoDBName:     cmd.String("mongo-db"),
		MongoMaxPool:    cmd.Uint("mongo-max-pool-size"),
		MongoMinPool:    cmd.Uint("mongo-min-pool-size"),
		CatalogDBPath:   cmd.String("catalog-db"),
		KafkaBrokers:    cmd.StringSlice("kafka-brokers"),
		WhatsAppPhone:   cmd.String("whatsapp-phone"),
		WhatsAppBaseURL: cmd.String("whatsapp-base-url"),
		RequestTimeout:  cmd.Duration("request-timeout"),
		ShutdownTimeout: cmd.Duration("shutdown-timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.CartBackend {
	case BackendMemory, BackendRedis, BackendPebble, BackendMongo:
	default:
		return fmt.Errorf("unknown cart backend %q", c.CartBackend)
	}
	if c.HTTPPort == "" {
		return errors.New("http port is required")
	}
	if c.WhatsAppPhone == "" {
		return errors.New("whatsapp phone is required")
	}
	if c.CartTTL < 0 {
		return errors.New("cart ttl must not be negative")
	}
	if c.CartIdleTimeout < 0 {
		return errors.New("cart idle timeout must not be negative")
	}
	if c.CartTTL > 0 && c.CartIdleTimeout >= c.CartTTL {
		return errors.New("cart idle timeout must be shorter than the cart ttl")
	}
	if c.MongoMaxPool > 0 && c.MongoMinPool > c.MongoMaxPool {
		return fmt.Errorf("mongo min pool size %d exceeds max %d", c.MongoMinPool, c.MongoMaxPool)
	}
	return nil
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
