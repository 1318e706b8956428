package config

import (
	"encoding/base64"
	"fmt"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "CHATRELAY"

const (
	BrokerNats   = "nats"
	BrokerRedis  = "redis"
	BrokerMemory = "memory"
)

type Config struct {
	ServerAddr      string        `envconfig:"ADDR" default:"localhost:8000"`
	DatabaseDSN     string        `envconfig:"DSN" default:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	SigningSecret   string        `envconfig:"SIGNING_KEY"`
	SigningKey      []byte        `ignored:"true"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	Migrate         bool          `envconfig:"MIGRATE" default:"true"`
	TokenTTL        time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxContentLen   int           `envconfig:"MAX_CONTENT_LENGTH" default:"2000"`

	Broker string `envconfig:"BROKER" default:"nats"`

	NatsServers []string `envconfig:"NATS_SERVERS" default:"nats://localhost:4222"`
	NatsStream  string   `envconfig:"NATS_STREAM" default:"CHAT"`
	NatsDurable string   `envconfig:"NATS_DURABLE" default:"chat-gateway"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisStream   string `envconfig:"REDIS_STREAM" default:"chat.exchange"`
	RedisGroup    string `envconfig:"REDIS_GROUP" default:"chat-gateway"`
	RedisConsumer string `envconfig:"REDIS_CONSUMER" default:"gateway-1"`
}

// FromEnv loads the configuration from CHATRELAY_* environment variables,
// applying defaults for anything unset. The result is not validated so that
// command-line flags can still override it.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	return &cfg, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}
	if !slices.Contains([]string{BrokerNats, BrokerRedis, BrokerMemory}, c.Broker) {
		return fmt.Errorf("unknown broker %q", c.Broker)
	}
	if c.Broker == BrokerNats && len(c.NatsServers) == 0 {
		return fmt.Errorf("nats servers cannot be empty")
	}
	if c.Broker == BrokerRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if c.MaxContentLen <= 0 {
		return fmt.Errorf("max content length must be positive")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	return nil
}
