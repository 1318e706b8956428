package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServerAddr:     "localhost:8080",
		DatabaseDSN:    "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable",
		SigningSecret:  "c29tZV9zZWNyZXQ=",
		AllowedOrigins: []string{"http://localhost:3000"},
		Broker:         BrokerNats,
		NatsServers:    []string{"nats://localhost:4222"},
		RedisAddr:      "localhost:6379",
		MaxContentLen:  2000,
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHATRELAY_ADDR", ":9000")
	t.Setenv("CHATRELAY_BROKER", "redis")
	t.Setenv("CHATRELAY_ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("CHATRELAY_TOKEN_TTL", "1h")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr, "expected address from env")
	assert.Equal(t, BrokerRedis, cfg.Broker, "expected broker from env")
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, "CHAT", cfg.NatsStream, "expected default nats stream")
	assert.Equal(t, 2000, cfg.MaxContentLen, "expected default max content length")
	assert.True(t, cfg.Migrate, "expected migrations to be enabled by default")
}

func TestValidate(t *testing.T) {
	tcases := []struct {
		name   string
		modify func(c *Config)
		err    bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "empty address",
			modify: func(c *Config) { c.ServerAddr = "" },
			err:    true,
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.DatabaseDSN = "" },
			err:    true,
		},
		{
			name:   "empty signing key",
			modify: func(c *Config) { c.SigningSecret = "" },
			err:    true,
		},
		{
			name:   "invalid signing key",
			modify: func(c *Config) { c.SigningSecret = "invalid_base64" },
			err:    true,
		},
		{
			name:   "unknown broker",
			modify: func(c *Config) { c.Broker = "kafka" },
			err:    true,
		},
		{
			name:   "nats without servers",
			modify: func(c *Config) { c.NatsServers = nil },
			err:    true,
		},
		{
			name:   "redis without address",
			modify: func(c *Config) { c.Broker = BrokerRedis; c.RedisAddr = "" },
			err:    true,
		},
		{
			name:   "memory broker",
			modify: func(c *Config) { c.Broker = BrokerMemory; c.NatsServers = nil },
		},
		{
			name:   "zero content length",
			modify: func(c *Config) { c.MaxContentLen = 0 },
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}

			assert.NoError(t, err, "expected no error for config: %s", tc.name)
			assert.NotEmpty(t, cfg.SigningKey, "expected signing key to be decoded and not empty")
		})
	}
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}
