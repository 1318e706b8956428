package main

import (
	"context"
	"fmt"
	"os"

	"github.com/npezzotti/go-chatrelay/internal/broker"
	"github.com/npezzotti/go-chatrelay/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(format, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		CallerKey:    "caller",
		MessageKey:   "msg",
		LineEnding:   zapcore.DefaultLineEnding,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

func newBroker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (broker.Broker, error) {
	switch cfg.Broker {
	case config.BrokerNats:
		return broker.NewNatsBroker(broker.NatsConfig{
			Servers: cfg.NatsServers,
			Name:    "go-chatrelay",
			Stream:  cfg.NatsStream,
			Durable: cfg.NatsDurable,
		}, logger)
	case config.BrokerRedis:
		return broker.NewRedisBroker(ctx, broker.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.RedisStream,
			Group:    cfg.RedisGroup,
			Consumer: cfg.RedisConsumer,
		}, logger)
	case config.BrokerMemory:
		logger.Warn("using in-memory broker, undelivered chat events are lost on restart")
		return broker.NewMemoryBroker(logger), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}
