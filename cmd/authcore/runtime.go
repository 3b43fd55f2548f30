package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/audit/sentrysink"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/pgstore"
)

func openStore(ctx context.Context, env Env) (*pgstore.Store, error) {
	if env.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return pgstore.Open(ctx, env.DatabaseURL)
}

// runtime is a fully wired engine plus the connections it owns.
type runtime struct {
	config authcore.Config
	engine *authcore.Engine
	store  *pgstore.Store
	redis  redis.UniversalClient
}

func newRuntime(ctx context.Context, env Env, logger *slog.Logger) (*runtime, error) {
	cfg, err := authcore.LoadConfig()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, env)
	if err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{env.RedisAddr},
		Password: env.RedisPassword,
		DB:       env.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		store.Close()
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	notifier, err := newNotifier(env, logger)
	if err != nil {
		store.Close()
		_ = client.Close()
		return nil, err
	}

	sinks := audit.MultiSink{
		audit.NewSlogSink(logger),
		pgstore.NewAuditSink(store.Pool(), logger),
	}
	if env.SentryDSN != "" {
		sinks = append(sinks, sentrysink.New(nil, audit.SeverityHigh))
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(store).
		WithNotifier(notifier).
		WithAuditSink(sinks).
		WithLogger(logger).
		Build()
	if err != nil {
		store.Close()
		_ = client.Close()
		return nil, err
	}

	return &runtime{config: cfg, engine: engine, store: store, redis: client}, nil
}

func newNotifier(env Env, logger *slog.Logger) (notify.Notifier, error) {
	if env.SMTPHost == "" {
		return notify.NewLogNotifier(logger), nil
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     env.SMTPHost,
		Port:     env.SMTPPort,
		Username: env.SMTPUsername,
		Password: env.SMTPPassword,
		TLS:      env.SMTPTLS,
		From:     env.SMTPFrom,
		Product:  env.ProductName,
		BaseURL:  env.BaseURL,
	}, logger)
}

func (r *runtime) Close() {
	r.engine.Close()
	_ = r.redis.Close()
	r.store.Close()
}
