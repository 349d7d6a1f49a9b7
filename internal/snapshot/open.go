package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundingarb/config"
)

// Open builds the configured sink, wrapped in a NATS broadcaster when a NATS URL is set.
func Open(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	var (
		sink Sink
		err  error
	)

	switch cfg.Driver {
	case "", "memory":
		sink = NewMemorySink(cfg.Keep)
	case "redis":
		sink, err = openRedis(ctx, cfg)
	case "postgres":
		sink, err = openPostgres(ctx, cfg)
	default:
		err = fmt.Errorf("unknown sink driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.NATS.URL == "" {
		log.Info().Str("driver", cfg.Driver).Int("keep", cfg.Keep).Msg("snapshot sink ready")
		return sink, nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("fundarb"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	pub := NewNATSPublisher(sink, nc, cfg.NATS.Subject)
	pub.close = nc.Close
	log.Info().Str("driver", cfg.Driver).Str("subject", cfg.NATS.Subject).Msg("snapshot sink ready, broadcasting to nats")
	return pub, nil
}

func openRedis(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return NewRedisSink(client, cfg.Redis.Key, cfg.Keep), nil
}

func openPostgres(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sink := NewPostgresSink(db, cfg.Keep)
	if err := sink.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}
