package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/meetgrid/internal/config"
	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/persistence/memory"
	mongostore "github.com/example/meetgrid/internal/persistence/mongo"
	"github.com/example/meetgrid/internal/persistence/sqlite"
	"github.com/example/meetgrid/internal/ratelimit"
	"github.com/example/meetgrid/internal/realtime"
)

const connectTimeout = 10 * time.Second

// store bundles the meeting repository with its health probe and cleanup.
type store struct {
	meetings persistence.MeetingRepository
	ping     func(ctx context.Context) error
	close    func() error
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.WarnContext(ctx, "using in-memory store, meetings are lost on restart")
		return &store{
			meetings: memory.New(time.Now),
			ping:     func(context.Context) error { return nil },
			close:    func() error { return nil },
		}, nil

	case config.StoreSQLite:
		pool, err := openSQLite(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &store{
			meetings: sqlite.NewMeetingRepository(pool, time.Now),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil

	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		meetings := mongostore.New(client.Database(cfg.MongoDatabase), time.Now)
		if err := meetings.EnsureIndexes(connectCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.InfoContext(ctx, "connected to mongo", "database", cfg.MongoDatabase)
		return &store{
			meetings: meetings,
			ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:    func() error { return client.Disconnect(context.Background()) },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// openSQLite opens the pool and applies pending migrations.
func openSQLite(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlite.ConnectionPool, error) {
	pool, err := sqlite.NewConnectionPool(ctx, sqlite.DefaultConfig(cfg.SQLitePath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := sqlite.Migrate(ctx, pool, logger); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return pool, nil
}

// openRedis returns nil when no Redis URL is configured.
func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// newLimiter shares counters and salts through Redis when available and
// falls back to process-local state otherwise.
func newLimiter(ctx context.Context, cfg config.Config, rdb *redis.Client, logger *slog.Logger) (*ratelimit.Limiter, error) {
	if rdb != nil {
		return ratelimit.NewLimiter(ratelimit.NewRedisCounter(rdb), ratelimit.NewRedisSalt(rdb), cfg.RateRules(), time.Now), nil
	}

	secret := []byte(cfg.FingerprintSecret)
	if len(secret) == 0 {
		logger.WarnContext(ctx, "MEETGRID_FINGERPRINT_SECRET not set, using a per-process secret")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate fingerprint secret: %w", err)
		}
	}
	salt, err := ratelimit.NewDerivedSalt(secret)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewLimiter(ratelimit.NewMemoryCounter(time.Now), salt, cfg.RateRules(), time.Now), nil
}

// eventBus is the publish side used by the API plus, for the in-process bus,
// the subscribe side used by an embedded relay.
type eventBus struct {
	publisher realtime.Publisher
	local     *realtime.LocalBus
}

func newEventBus(rdb *redis.Client, logger *slog.Logger) eventBus {
	if rdb != nil {
		return eventBus{publisher: realtime.NewRedisBus(rdb, logger)}
	}
	local := realtime.NewLocalBus(realtime.DefaultBuffer, logger)
	return eventBus{publisher: local, local: local}
}

var errRelayNeedsRedis = errors.New("relay requires MEETGRID_REDIS_URL")
