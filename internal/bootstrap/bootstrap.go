// Package bootstrap assembles the service components from configuration.
// Both binaries build their object graph through it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/Dan9191/budget-service/internal/config"
	"github.com/Dan9191/budget-service/internal/events"
	"github.com/Dan9191/budget-service/internal/events/kafka"
	"github.com/Dan9191/budget-service/internal/service"
	"github.com/Dan9191/budget-service/internal/storage"
	"github.com/Dan9191/budget-service/internal/storage/memory"
	"github.com/Dan9191/budget-service/internal/storage/postgres"
	"github.com/Dan9191/budget-service/internal/storage/redis"
)

// NewLogger builds the JSON logger used by every component.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

// StoreOptions customizes OpenStore.
type StoreOptions struct {
	// OnBreakerStateChange observes circuit breaker transitions.
	OnBreakerStateChange func(name string, from, to gobreaker.State)
}

// OpenStore connects the configured backend, applying migrations for
// PostgreSQL, and wraps it in a circuit breaker when enabled. The returned
// closer releases the connection.
func OpenStore(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts StoreOptions) (storage.Store, io.Closer, error) {
	var (
		store  storage.Store
		closer io.Closer = nopCloser{}
	)

	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("Using in-memory store, data is lost on restart")
		store = memory.NewStore()

	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rs := redis.NewStore(client, redis.Options{})
		if err := rs.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store, closer = rs, client

	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		store, closer = postgres.NewStore(db), db

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	log.WithField("driver", cfg.StoreDriver).Info("Store opened")

	if cfg.BreakerEnabled {
		settings := storage.DefaultBreakerSettings(cfg.StoreDriver)
		settings.OnStateChange = opts.OnBreakerStateChange
		store = storage.NewBreakerStore(store, settings, log)
	}
	return store, closer, nil
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(cfg *config.Config, log *logrus.Logger) (events.Publisher, io.Closer) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Debug("KAFKA_BROKERS not set, ledger events are disabled")
		return events.NopPublisher{}, nopCloser{}
	}
	log.WithField("brokers", cfg.KafkaBrokers).Info("Publishing ledger events to Kafka")
	p := kafka.NewPublisher(cfg.KafkaBrokers)
	return p, p
}

// LedgerConfig maps the configuration onto the ledger behaviour switches.
func LedgerConfig(cfg *config.Config) service.LedgerConfig {
	return service.LedgerConfig{DateSource: cfg.DateSource, AtomicWrites: cfg.AtomicWrites}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
