package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/migrations"
	"github.com/anoirbs/hotel-sub000/pkg/config"
	"github.com/anoirbs/hotel-sub000/pkg/database"
	"github.com/anoirbs/hotel-sub000/pkg/kafka"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	pkgredis "github.com/anoirbs/hotel-sub000/pkg/redis"
)

// Infra holds the external connections. Any field may be nil when the
// dependency is disabled or, for Redis and Kafka, unreachable.
type Infra struct {
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Producer *kafka.Producer
}

// OpenInfra connects to the configured dependencies. PostgreSQL is required
// once enabled; Redis and Kafka degrade to disabled with a warning.
func OpenInfra(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infra, error) {
	infra := &Infra{}

	if cfg.Database.Enabled {
		db, err := database.NewPostgres(ctx, &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			EnableTracing:   cfg.OTel.Enabled,
		})
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		infra.DB = db
		log.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("max_conns", cfg.Database.MaxConns),
		)

		if cfg.Database.AutoMigrate {
			applied, err := database.Migrate(ctx, db.Pool(), migrations.FS)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
			log.Info("migrations applied", zap.Strings("applied", applied))
		}
	} else {
		log.Warn("database disabled, using in-memory repositories")
	}

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: 100 * time.Millisecond,
		})
		if err != nil {
			log.Warn("redis unavailable, idempotency and rate limiting disabled", zap.Error(err))
		} else {
			infra.Redis = client
			log.Info("redis connected", zap.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))
		}
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			RetryInterval: time.Second,
		})
		if err != nil {
			log.Warn("kafka unavailable, using no-op publisher", zap.Error(err))
		} else {
			infra.Producer = producer
			log.Info("kafka producer connected", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	}

	return infra, nil
}

// Close releases every open connection
func (i *Infra) Close() {
	if i.Producer != nil {
		i.Producer.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
