package structgen

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/turtacn/hmd/internal/config"
	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/infrastructure/database/postgres"
	"github.com/turtacn/hmd/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/turtacn/hmd/internal/infrastructure/database/redis"
	"github.com/turtacn/hmd/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/hmd/internal/infrastructure/storage/minio"
)

// Closer releases the connections opened by OpenBackends, last opened first.
type Closer struct {
	once  sync.Once
	funcs []func() error
}

func (c *Closer) add(f func() error) { c.funcs = append(c.funcs, f) }

// Close runs every release function once and joins their errors.
func (c *Closer) Close() error {
	var errs []error
	c.once.Do(func() {
		for i := len(c.funcs) - 1; i >= 0; i-- {
			if err := c.funcs[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return stderrors.Join(errs...)
}

// OpenBackends connects every backend enabled in cfg.  On error the backends
// opened so far are closed again.
func OpenBackends(ctx context.Context, cfg *config.Config, log logging.Logger) (Backends, *Closer, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	var b Backends
	closer := &Closer{}
	fail := func(err error) (Backends, *Closer, error) {
		_ = closer.Close()
		return Backends{}, nil, err
	}

	if cfg.Dedup.Backend == config.DedupRedis {
		client, err := redisinfra.NewClient(&redisinfra.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, log.Named("redis"))
		if err != nil {
			return fail(err)
		}
		closer.add(client.Close)
		b.Probes = append(b.Probes, Probe{Component: "redis", Fn: client.Ping})
		prefix, ttl := cfg.Redis.KeyPrefix, cfg.Redis.KeyTTL
		b.IdentitySets = func(runID string) generation.IdentitySet {
			return redisinfra.NewIdentitySet(client, prefix, runID, ttl)
		}
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:          cfg.Kafka.Brokers,
			RequiredAcks:     cfg.Kafka.RequiredAcks,
			BatchSize:        cfg.Kafka.BatchSize,
			BatchTimeout:     cfg.Kafka.BatchTimeout,
			CompressionCodec: cfg.Kafka.Compression,
		}, log.Named("kafka"))
		if err != nil {
			return fail(err)
		}
		closer.add(producer.Close)
		b.Stream = kafka.NewStructureSink(producer, cfg.Kafka.Topic)
	}

	if cfg.Postgres.Enabled {
		dsn := cfg.Postgres.DSN()
		if err := postgres.RunMigrations(dsn, log.Named("migrate")); err != nil {
			return fail(err)
		}
		conn, err := postgres.NewConnection(ctx, postgres.PoolConfig{
			DSN:      dsn,
			MaxConns: int32(cfg.Postgres.MaxConns),
		}, log.Named("postgres"))
		if err != nil {
			return fail(err)
		}
		closer.add(func() error { conn.Close(); return nil })
		b.Probes = append(b.Probes, Probe{Component: "postgres", Fn: conn.HealthCheck})
		b.Registry = repositories.NewStructureRepository(conn.Pool(), log.Named("postgres"))
	}

	if cfg.MinIO.Enabled {
		client, err := minio.NewMinIOClient(ctx, &minio.MinIOConfig{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKey,
			SecretAccessKey: cfg.MinIO.SecretKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Region:          cfg.MinIO.Region,
			Bucket:          cfg.MinIO.Bucket,
			ObjectPrefix:    cfg.MinIO.ObjectPrefix,
		}, log.Named("minio"))
		if err != nil {
			return fail(err)
		}
		closer.add(client.Close)
		b.Artifacts = minio.NewArtifactUploader(client, log.Named("minio"))
	}

	if cfg.Metrics.Enabled {
		m, err := NewMetrics(cfg.Metrics, log.Named("metrics"))
		if err != nil {
			return fail(err)
		}
		b.Metrics = m
	}

	return b, closer, nil
}

// Metrics adapts the Prometheus generation metrics to RunMetrics.  Export
// writes the textfile and pushes to the gateway when they are configured.
type Metrics struct {
	*prometheus.GenerationMetrics
	textfile string
	gateway  string
	job      string
}

var _ RunMetrics = (*Metrics)(nil)

// NewMetrics registers the generation metrics on a fresh registry.
func NewMetrics(cfg config.MetricsConfig, log logging.Logger) (*Metrics, error) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace: cfg.Namespace,
	}, log)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		GenerationMetrics: prometheus.NewGenerationMetrics(collector),
		textfile:          cfg.TextfilePath,
		gateway:           cfg.PushgatewayURL,
		job:               cfg.JobName,
	}, nil
}

// Export implements RunMetrics.
func (m *Metrics) Export(ctx context.Context, runID string) error {
	var errs []error
	if m.textfile != "" {
		if err := m.WriteTextfile(m.textfile); err != nil {
			errs = append(errs, err)
		}
	}
	if m.gateway != "" {
		if err := m.Push(ctx, m.gateway, m.job, runID); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
