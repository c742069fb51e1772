package di

import (
	"context"
	"fmt"
	"time"

	"MidgardPull/internal/domain/repository"
	"MidgardPull/internal/handler/api"
	internalrepo "MidgardPull/internal/repository"
	"MidgardPull/internal/service/midgard"
	"MidgardPull/internal/service/ratelimit"
	"MidgardPull/internal/usecase"
	"MidgardPull/pkg/cache"
	pkgch "MidgardPull/pkg/clickhouse"
	"MidgardPull/pkg/config"
	xhttp "MidgardPull/pkg/http"
	pkgkafka "MidgardPull/pkg/kafka"
	applogger "MidgardPull/pkg/logger"
	"MidgardPull/pkg/metrics"
	pgpkg "MidgardPull/pkg/postgres"
	"MidgardPull/pkg/server"
)

const initTimeout = 15 * time.Second

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvidePostgres connects to the interval store. Failing here is fatal.
func ProvidePostgres(cfg *config.Config) (*pgpkg.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pgpkg.NewClient(ctx, cfg.Database.DSN,
		pgpkg.WithPoolSize(cfg.Database.MaxConns, cfg.Database.MinConns),
		pgpkg.WithConnectTimeout(cfg.Database.ConnectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideIntervalStore creates the Postgres interval store and applies its schema.
func ProvideIntervalStore(db *pgpkg.Client, logger *applogger.Logger) (*internalrepo.PGIntervalStore, error) {
	store := internalrepo.NewPGIntervalStore(db, logger)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("interval store schema: %w", err)
	}
	return store, nil
}

// ProvideCache creates the query result cache selected by cache.type.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	switch cfg.Cache.Type {
	case "none":
		return cache.Noop{}, nil
	case "redis", "layered":
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx,
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix("midgard"),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		if cfg.Cache.Type == "layered" {
			return cache.NewLayeredCache(rc, cfg.Cache.MemorySize, cfg.Query.CacheTTL), nil
		}
		return rc, nil
	default:
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemorySize)), nil
	}
}

// ProvideMidgardClient creates the source fetcher.
func ProvideMidgardClient(cfg *config.Config, logger *applogger.Logger) *midgard.Client {
	return midgard.New(cfg.Source.BaseURL, cfg.Source.Timeout,
		midgard.WithPool(cfg.Source.Pool),
		midgard.WithInterval(cfg.Source.Interval),
		midgard.WithRateLimit(ratelimit.New(cfg.Source.RateLimit, cfg.Source.RateBurst)),
		midgard.WithLogger(logger),
	)
}

// ProvideLiveFeed creates the websocket feed, which is both a route and a mirror.
func ProvideLiveFeed(logger *applogger.Logger) *api.LiveFeed {
	return api.NewLiveFeed(logger)
}

// ProvideMirrors builds every configured mirror. The live feed is always on.
func ProvideMirrors(cfg *config.Config, live *api.LiveFeed) ([]repository.Mirror, error) {
	mirrors := []repository.Mirror{live}

	if cfg.MirrorKafka() {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithClientID(cfg.Kafka.ClientID),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		mirrors = append(mirrors, internalrepo.NewKafkaMirror(producer, cfg.Kafka.Topic))
	}

	if cfg.MirrorClickHouse() {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()

		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithMaxConnections(4, 2),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		)
		if err != nil {
			closeMirrors(mirrors)
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		m, err := internalrepo.NewClickHouseMirror(ctx, client, cfg.ClickHouse.Table)
		if err != nil {
			_ = client.Close()
			closeMirrors(mirrors)
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		mirrors = append(mirrors, m)
	}

	return mirrors, nil
}

func closeMirrors(ms []repository.Mirror) {
	for _, m := range ms {
		_ = m.Close()
	}
}

// ProvideUpsertWriter creates the upsert writer use case.
func ProvideUpsertWriter(
	store repository.IntervalStore,
	c cache.Service,
	gens *usecase.HistoryGenerations,
	mirrors []repository.Mirror,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.UpsertWriter {
	return usecase.NewUpsertWriter(store, c, gens, mirrors, m, logger)
}

// ProvideScheduler creates the ingestion scheduler from source and ingestion settings.
func ProvideScheduler(
	cfg *config.Config,
	fetcher repository.SourceFetcher,
	writer usecase.BatchWriter,
	cursors usecase.CursorSource,
	m repository.Metrics,
	logger *applogger.Logger,
) (*usecase.IngestionScheduler, error) {
	bucket, ok := config.BucketWidth(cfg.Source.Interval)
	if !ok {
		return nil, fmt.Errorf("unsupported source interval %q", cfg.Source.Interval)
	}
	return usecase.NewIngestionScheduler(fetcher, writer, cursors,
		usecase.WithBucket(bucket),
		usecase.WithBatchSize(cfg.Source.BatchSize),
		usecase.WithBackoff(cfg.Ingestion.BackoffInitial, cfg.Ingestion.BackoffMax),
		usecase.WithSchedulerLogger(logger.With(applogger.String("component", "ingestion"))),
		usecase.WithSchedulerMetrics(m),
	), nil
}

// ProvideHistoryQuery creates the query use case.
func ProvideHistoryQuery(
	cfg *config.Config,
	reader repository.IntervalReader,
	c cache.Service,
	gens *usecase.HistoryGenerations,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.HistoryQueryService {
	return usecase.NewHistoryQueryService(reader, c, gens, cfg.Query.CacheTTL, m, logger)
}

// ProvideHTTPHandler mounts the history API and the live feed on one server.
func ProvideHTTPHandler(history *api.HistoryEchoHandler, live *api.LiveFeed) xhttp.Handler {
	return xhttp.Handlers{history, live}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	db *pgpkg.Client,
	scheduler *usecase.IngestionScheduler,
	handler xhttp.Handler,
	mirrors []repository.Mirror,
	c cache.Service,
) *server.App {
	return server.New(cfg, logger, db, scheduler, handler, mirrors, c)
}
