package di

import (
	"context"
	"fmt"
	"time"

	"CardSignals/internal/domain/repository"
	domsvc "CardSignals/internal/domain/service"
	"CardSignals/internal/handler/api"
	internalrepo "CardSignals/internal/repository"
	svcmetrics "CardSignals/internal/service/metrics"
	"CardSignals/internal/service/ratelimit"
	"CardSignals/internal/service/stream"
	"CardSignals/internal/services/analytics"
	"CardSignals/internal/usecase"
	"CardSignals/pkg/cache"
	pkgch "CardSignals/pkg/clickhouse"
	"CardSignals/pkg/config"
	xhttp "CardSignals/pkg/http"
	pkgkafka "CardSignals/pkg/kafka"
	applogger "CardSignals/pkg/logger"
	"CardSignals/pkg/metrics"
	"CardSignals/pkg/postgres"
	"CardSignals/pkg/queue"
	"CardSignals/pkg/resilience"
	"CardSignals/pkg/scheduler"
	"CardSignals/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 10 * time.Second

// ProvideLogger builds the root logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder and registers the API collectors.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideStore opens Postgres when a DSN is configured and falls back to the
// in-memory store otherwise.
func ProvideStore(cfg *config.Config, l *applogger.Logger) (repository.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		l.Warn("postgres dsn empty, using in-memory store")
		return internalrepo.NewMemoryStore(), func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	store := internalrepo.NewPGStore(pool)
	store.SetLogger(l)
	return store, store.Close, nil
}

// ProvideHistory opens the ClickHouse archive and applies its schema. It
// returns a nil store when the archive is disabled.
func ProvideHistory(cfg *config.Config, l *applogger.Logger) (repository.HistoryStore, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.ArchiveSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	archive := internalrepo.NewCHArchive(client.DB())
	archive.SetLogger(l)
	return archive, func() { _ = archive.Close() }, nil
}

// ProvideFeatureStore tees snapshot and signal writes into the archive when one is configured.
func ProvideFeatureStore(store repository.Store, history repository.HistoryStore, l *applogger.Logger) repository.FeatureStore {
	if history == nil {
		return store
	}
	return internalrepo.NewArchivingStore(store, history, l)
}

// ProvideRedis connects when redis is enabled; nil otherwise.
func ProvideRedis(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	client, err := cache.NewRedisClient(ctx,
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 5*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.KafkaEnabled() {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideExecutor guards store calls made by the batch pipeline.
func ProvideExecutor(cfg *config.Config, l *applogger.Logger) *resilience.Executor {
	io := cfg.Pipeline.IO
	return resilience.New(
		resilience.WithName("store"),
		resilience.WithTimeout(io.Timeout),
		resilience.WithRetries(io.Retries, io.BackoffBase, io.BackoffMax),
		resilience.WithBreaker(io.BreakerFailures, io.BreakerTimeout),
		resilience.WithStateChange(func(name, from, to string) {
			l.Warn("circuit breaker state change",
				applogger.String("breaker", name), applogger.String("from", from), applogger.String("to", to))
		}),
	)
}

func ProvideAggregator(fs repository.FeatureStore, exec *resilience.Executor, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.FeatureAggregator {
	return usecase.NewFeatureAggregator(fs,
		usecase.WithAggregatorWorkers(cfg.Pipeline.Workers),
		usecase.WithAggregatorExecutor(exec),
		usecase.WithAggregatorMetrics(m),
		usecase.WithAggregatorLogger(l),
	)
}

func ProvideHub(l *applogger.Logger) (*stream.Hub, func()) {
	hub := stream.NewHub(l)
	return hub, func() { _ = hub.Close() }
}

// ProvideSignalPublisher fans alerts out to the backends named in alerts.backends.
func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer, rdb *redis.Client, hub *stream.Hub, l *applogger.Logger) repository.SignalPublisher {
	var pubs []repository.SignalPublisher
	if cfg.HasAlertBackend("kafka") && producer != nil {
		pubs = append(pubs, internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topics.Signals))
	}
	if cfg.HasAlertBackend("redis") && rdb != nil {
		pubs = append(pubs, internalrepo.NewRedisDealPublisher(rdb, cfg.Alerts.RedisChannel))
	}
	if cfg.HasAlertBackend("websocket") {
		pubs = append(pubs, hub)
	}
	return internalrepo.NewMultiPublisher(l, pubs...)
}

func ProvideAlertDispatcher(store repository.Store, pub repository.SignalPublisher, cfg *config.Config, l *applogger.Logger) *usecase.AlertDispatcher {
	return usecase.NewAlertDispatcher(store, pub, cfg.Server.ProofBaseURL, l)
}

func ProvideEdgeScorer(cfg *config.Config) *analytics.EdgeScorer {
	w, g := cfg.Scoring.Weights, cfg.Scoring.Guardrails
	return analytics.NewEdgeScorer(
		analytics.Weights{Edge: w.Edge, Comps: w.Comps, Volatility: w.Volatility, Freshness: w.Freshness},
		analytics.Guardrails{
			MinComps:        g.MinComps,
			MaxFreshDays:    g.MaxFreshDays,
			MaxVolatilityBp: g.MaxVolatilityBp,
			MinPriceCents:   g.MinPriceCents,
		},
	)
}

func ProvideScorer(
	fs repository.FeatureStore,
	edge *analytics.EdgeScorer,
	alerts *usecase.AlertDispatcher,
	exec *resilience.Executor,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.SignalScorer {
	return usecase.NewSignalScorer(fs, edge,
		usecase.WithScorerWindows(cfg.Scoring.Windows),
		usecase.WithScorerNotifier(alerts),
		usecase.WithScorerWorkers(cfg.Pipeline.Workers),
		usecase.WithScorerExecutor(exec),
		usecase.WithScorerMetrics(m),
		usecase.WithScorerLogger(l),
	)
}

func ProvidePipeline(agg *usecase.FeatureAggregator, scorer *usecase.SignalScorer, store repository.Store, cfg *config.Config, l *applogger.Logger) *usecase.Pipeline {
	return usecase.NewPipeline(agg, scorer, store, usecase.PipelineConfig{
		LockKey:      cfg.Pipeline.LockKey,
		TouchedHours: cfg.Pipeline.TouchedHours,
		ListingLimit: cfg.Pipeline.ListingLimit,
		Timeout:      cfg.Pipeline.RunTimeout,
	}, l)
}

// ProvideJobQueue builds the redis job queue with the pipeline jobs
// registered, or nil when the queue is disabled.
func ProvideJobQueue(cfg *config.Config, rdb *redis.Client, p *usecase.Pipeline, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rdb == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:     cfg.Queue.Workers,
		RetryLimit:  cfg.Queue.MaxRetries,
		RetryDelay:  cfg.Queue.RetryDelay,
		PollTimeout: cfg.Queue.PollTimeout,
	}, rdb, queue.WithKeyPrefix(cfg.Redis.Prefix+":"+cfg.Queue.Name))
	q.Register(usecase.NewFeaturizeJob(p, l), usecase.NewScoreJob(p, l))
	return q
}

func ProvideJobService(p *usecase.Pipeline, q *queue.RedisQueue) *usecase.JobService {
	if q == nil {
		return usecase.NewJobService(p, nil)
	}
	return usecase.NewJobService(p, q)
}

// ProvideCache layers a small in-process cache over redis, or uses memory alone.
func ProvideCache(cfg *config.Config, rdb *redis.Client) (cache.Service, func()) {
	var c cache.Service
	if rdb != nil {
		c = cache.NewLayeredCache(cache.NewRedisCache(rdb, cfg.Redis.Prefix+":fv"), 1000, 30*time.Second)
	} else {
		c = cache.NewMemoryCache(cache.WithMemoryMaxSize(10000), cache.WithMemoryCleanup(time.Minute))
	}
	return c, func() { _ = c.Close() }
}

func ProvideFairValue(store repository.Store, c cache.Service, cfg *config.Config, l *applogger.Logger) *usecase.FairValueService {
	fv := cfg.FairValue
	sources := make([]domsvc.QuoteSource, 0, len(fv.Sources))
	for _, s := range fv.Sources {
		sources = append(sources, analytics.NewHTTPQuoteSource(s.Name, s.URL, fv.QuoteTimeout))
	}
	rec := analytics.NewReconciler(
		analytics.WithThresholds(fv.LowerThreshold, fv.UpperThreshold),
		analytics.WithConfidenceModel(fv.PerQuoteConfidence, fv.ConfidenceCap),
	)
	return usecase.NewFairValueService(store, store, rec,
		usecase.WithQuoteSources(sources...),
		usecase.WithQualifyRule(analytics.QualifyRule{MinDiscountPct: fv.MinDiscountPct, MinConfidence: fv.MinConfidence}),
		usecase.WithFairValueCache(c, fv.CacheTTL),
		usecase.WithCompWindow(fv.CompLookbackDays, fv.CompLimit),
		usecase.WithQuoteTimeout(fv.QuoteTimeout),
		usecase.WithFairValueLogger(l),
	)
}

func ProvideSignalsQuery(store repository.Store, history repository.HistoryStore, cfg *config.Config) *usecase.SignalsQueryService {
	return usecase.NewSignalsQueryService(usecase.SignalsQueryDeps{
		Signals:  store,
		Cards:    store,
		Listings: store,
		Snaps:    store,
		Comps:    store,
		History:  history,
	}, cfg.Server.ProofBaseURL)
}

// ProvideKafkaConsumer wires the sales and listings feeds, or returns nil
// when consumption is disabled.
func ProvideKafkaConsumer(cfg *config.Config, store repository.Store, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled || !cfg.KafkaEnabled() {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	fx := usecase.NewFxNormalizer(store, 10*time.Minute)
	consumer.RegisterHandler(usecase.NewKafkaSalesHandler(cfg.Kafka.Topics.Sales, store, fx, m, l))
	consumer.RegisterHandler(usecase.NewKafkaListingsHandler(cfg.Kafka.Topics.Listings, store, fx, m, l))
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook{}, pkgkafka.LoggingHook{L: l}))
	return consumer, nil
}

func ProvideScheduler(cfg *config.Config, p *usecase.Pipeline, l *applogger.Logger) (*scheduler.Runner, error) {
	r := scheduler.New(l)
	if cfg.Pipeline.Schedule == "" {
		return r, nil
	}
	_, err := r.Add("pipeline", cfg.Pipeline.Schedule, func(ctx context.Context) error {
		res, err := p.Run(ctx)
		if err == nil && !res.Skipped {
			l.Info("pipeline run",
				applogger.Int("snapshots_written", res.Refresh.SnapshotsWritten),
				applogger.Int("signals_created", res.Score.Created),
				applogger.Int("signals_dropped", res.Score.Dropped()))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ProvideHTTPServer registers every handler on one echo server.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	query *usecase.SignalsQueryService,
	fv *usecase.FairValueService,
	jobs *usecase.JobService,
	hub *stream.Hub,
	store repository.Store,
	history repository.HistoryStore,
	rdb *redis.Client,
) *xhttp.Server {
	checks := map[string]api.HealthCheck{"store": store.Health}
	if history != nil {
		checks["clickhouse"] = history.Health
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	limiter := ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)

	handlers := []xhttp.Handler{
		api.NewFairValueEchoHandler(l, fv, limiter.Middleware()),
		api.NewSignalsEchoHandler(l, query, hub),
		api.NewJobsEchoHandler(l, jobs),
		api.NewHealthEchoHandler(checks),
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithServerLogger(l),
	)
}

// ProvideApp assembles the application and attaches the error-log collector
// when it is enabled and a producer exists.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	store repository.Store,
	pipeline *usecase.Pipeline,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	sched *scheduler.Runner,
	producer *pkgkafka.Producer,
) *server.App {
	if cfg.Logging.Collect.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			FlushInterval: cfg.Logging.Collect.FlushInterval,
			MaxEntries:    cfg.Logging.Collect.MaxEntries,
			Topic:         cfg.Logging.Collect.Topic,
			Publisher:     producer,
		})
	}
	return server.New(server.Deps{
		Config:    cfg,
		Logger:    l,
		Store:     store,
		Pipeline:  pipeline,
		HTTP:      httpServer,
		Consumer:  consumer,
		Queue:     q,
		Scheduler: sched,
	})
}
