package di

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	domrepo "SignalFusion/internal/domain/repository"
	domsvc "SignalFusion/internal/domain/service"
	"SignalFusion/internal/handler/api"
	"SignalFusion/internal/handler/ws"
	internalrepo "SignalFusion/internal/repository"
	"SignalFusion/internal/services/feedback"
	"SignalFusion/internal/services/producers"
	"SignalFusion/internal/usecase"
	"SignalFusion/pkg/cache"
	pkgch "SignalFusion/pkg/clickhouse"
	"SignalFusion/pkg/config"
	xhttp "SignalFusion/pkg/http"
	"SignalFusion/pkg/http/middleware"
	pkgkafka "SignalFusion/pkg/kafka"
	applogger "SignalFusion/pkg/logger"
	"SignalFusion/pkg/metrics"
	"SignalFusion/pkg/postgres"
	"SignalFusion/pkg/server"
)

const initTimeout = 10 * time.Second

// Stores is the state backend picked by store.backend.
type Stores struct {
	State  domrepo.StateStore
	Locker domrepo.Locker
}

// Publishers is every downstream that receives finished decisions.
type Publishers []domrepo.DecisionPublisher

// Runtime is what the one-shot CLI commands need.
type Runtime struct {
	Log     *applogger.Logger
	Engine  *usecase.DecisionEngine
	Retuner *feedback.Retuner
	Window  *feedback.QualityWindow
}

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

func ProvideEngineSource(cfg *config.Config) *config.EngineSource {
	return config.NewEngineSource(cfg.Engine.ConfigPath)
}

// ProvideClickHouseClient connects when clickhouse.enabled; otherwise it returns nil.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithAsyncInsert(true, false),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideFeatureStore(ch *pkgch.Client, c cache.Service, cfg *config.Config, l *applogger.Logger) (domrepo.FeatureStore, error) {
	if ch == nil {
		l.Warn("clickhouse disabled: decisions need candles supplied by the caller")
		return internalrepo.NoFeatureStore{}, nil
	}
	store, err := internalrepo.NewCHFeatureStore(ch.DB(), cfg.ClickHouse.CandleTable, l)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return store, nil
	}
	return internalrepo.NewCachedFeatureStore(store, c, cfg.Cache.CandleTTL, l), nil
}

// ProvideCandleCache returns nil when cache.backend is none.
func ProvideCandleCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	local := func() *cache.MemoryCache { return cache.NewMemoryCache(cfg.Cache.MaxEntries) }
	switch cfg.Cache.Backend {
	case "none":
		return nil, func() {}, nil
	case "redis", "layered":
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("cache redis ping: %w", err)
		}
		var c cache.Service = cache.NewRedisCache(rdb, cfg.Redis.KeyPrefix+":cache")
		if cfg.Cache.Backend == "layered" {
			c = cache.NewLayeredCache(local(), c, cfg.Cache.LocalTTL)
		}
		l.Info("candle cache ready", applogger.String("backend", cfg.Cache.Backend))
		return c, func() { _ = rdb.Close() }, nil
	default:
		return local(), func() {}, nil
	}
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideStores opens the state backend named by store.backend.
func ProvideStores(cfg *config.Config, l *applogger.Logger) (*Stores, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		s := internalrepo.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
		l.Info("state store ready", applogger.String("backend", "redis"), applogger.String("addr", cfg.Redis.Addr))
		return &Stores{State: s, Locker: s}, func() { _ = s.Close() }, nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.Postgres.Driver, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.Timeout)
		if err != nil {
			return nil, nil, err
		}
		s := internalrepo.NewPostgresStore(db, cfg.Postgres.Timeout)
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		l.Info("state store ready", applogger.String("backend", "postgres"), applogger.String("driver", cfg.Postgres.Driver))
		// Postgres has no lease; retuners serialize on the version check alone.
		return &Stores{State: s, Locker: internalrepo.NewMemoryLocker()}, func() { _ = s.Close() }, nil

	default:
		l.Warn("state store is in-memory: thresholds and reliability are lost on restart")
		return &Stores{State: internalrepo.NewMemoryStore(), Locker: internalrepo.NewMemoryLocker()}, func() {}, nil
	}
}

// ProvideAuditSink fans records out to every configured sink; none means log only.
func ProvideAuditSink(cfg *config.Config, l *applogger.Logger, ch *pkgch.Client, producer *pkgkafka.Producer) (domrepo.AuditSink, error) {
	names := cfg.Audit.Sinks
	if len(names) == 0 {
		names = []string{"log"}
	}
	var sinks internalrepo.MultiAuditSink
	for _, name := range names {
		switch name {
		case "log":
			sinks = append(sinks, internalrepo.NewLogAuditSink(l))
		case "clickhouse":
			ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
			err := ch.InitSchema(ctx, internalrepo.AuditSchema(cfg.ClickHouse.AuditTable))
			cancel()
			if err != nil {
				return nil, err
			}
			s, err := internalrepo.NewCHAuditSink(ch.DB(), cfg.ClickHouse.AuditTable)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		case "kafka":
			sinks = append(sinks, internalrepo.NewKafkaAuditSink(producer, cfg.Kafka.AuditTopic))
		}
	}
	return sinks, nil
}

func ProvideHub(l *applogger.Logger) (*ws.Hub, func()) {
	hub := ws.NewHub(l)
	return hub, func() { _ = hub.Close() }
}

func ProvidePublishers(cfg *config.Config, producer *pkgkafka.Producer, hub *ws.Hub) Publishers {
	pubs := Publishers{hub}
	if producer != nil {
		pubs = append(pubs, internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic))
	}
	return pubs
}

// ProvideProducers builds the built-in modules named in producers.builtin and
// one HTTP adapter per remote module.
func ProvideProducers(cfg *config.Config) ([]domsvc.Producer, error) {
	var ps []domsvc.Producer
	for _, name := range cfg.Producers.Builtin {
		switch name {
		case "trend":
			ps = append(ps, producers.NewTrendProducer())
		case "mtf":
			ps = append(ps, producers.NewMultiTimeframeProducer())
		case "volume":
			ps = append(ps, producers.NewVolumeProducer())
		default:
			return nil, fmt.Errorf("unknown builtin producer %q", name)
		}
	}
	for _, rp := range cfg.Producers.Remote {
		ps = append(ps, producers.NewHTTPProducer(rp))
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("no producers configured")
	}
	return ps, nil
}

func ProvideRunner(ps []domsvc.Producer, cfg *config.Config, m *metrics.Recorder, l *applogger.Logger) *producers.Runner {
	b := cfg.Producers.Breaker
	return producers.NewRunner(ps, producers.BreakerSettings{
		MaxRequests:  b.MaxRequests,
		Interval:     b.Interval,
		Timeout:      b.Timeout,
		FailureRatio: b.FailureRatio,
		MinRequests:  b.MinRequests,
	}, m, l)
}

func ProvideQualityWindow(src *config.EngineSource) *feedback.QualityWindow {
	eng, _ := src.Load()
	return feedback.NewQualityWindow(eng.Feedback.Window)
}

func ProvideDecisionEngine(
	src *config.EngineSource,
	features domrepo.FeatureStore,
	runner *producers.Runner,
	stores *Stores,
	window *feedback.QualityWindow,
	audit domrepo.AuditSink,
	pubs Publishers,
	m *metrics.Recorder,
	l *applogger.Logger,
) *usecase.DecisionEngine {
	return usecase.NewDecisionEngine(usecase.EngineDeps{
		Source:      src,
		Features:    features,
		Runner:      runner,
		Thresholds:  stores.State,
		Reliability: stores.State,
		Window:      window,
		Audit:       audit,
		Publishers:  pubs,
		Metrics:     m,
		Log:         l,
	})
}

func ProvideUpdater(stores *Stores, src *config.EngineSource, m *metrics.Recorder, l *applogger.Logger) *feedback.Updater {
	eng, _ := src.Load()
	return feedback.NewUpdater(stores.State, m, l, eng.Feedback.MaxRetries)
}

func ProvideRetuner(stores *Stores, window *feedback.QualityWindow, src *config.EngineSource, m *metrics.Recorder, l *applogger.Logger) *feedback.Retuner {
	return feedback.NewRetuner(stores.State, stores.Locker, window, src, m, l)
}

func ProvideScheduler(engine *usecase.DecisionEngine, cfg *config.Config, l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(engine, cfg.Engine.Pairs, cfg.Engine.Timeframe, cfg.Engine.Bars, cfg.Engine.Interval, l)
}

// ProvideKafkaConsumer returns nil unless kafka.consumer.enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, updater *feedback.Updater, m *metrics.Recorder) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewOutcomeHandler(cfg.Kafka.OutcomesTopic, updater, m))
	return consumer, nil
}

func ProvideCandles(features domrepo.FeatureStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(features)
}

// ProvideAPIHandler guards the write endpoints when server.auth.secret is set.
func ProvideAPIHandler(cfg *config.Config, l *applogger.Logger, engine *usecase.DecisionEngine, updater *feedback.Updater, candles *usecase.CandlesUseCase) *api.DecisionsHandler {
	var guard echo.MiddlewareFunc
	if cfg.Server.Auth.Secret != "" {
		guard = middleware.RequireToken(middleware.NewTokenAuth(cfg.Server.Auth.Secret, cfg.Server.Auth.Issuer))
	} else {
		l.Warn("server.auth.secret is empty: write endpoints are unauthenticated")
	}
	return api.NewDecisionsHandler(l, engine, updater, candles, guard)
}

// ProvideHTTPServer serves the API and websocket hub; /readyz pings
// ClickHouse when it is enabled.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.DecisionsHandler, hub *ws.Hub, ch *pkgch.Client) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS != "disabled"),
		xhttp.WithRateLimit(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, nil))
	}
	if ch != nil {
		opts = append(opts, xhttp.WithReadiness("clickhouse", ch.Health))
	}
	return xhttp.NewServer(xhttp.Handlers{h, hub}, l, opts...)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	scheduler *usecase.Scheduler,
	retuner *feedback.Retuner,
	consumer *pkgkafka.Consumer,
) *server.App {
	return server.New(cfg, l, server.Components{
		HTTPServer: srv,
		Scheduler:  scheduler,
		Retuner:    retuner,
		Consumer:   consumer,
	})
}

func ProvideRuntime(l *applogger.Logger, engine *usecase.DecisionEngine, retuner *feedback.Retuner, window *feedback.QualityWindow) *Runtime {
	return &Runtime{Log: l, Engine: engine, Retuner: retuner, Window: window}
}
