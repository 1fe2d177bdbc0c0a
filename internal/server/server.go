package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vantage/internal/config"
	"vantage/internal/database"
	"vantage/internal/events"
	"vantage/internal/handlers"
	"vantage/internal/marketplace"
	"vantage/internal/metrics"
	"vantage/internal/repository"
	"vantage/internal/trustscore"
)

const redisPingTimeout = 5 * time.Second

// Server owns every long-lived dependency of the service
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *database.Database
	redis     *redis.Client
	publisher events.Publisher
	resolver  *trustscore.Resolver
	scheduler *trustscore.Scheduler
	router    *gin.Engine
	http      *http.Server
}

// New connects to postgres and redis, applies migrations and wires the service graph.
// ctx bounds the background jobs started by Run.
func New(ctx context.Context, cfg *config.Config, version string, logger *zap.Logger) (*Server, error) {
	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	var (
		registry  *prometheus.Registry
		gatherer  prometheus.Gatherer
		collector *metrics.Collector
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		gatherer = registry
		collector = metrics.NewCollector(registry)
	}

	publisher := events.New(cfg.Kafka, logger)

	// Repositories
	scores := repository.NewTrustScoreRepository(db, logger)
	signals := repository.NewSignalRepository(db, logger)
	items := repository.NewItemRepository(db, logger)
	purchases := repository.NewPurchaseRepository(db, logger)
	compliance := repository.NewComplianceRepository(db, logger)

	// Trust score engine
	policies := trustscore.PoliciesFromConfig(cfg.TrustScore)
	window := trustscore.NewRateWindow(rdb, cfg.TrustScore.RateLimitWindow, policies)
	cache := trustscore.NewScoreCache(rdb, cfg.TrustScore.CacheTTL)

	resolver := trustscore.NewResolver(
		scores,
		signals,
		trustscore.NewScorer(),
		cache,
		publisher,
		collector,
		trustscore.ResolverConfig{
			Workers:       cfg.TrustScore.Workers,
			QueueSize:     cfg.TrustScore.QueueSize,
			ScoreValidity: cfg.TrustScore.ScoreValidity,
		},
		logger,
	)

	engine := trustscore.NewEngine(
		scores,
		window,
		cache,
		resolver,
		policies,
		trustscore.Config{EstimatedTime: cfg.TrustScore.EstimatedTime},
		collector,
		logger,
	)

	scheduler, err := trustscore.NewScheduler(ctx, cfg.TrustScore.RefillSchedule, engine, resolver, logger)
	if err != nil {
		publisher.Close()
		rdb.Close()
		db.Close()
		return nil, err
	}

	// Marketplace
	market := marketplace.NewService(items, purchases, compliance, engine, publisher, collector, cfg.Marketplace, logger)

	health := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"postgres": db.Health,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}, version, logger)

	router := NewRouter(cfg, Handlers{
		TrustScore:  handlers.NewTrustScoreHandler(engine, logger),
		Marketplace: handlers.NewMarketplaceHandler(market, logger),
		Health:      health,
	}, gatherer, collector, logger)

	return &Server{
		cfg:       cfg,
		logger:    logger.Named("server"),
		db:        db,
		redis:     rdb,
		publisher: publisher,
		resolver:  resolver,
		scheduler: scheduler,
		router:    router,
		http: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Server.HTTP.Port),
			Handler:        router,
			ReadTimeout:    cfg.Server.HTTP.ReadTimeout,
			WriteTimeout:   cfg.Server.HTTP.WriteTimeout,
			IdleTimeout:    cfg.Server.HTTP.IdleTimeout,
			MaxHeaderBytes: cfg.Server.HTTP.MaxHeaderBytes,
		},
	}, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP and runs the resolver and scheduler until ctx is cancelled, then
// drains in-flight requests and releases every dependency.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	s.resolver.Start(gctx)
	s.scheduler.Start()

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.HTTP.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "http server shutdown failed")
		}
		return nil
	})

	err := g.Wait()

	s.scheduler.Stop()
	s.resolver.Wait()
	s.close()

	s.logger.Info("Server shutdown completed")
	return err
}

func (s *Server) close() {
	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close event publisher", zap.Error(err))
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
}
