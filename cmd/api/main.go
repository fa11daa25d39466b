package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hotelhub/agency"
	"hotelhub/audit"
	"hotelhub/auth"
	"hotelhub/commission"
	"hotelhub/config"
	"hotelhub/db"
	"hotelhub/logging"
	"hotelhub/pricing"
	"hotelhub/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	tokenStore, closeStore, err := newTokenStore(cfg, pool)
	if err != nil {
		return err
	}
	defer closeStore()

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	broker := upstream.NewTokenBroker(
		cfg.UpstreamBaseURL,
		cfg.UpstreamLoginPath,
		upstream.Credentials{Username: cfg.UpstreamUsername, Password: cfg.UpstreamPassword},
		tokenStore,
		upstream.WithBrokerHTTPClient(httpClient),
		upstream.WithLoginTimeout(cfg.UpstreamLoginTimeout),
		upstream.WithDefaultTTL(cfg.UpstreamTokenTTL),
		upstream.WithBrokerLogger(logger.Named("token-broker")),
	)
	executor := upstream.NewExecutor(
		cfg.UpstreamBaseURL,
		broker,
		upstream.WithHTTPClient(httpClient),
		upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst),
		upstream.WithExecutorLogger(logger.Named("upstream")),
	)

	agencyService := agency.NewService(agency.NewRepository(pool))
	engine := pricing.NewEngine(
		pricing.NewRuleSelector(pricing.NewRuleRepository(pool)),
		agencyService,
		commission.NewResolver(commission.NewRepository(pool)),
		logger.Named("pricing"),
	)

	var publisher audit.Publisher = audit.NewLogPublisher(logger.Named("audit"))
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kp := audit.NewKafkaPublisher(brokers, cfg.KafkaAuditTopic, logger.Named("kafka"))
		defer kp.Close()
		publisher = kp
		logger.Info("audit events go to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaAuditTopic))
	}
	recorder := audit.NewRecorder(publisher, cfg.AuditBuffer, logger.Named("audit"))
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	go recorder.Run(recorderCtx)

	server := &Server{
		pricer:        engine,
		agencyService: agencyService,
		hotels:        upstream.NewHotelClient(executor),
		recorder:      recorder,
		db:            pool,
		logger:        logger,
	}
	if cfg.JWTSecret != "" {
		verifier, err := auth.NewVerifier(cfg.JWTSecret)
		if err != nil {
			stopRecorder()
			return err
		}
		server.verifier = verifier
	} else {
		logger.Warn("JWT_SECRET is empty; every request is priced as an anonymous customer")
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.AppPort,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("server is shutting down")
	case err := <-errCh:
		stopRecorder()
		<-recorder.Done()
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Requests are drained; flush pending audit events before closing Kafka.
	stopRecorder()
	<-recorder.Done()

	logger.Info("server stopped gracefully")
	return nil
}

func newTokenStore(cfg config.Config, pool *pgxpool.Pool) (upstream.TokenStore, func(), error) {
	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		return upstream.NewRedisTokenStore(client, ""), func() { _ = client.Close() }, nil
	case config.TokenStorePostgres, "":
		return upstream.NewPGTokenStore(pool), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported token store %q", cfg.TokenStore)
	}
}
