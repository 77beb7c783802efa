package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/port"
	"github.com/peacemap/riskengine/internal/infrastructure/config"
	riskkafka "github.com/peacemap/riskengine/internal/infrastructure/kafka"
	"github.com/peacemap/riskengine/internal/infrastructure/postgres"
	"github.com/peacemap/riskengine/internal/infrastructure/telemetry"
	grpcpresentation "github.com/peacemap/riskengine/internal/presentation/grpc"
	"github.com/peacemap/riskengine/internal/presentation/rest"
	"github.com/peacemap/riskengine/pkg/auth"
	pkgkafka "github.com/peacemap/riskengine/pkg/kafka"
	"github.com/peacemap/riskengine/pkg/observability"
	pgutil "github.com/peacemap/riskengine/pkg/postgres"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers, the event consumer and the outbox relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logCfg := logConfig(cfg)
	logCfg.Output = os.Stdout
	logger := observability.InitLogger(logCfg)

	logger.Info("starting riskd",
		slog.Int("grpc_port", cfg.Service.GRPCPort),
		slog.Int("http_port", cfg.Service.HTTPPort),
	)

	tracer, shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName:  cfg.Service.Name,
		Environment:  cfg.Service.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Enabled:      cfg.Telemetry.TracingEnabled,
		Insecure:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	obs, err := observability.InitMetrics(observability.MetricsConfig{ServiceName: cfg.Service.Name})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() { _ = obs.Provider.Shutdown(context.Background()) }()

	riskMetrics, err := telemetry.NewMetrics(obs.Provider, obs.Registry)
	if err != nil {
		return fmt.Errorf("failed to register risk metrics: %w", err)
	}

	checks := map[string]rest.ReadinessCheck{}

	var producer *pkgkafka.Producer
	kafkaCfg := pkgkafka.Config{Brokers: cfg.Kafka.Brokers, ConsumerGroup: cfg.Kafka.ConsumerGroup}
	if cfg.Kafka.Enabled {
		producer, err = pkgkafka.NewProducer(kafkaCfg)
		if err != nil {
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}
		defer producer.Close()
	}

	var (
		sinks []port.ScoreSink
		repo  *postgres.ScoreRepository
	)
	switch {
	case cfg.Database.URL != "":
		pool, err := pgutil.NewPool(ctx, pgutil.Config{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			ApplicationName: cfg.Service.Name,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to database")

		repo = postgres.NewScoreRepository(pool, cfg.Kafka.RiskTopic)
		sinks = append(sinks, repo)
		checks["database"] = func(ctx context.Context) error { return pgutil.HealthCheck(ctx, pool) }
	case producer != nil:
		logger.Warn("no database configured, publishing risk events without an outbox")
		sinks = append(sinks, riskkafka.NewDirectSink(riskkafka.NewPublisher(producer, logger), cfg.Kafka.RiskTopic))
	default:
		logger.Warn("no database or kafka configured, scores are kept in memory only")
	}

	mgr, err := manager.New(cfg.Risk.ManagerConfig(),
		manager.WithLogger(logger),
		manager.WithTracer(tracer),
		manager.WithMetrics(riskMetrics),
		manager.WithSinks(sinks...),
	)
	if err != nil {
		return err
	}
	if err := mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize risk calculators: %w", err)
	}
	checks["calculators"] = func(context.Context) error {
		if !mgr.Ready() {
			return manager.ErrNotInitialized
		}
		return nil
	}

	var validator auth.TokenValidator
	if cfg.Auth.Required {
		jwtSvc, err := newJWTService(cfg.Auth)
		if err != nil {
			return err
		}
		validator = jwtSvc
	}

	grpcServer, err := grpcpresentation.NewServer(
		grpcpresentation.NewRiskHandler(mgr, logger),
		grpcpresentation.ServerConfig{
			Address:     cfg.GRPCAddress(),
			TLSCertFile: cfg.TLS.CertFile,
			TLSKeyFile:  cfg.TLS.KeyFile,
			Reflection:  cfg.Service.Environment != "production",
		},
		validator,
		logger,
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr: cfg.HTTPAddress(),
		Handler: rest.NewRouter(rest.RouterConfig{
			Risk:      rest.NewRiskHandler(mgr, logger),
			Health:    rest.NewHealthHandler(cfg.Service.Name, checks, logger),
			Metrics:   obs.Handler,
			Validator: validator,
			Logger:    logger,
			RateLimit: cfg.Service.HTTPRateLimit,
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Start(); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTP server starting", slog.String("address", cfg.HTTPAddress()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if cfg.Kafka.Enabled {
		handler := riskkafka.NewEventBatchHandler(mgr, logger)
		consumer, err := pkgkafka.NewConsumer(kafkaCfg, cfg.Kafka.EventsTopic, handler.Handle, logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka consumer: %w", err)
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Start(gctx) })

		if repo != nil {
			relay := riskkafka.NewOutboxRelay(repo, producer, logger)
			g.Go(func() error { return relay.Run(gctx) })
		}
	}

	grpcServer.SetServing(true)
	logger.Info("riskd started",
		slog.String("grpc_address", cfg.GRPCAddress()),
		slog.String("http_address", cfg.HTTPAddress()),
		slog.String("environment", cfg.Service.Environment),
	)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down riskd")

		grpcServer.SetServing(false)
		grpcServer.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("riskd stopped")
	return err
}

func newJWTService(cfg config.AuthConfig) (*auth.JWTService, error) {
	jwtCfg := auth.JWTConfig{Secret: cfg.JWTSecret, Issuer: cfg.Issuer}
	if cfg.PublicKeyFile != "" {
		pem, err := auth.LoadKeyFromFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		jwtCfg.PublicKeyPEM = string(pem)
	}
	jwtSvc, err := auth.NewJWTService(jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure authentication: %w", err)
	}
	return jwtSvc, nil
}
