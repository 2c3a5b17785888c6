package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/arklim/marketplace-auth/internal/core/port"
	"github.com/arklim/marketplace-auth/internal/infra/config"
	"github.com/arklim/marketplace-auth/internal/infra/database"
	kafkainfra "github.com/arklim/marketplace-auth/internal/infra/kafka"
	"github.com/arklim/marketplace-auth/internal/infra/logger"
	"github.com/arklim/marketplace-auth/internal/infra/notify"
	redisinfra "github.com/arklim/marketplace-auth/internal/infra/redis"
	"github.com/arklim/marketplace-auth/internal/infra/security"
	"github.com/arklim/marketplace-auth/internal/infra/telemetry"
	"github.com/arklim/marketplace-auth/internal/repository/memory"
	postgresrepo "github.com/arklim/marketplace-auth/internal/repository/postgres"
	redisrepo "github.com/arklim/marketplace-auth/internal/repository/redis"
	transportgrpc "github.com/arklim/marketplace-auth/internal/transport/grpc"
	"github.com/arklim/marketplace-auth/internal/transport/http/routes"
	"github.com/arklim/marketplace-auth/internal/usecase"
)

const (
	tracerName      = "github.com/arklim/marketplace-auth/internal/usecase"
	shutdownTimeout = 10 * time.Second
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	tracing    *telemetry.TracerProvider
	store      *postgresrepo.Store
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	grpcServer *transportgrpc.Server
	grpcAddr   string
}

// stores groups the persistence ports selected by auth.account_store and auth.otp_store.
type stores struct {
	accounts      port.AccountRepository
	refreshTokens port.RefreshTokenStore
	otp           port.OTPStore
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		logger:   log,
		grpcAddr: fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}
	initialized := false
	defer func() {
		if !initialized {
			a.close()
		}
	}()

	a.tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	hasher, err := security.NewPasswordHasher(security.HasherOptions{
		Algorithm:  cfg.Hasher.Algorithm,
		BcryptCost: cfg.Hasher.BcryptCost,
		Argon2: security.Argon2Config{
			Memory:      cfg.Hasher.Memory,
			Iterations:  cfg.Hasher.Iterations,
			Parallelism: cfg.Hasher.Parallelism,
			SaltLength:  cfg.Hasher.SaltLength,
			KeyLength:   cfg.Hasher.KeyLength,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	issuer, err := newTokenIssuer(cfg.JWT, log)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}

	settings := cfg.Auth
	if cfg.App.Env == "development" {
		settings.ExposeCodes = true
	}

	otpService := usecase.NewOTPService(st.otp, notify.NewLoggingNotifier(log, settings.ExposeCodes), settings).
		WithLogger(log).
		WithMetrics(metrics)
	ledger := usecase.NewRefreshTokenLedger(st.refreshTokens)
	authService := usecase.NewAuthService(st.accounts, otpService, ledger, hasher, issuer).
		WithEvents(a.eventPublisher()).
		WithPasswordPolicy(security.NewPasswordPolicy(security.PasswordPolicyOptions{
			MinLength:           settings.PasswordMinLength,
			MinCharacterClasses: settings.PasswordMinClasses,
			MinStrengthScore:    settings.PasswordMinScore,
		})).
		WithLogger(log).
		WithMetrics(metrics).
		WithTracer(a.tracing.Tracer(tracerName))

	deps := routes.Dependencies{
		Config: cfg,
		Logger: log,
		Auth:   authService,
		Keys:   issuer,
	}
	checks := map[string]transportgrpc.DependencyCheck{}
	if a.store != nil {
		deps.Database = a.store
		checks["database"] = a.store.Ping
	}
	if a.redis != nil {
		deps.Cache = a.redis
		checks["redis"] = a.redis.HealthCheck
	}

	a.engine, err = routes.Register(deps)
	if err != nil {
		return nil, fmt.Errorf("init http routes: %w", err)
	}

	a.grpcServer, err = transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Logger:         log,
		TracerProvider: a.tracing.TracerProvider(),
		Checks:         checks,
	})
	if err != nil {
		return nil, fmt.Errorf("init grpc server: %w", err)
	}

	initialized = true
	return a, nil
}

func (a *Application) openStores(ctx context.Context) (stores, error) {
	var st stores
	cfg := a.cfg

	switch cfg.Auth.AccountStore {
	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, a.logger)
		if err != nil {
			return st, fmt.Errorf("init postgres: %w", err)
		}
		a.store = postgresrepo.NewStore(pool)
		if err := a.store.Migrate(ctx); err != nil {
			return st, fmt.Errorf("migrate postgres: %w", err)
		}
		repos := postgresrepo.NewRepositories(pool)
		st.accounts = repos.Accounts
		st.refreshTokens = repos.RefreshTokens
		if cfg.Auth.OTPStore == config.StorePostgres {
			st.otp = repos.OTP
		}
	default:
		a.logger.Warn("using in-memory account store; data is lost on restart")
		st.accounts = memory.NewAccountRepository()
		st.refreshTokens = memory.NewRefreshTokenStore()
	}

	switch cfg.Auth.OTPStore {
	case config.StoreRedis:
		client, err := redisinfra.NewClient(cfg.Redis, a.logger)
		if err != nil {
			return st, fmt.Errorf("init redis: %w", err)
		}
		a.redis = client
		st.otp = redisrepo.NewOTPStore(client.Client(), cfg.Redis.OTPPrefix, cfg.Auth.OTPRetention)
	case config.StorePostgres:
		if st.otp == nil {
			return st, errors.New("auth.otp_store=postgres requires auth.account_store=postgres")
		}
	default:
		st.otp = memory.NewOTPStore()
	}

	a.logger.Info("stores selected",
		zap.String("account_store", cfg.Auth.AccountStore),
		zap.String("otp_store", cfg.Auth.OTPStore),
	)
	return st, nil
}

func newTokenIssuer(cfg config.JWTSettings, log *zap.Logger) (*security.TokenIssuer, error) {
	opts := security.TokenIssuerOptions{Secret: cfg.Secret, Issuer: cfg.Issuer}
	if cfg.KeyDirectory != "" {
		keys, err := security.NewFileKeyProvider(cfg.KeyDirectory, cfg.KeyID)
		if err != nil {
			return nil, fmt.Errorf("init key provider: %w", err)
		}
		opts.KeyProvider = keys
		log.Info("signing tokens with RS256", zap.String("key_directory", cfg.KeyDirectory))
	}

	issuer, err := security.NewTokenIssuer(opts)
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	return issuer, nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, prometheus.DefaultRegisterer, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

// Run serves HTTP and gRPC until ctx is cancelled or either server fails, then shuts both down.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	lis, err := net.Listen("tcp", a.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("run grpc server: %w", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		a.logger.Info("starting auth API",
			zap.String("env", a.cfg.App.Env),
			zap.String("address", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.grpcServer.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	if err := a.tracing.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	return runErr
}

func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}
