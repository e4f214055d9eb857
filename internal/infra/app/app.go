package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/infra/config"
	"github.com/courtbook/identity-service/internal/infra/database"
	kafkainfra "github.com/courtbook/identity-service/internal/infra/kafka"
	"github.com/courtbook/identity-service/internal/infra/logger"
	"github.com/courtbook/identity-service/internal/infra/mail"
	"github.com/courtbook/identity-service/internal/infra/oauth"
	redisinfra "github.com/courtbook/identity-service/internal/infra/redis"
	"github.com/courtbook/identity-service/internal/infra/security"
	"github.com/courtbook/identity-service/internal/infra/telemetry"
	postgresrepo "github.com/courtbook/identity-service/internal/repository/postgres"
	redisrepo "github.com/courtbook/identity-service/internal/repository/redis"
	"github.com/courtbook/identity-service/internal/transport/http/middleware"
	"github.com/courtbook/identity-service/internal/transport/http/routes"
	"github.com/courtbook/identity-service/internal/usecase"
)

type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	tracing *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracing *telemetry.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	issuer, err := security.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(port.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	policy := security.NewPasswordPolicy()

	repos := postgresrepo.NewRepositories(pool)

	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       24 * time.Hour,
	})
	quotaStore := redisrepo.NewQuotaRepository(redisClient.Client(), cfg.Redis.QuotaPrefix)

	var events port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			events = kafkainfra.NewStubPublisher(log)
		} else {
			events = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		events = kafkainfra.NewStubPublisher(log)
	}

	var notifier port.NotificationGateway
	if cfg.SMTP.Host != "" {
		smtpNotifier, err := mail.NewSMTPNotifier(cfg.SMTP, log)
		if err != nil {
			log.Warn("failed to init smtp notifier, using log notifier", zap.Error(err))
			notifier = mail.NewLogNotifier(log)
		} else {
			notifier = smtpNotifier
		}
	} else {
		notifier = mail.NewLogNotifier(log)
	}

	providerVerifier := oauth.NewVerifier(cfg.Social, log)

	rateLimits := usecase.NewRateLimitService(rateLimitStore, log)
	otpService := usecase.NewOTPService(cfg, repos.VerificationCodes, notifier, log)

	registrationService := usecase.NewRegistrationService(cfg, repos.Users, repos.Audit, events, otpService, rateLimits, hasher, policy, log)
	verificationService := usecase.NewVerificationService(cfg, repos.Users, repos.VerificationCodes, quotaStore, repos.Audit, events, otpService, rateLimits, log)
	authService := usecase.NewAuthService(cfg, repos.Users, repos.Tokens, repos.Audit, events, issuer, hasher, rateLimits, log)
	passwordService := usecase.NewPasswordService(cfg, repos.Users, repos.Tokens, repos.Audit, events, notifier, hasher, policy, rateLimits, log)
	socialService := usecase.NewSocialLoginService(repos.Users, repos.Audit, events, providerVerifier, authService, log)
	userService := usecase.NewUserService(repos.Users, repos.Audit)

	var metrics *middleware.HTTPMetrics
	if cfg.Telemetry.MetricsEnabled {
		metrics, err = middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init http metrics: %w", err)
		}
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Verification: verificationService,
			Passwords:    passwordService,
			Social:       socialService,
			Users:        userService,
		},
	})

	return &Application{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		pool:    pool,
		redis:   redisClient,
		tracing: tracing,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracing != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracing.Shutdown(shutdownCtx)
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

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
