package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/admission"
	"github.com/hiyari/incident-reports-back/internal/ai"
	"github.com/hiyari/incident-reports-back/internal/auth"
	"github.com/hiyari/incident-reports-back/internal/cache"
	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/config"
	httpserver "github.com/hiyari/incident-reports-back/internal/http"
	"github.com/hiyari/incident-reports-back/internal/http/handlers"
	"github.com/hiyari/incident-reports-back/internal/logging"
	"github.com/hiyari/incident-reports-back/internal/repository"
	"github.com/hiyari/incident-reports-back/internal/schema"
	"github.com/hiyari/incident-reports-back/internal/service"
	"github.com/hiyari/incident-reports-back/internal/textproc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	dotenvErr := config.LoadDotEnv(".env", ".env.local")
	cfg := config.Load()

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if dotenvErr != nil {
		logger.Warn("failed loading .env files", zap.Error(dotenvErr))
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	resultCache, cacheCloser := setupCache(ctx, cfg, logger)
	defer cacheCloser()

	location, err := time.LoadLocation(cfg.StatsTimezone)
	if err != nil {
		return fmt.Errorf("load STATS_TIMEZONE: %w", err)
	}
	schemas, err := schema.New(schema.Options{MaxContentLength: cfg.AIMaxContentLength})
	if err != nil {
		return err
	}
	taxonomy := category.Default()

	provider, providerErr := ai.NewProvider(ctx, ai.ProviderSettings{
		Name:          cfg.AIProvider,
		BedrockRegion: cfg.BedrockRegionOrDefault(),
		BedrockModel:  cfg.BedrockModel,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAITimeout: time.Duration(cfg.OpenAITimeoutMS) * time.Millisecond,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
	})
	if providerErr != nil {
		logger.Warn("ai provider unavailable, /ai/generate will fail", zap.String("provider", cfg.AIProvider), zap.Error(providerErr))
	} else {
		logger.Info("ai provider initialized", zap.String("provider", provider.Name()), zap.String("model", provider.Model()))
	}

	controller := admission.New(admission.Config{
		MaxConcurrent: cfg.AIMaxConcurrent,
		QueueTimeout:  cfg.AIQueueTimeout,
		QueueMaxSize:  cfg.AIQueueMaxSize,
		Logger:        logger.Named("admission"),
	})
	go controller.Run(ctx)

	aiGeneration := service.NewAIGenerationService(service.AIGenerationDependencies{
		Provider:     provider,
		ProviderErr:  providerErr,
		Admission:    controller,
		Preprocessor: textproc.New(textproc.Config{}),
		Cache:        resultCache,
		Taxonomy:     taxonomy,
		Logger:       logger.Named("ai"),
	})

	api := handlers.NewAPI(handlers.Dependencies{
		AI:         aiGeneration,
		Reports:    service.NewReportsService(repo, taxonomy, logger.Named("reports")),
		Validation: service.NewValidationService(schemas, location),
		Stats:      service.NewStatsService(repo, taxonomy, cfg.StatsTimezone),
		Levels:     service.NewLevelService(repo),
		Schemas:    schemas,
		Location:   location,
		Logger:     logger.Named("http"),
	})

	identity, err := setupIdentity(ctx, cfg, logger)
	if err != nil {
		return err
	}

	handler := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            api,
		Logger:         logger.Named("http"),
		Identity:       identity,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Queued AI requests may wait up to AI_QUEUE_TIMEOUT plus provider retries.
		WriteTimeout: cfg.AIQueueTimeout + 90*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", server.Addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (repository.ReportsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryReportsRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresReportsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("failed to initialize postgres repository, fallback to memory", zap.Error(err))
		return repository.NewMemoryReportsRepository(), func() {}
	}
	if err := pgRepo.EnsureSchema(ctx); err != nil {
		logger.Warn("failed to ensure postgres schema, fallback to memory", zap.Error(err))
		pgRepo.Close()
		return repository.NewMemoryReportsRepository(), func() {}
	}
	logger.Info("postgres repository initialized")
	return pgRepo, pgRepo.Close
}

func setupCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Store, func()) {
	memory := func() cache.Store {
		return cache.NewMemoryStore(cache.Config{TTL: cfg.AICacheTTL, MaxEntries: cfg.AICacheMaxEntries})
	}
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not configured, using in-memory ai cache")
		return memory(), func() {}
	}

	store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.AICacheTTL,
	})
	if err != nil {
		logger.Warn("failed to initialize redis ai cache, fallback to memory", zap.Error(err))
		return memory(), func() {}
	}
	logger.Info("redis ai cache initialized")
	return store, func() { _ = store.Close() }
}

func setupIdentity(ctx context.Context, cfg config.Config, logger *zap.Logger) (auth.Resolver, error) {
	chain := auth.Chain{}
	if cfg.AuthDevAllow {
		logger.Warn("AUTH_DEV_ALLOW enabled, /health and /ai/generate accept unauthenticated requests")
		chain = append(chain, auth.DevBypass{Paths: []string{"/health", "/ai/generate"}})
	}
	if cfg.AuthTestToken != "" {
		chain = append(chain, auth.StaticToken{Token: cfg.AuthTestToken, UserID: auth.TestUserID})
	}

	jwtResolver, err := auth.NewJWTResolver(ctx, auth.JWTConfig{
		JWKSURL:    cfg.JWTJWKSURL,
		HMACSecret: cfg.JWTHMACSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Logger:     logger.Named("auth"),
	})
	if err != nil {
		return nil, fmt.Errorf("init jwt resolver: %w", err)
	}
	if jwtResolver != nil {
		chain = append(chain, jwtResolver)
	} else {
		logger.Info("no JWT key source configured, only test token and dev bypass apply")
	}
	return chain, nil
}
