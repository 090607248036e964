package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/clinical-insight/internal/config"
	"github.com/and161185/clinical-insight/internal/limiter"
	"github.com/and161185/clinical-insight/internal/llm"
	"github.com/and161185/clinical-insight/internal/logging"
	"github.com/and161185/clinical-insight/internal/migrate"
	"github.com/and161185/clinical-insight/internal/repository/postgres"
	grpcserver "github.com/and161185/clinical-insight/internal/server/grpc"
	httpserver "github.com/and161185/clinical-insight/internal/server/http"
	"github.com/and161185/clinical-insight/internal/service"
	"github.com/and161185/clinical-insight/internal/session"
	"github.com/and161185/clinical-insight/internal/storage"
)

// run wires dependencies and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, dev bool) error {
	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
	)

	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	users := postgres.NewUserRepo(db)
	cases := postgres.NewCaseRepo(db)
	auditRepo := postgres.NewAuditRepo(db)
	feedbackRepo := postgres.NewFeedbackRepo(db)

	var lim limiter.Limiter = limiter.Nop{}
	if cfg.Limiter.Enabled {
		lim = limiter.NewPG(db.Pool, limiter.Settings{
			Window:   cfg.Limiter.Window,
			MaxFails: cfg.Limiter.MaxFails,
			BlockFor: cfg.Limiter.BlockFor,
		})
	}

	store, closeStore, err := sessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	sessions := session.NewManager(store, users)

	files, err := fileStore(ctx, cfg)
	if err != nil {
		return err
	}
	links, err := storage.NewLinks([]byte(cfg.Storage.LinkKey), cfg.Storage.LinkTTL)
	if err != nil {
		return err
	}

	gen, err := generator(cfg, logger)
	if err != nil {
		return err
	}
	analyzer := llm.NewAnalyzer(gen, storage.Loader{Store: files}, cfg.LLM.MaxPromptTokens, logger.Named("llm"))

	audit := service.NewAuditService(auditRepo, logger.Named("audit"))
	api := httpserver.New(httpserver.Services{
		Auth:     service.NewAuthService(users, sessions, lim, audit, logger.Named("auth")),
		Profile:  service.NewProfileService(users, audit),
		Cases:    service.NewCaseService(cases, files, links, analyzer, audit, logger.Named("cases")),
		Queries:  service.NewQueryService(cases, logger.Named("query")),
		Feedback: service.NewFeedbackService(feedbackRepo, cases, audit),
		Audit:    audit,
	}, httpserver.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes * 10, // whole multipart body
		Health:         db,
	}, logger.Named("http"))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if ms, ok := store.(*session.MemoryStore); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ms.RunSweeper(ctx, cfg.Session.SweepInterval)
		}()
	}

	if cfg.Server.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.HealthAddr)
		if err != nil {
			return fmt.Errorf("listen health: %w", err)
		}
		hs := grpcserver.NewHealth(db, 0, dev, logger.Named("grpc"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("grpc health listening", zap.String("addr", cfg.Server.HealthAddr))
			if err := hs.Serve(ctx, lis); err != nil {
				errCh <- fmt.Errorf("grpc health: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	wg.Wait()

	logger.Info("shutdown complete")
	return runErr
}

func sessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(cfg.Session.TTL), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return session.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.Session.TTL), func() { _ = rdb.Close() }, nil
}

func fileStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Backend == "minio" {
		s, err := storage.NewMinIOStore(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		}, cfg.Storage.MaxUploadBytes)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return s, nil
	}
	s, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return s, nil
}

func generator(cfg *config.Config, log *zap.Logger) (llm.Generator, error) {
	if cfg.LLM.Disabled {
		log.Warn("analysis model disabled; analyses will be stored as failed")
		return llm.Disabled{}, nil
	}
	return llm.NewGeminiClient(llm.GeminiConfig{
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})
}
