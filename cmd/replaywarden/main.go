package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"replay-warden/internal/analytics"
	"replay-warden/internal/bot"
	"replay-warden/internal/config"
	"replay-warden/internal/cooldown"
	"replay-warden/internal/keepalive"
	"replay-warden/internal/modules/audit"
	"replay-warden/internal/replay"
	"replay-warden/internal/storage"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warn(".env not loaded", zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeTimeout := time.Duration(cfg.Storage.TimeoutSeconds) * time.Second
	openCtx, cancelOpen := context.WithTimeout(ctx, 3*storeTimeout)
	store, err := storage.Open(openCtx, storage.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	})
	cancelOpen()
	if err != nil {
		logger.Fatal("storage init failed", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	var sink storage.AuditSink
	if s, ok := store.(storage.AuditSink); ok {
		sink = s
	}
	auditLogger := audit.NewLogger(sink, logger)

	policy, err := cooldown.ParsePolicy(cfg.Cooldown.Policy, cfg.Cooldown.Days)
	if err != nil {
		logger.Fatal("cooldown policy invalid", zap.Error(err))
	}

	session, err := bot.NewSession(cfg)
	if err != nil {
		logger.Fatal("discord session init failed", zap.Error(err))
	}

	replayService := replay.New(replay.Deps{
		Store:  store,
		Chat:   bot.NewChat(session, cfg, policy),
		Policy: policy,
		Access: replay.NewAccess(cfg.Reviewers, cfg.Admins),
		Audit:  auditLogger,
		Logger: logger,
	}, replay.Options{
		Suffix:         cfg.ReplaySuffix,
		PreferDirect:   cfg.Notifications.PreferDirect,
		NotifyOnReview: cfg.Notifications.NotifyOnReview,
		ReactOnReview:  cfg.Notifications.ReactOnReview,
		StoreTimeout:   storeTimeout,
	})
	queue := analytics.New(store, nil)

	botSvc := bot.New(cfg, logger, session, replayService, queue, auditLogger)
	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("policy", policy.String()),
		zap.String("channel_id", cfg.ReplayChannelID),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	if cfg.Keepalive.Enabled {
		server := keepalive.New(cfg.Keepalive, logger)
		group.Go(func() error {
			return server.Serve(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})
	if err := group.Wait(); err != nil {
		logger.Error("serve failed", zap.Error(err))
	}
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := botSvc.Close(shutdownCtx); err != nil {
		logger.Warn("discord close failed", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Warn("storage close failed", zap.Error(err))
	}
}
