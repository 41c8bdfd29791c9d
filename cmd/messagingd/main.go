package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/next-dentist/next-dentist-sub003/internal/app/registry"
	"github.com/next-dentist/next-dentist-sub003/internal/app/server"
	"github.com/next-dentist/next-dentist-sub003/internal/app/worker"
	"github.com/next-dentist/next-dentist-sub003/internal/config"
	"github.com/next-dentist/next-dentist-sub003/internal/core/services"
	"github.com/next-dentist/next-dentist-sub003/internal/platform/logger"
	"github.com/next-dentist/next-dentist-sub003/internal/platform/telemetry"
	"github.com/next-dentist/next-dentist-sub003/internal/plugins/postgres"
	redisPlugin "github.com/next-dentist/next-dentist-sub003/internal/plugins/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	_ = godotenv.Load()
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	if otelShutdown != nil {
		defer func() {
			log.Info("flushing telemetry...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error("telemetry shutdown failed", "err", err)
			}
		}()
	}

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", "err", err)
		return
	}
	defer pdb.Close()
	log.Info("postgres connected")
	var rdb *redis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL, "err", err)
		return
	}
	defer rdb.Close()
	log.Info("redis connected")

	// Adapters
	convRepo := postgres.NewConversationRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	presStore := redisPlugin.NewRedisPresenceStore(rdb, cfg.Presence.TTL)
	msgQueue := redisPlugin.NewRedisMessageQueue(log, rdb)

	// Core services
	hub := registry.NewRegistry()
	txManager := postgres.NewTxManager(pdb)
	msgSvc := services.NewMessageService(log, msgQueue, hub, msgRepo, convRepo, txManager)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	managerSvc := services.NewManagerService(log, hub, presStore, msgSvc, *cfg.Presence)

	wrkr := worker.NewConversationWorker(log, msgQueue, msgSvc, cfg.Worker.MessageGroup)
	hub.RunWorker(wrkr.Run)

	// Server
	srv := server.NewServer(log, *cfg.Service, tokenSvc, managerSvc, hub)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "err", err)
	}
}
