package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aman-churiwal/ai-gateway/internal/config"
	"github.com/aman-churiwal/ai-gateway/internal/logging"
	"github.com/aman-churiwal/ai-gateway/internal/server"
	"github.com/aman-churiwal/ai-gateway/internal/storage"
)

func main() {
	// Load env if it exists
	_ = godotenv.Load()

	configPath := os.Getenv("GATEWAY_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	logger.Info("config_loaded", "path", configPath, "config", cfg.Summary())

	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		fatal(logger, "redis_connect_failed", err)
	}
	defer redis.Close()

	logger.Info("redis_connected", "addr", cfg.Redis.GetRedisAddr())

	postgres, err := storage.NewPostgres(cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	if err != nil {
		fatal(logger, "database_connect_failed", err)
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		fatal(logger, "database_migrate_failed", err)
	}

	// Create server
	srv, err := server.New(cfg, redis, postgres, logger)
	if err != nil {
		fatal(logger, "server_init_failed", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Bootstrap(bootCtx); err != nil {
		logger.Warn("admin_bootstrap_failed", "err", err)
	}
	bootCancel()

	maintCtx, stopMaint := context.WithCancel(context.Background())
	defer stopMaint()
	srv.StartMaintenance(maintCtx)

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			fatal(logger, "server_failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server_forced_shutdown", "err", err)
	}

	logger.Info("server_exited")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
