package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/aman-churiwal/ai-gateway/internal/config"
	"github.com/aman-churiwal/ai-gateway/internal/credential"
	"github.com/aman-churiwal/ai-gateway/internal/handler"
	"github.com/aman-churiwal/ai-gateway/internal/healthcheck"
	"github.com/aman-churiwal/ai-gateway/internal/middleware"
	"github.com/aman-churiwal/ai-gateway/internal/prompts"
	"github.com/aman-churiwal/ai-gateway/internal/provider"
	"github.com/aman-churiwal/ai-gateway/internal/quota"
	"github.com/aman-churiwal/ai-gateway/internal/ratelimit"
	"github.com/aman-churiwal/ai-gateway/internal/repository"
	"github.com/aman-churiwal/ai-gateway/internal/respcache"
	"github.com/aman-churiwal/ai-gateway/internal/service"
	"github.com/aman-churiwal/ai-gateway/internal/storage"
	"github.com/aman-churiwal/ai-gateway/internal/usage"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	logger     *slog.Logger
	health     *healthcheck.Checker
	recorder   *usage.Recorder
	providers  *provider.Router
	auth       *service.AuthService
	analytics  *service.AnalyticsService
	httpServer *http.Server
}

// New wires every gateway component onto the given stores.
func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	masterKey, err := cfg.Credentials.DecodedMasterKey()
	if err != nil {
		// every provider resolves as not configured until a key is set
		logger.Warn("master_key_unusable", "err", err)
		masterKey = nil
	}
	creds := credential.NewStore(repository.NewSecretRepository(postgres), cfg.Credentials.RecordID, masterKey, logger)

	client := &http.Client{Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}}
	entries, err := provider.BuildEntries(cfg.Providers, client, logger)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	providers := provider.NewRouter(creds, logger, entries...)

	catalog, err := prompts.Load()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	usageRepo := repository.NewUsageLogRepository(postgres)
	recorder := usage.NewRecorder(usageRepo, usage.Options{
		BufferSize:    cfg.Usage.BufferSize,
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: cfg.Usage.FlushInterval.Std(),
	}, logger)

	principals := service.NewPrincipalService(repository.NewPrincipalRepository(postgres), redis, logger)
	gateway := service.NewGateway(
		principals,
		quota.NewLedger(redis, cfg.Quota.DailyLimit, cfg.Quota.RetentionDays),
		respcache.New(redis, cfg.Cache.Prefix, cfg.Cache.TTL.Std(), logger),
		providers,
		catalog,
		recorder,
		service.GatewayOptions{Operations: cfg.Operations, DigestPrefix: cfg.Usage.DigestPrefix},
		logger,
	)

	s := &Server{
		router:    gin.New(),
		config:    cfg,
		redis:     redis,
		postgres:  postgres,
		logger:    logger,
		recorder:  recorder,
		providers: providers,
		auth:      service.NewAuthService(repository.NewAuthRepository(postgres), cfg.Admin.JWTSecret, cfg.Admin.JWTExpiryHours),
		analytics: service.NewAnalyticsService(usageRepo),
		health: healthcheck.NewChecker(healthcheck.Config{
			Probes: []healthcheck.Probe{
				{Name: "redis", Check: redis.Ping},
				{Name: "database", Check: postgres.Ping},
				{Name: "providers", Check: providers.Ready},
			},
			Logger: logger,
		}),
	}

	s.setupMiddleware()
	s.setupRoutes(handler.NewGatewayHandler(gateway), handler.NewSystemHandler(providers, creds), handler.NewPrincipalHandler(principals))

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS(s.config.Server.CORSOrigins))
}

func (s *Server) setupRoutes(gw *handler.GatewayHandler, system *handler.SystemHandler, principals *handler.PrincipalHandler) {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := ratelimit.NewLimiter(s.config.Server.ThrottleBackend, s.redis, s.config.Server.ThrottleRPS, s.config.Server.ThrottleBurst)

	v1 := s.router.Group("/v1", middleware.Throttle(limiter), middleware.RequirePrincipal())
	{
		v1.POST("/chat", gw.Chat)
		v1.POST("/lookup/food", gw.LookupFood)
		v1.POST("/triage", gw.Triage)
		v1.GET("/quota", gw.Quota)
	}

	authHandler := handler.NewAuthHandler(s.auth)
	analyticsHandler := handler.NewAnalyticsHandler(s.analytics)

	s.router.POST("/admin/login", middleware.Throttle(limiter), authHandler.Login)

	admin := s.router.Group("/admin", middleware.RequireAuth(s.auth))
	{
		admin.GET("/status", s.adminStatus)
		admin.POST("/credentials/invalidate", system.InvalidateCredentials)
		admin.GET("/providers", system.CircuitBreakerStatus)
		admin.POST("/providers/:id/reset", system.ResetCircuitBreaker)
		admin.GET("/usage/summary", analyticsHandler.GetSummary)
		admin.GET("/usage/logs", analyticsHandler.GetLogs)
		admin.GET("/principals", principals.List)
		admin.PUT("/principals/:id/tier", principals.UpdateTier)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	overall := s.health.Check(c.Request.Context())

	statusCode := http.StatusOK
	if overall != healthcheck.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overall.String(),
		"service":   "ai-gateway",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks":    s.health.GetAllStatus(),
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gateway":     "running",
		"providers":   s.providers.Providers(),
		"daily_limit": s.config.Quota.DailyLimit,
		"uptime":      time.Since(startTime).Seconds(),
		"timestamp":   time.Now().Unix(),
	})
}

// Bootstrap creates the first admin user when configured to.
func (s *Server) Bootstrap(ctx context.Context) error {
	created, err := s.auth.EnsureAdmin(ctx, s.config.Admin.BootstrapEmail, s.config.Admin.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		s.logger.Info("admin_bootstrapped", "email", s.config.Admin.BootstrapEmail)
	}
	return nil
}

// StartMaintenance prunes usage logs past their retention once a day.
func (s *Server) StartMaintenance(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deleted, err := s.analytics.CleanupOldLogs(ctx, s.config.Usage.RetentionDays)
				if err != nil {
					s.logger.Warn("usage_cleanup_failed", "err", err)
					continue
				}
				s.logger.Info("usage_cleanup_done", "deleted", deleted)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Server) Run(addr string) error {
	var h http.Handler = s.router
	if s.config.Server.HTTP2 {
		h = h2c.NewHandler(s.router, &http2.Server{})
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  s.config.Server.ReadTimeout.Std(),
		WriteTimeout: s.config.Server.WriteTimeout.Std(),
		IdleTimeout:  60 * time.Second,
	}

	s.health.Start()
	s.logger.Info("server_starting", "addr", addr, "environment", s.config.Server.Environment, "h2c", s.config.Server.HTTP2)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then drains queued usage entries.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server_shutting_down")
	s.health.Stop()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	if rerr := s.recorder.Close(ctx); rerr != nil {
		s.logger.Warn("usage_drain_incomplete", "err", rerr)
	}

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
