package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"netedge-siem/internal/auth"
	"netedge-siem/internal/correlation"
	"netedge-siem/internal/device"
	"netedge-siem/internal/docstore"
	"netedge-siem/internal/ingestion"
	"netedge-siem/internal/relstore"
	"netedge-siem/internal/response"
	"netedge-siem/pkg/config"
	"netedge-siem/pkg/database"
	"netedge-siem/pkg/health"
	"netedge-siem/pkg/logger"
	"netedge-siem/pkg/metrics"
	"netedge-siem/pkg/redis"
	"netedge-siem/pkg/redisutil"
)

func main() {
	cfg, err := config.Load("siem-core")
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	log := logger.New(cfg.LogLevel, cfg.ServiceName)

	db, err := database.NewPostgres(cfg.Database.URL)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(cfg.Redis.URL)
	if err != nil {
		log.Fatal("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	store := docstore.New(cfg.ElasticsearchBaseURL(), log)
	rel := relstore.New(db, log)

	metricsCollector := metrics.NewCollector(cfg.ServiceName)
	healthChecker := health.New()
	healthChecker.AddCheck("database", database.HealthCheck(db))
	healthChecker.AddCheck("redis", redis.HealthCheck(redisClient))
	healthChecker.AddCheck("docstore", store.HealthCheck)

	deviceSvc := device.New(rel, auth.NoopCipher{}, log, cfg.Device.RPCRatePerSecond)
	orchestrator := response.New(rel, rel, deviceSvc, log)

	cycleLock := redisutil.NewCycleLock(redisClient, correlation.CycleLockKey, time.Duration(cfg.Correlation.IntervalSeconds)*time.Second)
	engine := correlation.New(store, rel, rel, orchestrator, cycleLock, log)

	ingestionSvc := ingestion.New(
		fmt.Sprintf(":%d", cfg.Ingestion.SyslogUDPPort),
		fmt.Sprintf(":%d", cfg.Ingestion.NetflowUDPPort),
		cfg.Ingestion.WorkerPoolSize,
		store, log, metricsCollector,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ingestionSvc.Start(ctx); err != nil {
		log.Fatal("failed to start ingestion listeners", "error", err)
	}

	correlationTicker := time.NewTicker(time.Duration(cfg.Correlation.IntervalSeconds) * time.Second)
	defer correlationTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-correlationTicker.C:
				if err := engine.RunCycle(ctx); err != nil {
					log.Error("correlation cycle failed", "error", err)
				}
			}
		}
	}()

	if cfg.Device.StatusPollIntervalSeconds > 0 {
		go deviceSvc.PollStatuses(ctx, rel.EnabledDeviceIDs, time.Duration(cfg.Device.StatusPollIntervalSeconds)*time.Second)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", health.HandlerFunc(healthChecker))
	router.GET("/ready", health.ReadinessHandlerFunc(healthChecker))
	router.GET("/metrics", metrics.HandlerFunc())

	corsMiddleware := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: corsMiddleware.Handler(router),
	}

	go func() {
		log.Info("starting siem-core", "port", cfg.Port,
			"syslog_port", cfg.Ingestion.SyslogUDPPort, "netflow_port", cfg.Ingestion.NetflowUDPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down siem-core...")
	cancel()
	ingestionSvc.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("siem-core stopped")
}
