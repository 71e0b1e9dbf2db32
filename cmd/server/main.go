package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayhq/pushcore/internal/aggregate"
	"github.com/relayhq/pushcore/internal/config"
	"github.com/relayhq/pushcore/internal/device"
	"github.com/relayhq/pushcore/internal/ledger"
	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/provider/fcm"
	"github.com/relayhq/pushcore/internal/provider/natspush"
	"github.com/relayhq/pushcore/internal/provider/snspush"
	"github.com/relayhq/pushcore/internal/routing"
	"github.com/relayhq/pushcore/internal/storage/pg"
	"github.com/relayhq/pushcore/internal/sweeper"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("starting push delivery engine",
		slog.String("instance_id", logger.GetInstanceID()),
		slog.String("port", cfg.Port))

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		ledgerStore ledger.Store
		deviceStore device.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := pg.InitDatabase(pg.Config{
			URL:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			log.Error("failed to initialize database", slog.String("error", err.Error()))
			return
		}
		defer db.Close()
		ledgerStore = ledger.NewPGStore(db)
		deviceStore = device.NewPGStore(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores (records do not survive restart)")
		ledgerStore = ledger.NewMemoryStore()
		deviceStore = device.NewMemoryStore()
	}

	ledgerService := ledger.NewService(ledgerStore, log)

	// Providers. A transport that fails to initialize is skipped, not fatal:
	// the engine runs with whatever subset is reachable.
	registry := provider.NewRegistry()

	if cfg.Providers.FCM.Enabled && cfg.FirebaseProjectID != "" {
		fcmProvider := fcm.New(fcm.Config{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredJSON,
			SendTimeout:     cfg.Providers.FCM.SendTimeout(cfg.SendTimeout),
			BulkConcurrency: cfg.Providers.FCM.BulkConcurrency,
		}, log)
		registerProvider(ctx, registry, fcmProvider, log)
	}

	var natsProvider *natspush.Provider
	if cfg.Providers.NATS.Enabled && cfg.NatsURL != "" {
		natsProvider = natspush.New(natspush.Config{
			URL:             cfg.NatsURL,
			SubjectPrefix:   cfg.NatsSubjectPrefix,
			SendTimeout:     cfg.Providers.NATS.SendTimeout(cfg.SendTimeout),
			BulkConcurrency: cfg.Providers.NATS.BulkConcurrency,
		}, log)
		if !registerProvider(ctx, registry, natsProvider, log) {
			natsProvider = nil
		}
	}

	if cfg.Providers.SNS.Enabled && cfg.SNSRegion != "" {
		snsProvider := snspush.New(snspush.Config{
			Region:          cfg.SNSRegion,
			SendTimeout:     cfg.Providers.SNS.SendTimeout(cfg.SendTimeout),
			BulkConcurrency: cfg.Providers.SNS.BulkConcurrency,
		}, log)
		registerProvider(ctx, registry, snsProvider, log)
	}

	if len(registry.Platforms()) == 0 {
		log.Warn("no providers registered, dispatches will fail until one is configured")
	}

	engine := routing.NewEngine(registry, ledgerService, deviceStore, log, cfg.SendTimeout)

	sweep := sweeper.New(ledgerStore, log, cfg.SweepInterval)
	if err := sweep.Start(); err != nil {
		log.Error("failed to start sweeper", slog.String("error", err.Error()))
		return
	}
	defer sweep.Stop()

	// Handlers
	routingHandler := routing.NewHandler(engine)
	ledgerHandler := ledger.NewHandler(ledgerService)
	deviceHandler := device.NewHandler(deviceStore)
	aggregateHandler := aggregate.NewHandler(aggregate.NewService(ledgerStore))
	providerHandler := provider.NewHandler(registry)

	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", providerHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/dispatch", routingHandler.Dispatch)
		api.POST("/dispatch/bulk", routingHandler.DispatchBulk)

		// Device-facing acknowledgment: no auth beyond the message id.
		api.POST("/ack", ledgerHandler.Acknowledge)
		api.GET("/messages/:messageID", ledgerHandler.GetRecord)

		api.GET("/stats", aggregateHandler.Stats)

		devices := api.Group("/devices")
		{
			devices.PUT("/:deviceID", deviceHandler.UpsertTarget)
			devices.GET("/:deviceID", deviceHandler.GetTarget)
			devices.PUT("/:deviceID/capabilities", deviceHandler.UpdateCapabilities)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			stop()
		}
	}()
	log.Info("server listening", slog.String("addr", srv.Addr))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", slog.String("error", err.Error()))
	}

	if natsProvider != nil {
		natsProvider.Close()
	}
}

// registerProvider initializes and registers one transport, logging instead
// of failing the process when it is unreachable.
func registerProvider(ctx context.Context, registry *provider.Registry, p provider.Provider, log *logger.Logger) bool {
	if err := p.Initialize(ctx); err != nil {
		log.Error("provider initialization failed, skipping",
			slog.String("platform", string(p.Platform())),
			slog.String("error", err.Error()))
		return false
	}
	if err := registry.Register(p); err != nil {
		log.Error("provider registration failed",
			slog.String("platform", string(p.Platform())),
			slog.String("error", err.Error()))
		return false
	}
	return true
}
