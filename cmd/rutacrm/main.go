package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruta-crm/ruta-crm/internal/admin"
	"github.com/ruta-crm/ruta-crm/internal/app"
	"github.com/ruta-crm/ruta-crm/internal/clients"
	"github.com/ruta-crm/ruta-crm/internal/feed"
	"github.com/ruta-crm/ruta-crm/internal/geo"
	"github.com/ruta-crm/ruta-crm/internal/identity"
	"github.com/ruta-crm/ruta-crm/internal/platform/cache"
	"github.com/ruta-crm/ruta-crm/internal/platform/db"
	"github.com/ruta-crm/ruta-crm/internal/sales"
	"github.com/ruta-crm/ruta-crm/internal/shared"
	"github.com/ruta-crm/ruta-crm/internal/visits"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	bus := feed.NewBus(redisClient, logger)
	auditLogger := shared.NewAuditLogger(pool)
	provider := positionProvider(cfg)

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, redisClient, cfg.SessionTTL)
	identityHandler := identity.NewHandler(logger, identityService)

	clientsRepo := clients.NewRepository(pool)
	clientsService := clients.NewService(clientsRepo, bus)
	clientsHandler := clients.NewHandler(logger, clientsService)

	salesRepo := sales.NewRepository(pool)
	ledger := sales.NewLedger(salesRepo, bus, nil)

	visitsRepo := visits.NewRepository(pool)
	visitsService := visits.NewService(visitsRepo, clientsService, ledger, bus, provider, auditLogger)
	visitsHandler := visits.NewHandler(logger, visitsService)

	adminRepo := admin.NewRepository(pool)
	adminService := admin.NewService(adminRepo, ledger, bus, auditLogger)
	adminHandler := admin.NewHandler(logger, adminService)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		IdentityHandler: identityHandler,
		ClientsHandler:  clientsHandler,
		VisitsHandler:   visitsHandler,
		AdminHandler:    adminHandler,
		ActorMiddleware: identity.Middleware(identityService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func positionProvider(cfg *app.Config) geo.Provider {
	switch cfg.GeoMode {
	case "denied":
		return geo.Denied{}
	case "pending":
		return geo.Pending{}
	default:
		return geo.Static{Position: geo.Position{Latitude: cfg.GeoLat, Longitude: cfg.GeoLng, Accuracy: 10}}
	}
}
