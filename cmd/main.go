package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Xalid7/oshxona/internal/account"
	"github.com/Xalid7/oshxona/internal/catalog"
	"github.com/Xalid7/oshxona/internal/handler"
	"github.com/Xalid7/oshxona/internal/inventory"
	mid "github.com/Xalid7/oshxona/internal/middleware"
	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/report"
	"github.com/Xalid7/oshxona/internal/store/gormstore"
	"github.com/Xalid7/oshxona/internal/store/memory"
	"github.com/Xalid7/oshxona/pkg/config"
	"github.com/Xalid7/oshxona/pkg/database"
	"github.com/Xalid7/oshxona/pkg/jwtutil"
	"github.com/Xalid7/oshxona/pkg/logger"
	"github.com/Xalid7/oshxona/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// kitchenStore is what every service needs from persistence
type kitchenStore interface {
	inventory.Store
	catalog.Store
	report.Store
	account.Store
	handler.Pinger
	Close() error
}

func main() {
	// Load configuration (.env is optional)
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(appConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting "+config.ServiceName, appConfig.LogConfig()...)

	metrics := prometheus.InitMetrics(appConfig.Metrics.Prefix)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	st, err := openStore(appConfig, metrics, log)
	if err != nil {
		log.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	tokens := jwtutil.NewJWTUtil(&appConfig.JWT)
	log.Info("JWT utility initialized")

	accounts := account.NewService(st, tokens, log.Named("account"),
		account.WithAuthRecorder(metrics))
	h := handler.New(
		catalog.NewService(st, log.Named("catalog")),
		inventory.NewService(st, log.Named("inventory"), inventory.WithRecorder(metrics)),
		report.NewService(st, log.Named("report"), report.WithUsageDays(appConfig.Report.UsageDays)),
		accounts,
		st,
	)

	seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := accounts.EnsureAdmin(seedCtx, appConfig.Admin.Username, appConfig.Admin.Email, appConfig.Admin.Password); err != nil {
		cancel()
		log.Fatal("Failed to seed admin account", zap.Error(err))
	}
	cancel()

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(mid.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(mid.MetricsMiddleware(metrics))

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	h.RegisterRoutes(e, tokens)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		port := appConfig.Server.Port
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config, metrics *prometheus.Metrics, log *zap.Logger) (kitchenStore, error) {
	if cfg.Store.Driver == config.DriverMemory {
		log.Warn("Using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	db, err := database.InitDB(&cfg.DB, log)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateModels(db, model.All()...); err != nil {
		return nil, err
	}
	log.Info("Database migrations completed")

	if err := metrics.InstrumentDB(db); err != nil {
		return nil, err
	}
	return gormstore.New(db), nil
}
