package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"rerank-pipeline/internal/adapter/api"
	"rerank-pipeline/internal/di"
	"rerank-pipeline/internal/infra"
	"rerank-pipeline/internal/infra/config"
	"rerank-pipeline/internal/infra/logger"
)

func main() {
	cfg := config.Load()

	shutdownOTel, err := logger.SetupOTelLogging(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up telemetry: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(ctx)
	}()

	log := logger.NewWithOTel(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "")
	slog.SetDefault(log)

	dsn := cfg.DSN() + "?sslmode=disable"
	dbPool, err := infra.NewPostgresDB(context.Background(), dsn)
	if err != nil {
		log.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	components := di.NewApplicationComponents(cfg, dbPool, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	// Propagate the request id into the request context so every record
	// logged downstream carries it.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logger.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request_handled",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
				slog.String("request_id", v.RequestID))
			return nil
		},
	}))
	e.Use(middleware.Recover())

	handler := api.NewHandler(
		components.RerankUsecase,
		components.TwoStageUsecase,
		components.HealthUsecase,
	)
	handler.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Info("starting_server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
