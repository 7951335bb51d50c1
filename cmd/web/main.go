// Package main is the smallest Pulse integration: one Echo app, the
// request middleware, two pages. It is the quickest way to verify a
// collector is reachable and a reasonable starting point to copy from.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/pulsemetric/pulse/domain/tracing"
	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/pkg/apm/apmecho"
	"github.com/pulsemetric/pulse/pkg/logger"
)

func main() {
	// Load .env if present (for local development)
	_ = godotenv.Load(".env")

	log := logger.NewLogger()

	cfg, err := config.NewConfig(log)
	if err != nil {
		log.Error("loading config failed", logger.Error(err))
		os.Exit(1)
	}

	tracer, err := tracing.NewTracer("pulse-demo-web", cfg, log)
	if err != nil {
		log.Error("creating tracer failed", logger.Error(err))
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(apmecho.Middleware(tracer))

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Welcome to the home page!")
	})
	e.GET("/about", func(c echo.Context) error {
		return c.String(http.StatusOK, "This is the about page.")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerAddress, cfg.WebPort)
		log.Info("starting web server", slog.String("address", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", logger.Error(err))
	}
	if err := tracer.Close(shutdownCtx); err != nil {
		log.Error("tracer close failed", logger.Error(err))
	}
}
