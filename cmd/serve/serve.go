// Package serve implements the HTTP service subcommand: the identification
// API plus the Prometheus metrics listener.
package serve

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fieldquest/fieldquest-go/internal/api"
	"github.com/fieldquest/fieldquest-go/internal/app"
	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the identification HTTP service",
		Long:  "Start the identification API and, when configured, the Prometheus metrics listener.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), settings)
		},
	}
}

func runServe(ctx context.Context, settings *conf.Settings) error {
	logger := logging.ForService("serve")

	application, err := app.New(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("Failed to close application resources", "error", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())

	controller := api.New(e, application.Service, settings, log.Default())
	defer controller.Shutdown()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + settings.WebServer.Port
		logger.Info("Starting identification API", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsServer *http.Server
	if settings.WebServer.MetricsPort != "" {
		mux := http.NewServeMux()
		application.Metrics.RegisterHandlers(mux)
		metricsServer = &http.Server{
			Addr:              ":" + settings.WebServer.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Starting metrics listener", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown failed", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown failed", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
