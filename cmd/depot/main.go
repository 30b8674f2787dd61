package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"github.com/backhaul-io/backhaul/cmd/depot/container"
	"github.com/backhaul-io/backhaul/cmd/depot/routes"
	"github.com/backhaul-io/backhaul/common/bootstrap"
	"github.com/backhaul-io/backhaul/common/config"
	"github.com/backhaul-io/backhaul/common/metrics"
	"github.com/backhaul-io/backhaul/common/server"
)

func main() {
	configPath := pflag.StringP("config", "c", "depot.yaml", "path to depot config file")
	pflag.Parse()

	cfg, err := config.LoadDepot(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	components := bootstrap.Setup("depot", cfg.Log)
	defer components.Shutdown(context.Background())

	// Initialize service container (all services created once)
	serviceContainer, err := container.NewContainer(components, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Initialize Echo server
	e := setupEcho()
	setupMiddleware(e)
	registerRoutes(e, serviceContainer, cfg)

	// Start with graceful shutdown
	srv := server.New("depot", cfg.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container, cfg *config.DepotConfig) {
	routes.RegisterBackupRoutes(e, serviceContainer)
	routes.RegisterStatsRoutes(e, serviceContainer)

	if cfg.Metrics.Enabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
}
