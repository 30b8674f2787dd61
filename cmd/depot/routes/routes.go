package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/backhaul-io/backhaul/cmd/depot/container"
)

// RegisterBackupRoutes registers ingest-related routes
func RegisterBackupRoutes(e *echo.Echo, c *container.Container) {
	// POST /backup - receive one backup artifact
	e.POST("/backup", c.BackupHandler.Receive)
}

// RegisterStatsRoutes registers observability routes
func RegisterStatsRoutes(e *echo.Echo, c *container.Container) {
	// GET /stats - retention stats, optionally scoped with ?stream=
	e.GET("/stats", c.StatsHandler.Get)

	// GET /health - liveness probe
	e.GET("/health", c.HealthHandler.Check)
}
