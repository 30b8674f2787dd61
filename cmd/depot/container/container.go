package container

import (
	"fmt"

	"github.com/backhaul-io/backhaul/cmd/depot/handlers"
	"github.com/backhaul-io/backhaul/cmd/depot/service"
	"github.com/backhaul-io/backhaul/common/bootstrap"
	"github.com/backhaul-io/backhaul/common/config"
	"github.com/backhaul-io/backhaul/common/metrics"
)

// Container holds all initialized services and handlers (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Services
	Store *service.Store

	// Handlers
	BackupHandler *handlers.BackupHandler
	StatsHandler  *handlers.StatsHandler
	HealthHandler *handlers.HealthHandler
}

// NewContainer initializes all services and handlers once
func NewContainer(components *bootstrap.Components, cfg *config.DepotConfig) (*Container, error) {
	var depotMetrics metrics.DepotMetrics = metrics.Noop{}
	if cfg.Metrics.Enabled {
		depotMetrics = metrics.NewDepotProm("backhaul_depot")
	}

	specs := make(map[string]service.StreamSpec, len(cfg.Streams))
	for name, stream := range cfg.Streams {
		specs[name] = service.StreamSpec{
			ArchiveDir:  stream.ArchivePath,
			BudgetBytes: stream.BudgetBytes(),
			MaxSizeGB:   stream.MaxSizeGB,
		}
	}

	store, err := service.NewStore(specs, components.Logger, depotMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return &Container{
		Components:    components,
		Store:         store,
		BackupHandler: handlers.NewBackupHandler(components, store),
		StatsHandler:  handlers.NewStatsHandler(components, store),
		HealthHandler: handlers.NewHealthHandler(),
	}, nil
}
