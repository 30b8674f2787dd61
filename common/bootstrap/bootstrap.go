package bootstrap

import (
	"github.com/backhaul-io/backhaul/common/config"
	"github.com/backhaul-io/backhaul/common/logger"
)

// Setup initializes the components shared by both binaries.
// This is the main entry point for courier and depot.
func Setup(serviceName string, logCfg config.LogConfig, opts ...Option) *Components {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(logCfg.Level, logCfg.Format)
	}

	components.Logger.Info("initializing service", "service", serviceName)

	return components
}
