package bootstrap

import (
	"github.com/backhaul-io/backhaul/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	customLogger *logger.Logger
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

func defaultOptions() *options {
	return &options{}
}
