package bootstrap

import (
	"github.com/lyzr/chatflow/common/config"
	"github.com/lyzr/chatflow/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipRedis    bool
	skipQueue    bool
	skipDB       bool
	customLogger *logger.Logger
	customConfig *config.Config
}

// WithoutRedis skips Redis initialization (and implies no queue)
func WithoutRedis() Option {
	return func(o *options) {
		o.skipRedis = true
		o.skipQueue = true
	}
}

// WithoutQueue skips task queue initialization
func WithoutQueue() Option {
	return func(o *options) {
		o.skipQueue = true
	}
}

// WithoutDB skips database initialization even when enabled in config
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

func defaultOptions() *options {
	return &options{}
}
