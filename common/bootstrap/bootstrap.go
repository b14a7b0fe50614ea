package bootstrap

import (
	"context"
	"fmt"

	"github.com/lyzr/chatflow/common/config"
	"github.com/lyzr/chatflow/common/db"
	"github.com/lyzr/chatflow/common/logger"
	"github.com/lyzr/chatflow/common/queue"
	"github.com/lyzr/chatflow/common/redis"
	"github.com/lyzr/chatflow/common/stream"
)

// Setup initializes shared service components: config, logger, Redis, the
// task queue, the stream buffer registry, and (when enabled) the database.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.NewWithOptions(logger.Options{
			Level:         components.Config.Logging.Level,
			JSONFormat:    components.Config.Logging.JSONFormat,
			EnableConsole: components.Config.Logging.EnableConsole,
			EnableFile:    components.Config.Logging.EnableFile,
			Dir:           components.Config.Logging.Dir,
		})
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	if !options.skipRedis {
		components.Redis, err = redis.NewFromURL(
			components.Config.Redis.URL,
			components.Config.Redis.PoolSize,
			components.Logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		if err := components.Redis.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	if !options.skipQueue && components.Config.Queue.Enabled {
		components.Queue = queue.NewClient(components.Redis, components.Logger)
	}

	components.Streams = stream.NewRegistry()

	if !options.skipDB && components.Config.Database.Enabled {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			_ = components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"db", components.DB != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
