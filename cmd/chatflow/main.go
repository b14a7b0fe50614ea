package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/chatflow/cmd/chatflow/agent"
	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/llm"
	"github.com/lyzr/chatflow/cmd/chatflow/middleware"
	"github.com/lyzr/chatflow/cmd/chatflow/routes"
	"github.com/lyzr/chatflow/common/bootstrap"
	"github.com/lyzr/chatflow/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (logger, redis, queue, streams, db)
	components, err := bootstrap.Setup(ctx, "chatflow")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap chatflow: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	model, err := buildModel(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize llm client: %v\n", err)
		os.Exit(1)
	}

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components, model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	if err := serviceContainer.StartWorkers(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start workers: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	startServer(e, serviceContainer)
}

// buildModel creates the chat model from the LLM configuration
func buildModel(components *bootstrap.Components) (agent.ChatModel, error) {
	return llm.NewOpenAI(components.Config.LLM, components.Logger)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.Trace())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ctx echo.Context) error {
		status := "ok"
		if err := c.Components.Health(ctx.Request().Context()); err != nil {
			status = "degraded"
		}
		return ctx.JSON(200, map[string]string{
			"status":  status,
			"service": "chatflow",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterChatRoutes(e, serviceContainer)
	routes.RegisterWorkflowRoutes(e, serviceContainer)
	routes.RegisterKnowledgeRoutes(e, serviceContainer)
	routes.RegisterPromptRoutes(e, serviceContainer)
}

// startServer serves HTTP until shutdown, then drains workers
func startServer(e *echo.Echo, serviceContainer *container.Container) {
	components := serviceContainer.Components
	srv := server.New("chatflow", components.Config.Service.Port, e, components.Logger)
	srv.OnShutdown = append(srv.OnShutdown, func(context.Context) {
		serviceContainer.StopWorkers()
	})

	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
