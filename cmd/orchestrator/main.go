package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lumina/orchestrator/cmd/orchestrator/container"
	"github.com/lumina/orchestrator/cmd/orchestrator/routes"
	"github.com/lumina/orchestrator/common/bootstrap"
	commonmw "github.com/lumina/orchestrator/common/middleware"
	"github.com/lumina/orchestrator/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, logger, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "orchestrator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap orchestrator: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}
	defer serviceContainer.Close()

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, serviceContainer)

	// Setup health check
	setupHealthCheck(e, serviceContainer)

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start server
	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, serviceContainer *container.Container) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	rl := serviceContainer.Components.Config.RateLimit
	if rl.Enabled {
		e.Use(commonmw.GlobalRateLimitMiddleware(serviceContainer.RateLimiter, int64(rl.GlobalPerMinute)))
		e.Use(commonmw.CustomerRateLimitMiddleware(serviceContainer.RateLimiter, int64(rl.CustomerPerMinute)))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, serviceContainer *container.Container) {
	e.GET("/health", func(c echo.Context) error {
		if err := serviceContainer.Components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "orchestrator",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterImageRoutes(e, serviceContainer.ImageHandler)
	routes.RegisterTimeBasedRoutes(e, serviceContainer.TimeBasedHandler)
	routes.RegisterFileRoutes(e, serviceContainer.FileHandler)
	routes.RegisterNamedQueryRoutes(e, serviceContainer.NamedQueryHandler)
	routes.RegisterProjectionRoutes(e, serviceContainer.ProjectionHandler)
}

// startServer runs the Echo server behind the graceful shutdown wrapper
func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New("orchestrator", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
