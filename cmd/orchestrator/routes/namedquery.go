package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/handlers"
)

// RegisterNamedQueryRoutes registers named-query listing routes
func RegisterNamedQueryRoutes(e *echo.Echo, handler *handlers.NamedQueryHandler) {
	// GET /named-query/:customer/:queryName/{args...}
	e.GET("/named-query/:customer/:queryName/*", handler.GetResults)
	e.GET("/named-query/:customer/:queryName", handler.GetResults)
}

// RegisterProjectionRoutes registers stored projection routes
func RegisterProjectionRoutes(e *echo.Echo, handler *handlers.ProjectionHandler) {
	// GET /pdf/:customer/:queryName/{args...} - stream the PDF projection
	e.GET("/pdf/:customer/:queryName/*", handler.GetPDF)
	// GET /pdf-control/:customer/:queryName/{args...} - projection state
	e.GET("/pdf-control/:customer/:queryName/*", handler.GetPDFControl)
	// GET /zip/:customer/:queryName/{args...} - stream the zip projection
	e.GET("/zip/:customer/:queryName/*", handler.GetZip)
}
