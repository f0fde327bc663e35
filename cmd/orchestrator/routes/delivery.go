package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/handlers"
)

// RegisterImageRoutes registers IIIF image delivery routes
func RegisterImageRoutes(e *echo.Echo, handler *handlers.ImageHandler) {
	// GET|HEAD /iiif-img/:customer/:space/:name/{region}/{size}/{rotation}/{quality}.{format}
	e.GET("/iiif-img/:customer/:space/:name/*", handler.GetImage)
	e.HEAD("/iiif-img/:customer/:space/:name/*", handler.GetImage)
}

// RegisterTimeBasedRoutes registers audio/video delivery routes
func RegisterTimeBasedRoutes(e *echo.Echo, handler *handlers.TimeBasedHandler) {
	// GET|HEAD /iiif-av/:customer/:space/:name/{rendition...}
	e.GET("/iiif-av/:customer/:space/:name/*", handler.GetRendition)
	e.HEAD("/iiif-av/:customer/:space/:name/*", handler.GetRendition)
}

// RegisterFileRoutes registers original-file delivery routes
func RegisterFileRoutes(e *echo.Echo, handler *handlers.FileHandler) {
	// GET|HEAD /file/:customer/:space/:name
	e.GET("/file/:customer/:space/:name", handler.GetFile)
	e.HEAD("/file/:customer/:space/:name", handler.GetFile)
}
