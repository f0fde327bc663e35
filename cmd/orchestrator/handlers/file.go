package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/service"
	"github.com/lumina/orchestrator/common/bootstrap"
)

// FileHandler handles original-file delivery requests
type FileHandler struct {
	components *bootstrap.Components
	routing    *service.RoutingEngine
	forwarder  *Forwarder
}

// NewFileHandler creates a new file handler
func NewFileHandler(components *bootstrap.Components, routing *service.RoutingEngine, forwarder *Forwarder) *FileHandler {
	return &FileHandler{
		components: components,
		routing:    routing,
		forwarder:  forwarder,
	}
}

// GetFile serves the stored original of an asset
// GET|HEAD /file/:customer/:space/:name
func (h *FileHandler) GetFile(c echo.Context) error {
	req, err := parseAssetRequest(c, "file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	action := h.routing.RouteFile(c.Request().Context(), &req)
	return h.forwarder.Execute(c, action)
}
