package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/cmd/orchestrator/service"
	"github.com/lumina/orchestrator/common/bootstrap"
)

// TimeBasedHandler handles audio/video rendition delivery requests
type TimeBasedHandler struct {
	components *bootstrap.Components
	routing    *service.RoutingEngine
	forwarder  *Forwarder
}

// NewTimeBasedHandler creates a new timebased handler
func NewTimeBasedHandler(components *bootstrap.Components, routing *service.RoutingEngine, forwarder *Forwarder) *TimeBasedHandler {
	return &TimeBasedHandler{
		components: components,
		routing:    routing,
		forwarder:  forwarder,
	}
}

// GetRendition serves a transcoded rendition
// GET|HEAD /iiif-av/:customer/:space/:name/*
func (h *TimeBasedHandler) GetRendition(c echo.Context) error {
	base, err := parseAssetRequest(c, "iiif-av")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rendition := c.Param("*")
	if rendition == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing rendition path")
	}

	req := &models.TimeBasedRequest{AssetRequest: base, RenditionPath: rendition}
	action := h.routing.RouteTimeBased(c.Request().Context(), req)
	return h.forwarder.Execute(c, action)
}
