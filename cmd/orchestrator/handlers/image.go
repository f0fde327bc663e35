package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/cmd/orchestrator/service"
	"github.com/lumina/orchestrator/common/bootstrap"
)

// ImageHandler handles IIIF image delivery requests
type ImageHandler struct {
	components *bootstrap.Components
	routing    *service.RoutingEngine
	forwarder  *Forwarder
}

// NewImageHandler creates a new image handler
func NewImageHandler(components *bootstrap.Components, routing *service.RoutingEngine, forwarder *Forwarder) *ImageHandler {
	return &ImageHandler{
		components: components,
		routing:    routing,
		forwarder:  forwarder,
	}
}

// GetImage serves an image derivative
// GET|HEAD /iiif-img/:customer/:space/:name/{region}/{size}/{rotation}/{quality}.{format}
func (h *ImageHandler) GetImage(c echo.Context) error {
	base, err := parseAssetRequest(c, "iiif-img")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	params, err := models.ParseIIIFParams(c.Param("*"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	req := &models.ImageRequest{AssetRequest: base, IIIF: params}
	action := h.routing.RouteImage(c.Request().Context(), req)
	return h.forwarder.Execute(c, action)
}
