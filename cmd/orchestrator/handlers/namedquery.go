package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/service"
	"github.com/lumina/orchestrator/common/bootstrap"
)

// NamedQueryHandler resolves stored named queries to asset listings
type NamedQueryHandler struct {
	components *bootstrap.Components
	conductor  *service.NamedQueryConductor
}

// NewNamedQueryHandler creates a new named-query handler
func NewNamedQueryHandler(components *bootstrap.Components, conductor *service.NamedQueryConductor) *NamedQueryHandler {
	return &NamedQueryHandler{components: components, conductor: conductor}
}

type namedQueryItem struct {
	ID       string `json:"id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// GetResults runs a named query and returns the matching assets
// GET /named-query/:customer/:queryName/*
func (h *NamedQueryHandler) GetResults(c echo.Context) error {
	customer, err := strconv.Atoi(c.Param("customer"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid customer")
	}
	queryName := c.Param("queryName")

	result, err := h.conductor.Resolve(c.Request().Context(), customer, queryName, pathArgs(c))
	if err != nil {
		h.components.Logger.Error("named query resolution failed",
			"customer", customer, "query", queryName, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "query resolution failed")
	}
	if result == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no such named query")
	}
	if result.ParsedQuery.IsFaulty {
		return echo.NewHTTPError(http.StatusBadRequest, result.ParsedQuery.ErrorMessage)
	}

	items := make([]namedQueryItem, 0, len(result.Results))
	for i := range result.Results {
		record := &result.Results[i]
		items = append(items, namedQueryItem{
			ID:       record.ID.String(),
			Width:    record.Width,
			Height:   record.Height,
			Duration: record.Duration,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"query":   queryName,
		"results": items,
	})
}
