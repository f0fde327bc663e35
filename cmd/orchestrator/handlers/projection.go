package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/cmd/orchestrator/service"
	"github.com/lumina/orchestrator/common/bootstrap"
)

// ProjectionHandler serves stored projections (pdf and zip) built from
// named-query results
type ProjectionHandler struct {
	components     *bootstrap.Components
	conductor      *service.NamedQueryConductor
	manager        *service.ProjectionManager
	pdfCreator     *service.PDFCreator
	zipCreator     *service.ZipCreator
	pdfKeyTemplate string
	zipKeyTemplate string
}

// NewProjectionHandler creates a new projection handler
func NewProjectionHandler(
	components *bootstrap.Components,
	conductor *service.NamedQueryConductor,
	manager *service.ProjectionManager,
	pdfCreator *service.PDFCreator,
	zipCreator *service.ZipCreator,
) *ProjectionHandler {
	return &ProjectionHandler{
		components:     components,
		conductor:      conductor,
		manager:        manager,
		pdfCreator:     pdfCreator,
		zipCreator:     zipCreator,
		pdfKeyTemplate: components.Config.NamedQuery.PdfKeyTemplate,
		zipKeyTemplate: components.Config.NamedQuery.ZipKeyTemplate,
	}
}

// GetPDF serves the PDF projection of a named query
// GET /pdf/:customer/:queryName/*
func (h *ProjectionHandler) GetPDF(c echo.Context) error {
	return h.serveProjection(c, h.pdfKeyTemplate, h.pdfCreator, "application/pdf", ".pdf")
}

// GetZip serves the zip projection of a named query
// GET /zip/:customer/:queryName/*
func (h *ProjectionHandler) GetZip(c echo.Context) error {
	return h.serveProjection(c, h.zipKeyTemplate, h.zipCreator, "application/zip", ".zip")
}

// GetPDFControl returns the control file describing a PDF projection
// GET /pdf-control/:customer/:queryName/*
func (h *ProjectionHandler) GetPDFControl(c echo.Context) error {
	pq, _, httpErr := h.resolve(c, h.pdfKeyTemplate)
	if httpErr != nil {
		return httpErr
	}

	cf, err := h.manager.Describe(c.Request().Context(), pq)
	if err != nil {
		h.components.Logger.Error("failed to read control file", "key", pq.ControlFileKey, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read control file")
	}
	if cf == nil {
		return echo.NewHTTPError(http.StatusNotFound, "projection not yet created")
	}
	return c.JSON(http.StatusOK, cf)
}

func (h *ProjectionHandler) serveProjection(c echo.Context, keyTemplate string, creator service.ProjectionCreator, contentType, extension string) error {
	pq, assets, httpErr := h.resolve(c, keyTemplate)
	if httpErr != nil {
		return httpErr
	}

	customer := pq.Customer
	creds := extractCredentials(c, customer)
	result := h.manager.GetOrCreate(c.Request().Context(), pq, assets, creator, creds)

	switch result.Status {
	case service.ProjectionAvailable:
		defer result.Stream.Close()
		if result.RequiresAuth {
			c.Response().Header().Set("Cache-Control", "private")
		}
		c.Response().Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", downloadName(pq, extension)))
		return c.Stream(http.StatusOK, contentType, result.Stream)
	case service.ProjectionInProcess:
		c.Response().Header().Set("Retry-After", "10")
		return c.NoContent(http.StatusAccepted)
	case service.ProjectionRestricted:
		return echo.NewHTTPError(http.StatusUnauthorized, "projection is access controlled")
	case service.ProjectionNotFound:
		return echo.NewHTTPError(http.StatusNotFound, "query matched no assets")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "projection generation failed")
	}
}

// resolve parses the route and runs the named query, mapping the common
// failure modes to HTTP errors
func (h *ProjectionHandler) resolve(c echo.Context, keyTemplate string) (*models.StoredParsedNamedQuery, []models.AssetRecord, *echo.HTTPError) {
	customer, err := strconv.Atoi(c.Param("customer"))
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid customer")
	}
	queryName := c.Param("queryName")

	pq, assets, err := h.conductor.ResolveStored(c.Request().Context(), customer, queryName, pathArgs(c), keyTemplate)
	if err != nil {
		h.components.Logger.Error("projection query resolution failed",
			"customer", customer, "query", queryName, "error", err)
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "query resolution failed")
	}
	if pq == nil {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, "no such named query")
	}
	if pq.IsFaulty {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, pq.ErrorMessage)
	}
	return pq, assets, nil
}

func downloadName(pq *models.StoredParsedNamedQuery, extension string) string {
	if pq.ObjectName != "" {
		return pq.ObjectName
	}
	return pq.Name + extension
}
