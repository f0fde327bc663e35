package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/models"
)

// authCookieName is the per-customer cookie carrying the session token
const authCookieName = "dam-token-%d"

// parseAssetRequest extracts the asset id and caller credentials shared by
// every delivery route
func parseAssetRequest(c echo.Context, routePrefix string) (models.AssetRequest, error) {
	customer, err := strconv.Atoi(c.Param("customer"))
	if err != nil {
		return models.AssetRequest{}, fmt.Errorf("invalid customer %q", c.Param("customer"))
	}
	space, err := strconv.Atoi(c.Param("space"))
	if err != nil {
		return models.AssetRequest{}, fmt.Errorf("invalid space %q", c.Param("space"))
	}
	name := c.Param("name")
	if name == "" {
		return models.AssetRequest{}, fmt.Errorf("missing asset name")
	}

	return models.AssetRequest{
		RoutePrefix: routePrefix,
		Method:      c.Request().Method,
		RawPath:     c.Request().URL.Path,
		AssetID:     models.AssetID{Customer: customer, Space: space, Name: name},
		Credentials: extractCredentials(c, customer),
	}, nil
}

// extractCredentials pulls the bearer token and auth cookie off the request
func extractCredentials(c echo.Context, customer int) models.Credentials {
	creds := models.Credentials{}

	if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			creds.BearerToken = token
		}
	}
	if cookie, err := c.Cookie(fmt.Sprintf(authCookieName, customer)); err == nil {
		creds.CookieValue = cookie.Value
	}
	return creds
}

// pathArgs splits the wildcard remainder of a named-query route into
// positional template arguments
func pathArgs(c echo.Context) []string {
	rest := strings.Trim(c.Param("*"), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
