package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/logger"
)

// passthroughHeaders are copied from the upstream response to the caller
var passthroughHeaders = []string{
	echo.HeaderContentType,
	echo.HeaderContentLength,
	"Content-Disposition",
	"ETag",
	"Last-Modified",
	"Accept-Ranges",
	"Content-Range",
}

// Forwarder executes proxy actions: it writes terminal status codes and
// streams forwarded responses from the decided destination. The routing
// engine decides, the forwarder moves bytes.
type Forwarder struct {
	imageServerRoot string
	thumbsRoot      string
	client          *http.Client
	log             *logger.Logger
}

// NewForwarder creates a new forwarder
func NewForwarder(imageServerRoot, thumbsRoot string, log *logger.Logger) *Forwarder {
	return &Forwarder{
		imageServerRoot: imageServerRoot,
		thumbsRoot:      thumbsRoot,
		client:          &http.Client{Timeout: 2 * time.Minute},
		log:             log,
	}
}

// Execute carries out a proxy action against the caller's response
func (f *Forwarder) Execute(c echo.Context, action models.ProxyAction) error {
	switch a := action.(type) {
	case *models.StatusCodeAction:
		for key, values := range a.Headers {
			for _, value := range values {
				c.Response().Header().Add(key, value)
			}
		}
		return c.NoContent(a.StatusCode)
	case *models.ForwardAction:
		return f.forward(c, a)
	default:
		f.log.Error("unknown proxy action", "action", fmt.Sprintf("%T", action))
		return echo.NewHTTPError(http.StatusInternalServerError, "unknown proxy action")
	}
}

func (f *Forwarder) forward(c echo.Context, action *models.ForwardAction) error {
	target, err := f.targetURL(action)
	if err != nil {
		f.log.Error("cannot resolve forward target", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot resolve target")
	}

	// The inbound method carries through, so a HEAD stays a HEAD upstream
	req, err := http.NewRequestWithContext(c.Request().Context(), c.Request().Method, target, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build upstream request")
	}
	// Range and content negotiation belong to the upstream
	if r := c.Request().Header.Get("Range"); r != "" {
		req.Header.Set("Range", r)
	}
	if accept := c.Request().Header.Get(echo.HeaderAccept); accept != "" {
		req.Header.Set(echo.HeaderAccept, accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Error("upstream fetch failed", "target", target, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "upstream fetch failed")
	}
	defer resp.Body.Close()

	header := c.Response().Header()
	for _, key := range passthroughHeaders {
		if value := resp.Header.Get(key); value != "" {
			header.Set(key, value)
		}
	}
	if action.RequiresAuth {
		// Restricted bytes must never land in shared caches
		header.Set("Cache-Control", "private")
	}

	return c.Stream(resp.StatusCode, resp.Header.Get(echo.HeaderContentType), resp.Body)
}

func (f *Forwarder) targetURL(action *models.ForwardAction) (string, error) {
	switch action.Target {
	case models.DestinationObjectStore:
		// Path is already an absolute URL for stored objects
		return action.Path, nil
	case models.DestinationImageServer:
		return f.imageServerRoot + action.Path, nil
	case models.DestinationThumbs:
		return f.thumbsRoot + action.Path, nil
	default:
		return "", fmt.Errorf("unknown destination %d", action.Target)
	}
}
