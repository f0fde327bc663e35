package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Logger interface for client logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// EngineAPI triggers re-ingest of an asset against the ingest engine
type EngineAPI interface {
	ReingestAsset(ctx context.Context, assetKey string) (bool, error)
}

// EngineClient calls the ingest engine over HTTP
type EngineClient struct {
	root   string
	client *http.Client
	logger Logger
}

// NewEngineClient creates a new engine client
func NewEngineClient(root string, logger Logger) *EngineClient {
	return &EngineClient{
		root:   root,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// ReingestAsset asks the engine to re-ingest an asset from its origin.
// Returns true once the engine has confirmed the request.
func (c *EngineClient) ReingestAsset(ctx context.Context, assetKey string) (bool, error) {
	payload, err := json.Marshal(map[string]string{"asset": assetKey})
	if err != nil {
		return false, fmt.Errorf("failed to marshal reingest request: %w", err)
	}

	url := fmt.Sprintf("%s/reingest", c.root)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to build reingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("reingest call failed for %s: %w", assetKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("engine rejected reingest", "asset", assetKey, "status", resp.StatusCode)
		return false, nil
	}

	c.logger.Info("reingest confirmed", "asset", assetKey)
	return true, nil
}
