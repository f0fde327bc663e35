package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FireballPlaybook describes a PDF build job for the fireball service:
// an ordered list of pages plus the output destination.
type FireballPlaybook struct {
	Method string         `json:"method"`
	Output string         `json:"output"`
	Title  string         `json:"title,omitempty"`
	Pages  []FireballPage `json:"pages"`
}

// FireballPage is a single page instruction
type FireballPage struct {
	Type    string `json:"type"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message,omitempty"`
}

// DownloadPage returns a page fetched from a URL (cover pages)
func DownloadPage(url string) FireballPage {
	return FireballPage{Type: "download", Source: url}
}

// ImagePage returns a page rendered from a stored image
func ImagePage(s3URI string) FireballPage {
	return FireballPage{Type: "jpg", Source: s3URI}
}

// RedactedPage returns a placeholder page for images the caller may not see
func RedactedPage(message string) FireballPage {
	return FireballPage{Type: "redacted", Message: message}
}

// FireballResponse is the build result reported by fireball
type FireballResponse struct {
	Success bool  `json:"success"`
	Size    int64 `json:"size"`
}

// PDFGenerator builds a PDF from a playbook
type PDFGenerator interface {
	CreatePDF(ctx context.Context, playbook FireballPlaybook) (*FireballResponse, error)
}

// FireballClient calls the fireball PDF generation service
type FireballClient struct {
	root   string
	client *http.Client
	logger Logger
}

// NewFireballClient creates a new fireball client
func NewFireballClient(root string, logger Logger) *FireballClient {
	return &FireballClient{
		root:   root,
		client: &http.Client{Timeout: 5 * time.Minute},
		logger: logger,
	}
}

// CreatePDF submits a playbook and waits for the build result
func (c *FireballClient) CreatePDF(ctx context.Context, playbook FireballPlaybook) (*FireballResponse, error) {
	playbook.Method = "s3"

	payload, err := json.Marshal(playbook)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal playbook: %w", err)
	}

	url := fmt.Sprintf("%s/pdf", c.root)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build pdf request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf generation call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pdf generation returned status %d", resp.StatusCode)
	}

	var result FireballResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode pdf response: %w", err)
	}

	c.logger.Debug("pdf generated", "output", playbook.Output, "size", result.Size)
	return &result, nil
}
