package screenshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Capture defaults applied when neither config file nor message override them
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultQuality        = 80
	DefaultGotoTimeoutMS  = 30000
)

// CaptureRequest is what one browser-rendering call needs
type CaptureRequest struct {
	URL            string
	ViewportWidth  int
	ViewportHeight int
	Quality        int
	FullPage       bool
	TimeoutMS      int
}

// browserPayload is the browser-rendering API request body
type browserPayload struct {
	URL               string            `json:"url"`
	ScreenshotOptions screenshotOptions `json:"screenshotOptions"`
	Viewport          viewport          `json:"viewport"`
	GotoOptions       gotoOptions       `json:"gotoOptions"`
}

type screenshotOptions struct {
	FullPage bool   `json:"fullPage"`
	Type     string `json:"type"`
	Quality  int    `json:"quality,omitempty"`
}

type viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type gotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int    `json:"timeout"`
}

// BrowserClient calls the managed browser-rendering screenshot API
type BrowserClient struct {
	endpoint string
	token    string
	httpc    *http.Client
	logger   *slog.Logger
}

// NewBrowserClient creates a browser-rendering API client
func NewBrowserClient(endpoint, token string, timeout time.Duration, logger *slog.Logger) *BrowserClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &BrowserClient{
		endpoint: endpoint,
		token:    token,
		httpc:    &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Capture renders the URL and returns the raw image bytes and content type
func (c *BrowserClient) Capture(ctx context.Context, req CaptureRequest) ([]byte, string, error) {
	payload := browserPayload{
		URL: req.URL,
		ScreenshotOptions: screenshotOptions{
			FullPage: req.FullPage,
			Type:     "png",
		},
		Viewport: viewport{
			Width:  orDefault(req.ViewportWidth, DefaultViewportWidth),
			Height: orDefault(req.ViewportHeight, DefaultViewportHeight),
		},
		GotoOptions: gotoOptions{
			WaitUntil: "networkidle0",
			Timeout:   orDefault(req.TimeoutMS, DefaultGotoTimeoutMS),
		},
	}

	body, err := json.Marshal(&payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode capture payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build capture request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("Calling browser-rendering API",
		slog.String("url", req.URL),
		slog.Int("viewport_width", payload.Viewport.Width),
		slog.Int("viewport_height", payload.Viewport.Height),
	)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, "", NewRetryableError(fmt.Errorf("%w: browser-rendering request failed: %v", ErrExternalService, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: browser-rendering API returned %d: %s", ErrExternalService, resp.StatusCode, string(detail))
		// 5xx from the rendering service is worth a redelivery, 4xx is not
		if resp.StatusCode >= 500 {
			return nil, "", NewRetryableError(err)
		}
		return nil, "", err
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", NewRetryableError(fmt.Errorf("%w: failed to read capture body: %v", ErrExternalService, err))
	}

	if len(image) == 0 {
		return nil, "", fmt.Errorf("%w: browser-rendering API returned an empty image", ErrExternalService)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	return image, contentType, nil
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
