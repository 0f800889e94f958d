package screenshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// EncodeDataURL re-encodes raw image bytes as a base64 data URL, the form
// the capture step threads to the store step.
func EncodeDataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a data URL back into content type and raw bytes
func DecodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}

	header, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}

	contentType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL payload: %w", err)
	}

	return contentType, data, nil
}

// ExtensionForContentType maps an image content type to the file extension
// used in CDN storage keys. Unknown types fall back to .png, the capture
// default.
func ExtensionForContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")

	switch strings.TrimSpace(mediaType) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// CDNClient uploads captured images to CDN storage over HTTP
type CDNClient struct {
	endpoint string
	bucket   string
	token    string
	httpc    *http.Client
	logger   *slog.Logger
}

// NewCDNClient creates a CDN storage client
func NewCDNClient(endpoint, bucket, token string, logger *slog.Logger) *CDNClient {
	return &CDNClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		bucket:   bucket,
		token:    token,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// Upload stores the image under the given key and returns its public URL
func (c *CDNClient) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	target := fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", NewRetryableError(fmt.Errorf("%w: CDN upload failed: %v", ErrExternalService, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: CDN returned %d: %s", ErrExternalService, resp.StatusCode, string(detail))
		if resp.StatusCode >= 500 {
			return "", NewRetryableError(err)
		}
		return "", err
	}

	c.logger.Debug("Screenshot uploaded to CDN",
		slog.String("key", key),
		slog.Int("size", len(data)),
	)

	return target, nil
}
