package screenshot

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MessageVersion is the current queue message schema version
const MessageVersion = "1.0"

// Metadata identifies one screenshot request across redeliveries
type Metadata struct {
	ScreenshotID   string    `json:"screenshotId"`
	CreatedAt      time.Time `json:"createdAt"`
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Version        string    `json:"version"`
	RetryCount     int       `json:"retryCount,omitempty"`
}

// Params carries the capture target and ownership context
type Params struct {
	ProjectID  string `json:"projectId"`
	PlanID     string `json:"planId"`
	OrgID      string `json:"orgId"`
	UserID     string `json:"userId"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

// CaptureConfig optionally overrides the capture defaults
type CaptureConfig struct {
	ViewportWidth  int  `json:"viewportWidth,omitempty"`
	ViewportHeight int  `json:"viewportHeight,omitempty"`
	Quality        int  `json:"quality,omitempty"`
	FullPage       bool `json:"fullPage,omitempty"`
	TimeoutMS      int  `json:"timeoutMs,omitempty"`
}

// Message is one screenshot queue message. Producers create it, the worker
// consumes it at least once, and it is discarded after terminal
// success/failure (or dead-lettered).
type Message struct {
	Metadata Metadata       `json:"metadata"`
	Params   Params         `json:"params"`
	Config   *CaptureConfig `json:"config,omitempty"`
}

// Validate checks the fields every pipeline run requires
func (m *Message) Validate() error {
	var missing []string

	if m.Metadata.ScreenshotID == "" {
		missing = append(missing, "metadata.screenshotId")
	}
	if m.Params.ProjectID == "" {
		missing = append(missing, "params.projectId")
	}
	if m.Params.OrgID == "" {
		missing = append(missing, "params.orgId")
	}
	if m.Params.UserID == "" {
		missing = append(missing, "params.userId")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidationFailed, strings.Join(missing, ", "))
	}

	if m.Params.PreviewURL != "" {
		u, err := url.Parse(m.Params.PreviewURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: previewUrl is not a valid http(s) URL", ErrValidationFailed)
		}
	}

	return nil
}
