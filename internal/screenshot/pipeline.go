package screenshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/libra-sh/libra-edge/internal/project"
)

// Status is the screenshot workflow state
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusValidating Status = "validating"
	StatusCapturing  Status = "capturing"
	StatusStoring    Status = "storing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Step names used in reports, logs, and metrics
const (
	StepValidate = "validate"
	StepCapture  = "capture"
	StepStore    = "store"
)

// StepResult is the uniform envelope each pipeline step returns
type StepResult struct {
	Step     string
	Success  bool
	Duration time.Duration
	Err      error
}

// RunReport accumulates the step results of one pipeline execution for
// diagnostic logging. It is not persisted.
type RunReport struct {
	ScreenshotID    string
	Status          Status
	Duration        time.Duration
	Validate        *StepResult
	Capture         *StepResult
	Store           *StepResult
	PreviewImageURL string
}

// Steps lists the recorded step results in execution order
func (r *RunReport) Steps() []*StepResult {
	var steps []*StepResult
	for _, s := range []*StepResult{r.Validate, r.Capture, r.Store} {
		if s != nil {
			steps = append(steps, s)
		}
	}
	return steps
}

// ProjectStore is what the pipeline needs from the project table
type ProjectStore interface {
	GetByIDAndOrg(ctx context.Context, id, organizationID string) (*project.Project, error)
	Exists(ctx context.Context, id string) (bool, error)
	UpdatePreviewImage(ctx context.Context, id, previewImageURL string) error
}

// CaptureClient renders a URL to image bytes
type CaptureClient interface {
	Capture(ctx context.Context, req CaptureRequest) ([]byte, string, error)
}

// UploadClient stores an image and returns its public URL
type UploadClient interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Defaults are the capture settings applied when a message carries no
// config override.
type Defaults struct {
	ViewportWidth  int
	ViewportHeight int
	Quality        int
}

// Pipeline runs the validate → capture → store workflow for one message.
// Steps execute strictly sequentially; the first failure aborts the run.
// Retry, if any, happens at the queue level, never in here.
type Pipeline struct {
	projects ProjectStore
	browser  CaptureClient
	cdn      UploadClient
	defaults Defaults
	logger   *slog.Logger
	metrics  *Metrics
}

// NewPipeline creates a screenshot pipeline
func NewPipeline(projects ProjectStore, browser CaptureClient, cdn UploadClient, defaults Defaults, logger *slog.Logger, metrics *Metrics) *Pipeline {
	return &Pipeline{
		projects: projects,
		browser:  browser,
		cdn:      cdn,
		defaults: defaults,
		logger:   logger,
		metrics:  metrics,
	}
}

// runState threads intermediate data between steps. The capture hands its
// result to the store as a base64 data URL.
type runState struct {
	msg        *Message
	targetURL  string
	dataURL    string
	previewURL string
}

// Run executes the pipeline for one message
func (p *Pipeline) Run(ctx context.Context, msg *Message) (*RunReport, error) {
	start := time.Now()

	report := &RunReport{
		ScreenshotID: msg.Metadata.ScreenshotID,
		Status:       StatusProcessing,
	}
	state := &runState{msg: msg}

	logger := p.logger.With(
		slog.String("screenshot_id", msg.Metadata.ScreenshotID),
		slog.String("project_id", msg.Params.ProjectID),
		slog.String("organization_id", msg.Params.OrgID),
	)

	logger.Info("Screenshot pipeline started",
		slog.Int("retry_count", msg.Metadata.RetryCount),
	)

	steps := []struct {
		name   string
		status Status
		run    func(context.Context, *runState) error
		slot   **StepResult
	}{
		{StepValidate, StatusValidating, p.validate, &report.Validate},
		{StepCapture, StatusCapturing, p.capture, &report.Capture},
		{StepStore, StatusStoring, p.store, &report.Store},
	}

	for _, step := range steps {
		report.Status = step.status

		result := p.runStep(ctx, step.name, step.run, state, logger)
		*step.slot = result

		if !result.Success {
			report.Status = StatusFailed
			report.Duration = time.Since(start)
			p.metrics.RecordOutcome(OutcomeFailed)
			p.logReport(logger, report)
			return report, result.Err
		}
	}

	report.Status = StatusCompleted
	report.Duration = time.Since(start)
	report.PreviewImageURL = state.previewURL
	p.metrics.RecordOutcome(OutcomeCompleted)
	p.logReport(logger, report)

	return report, nil
}

// runStep executes one step, measuring its duration
func (p *Pipeline) runStep(ctx context.Context, name string, fn func(context.Context, *runState) error, state *runState, logger *slog.Logger) *StepResult {
	stepStart := time.Now()
	err := fn(ctx, state)
	duration := time.Since(stepStart)

	p.metrics.RecordStep(name, duration)

	if err != nil {
		logger.Error("Pipeline step failed",
			slog.String("step", name),
			slog.String("code", CodeForError(err)),
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)
		return &StepResult{Step: name, Success: false, Duration: duration, Err: err}
	}

	logger.Info("Pipeline step completed",
		slog.String("step", name),
		slog.Duration("duration", duration),
	)
	return &StepResult{Step: name, Success: true, Duration: duration}
}

// logReport emits the accumulated step results for diagnostics
func (p *Pipeline) logReport(logger *slog.Logger, report *RunReport) {
	attrs := []any{
		slog.String("status", string(report.Status)),
		slog.Duration("total_duration", report.Duration),
	}
	for _, s := range report.Steps() {
		attrs = append(attrs, slog.Group(s.Step,
			slog.Bool("success", s.Success),
			slog.Duration("duration", s.Duration),
		))
	}

	logger.Info("Screenshot pipeline finished", attrs...)
}

// validate confirms required params and project ownership, and resolves the
// capture target URL. In URL mode no message-history check happens: the
// caller-supplied preview URL (or the project's production deployment) is
// captured directly.
func (p *Pipeline) validate(ctx context.Context, state *runState) error {
	msg := state.msg

	if err := msg.Validate(); err != nil {
		return err
	}

	proj, err := p.projects.GetByIDAndOrg(ctx, msg.Params.ProjectID, msg.Params.OrgID)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			exists, existsErr := p.projects.Exists(ctx, msg.Params.ProjectID)
			if existsErr != nil {
				return NewRetryableError(fmt.Errorf("project existence check failed: %w", existsErr))
			}
			if exists {
				return fmt.Errorf("%w: project %s", ErrPermissionDenied, msg.Params.ProjectID)
			}
			return fmt.Errorf("%w: project %s", ErrProjectNotFound, msg.Params.ProjectID)
		}
		return NewRetryableError(fmt.Errorf("project lookup failed: %w", err))
	}

	state.targetURL = msg.Params.PreviewURL
	if state.targetURL == "" {
		if !proj.ProductionDeployURL.Valid || proj.ProductionDeployURL.String == "" {
			return fmt.Errorf("%w: no previewUrl supplied and project has no production deployment", ErrValidationFailed)
		}
		state.targetURL = proj.ProductionDeployURL.String
	}

	return nil
}

// capture renders the target URL via the browser-rendering API
func (p *Pipeline) capture(ctx context.Context, state *runState) error {
	req := CaptureRequest{
		URL:            state.targetURL,
		ViewportWidth:  p.defaults.ViewportWidth,
		ViewportHeight: p.defaults.ViewportHeight,
		Quality:        p.defaults.Quality,
	}
	if cfg := state.msg.Config; cfg != nil {
		if cfg.ViewportWidth > 0 {
			req.ViewportWidth = cfg.ViewportWidth
		}
		if cfg.ViewportHeight > 0 {
			req.ViewportHeight = cfg.ViewportHeight
		}
		if cfg.Quality > 0 {
			req.Quality = cfg.Quality
		}
		req.FullPage = cfg.FullPage
		req.TimeoutMS = cfg.TimeoutMS
	}

	data, contentType, err := p.browser.Capture(ctx, req)
	if err != nil {
		return err
	}

	state.dataURL = EncodeDataURL(contentType, data)

	return nil
}

// store uploads the capture and records its URL on the project
func (p *Pipeline) store(ctx context.Context, state *runState) error {
	contentType, data, err := DecodeDataURL(state.dataURL)
	if err != nil {
		return fmt.Errorf("malformed capture payload: %w", err)
	}

	key := fmt.Sprintf("screenshots/%s/%s%s",
		state.msg.Params.ProjectID,
		state.msg.Metadata.ScreenshotID,
		ExtensionForContentType(contentType),
	)

	publicURL, err := p.cdn.Upload(ctx, key, contentType, data)
	if err != nil {
		return err
	}

	if err := p.projects.UpdatePreviewImage(ctx, state.msg.Params.ProjectID, publicURL); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			return fmt.Errorf("%w: project %s disappeared during run", ErrProjectNotFound, state.msg.Params.ProjectID)
		}
		return NewRetryableError(fmt.Errorf("failed to record preview image: %w", err))
	}

	state.previewURL = publicURL

	return nil
}
