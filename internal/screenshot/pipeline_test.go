package screenshot

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libra-sh/libra-edge/internal/project"
)

type fakeProjects struct {
	project       *project.Project
	getErr        error
	exists        bool
	existsErr     error
	updateErr     error
	updatedID     string
	updatedURL    string
	updateCalled  bool
	existsQueried bool
}

func (f *fakeProjects) GetByIDAndOrg(_ context.Context, id, organizationID string) (*project.Project, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.project, nil
}

func (f *fakeProjects) Exists(_ context.Context, id string) (bool, error) {
	f.existsQueried = true
	return f.exists, f.existsErr
}

func (f *fakeProjects) UpdatePreviewImage(_ context.Context, id, previewImageURL string) error {
	f.updateCalled = true
	f.updatedID = id
	f.updatedURL = previewImageURL
	return f.updateErr
}

type fakeBrowser struct {
	data        []byte
	contentType string
	err         error
	calls       int
	lastReq     CaptureRequest
}

func (f *fakeBrowser) Capture(_ context.Context, req CaptureRequest) ([]byte, string, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.contentType, nil
}

type fakeCDN struct {
	url             string
	err             error
	calls           int
	lastKey         string
	lastContentType string
	lastData        []byte
}

func (f *fakeCDN) Upload(_ context.Context, key, contentType string, data []byte) (string, error) {
	f.calls++
	f.lastKey = key
	f.lastContentType = contentType
	f.lastData = data
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	projects *fakeProjects
	browser  *fakeBrowser
	cdn      *fakeCDN
}

func newPipelineFixture() *pipelineFixture {
	fx := &pipelineFixture{
		projects: &fakeProjects{
			project: &project.Project{
				ID:             "proj-1",
				OrganizationID: "org-1",
				ProductionDeployURL: sql.NullString{
					String: "https://proj-1.workers.libra.internal",
					Valid:  true,
				},
				IsActive: true,
			},
		},
		browser: &fakeBrowser{data: []byte("png-bytes"), contentType: "image/png"},
		cdn:     &fakeCDN{url: "https://cdn.libra.sh/screenshots/proj-1/shot-1.png"},
	}

	fx.pipeline = NewPipeline(
		fx.projects,
		fx.browser,
		fx.cdn,
		Defaults{ViewportWidth: 1280, ViewportHeight: 720, Quality: 80},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		nil,
	)

	return fx
}

func TestPipeline_Run(t *testing.T) {
	fx := newPipelineFixture()

	report, err := fx.pipeline.Run(context.Background(), validMessage())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, "shot-1", report.ScreenshotID)
	assert.Equal(t, fx.cdn.url, report.PreviewImageURL)

	require.NotNil(t, report.Validate)
	require.NotNil(t, report.Capture)
	require.NotNil(t, report.Store)
	assert.True(t, report.Validate.Success)
	assert.True(t, report.Capture.Success)
	assert.True(t, report.Store.Success)

	assert.Equal(t, "https://preview.libra.sh/proj-1", fx.browser.lastReq.URL)
	assert.Equal(t, "screenshots/proj-1/shot-1.png", fx.cdn.lastKey)
	assert.True(t, fx.projects.updateCalled)
	assert.Equal(t, "proj-1", fx.projects.updatedID)
	assert.Equal(t, fx.cdn.url, fx.projects.updatedURL)

	// the capture bytes survive the data-URL hand-off to the store intact
	assert.Equal(t, fx.browser.data, fx.cdn.lastData)
	assert.Equal(t, fx.browser.contentType, fx.cdn.lastContentType)
}

func TestPipeline_Run_JPEGCaptureKeyExtension(t *testing.T) {
	fx := newPipelineFixture()
	fx.browser.data = []byte("jpeg-bytes")
	fx.browser.contentType = "image/jpeg"

	_, err := fx.pipeline.Run(context.Background(), validMessage())
	require.NoError(t, err)

	assert.Equal(t, "screenshots/proj-1/shot-1.jpg", fx.cdn.lastKey)
	assert.Equal(t, "image/jpeg", fx.cdn.lastContentType)
	assert.Equal(t, []byte("jpeg-bytes"), fx.cdn.lastData)
}

func TestPipeline_Run_FallsBackToProductionURL(t *testing.T) {
	fx := newPipelineFixture()

	msg := validMessage()
	msg.Params.PreviewURL = ""

	_, err := fx.pipeline.Run(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "https://proj-1.workers.libra.internal", fx.browser.lastReq.URL)
}

func TestPipeline_Run_NoTargetURL(t *testing.T) {
	fx := newPipelineFixture()
	fx.projects.project.ProductionDeployURL = sql.NullString{}

	msg := validMessage()
	msg.Params.PreviewURL = ""

	report, err := fx.pipeline.Run(context.Background(), msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Zero(t, fx.browser.calls)
}

func TestPipeline_Run_ConfigOverridesDefaults(t *testing.T) {
	fx := newPipelineFixture()

	msg := validMessage()
	msg.Config = &CaptureConfig{ViewportWidth: 1920, Quality: 95, FullPage: true}

	_, err := fx.pipeline.Run(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, 1920, fx.browser.lastReq.ViewportWidth)
	// unset override fields keep their defaults
	assert.Equal(t, 720, fx.browser.lastReq.ViewportHeight)
	assert.Equal(t, 95, fx.browser.lastReq.Quality)
	assert.True(t, fx.browser.lastReq.FullPage)
}

func TestPipeline_Run_ProjectNotFound(t *testing.T) {
	fx := newPipelineFixture()
	fx.projects.getErr = project.ErrProjectNotFound
	fx.projects.exists = false

	report, err := fx.pipeline.Run(context.Background(), validMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, StatusFailed, report.Status)
	assert.True(t, fx.projects.existsQueried)
}

func TestPipeline_Run_PermissionDenied(t *testing.T) {
	fx := newPipelineFixture()
	fx.projects.getErr = project.ErrProjectNotFound
	// the project exists, just not under the requesting organization
	fx.projects.exists = true

	report, err := fx.pipeline.Run(context.Background(), validMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, StatusFailed, report.Status)
}

func TestPipeline_Run_LookupFailureIsRetryable(t *testing.T) {
	fx := newPipelineFixture()
	fx.projects.getErr = errors.New("connection refused")

	_, err := fx.pipeline.Run(context.Background(), validMessage())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestPipeline_Run_CaptureFailureSkipsStore(t *testing.T) {
	fx := newPipelineFixture()
	fx.browser.err = NewRetryableError(ErrExternalService)

	report, err := fx.pipeline.Run(context.Background(), validMessage())
	require.Error(t, err)

	assert.Equal(t, StatusFailed, report.Status)
	require.NotNil(t, report.Capture)
	assert.False(t, report.Capture.Success)

	// store must never run after a failed capture
	assert.Nil(t, report.Store)
	assert.Zero(t, fx.cdn.calls)
	assert.False(t, fx.projects.updateCalled)
}

func TestPipeline_Run_UploadFailure(t *testing.T) {
	fx := newPipelineFixture()
	fx.cdn.err = NewRetryableError(ErrExternalService)

	report, err := fx.pipeline.Run(context.Background(), validMessage())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, StatusFailed, report.Status)
	assert.False(t, fx.projects.updateCalled)
}

func TestPipeline_Run_PreviewUpdateFailureIsRetryable(t *testing.T) {
	fx := newPipelineFixture()
	fx.projects.updateErr = errors.New("deadlock detected")

	_, err := fx.pipeline.Run(context.Background(), validMessage())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestPipeline_Run_ProjectDeletedDuringRun(t *testing.T) {
	fx := newPipelineFixture()
	fx.projects.updateErr = project.ErrProjectNotFound

	_, err := fx.pipeline.Run(context.Background(), validMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.False(t, IsRetryable(err))
}

func TestRunReport_Steps(t *testing.T) {
	report := &RunReport{
		Validate: &StepResult{Step: StepValidate, Success: true},
		Capture:  &StepResult{Step: StepCapture, Success: false},
	}

	steps := report.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, StepValidate, steps[0].Step)
	assert.Equal(t, StepCapture, steps[1].Step)
}
