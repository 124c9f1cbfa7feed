package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"go-pneumonet-api/internal/apperrors"
	"go-pneumonet-api/internal/config"
	"go-pneumonet-api/internal/imaging"
	"go-pneumonet-api/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeService implements service.PredictionService with canned responses.
type fakeService struct {
	predictResp *models.PredictionEnvelope
	predictErr  error
	batchResp   *models.BatchEnvelope
	batchErr    error
	threshold   float64
	setErr      error
	lastSources []imaging.Source
}

func (f *fakeService) Predict(_ context.Context, src imaging.Source) (*models.PredictionEnvelope, error) {
	f.lastSources = []imaging.Source{src}
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	return f.predictResp, nil
}

func (f *fakeService) PredictBatch(_ context.Context, srcs []imaging.Source) (*models.BatchEnvelope, error) {
	f.lastSources = srcs
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return f.batchResp, nil
}

func (f *fakeService) ModelInfo() *models.ModelInfo {
	return &models.ModelInfo{Status: "unavailable", OutputClasses: []string{"NORMAL", "PNEUMONIA"}}
}

func (f *fakeService) Health() *models.Health {
	return &models.Health{Status: "healthy", ModelLoaded: false}
}

func (f *fakeService) Threshold() float64 { return f.threshold }

func (f *fakeService) SetThreshold(v float64) (float64, error) {
	if f.setErr != nil {
		return f.threshold, f.setErr
	}
	f.threshold = v
	return v, nil
}

func testConfig() *config.Config {
	return &config.Config{MaxUploadBytes: 16 << 20}
}

func doRequest(handler http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, field string, filenames ...string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range filenames {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		if _, err := part.Write([]byte("payload")); err != nil {
			t.Fatalf("Failed to write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}
	return buf.Bytes(), w.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig())

	rec := doRequest(handler, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body models.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse body: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
}

// /info must answer in degraded mode; only inference goes dark.
func TestInfoEndpoint_Degraded(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig())

	rec := doRequest(handler, http.MethodGet, "/info", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unavailable") {
		t.Errorf("body should report unavailable status: %s", rec.Body.String())
	}
}

func TestGetThreshold(t *testing.T) {
	handler := NewHandler(&fakeService{threshold: 0.5}, testConfig())

	rec := doRequest(handler, http.MethodGet, "/threshold", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body models.ThresholdResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse body: %v", err)
	}
	if body.CurrentThreshold != 0.5 {
		t.Errorf("current_threshold = %v, want 0.5", body.CurrentThreshold)
	}
	if body.Description == "" {
		t.Error("description should be set")
	}
}

func TestSetThreshold_Valid(t *testing.T) {
	svc := &fakeService{threshold: 0.5}
	handler := NewHandler(svc, testConfig())

	rec := doRequest(handler, http.MethodPost, "/threshold", "application/json",
		[]byte(`{"threshold": 0.7}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if svc.threshold != 0.7 {
		t.Errorf("threshold = %g, want 0.7", svc.threshold)
	}

	var body models.ThresholdUpdate
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse body: %v", err)
	}
	if body.NewThreshold != 0.7 {
		t.Errorf("new_threshold = %v", body.NewThreshold)
	}
	if body.Status != "success" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestSetThreshold_OutOfRange(t *testing.T) {
	svc := &fakeService{threshold: 0.5, setErr: apperrors.NewInvalidThreshold(1.5)}
	handler := NewHandler(svc, testConfig())

	rec := doRequest(handler, http.MethodPost, "/threshold", "application/json",
		[]byte(`{"threshold": 1.5}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(apperrors.KindInvalidThreshold)) {
		t.Errorf("body should name the error kind: %s", rec.Body.String())
	}
}

func TestSetThreshold_MissingParameter(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig())

	rec := doRequest(handler, http.MethodPost, "/threshold", "application/json", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPredict_Multipart(t *testing.T) {
	svc := &fakeService{
		predictResp: &models.PredictionEnvelope{
			Filename: "xray.png",
			Status:   models.StatusSuccess,
			Prediction: models.ClassificationResult{
				PredictedClass: models.ClassPneumonia,
				Confidence:     82.0,
			},
		},
	}
	handler := NewHandler(svc, testConfig())

	body, contentType := multipartBody(t, "image", "xray.png")
	rec := doRequest(handler, http.MethodPost, "/predict", contentType, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(svc.lastSources) != 1 || svc.lastSources[0].Filename != "xray.png" {
		t.Errorf("service received sources %+v", svc.lastSources)
	}
	if !strings.Contains(rec.Body.String(), "PNEUMONIA") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPredict_Base64JSON(t *testing.T) {
	svc := &fakeService{
		predictResp: &models.PredictionEnvelope{Status: models.StatusSuccess},
	}
	handler := NewHandler(svc, testConfig())

	rec := doRequest(handler, http.MethodPost, "/predict", "application/json",
		[]byte(`{"image": "aGVsbG8="}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(svc.lastSources) != 1 || !svc.lastSources[0].IsBase64 {
		t.Errorf("service should receive a base64 source, got %+v", svc.lastSources)
	}
}

func TestPredict_NoInput(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig())

	rec := doRequest(handler, http.MethodPost, "/predict", "application/json", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPredict_MissingFormField(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig())

	body, contentType := multipartBody(t, "wrong_field", "xray.png")
	rec := doRequest(handler, http.MethodPost, "/predict", contentType, body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPredict_ServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.NewUnsupportedFormat("notes.txt", imaging.SupportedFormats()), http.StatusBadRequest},
		{apperrors.NewCorruptImage("bad", nil), http.StatusUnprocessableEntity},
		{apperrors.NewModelUnavailable("not loaded"), http.StatusServiceUnavailable},
		{apperrors.NewInferenceFailed(nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		svc := &fakeService{predictErr: tc.err}
		handler := NewHandler(svc, testConfig())

		body, contentType := multipartBody(t, "image", "file.png")
		rec := doRequest(handler, http.MethodPost, "/predict", contentType, body)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", apperrors.KindOf(tc.err), rec.Code, tc.want)
		}
	}
}

func TestPredictBatch(t *testing.T) {
	svc := &fakeService{
		batchResp: &models.BatchEnvelope{
			TotalImages:           2,
			SuccessfulPredictions: 2,
			Predictions:           make([]*models.BatchPrediction, 2),
			Errors:                make([]*models.BatchItemError, 2),
			Status:                models.StatusSuccess,
		},
	}
	handler := NewHandler(svc, testConfig())

	body, contentType := multipartBody(t, "images", "a.png", "b.png")
	rec := doRequest(handler, http.MethodPost, "/predict-batch", contentType, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(svc.lastSources) != 2 {
		t.Errorf("service received %d sources, want 2", len(svc.lastSources))
	}
}

func TestPredictBatch_NoFiles(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig())

	body, contentType := multipartBody(t, "other")
	rec := doRequest(handler, http.MethodPost, "/predict-batch", contentType, body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPredictBatch_ModelUnavailable(t *testing.T) {
	svc := &fakeService{batchErr: apperrors.NewModelUnavailable("not loaded")}
	handler := NewHandler(svc, testConfig())

	body, contentType := multipartBody(t, "images", "a.png")
	rec := doRequest(handler, http.MethodPost, "/predict-batch", contentType, body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hint") {
		t.Errorf("degraded-mode response should carry a remediation hint: %s", rec.Body.String())
	}
}

func TestIndex(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig())

	rec := doRequest(handler, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "endpoints") {
		t.Errorf("index should document endpoints: %s", rec.Body.String())
	}
}

func TestNoRoute(t *testing.T) {
	handler := NewHandler(&fakeService{}, testConfig())

	rec := doRequest(handler, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
