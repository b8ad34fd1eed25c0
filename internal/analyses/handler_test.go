package analyses

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
)

func setupRouter(t *testing.T) (*gin.Engine, *Service, *recordingQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, q := newTestService()
	router := gin.New()
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router, svc, q
}

func multipartPDFBody(t *testing.T, fileNames ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range fileNames {
		part, err := writer.CreateFormFile("documents", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("%PDF-1.4 test content")); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestSubmitAnalysisEndpoint(t *testing.T) {
	router, svc, q := setupRouter(t)

	body, contentType := multipartPDFBody(t, "lease.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		AnalysisID  string `json:"analysisId"`
		CurrentStep string `json:"currentStep"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.AnalysisID == "" || created.CurrentStep != "pending" {
		t.Fatalf("response = %+v", created)
	}
	if _, err := svc.Get(context.Background(), created.AnalysisID); err != nil {
		t.Fatalf("created analysis not persisted: %v", err)
	}
	if len(q.sent()) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(q.sent()))
	}
}

func TestSubmitAnalysisRejectsNonPDF(t *testing.T) {
	router, _, _ := setupRouter(t)

	body, contentType := multipartPDFBody(t, "resume.docx")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("body = %s", resp.Body.String())
	}
}

func TestGetStatusEndpoint(t *testing.T) {
	router, svc, _ := setupRouter(t)
	analysis := pauseAtIntent(t, svc, "rental")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+analysis.ID, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var status struct {
		CurrentStep string `json:"currentStep"`
		Progress    int    `json:"progress"`
		Domain      string `json:"domain"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.CurrentStep != "awaiting_intent" || status.Progress != 55 || status.Domain != "rental" {
		t.Fatalf("status = %+v", status)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	router, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/does-not-exist", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestIntentRoundTrip(t *testing.T) {
	router, svc, q := setupRouter(t)
	analysis := pauseAtIntent(t, svc, "rental")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+analysis.ID+"/intents", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("intents status = %d: %s", resp.Code, resp.Body.String())
	}
	var choices IntentChoices
	if err := json.NewDecoder(resp.Body).Decode(&choices); err != nil {
		t.Fatalf("decode intents: %v", err)
	}
	if !choices.Supported || len(choices.Intents) == 0 {
		t.Fatalf("choices = %+v", choices)
	}

	payload, _ := json.Marshal(submitIntentRequest{Intent: "tenant"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/intent", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("intent status = %d: %s", resp.Code, resp.Body.String())
	}

	updated, err := svc.Get(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.CurrentStep != StepAnalyzing || updated.SelectedIntent != "tenant" {
		t.Fatalf("updated = %+v", updated)
	}
	last := q.sent()[len(q.sent())-1]
	if last.Signal != "resume" {
		t.Fatalf("last signal = %s, want resume", last.Signal)
	}
}

func TestSubmitIntentConflictWhenNotPaused(t *testing.T) {
	router, svc, _ := setupRouter(t)
	analysis := pauseAtIntent(t, svc, "rental")
	analysis.CurrentStep = StepComplete
	if err := svc.Repo.Save(context.Background(), analysis); err != nil {
		t.Fatalf("Save: %v", err)
	}

	payload, _ := json.Marshal(submitIntentRequest{Intent: "tenant"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/intent", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", resp.Code, resp.Body.String())
	}
}

func TestResultEndpointBeforeAndAfterCompletion(t *testing.T) {
	router, svc, _ := setupRouter(t)
	analysis := pauseAtIntent(t, svc, "rental")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+analysis.ID+"/result", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "redFlags") {
		t.Fatalf("partial result leaked findings: %s", resp.Body.String())
	}

	score := 74
	analysis.CurrentStep = StepComplete
	analysis.OverallScore = &score
	analysis.RedFlags = []RedFlag{{ID: "rf_1", Title: "Automatic renewal", Severity: "medium", SourceText: "renews automatically"}}
	if err := svc.Repo.Save(context.Background(), analysis); err != nil {
		t.Fatalf("Save: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+analysis.ID+"/result", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var full Analysis
	if err := json.NewDecoder(resp.Body).Decode(&full); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if full.OverallScore == nil || *full.OverallScore != 74 || len(full.RedFlags) != 1 {
		t.Fatalf("result = %+v", full)
	}
}

func TestFindingEndpoint(t *testing.T) {
	router, svc, _ := setupRouter(t)
	analysis := pauseAtIntent(t, svc, "rental")
	analysis.CurrentStep = StepComplete
	analysis.RedFlags = []RedFlag{{ID: "rf_1", Title: "Unlimited late fees", Severity: "high"}}
	if err := svc.Repo.Save(context.Background(), analysis); err != nil {
		t.Fatalf("Save: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+analysis.ID+"/findings/rf_1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+analysis.ID+"/findings/rf_404", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	router, svc, _ := setupRouter(t)
	analysis := pauseAtIntent(t, svc, "rental")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/analyses/"+analysis.ID, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.Code)
	}
	if _, err := svc.Get(context.Background(), analysis.ID); err == nil {
		t.Fatal("analysis should be gone")
	}
}
