package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"panelmotion/internal/domain"
	"panelmotion/internal/middleware"
	"panelmotion/internal/pipeline"
)

func TestFailMapsErrorCategories(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		code  int
		kind  string
		stage string
	}{
		{name: "validation", err: domain.Invalid("style", "unknown"), code: http.StatusBadRequest, kind: "invalid_input"},
		{name: "too large", err: tooLargeError(10), code: http.StatusRequestEntityTooLarge, kind: "invalid_input"},
		{name: "unsupported", err: unsupportedMediaError("text/plain"), code: http.StatusUnsupportedMediaType, kind: "invalid_input"},
		{name: "not found", err: &domain.NotFoundError{JobID: "x"}, code: http.StatusNotFound, kind: "not_found"},
		{name: "precondition", err: domain.Precondition(domain.StageVideoComposition, "audio missing"), code: http.StatusConflict, kind: "precondition_failed", stage: "videoComposition"},
		{name: "stage failed", err: &domain.StageExecutionError{Stage: domain.StageColorizing, Err: &domain.UpstreamError{Stage: domain.StageColorizing, Detail: "secret upstream text"}}, code: http.StatusBadGateway, kind: "stage_failed", stage: "colorizing"},
		{name: "poll timeout", err: &domain.StageExecutionError{Stage: domain.StageAnimating, Err: pipeline.ErrPollTimeout}, code: http.StatusGatewayTimeout, kind: "operation_pending", stage: "animating"},
		{name: "internal", err: errors.New("disk on fire"), code: http.StatusInternalServerError, kind: "internal"},
	}
	app := &App{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			app.fail(rr, req, tc.err, nil)

			if rr.Code != tc.code {
				t.Fatalf("status mismatch: got %d want %d", rr.Code, tc.code)
			}
			var body errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tc.kind || body.Stage != tc.stage {
				t.Fatalf("unexpected body: %+v", body)
			}
			if body.Message == "" || body.Detail == "secret upstream text" {
				t.Fatalf("message should be a category message: %+v", body)
			}
		})
	}
}

func TestFailSkipsCancelledRequests(t *testing.T) {
	app := &App{}
	for _, err := range []error{
		context.Canceled,
		&domain.StageExecutionError{Stage: domain.StageBackground, Err: context.Canceled},
	} {
		rr := httptest.NewRecorder()
		app.fail(rr, httptest.NewRequest(http.MethodPost, "/v1/jobs/x/stages/background", nil), err, nil)
		if rr.Body.Len() != 0 || rr.Header().Get("Content-Type") != "" {
			t.Fatalf("%v: no response should be written, got %q", err, rr.Body.String())
		}
	}
}

func TestFailIncludesPersistedJob(t *testing.T) {
	app := &App{}
	job := &domain.Job{ID: "job-1", Stage: domain.StageColorizing, Progress: 20}
	rr := httptest.NewRecorder()
	app.fail(rr, httptest.NewRequest(http.MethodPost, "/v1/jobs", nil),
		&domain.StageExecutionError{Stage: domain.StageColorizing, Err: errors.New("boom")}, job)

	var body errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Job == nil || body.Job.ID != "job-1" {
		t.Fatalf("expected job in error body, got %+v", body)
	}
}

func TestLocalizedMessages(t *testing.T) {
	if got := localize("id", msgNotFound); got != "Pekerjaan tidak ditemukan." {
		t.Fatalf("unexpected id message: %q", got)
	}
	if got := localize("en", msgNotFound); got != msgNotFound {
		t.Fatalf("unexpected en message: %q", got)
	}
	if got := localize("???", msgInternal); got != msgInternal {
		t.Fatalf("invalid locale should fall back to English, got %q", got)
	}
	for key := range indonesian {
		if localize("id", key) == key {
			t.Fatalf("missing Indonesian translation for %q", key)
		}
	}

	app := &App{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.LocaleKey, "id"))
	app.fail(rr, req, &domain.NotFoundError{JobID: "x"}, nil)
	var body errorResponse
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body.Message != "Pekerjaan tidak ditemukan." {
		t.Fatalf("expected localized message, got %q", body.Message)
	}
}

func TestHealth(t *testing.T) {
	app := &App{}
	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	app.Ping = func(ctx context.Context) error { return errors.New("db down") }
	rr = httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestOpenAPIDocumentListsRoutes(t *testing.T) {
	app := &App{}
	rec := httptest.NewRecorder()
	app.OpenAPIJSON(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		"/v1/jobs":                         "post",
		"/v1/jobs/{job_id}":                "get",
		"/v1/jobs/{job_id}/stages/{stage}": "post",
		"/v1/jobs/{job_id}/finalize":       "post",
		"/v1/jobs/{job_id}/artifacts.zip":  "get",
		"/v1/stages":                       "get",
		"/v1/healthz":                      "get",
	}
	for path, method := range want {
		if _, ok := doc.Paths[path][method]; !ok {
			t.Errorf("openapi.json lacks %s %s", method, path)
		}
	}

	rec = httptest.NewRecorder()
	app.OpenAPIDocs(rec, httptest.NewRequest(http.MethodGet, "/v1/docs", nil))
	if !strings.Contains(rec.Body.String(), `spec-url="/v1/openapi.json"`) {
		t.Fatalf("docs page does not reference the document")
	}
}
