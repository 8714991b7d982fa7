package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"panelmotion/internal/domain"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	job := domain.Job{ID: "job-1", Stage: domain.StageBackground, Progress: 50, ColorizedURL: "http://x/c.png", BackgroundURL: "http://x/b.png"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/jobs/job-1" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(job)
		case r.URL.Path == "/v1/jobs" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"items": []domain.Job{job}})
		case r.URL.Path == "/v1/jobs/job-1/stages/animate":
			var params domain.StageParams
			_ = json.NewDecoder(r.Body).Decode(&params)
			next := job
			next.Stage = domain.StageAnimating
			next.Progress = 70
			next.AnimationType = params.Style
			_ = json.NewEncoder(w).Encode(next)
		case r.URL.Path == "/v1/stages":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items":           domain.Stages(),
				"backgroundTypes": domain.BackgroundTypes(),
				"animationTypes":  domain.AnimationTypes(),
				"voiceTypes":      domain.VoiceTypes(),
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not_found","message":"job not found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusRendersTable(t *testing.T) {
	srv := fakeAPI(t)
	out, err := runCLI(t, "--server", srv.URL, "status", "job-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"job-1", "background", "50%", "http://x/b.png"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunSendsParamsAndPrintsJSON(t *testing.T) {
	srv := fakeAPI(t)
	out, err := runCLI(t, "--server", srv.URL, "--json", "run", "job-1", "animate", "--style", "motion-simulation")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if job.Stage != domain.StageAnimating || job.AnimationType != "motion-simulation" {
		t.Fatalf("job = %+v", job)
	}
}

func TestRunRejectsUnknownStage(t *testing.T) {
	if _, err := runCLI(t, "--server", "http://127.0.0.1:1", "run", "job-1", "sharpen"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestListAndStages(t *testing.T) {
	srv := fakeAPI(t)
	out, err := runCLI(t, "--server", srv.URL, "list", "-n", "5")
	if err != nil || !strings.Contains(out, "job-1") {
		t.Fatalf("list: %v\n%s", err, out)
	}
	out, err = runCLI(t, "--server", srv.URL, "stages")
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	if !strings.Contains(out, "videoComposition") || !strings.Contains(out, "Voice types") {
		t.Fatalf("stages output:\n%s", out)
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv := fakeAPI(t)
	_, err := runCLI(t, "--server", srv.URL, "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "not_found") {
		t.Fatalf("err = %v", err)
	}
}
