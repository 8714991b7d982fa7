package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"panelmotion/internal/domain"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Options{
		Tokens:  StaticToken("r8_test"),
		BaseURL: srv.URL,
		Version: "v123",
		Stage:   domain.StageBackground,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestInvokeSendsVersionAndInput(t *testing.T) {
	var captured struct {
		method string
		path   string
		auth   string
		body   createRequest
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured.body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	state, err := client.Invoke(context.Background(), domain.OperationRequest{
		JobID: "job-1",
		Stage: domain.StageBackground,
		Input: map[string]any{"image": "http://store/a.png", "prompt": "sky"},
	})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if state.Done || state.Handle != "pred-1" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if captured.method != http.MethodPost || captured.path != "/predictions" {
		t.Fatalf("unexpected request %s %s", captured.method, captured.path)
	}
	if captured.auth != "Token r8_test" {
		t.Fatalf("unexpected authorization header %q", captured.auth)
	}
	if captured.body.Version != "v123" || captured.body.Input["prompt"] != "sky" {
		t.Fatalf("unexpected body: %+v", captured.body)
	}
}

func TestPollParsesOutputShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"id":"p","status":"succeeded","output":"https://cdn/out.png"}`, "https://cdn/out.png"},
		{"array", `{"id":"p","status":"succeeded","output":["","https://cdn/0.png","https://cdn/1.png"]}`, "https://cdn/0.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/predictions/p" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			state, err := newTestClient(t, srv).Poll(context.Background(), "p")
			if err != nil {
				t.Fatalf("Poll returned error: %v", err)
			}
			if !state.Done || state.OutputURL != tc.want {
				t.Fatalf("unexpected state: %+v", state)
			}
		})
	}
}

func TestPollStillProcessing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p","status":"processing","output":null}`))
	}))
	defer srv.Close()

	state, err := newTestClient(t, srv).Poll(context.Background(), "p")
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if state.Done || state.Handle != "p" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestPollFailedIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p","status":"failed","error":"NSFW content detected"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Poll(context.Background(), "p")
	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Detail != "NSFW content detected" || upstream.Stage != domain.StageBackground {
		t.Fatalf("unexpected upstream error: %+v", upstream)
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusRequestTimeout, true},
		{http.StatusUnprocessableEntity, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"detail":"nope"}`))
		}))
		_, err := newTestClient(t, srv).Poll(context.Background(), "p")
		srv.Close()

		var statusErr *StatusError
		isTransient := errors.As(err, &statusErr)
		if isTransient != tc.transient {
			t.Fatalf("status %d: transient=%v err=%v", tc.status, isTransient, err)
		}
		if tc.transient && statusErr.RetryAfter != 7*time.Second {
			t.Fatalf("status %d: retry-after not parsed: %s", tc.status, statusErr.RetryAfter)
		}
		if !tc.transient && !errors.Is(err, domain.ErrUpstream) {
			t.Fatalf("status %d: expected upstream error, got %v", tc.status, err)
		}
	}
}

func TestMissingTokenIsHardFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request should not be sent without a token")
	}))
	defer srv.Close()

	client, err := NewClient(Options{Tokens: StaticToken(""), BaseURL: srv.URL, Version: "v"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = client.Invoke(context.Background(), domain.OperationRequest{Input: map[string]any{}})
	if !errors.Is(err, domain.ErrUpstream) || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected upstream token error, got %v", err)
	}
}

func TestNewClientRequiresVersion(t *testing.T) {
	if _, err := NewClient(Options{Tokens: StaticToken("x")}); err == nil {
		t.Fatalf("expected error without version")
	}
}
