package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDPolicy(t *testing.T) {
	cases := []struct {
		name    string
		inbound string
		keep    string
	}{
		{name: "missing", inbound: ""},
		{name: "well formed", inbound: "retry-7.abc_1", keep: "retry-7.abc_1"},
		{name: "padded", inbound: "  job-42  ", keep: "job-42"},
		{name: "header injection", inbound: "abc\r\nSet-Cookie: x=1"},
		{name: "spaces inside", inbound: "two words"},
		{name: "too long", inbound: strings.Repeat("a", 65)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
			if tc.inbound != "" {
				req.Header[HeaderRequestID] = []string{tc.inbound}
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if got := rr.Header().Get(HeaderRequestID); got != seen {
				t.Fatalf("response header %q differs from context %q", got, seen)
			}
			if tc.keep != "" {
				if seen != tc.keep {
					t.Fatalf("inbound id not kept: got %q want %q", seen, tc.keep)
				}
				return
			}
			if _, err := uuid.Parse(seen); err != nil {
				t.Fatalf("expected a generated uuid, got %q", seen)
			}
		})
	}
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := RequestIDFromContext(req.Context()); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}
