package notegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTransformSendsInstructionAndContent(t *testing.T) {
	var gotAuth string
	var gotReq completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(completionResponse{Output: "TRANSFORMED"})
	}))
	defer srv.Close()

	g := &HTTPGenerator{
		endpoint: srv.URL,
		apiKey:   "sk-test",
		client:   &http.Client{Timeout: 5 * time.Second},
	}

	out, err := g.Transform(context.Background(), "summarize", "my note")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out != "TRANSFORMED" {
		t.Fatalf("output = %q", out)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotReq.Instruction != "summarize" || gotReq.Content != "my note" {
		t.Fatalf("request = %+v", gotReq)
	}
}

func TestTransformReportsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := &HTTPGenerator{endpoint: srv.URL, client: &http.Client{Timeout: 5 * time.Second}}
	if _, err := g.Transform(context.Background(), "summarize", "my note"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
