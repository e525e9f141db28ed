package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewGeminiClient("test-key", "gemini-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGenerateTextReturnsFirstCandidate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello there"}]}}]}`))
	})
	got, err := client.GenerateText(context.Background(), "persona", "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "hello there" {
		t.Fatalf("text = %q, want %q", got, "hello there")
	}
}

func TestGenerateTextMapsStatusToErrorKind(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrMissingAPIKey},
		{"forbidden", http.StatusForbidden, ErrMissingAPIKey},
		{"quota", http.StatusTooManyRequests, ErrQuotaExceeded},
		{"not found", http.StatusNotFound, ErrUnavailable},
		{"server error", http.StatusServiceUnavailable, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream says no"}}`))
			})
			_, err := client.GenerateText(context.Background(), "", "hi")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGenerateTextGenericFailureHasNoKind(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := client.GenerateText(context.Background(), "", "hi")
	if err == nil {
		t.Fatalf("expected error for 400 response")
	}
	for _, kind := range []error{ErrMissingAPIKey, ErrQuotaExceeded, ErrUnavailable} {
		if errors.Is(err, kind) {
			t.Fatalf("generic failure should not match %v", kind)
		}
	}
}

func TestGenerateTextEmptyCandidates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	if _, err := client.GenerateText(context.Background(), "", "hi"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want %v", err, ErrUnavailable)
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient("   ", "gemini-test")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want %v", err, ErrMissingAPIKey)
	}
}
