package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestFetcher() *Fetcher {
	return NewFetcher(5*time.Second, 3, time.Millisecond, "dealsniper-test")
}

func TestFetcher_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "dealsniper-test" {
			t.Errorf("unexpected User-Agent: %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	status, body, err := newTestFetcher().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if body != "hello" {
		t.Errorf("Expected body %q, got %q", "hello", body)
	}
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	status, body, err := newTestFetcher().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != http.StatusOK || body != "recovered" {
		t.Errorf("Expected recovery after retries, got status %d body %q", status, body)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestFetcher_ExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := newTestFetcher().Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestFetcher_NoRetryOnClientError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	status, _, err := newTestFetcher().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", status)
	}
	if calls != 1 {
		t.Errorf("Expected a single call, got %d", calls)
	}
}

func TestFetcher_CheckAvailability(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want bool
	}{
		{"button present", `<button id="product-addtocart-button">Ajouter</button>`, http.StatusOK, true},
		{"button absent", `<div>Rupture de stock</div>`, http.StatusOK, false},
		{"page gone", "not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := newTestFetcher().CheckAvailability(context.Background(), srv.URL)
			if err != nil {
				t.Fatalf("CheckAvailability failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("CheckAvailability = %v, want %v", got, tt.want)
			}
		})
	}
}
