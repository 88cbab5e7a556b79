package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientSendsBearerAndDecodes(t *testing.T) {
	var gotAuth, gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(JobListResponse{Jobs: []Job{{ID: "j1", VideoID: "V1"}}})
	})
	mux.HandleFunc("/api/jobs/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"job not found"}`))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(strings.TrimPrefix(srv.URL, "http://"), "tok")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()

	jobs, err := client.List(ctx, []string{"failed", "queued"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotQuery != "status=failed&status=queued" {
		t.Fatalf("unexpected query %q", gotQuery)
	}

	job, err := client.Describe(ctx, "missing")
	if err != nil || job != nil {
		t.Fatalf("expected nil job for 404, got %+v err=%v", job, err)
	}

	if _, err := client.Status(ctx); err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestNewClientRequiresBind(t *testing.T) {
	if _, err := NewClient("  ", ""); !errors.Is(err, ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
}
