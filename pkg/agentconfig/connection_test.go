package agentconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProbeSucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewService(nil, nil, nil, srv.Client())
	ok, err := svc.probe(context.Background(), srv.URL, func(r *http.Request) {})
	if err != nil {
		t.Fatalf("probe() error = %v", err)
	}
	if !ok {
		t.Error("probe() = false for a 200 response")
	}
}

func TestProbeFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewService(nil, nil, nil, srv.Client())
	ok, err := svc.probe(context.Background(), srv.URL, func(r *http.Request) {})
	if err != nil {
		t.Fatalf("probe() error = %v", err)
	}
	if ok {
		t.Error("probe() = true for a 401 response")
	}
}

func TestProbeAppliesDecorator(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewService(nil, nil, nil, srv.Client())
	if _, err := svc.probe(context.Background(), srv.URL, func(r *http.Request) {
		r.Header.Set("X-Api-Key", "secret")
	}); err != nil {
		t.Fatalf("probe() error = %v", err)
	}
	if gotHeader != "secret" {
		t.Errorf("decorated request header = %q, want %q", gotHeader, "secret")
	}
}

func TestProbeUnreachableServer(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	ok, err := svc.probe(context.Background(), "http://127.0.0.1:1/unreachable", func(r *http.Request) {})
	if err == nil {
		t.Fatal("probe() should return an error when the server is unreachable")
	}
	if ok {
		t.Error("probe() = true for an unreachable server")
	}
}
