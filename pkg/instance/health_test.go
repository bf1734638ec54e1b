package instance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func testServerPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing test server port: %v", err)
	}
	return port
}

func TestProbeHealthSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if !probeHealth(context.Background(), testServerPort(t, srv)) {
		t.Error("probeHealth() = false for a 200 response")
	}
}

func TestProbeHealthFailureOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if probeHealth(context.Background(), testServerPort(t, srv)) {
		t.Error("probeHealth() = true for a 503 response")
	}
}

func TestProbeHealthFailureWhenUnreachable(t *testing.T) {
	if probeHealth(context.Background(), 1) {
		t.Error("probeHealth() = true against a port nothing listens on")
	}
}

func TestWaitForHealthySucceedsOnceServerComesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := waitForHealthy(context.Background(), testServerPort(t, srv), 2*time.Second); err != nil {
		t.Errorf("waitForHealthy() error = %v", err)
	}
}

func TestWaitForHealthyTimesOut(t *testing.T) {
	err := waitForHealthy(context.Background(), 1, 1*time.Second)
	if err == nil {
		t.Error("waitForHealthy() should return an error when the port never becomes healthy")
	}
}
