package instance

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// probeTimeout bounds a single health-check HTTP call, separate from the
// overall startup timeout that wait-for-healthy polls against.
const probeTimeout = 5 * time.Second

// probeClient is the package-level client every health probe uses, bounded
// by probeTimeout.
var probeClient = &http.Client{Timeout: probeTimeout}

// probeHealth issues a single GET against an instance's health endpoint and
// reports whether it responded with a 2xx status.
func probeHealth(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := probeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// waitForHealthy polls the instance's health endpoint every 500ms until it
// succeeds or startupTimeout elapses.
func waitForHealthy(ctx context.Context, port int, startupTimeout time.Duration) error {
	deadline := time.Now().Add(startupTimeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	if probeHealth(ctx, port) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if probeHealth(ctx, port) {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("instance did not become healthy within %s", startupTimeout)
			}
		}
	}
}
