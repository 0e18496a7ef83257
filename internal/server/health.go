package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Health is the body served on /health.
type Health struct {
	Status   string `json:"status"`
	Players  int    `json:"players"`
	Sessions int    `json:"sessions"`
	Queued   int    `json:"queued"`
}

const (
	healthOK       = "ok"
	healthStopping = "stopping"
)

func (s *Server) health() Health {
	h := Health{Status: healthOK}
	if s.ctx.Err() != nil {
		h.Status = healthStopping
	}

	s.mu.RLock()
	h.Players = len(s.players)
	svc := s.service
	s.mu.RUnlock()

	if svc != nil && svc.coordinator != nil {
		h.Sessions = svc.coordinator.Registry().Len()
	}
	if svc != nil && svc.queue != nil {
		h.Queued = len(svc.queue.Waiting())
	}
	return h
}

// handleHealth reports liveness plus connection and session counts. A server
// that is stopping answers 503 so load balancers drain it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.health()
	w.Header().Set("Content-Type", "application/json")
	if h.Status != healthOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(h) // Ignore write errors for health check
}

// WaitForHealthy polls baseURL's /health until it reports ok or ctx ends.
// baseURL should be the server's base URL (e.g., "http://localhost:8080").
// On timeout the error carries the last failed check.
func WaitForHealthy(ctx context.Context, baseURL string) (Health, error) {
	healthURL := baseURL + "/health"
	client := &http.Client{Timeout: 1 * time.Second}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastErr := errors.New("no check completed")
	for {
		select {
		case <-ctx.Done():
			return Health{}, fmt.Errorf("%w: last check: %v", ctx.Err(), lastErr)
		case <-ticker.C:
			h, err := checkHealth(ctx, client, healthURL)
			if err == nil {
				return h, nil
			}
			lastErr = err
		}
	}
}

func checkHealth(ctx context.Context, client *http.Client, url string) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Health{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decode health (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || h.Status != healthOK {
		return h, fmt.Errorf("server %s (status %d)", h.Status, resp.StatusCode)
	}
	return h, nil
}
