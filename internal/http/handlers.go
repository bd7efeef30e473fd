package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	switch {
	case s.ping == nil:
		checks["storage"] = "not_configured"
	default:
		if err := s.ping(ctx); err != nil {
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}

	if s.api == nil {
		checks["backend_api"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["backend_api"] = "ok"
	}

	reviewCheck := map[string]any{"status": "ok"}
	if s.screens != nil {
		reviewCheck["open_screens"] = s.screens.Len()
	}
	if s.previews != nil {
		reviewCheck["live_previews"] = s.previews.Live()
	}
	checks["review"] = reviewCheck
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	rateLimitStats := s.limiter.Stats()
	var openScreens int
	if s.screens != nil {
		openScreens = s.screens.Len()
	}
	var livePreviews int64
	if s.previews != nil {
		livePreviews = s.previews.Live()
	}

	w.WriteHeader(http.StatusOK)
	writeMetric(w, "http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	writeMetric(w, "http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	writeMetric(w, "suspicious_requests_total", "counter", "Requests flagged by the detector", securityMetrics.SuspiciousRequests)
	writeMetric(w, "rate_limit_hits_total", "counter", "Requests refused by the rate limiter", rateLimitStats.Rejected)
	writeMetric(w, "rate_limit_clients", "gauge", "Clients tracked by the rate limiter", rateLimitStats.Clients)
	writeMetric(w, "review_screens_open", "gauge", "Open review screens", int64(openScreens))
	writeMetric(w, "slip_previews_live", "gauge", "Slip previews held in memory", livePreviews)
	writeMetric(w, "uptime_seconds", "gauge", "Seconds since start", int64(time.Since(s.started).Seconds()))
}

func writeMetric(w http.ResponseWriter, name, kind, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %d\n\n", name, v)
}
