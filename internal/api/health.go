package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// BucketChecker is the storage side of the health check.
type BucketChecker interface {
	HeadBucket(ctx context.Context) error
	Name() string
}

// ProviderChecker is the transcription side of the health check.
type ProviderChecker interface {
	Ping(ctx context.Context) error
	Name() string
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status        string                 `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	Service       string                 `json:"service"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]CheckResult `json:"checks"`
}

type HealthHandler struct {
	bucket    BucketChecker
	provider  ProviderChecker
	missing   func() []string
	version   string
	startTime time.Time
	timeout   time.Duration
}

func NewHealthHandler(bucket BucketChecker, provider ProviderChecker, missing func() []string, version string, startTime time.Time) *HealthHandler {
	if missing == nil {
		missing = func() []string { return nil }
	}
	return &HealthHandler{
		bucket:    bucket,
		provider:  provider,
		missing:   missing,
		version:   version,
		startTime: startTime,
		timeout:   10 * time.Second,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]CheckResult)
	status := "healthy"
	httpStatus := http.StatusOK

	// Storage check
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	err := h.bucket.HeadBucket(ctx)
	cancel()
	if err != nil {
		checks["storage"] = CheckResult{"unhealthy", fmt.Sprintf("Storage connection failed: %v", err)}
	} else {
		checks["storage"] = CheckResult{"healthy", "Successfully connected to bucket: " + h.bucket.Name()}
	}

	// Transcription API check
	ctx, cancel = context.WithTimeout(r.Context(), h.timeout)
	err = h.provider.Ping(ctx)
	cancel()
	if err != nil {
		checks["transcription"] = CheckResult{"unhealthy", fmt.Sprintf("Transcription API connection failed: %v", err)}
	} else {
		checks["transcription"] = CheckResult{"healthy", fmt.Sprintf("Transcription API connection successful (%s)", h.provider.Name())}
	}

	// Configuration check
	if missing := h.missing(); len(missing) > 0 {
		checks["configuration"] = CheckResult{"unhealthy", "Configuration issues: missing " + strings.Join(missing, ", ")}
	} else {
		checks["configuration"] = CheckResult{"healthy", "All required configuration values are set"}
	}

	for _, c := range checks {
		if c.Status != "healthy" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Service:       "vtt-batch",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
