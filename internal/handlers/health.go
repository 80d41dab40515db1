package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system    services.SystemService
	clock     func() time.Time
	startedAt time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the system service backing /readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthClock injects a custom clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.startedAt = h.clock().UTC()
	return h
}

// Healthz reports process liveness only; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    string(domain.HealthStatusOK),
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	})
}

type readyzCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readyzPayload struct {
	Status      string                        `json:"status"`
	Checks      map[string]readyzCheckPayload `json:"checks"`
	Details     []string                      `json:"details"`
	GeneratedAt string                        `json:"generatedAt,omitempty"`
}

// Readyz probes dependencies through the system service and grades readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readyzPayload{
			Status:  string(domain.HealthStatusOK),
			Checks:  map[string]readyzCheckPayload{},
			Details: []string{},
		})
		return
	}

	report, err := h.system.Healthz(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzPayload{
			Status:  string(domain.HealthStatusError),
			Checks:  map[string]readyzCheckPayload{},
			Details: []string{err.Error()},
		})
		return
	}

	checks := make(map[string]readyzCheckPayload, len(report.Checks))
	details := make([]string, 0)
	for name, check := range report.Checks {
		checks[name] = readyzCheckPayload{
			Status:    string(check.Status),
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			details = append(details, fmt.Sprintf("%s: %s", name, check.Error))
		}
	}
	sort.Strings(details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, readyzPayload{
		Status:      string(report.Status),
		Checks:      checks,
		Details:     details,
		GeneratedAt: formatTime(report.GeneratedAt),
	})
}
