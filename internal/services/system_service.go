package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/clovemart/api/internal/domain"
	"github.com/clovemart/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the system utility service providing health reports.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *systemService) Healthz(ctx context.Context) (domain.SystemHealthReport, error) {
	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return domain.SystemHealthReport{}, err
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.clock()
	}
	if len(report.Checks) == 0 {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = deriveStatus(report.Checks)
	}
	return report, nil
}

func deriveStatus(checks map[string]domain.SystemHealthCheck) domain.HealthStatus {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
			continue
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
