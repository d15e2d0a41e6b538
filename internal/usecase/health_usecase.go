package usecase

import (
	"context"
	"time"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

// HealthUseCase handles health check business logic
type HealthUseCase struct {
	healthRepo repository.HealthRepository
	startTime  time.Time
	version    string
}

// NewHealthUseCase creates a new health use case
func NewHealthUseCase(healthRepo repository.HealthRepository, version string) *HealthUseCase {
	return &HealthUseCase{
		healthRepo: healthRepo,
		startTime:  time.Now(),
		version:    version,
	}
}

// GetHealth returns the overall health status
func (h *HealthUseCase) GetHealth(ctx context.Context) (*entities.HealthCheck, error) {
	health, err := h.healthRepo.CheckHealth(ctx)
	if err != nil {
		return nil, err
	}

	health.Version = h.version
	health.Uptime = time.Since(h.startTime)
	health.Timestamp = time.Now()
	health.Status = overallStatus(health.Checks)

	return health, nil
}

// GetReadiness checks if the service can reach its backing store
func (h *HealthUseCase) GetReadiness(ctx context.Context) (bool, string) {
	return h.healthRepo.IsReady(ctx)
}

// GetLiveness checks if the service is alive
func (h *HealthUseCase) GetLiveness(ctx context.Context) bool {
	return ctx.Err() == nil
}

// down wins over partial, partial wins over up
func overallStatus(checks map[string]entities.CheckResult) entities.HealthStatus {
	status := entities.HealthStatusUp
	for _, check := range checks {
		switch check.Status {
		case entities.HealthStatusDown:
			return entities.HealthStatusDown
		case entities.HealthStatusPartial:
			status = entities.HealthStatusPartial
		}
	}
	return status
}
