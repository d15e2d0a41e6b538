package repository

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

// Pinger is implemented by stores that can check their own connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthRepositoryImpl implements HealthRepository
type HealthRepositoryImpl struct {
	store       repository.EntityStore
	driver      string
	settings    repository.SettingRepository
	pingTimeout time.Duration
}

// NewHealthRepository creates a new health repository for the active store
func NewHealthRepository(store repository.EntityStore, driver string, settings repository.SettingRepository) repository.HealthRepository {
	return &HealthRepositoryImpl{
		store:       store,
		driver:      driver,
		settings:    settings,
		pingTimeout: 3 * time.Second,
	}
}

// CheckHealth performs a comprehensive health check
func (h *HealthRepositoryImpl) CheckHealth(ctx context.Context) (*entities.HealthCheck, error) {
	checks := map[string]entities.CheckResult{
		"store":    h.CheckStore(ctx),
		"settings": h.checkSettings(ctx),
	}

	return &entities.HealthCheck{
		Checks:     checks,
		Store:      h.driver,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}

// CheckStore verifies the active backing store answers
func (h *HealthRepositoryImpl) CheckStore(ctx context.Context) entities.CheckResult {
	if h.store == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Store is not configured",
		}
	}

	pinger, ok := h.store.(Pinger)
	if !ok {
		return entities.CheckResult{
			Status:  entities.HealthStatusUp,
			Message: "Store does not support ping",
			Details: map[string]interface{}{"driver": h.driver},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
	defer cancel()

	start := time.Now()
	if err := pinger.Ping(ctx); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Store ping failed: %v", err),
			Details: map[string]interface{}{"driver": h.driver},
		}
	}

	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "Store is healthy",
		Details: map[string]interface{}{
			"driver":  h.driver,
			"latency": time.Since(start).String(),
		},
	}
}

func (h *HealthRepositoryImpl) checkSettings(ctx context.Context) entities.CheckResult {
	if h.settings == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusPartial,
			Message: "Settings repository is not configured",
		}
	}
	if _, err := h.settings.List(ctx); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusPartial,
			Message: fmt.Sprintf("Settings unavailable: %v", err),
		}
	}
	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "Settings are readable",
	}
}

// IsReady checks if the service is ready to handle requests
func (h *HealthRepositoryImpl) IsReady(ctx context.Context) (bool, string) {
	check := h.CheckStore(ctx)
	if check.Status == entities.HealthStatusDown {
		return false, check.Message
	}
	return true, "Service is ready"
}
