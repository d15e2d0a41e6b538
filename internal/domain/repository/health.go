package repository

import (
	"context"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// HealthRepository defines the interface for health check operations
type HealthRepository interface {
	// CheckHealth performs a comprehensive health check
	CheckHealth(ctx context.Context) (*entities.HealthCheck, error)

	// CheckStore verifies the active backing store answers
	CheckStore(ctx context.Context) entities.CheckResult

	// IsReady checks if the service is ready to handle requests
	IsReady(ctx context.Context) (bool, string)
}
