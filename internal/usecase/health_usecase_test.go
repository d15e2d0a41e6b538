package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/usecase"
	"github.com/zots0127/marketadmin/internal/usecase/mocks"
)

func TestHealthUseCase_GetHealth(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]entities.CheckResult
		repoErr        error
		expectedStatus entities.HealthStatus
	}{
		{
			name: "all checks healthy",
			checks: map[string]entities.CheckResult{
				"store":    {Status: entities.HealthStatusUp, Message: "Store is healthy"},
				"settings": {Status: entities.HealthStatusUp},
			},
			expectedStatus: entities.HealthStatusUp,
		},
		{
			name: "store down",
			checks: map[string]entities.CheckResult{
				"store":    {Status: entities.HealthStatusDown, Message: "Store ping failed"},
				"settings": {Status: entities.HealthStatusPartial},
			},
			expectedStatus: entities.HealthStatusDown,
		},
		{
			name: "settings degraded",
			checks: map[string]entities.CheckResult{
				"store":    {Status: entities.HealthStatusUp},
				"settings": {Status: entities.HealthStatusPartial},
			},
			expectedStatus: entities.HealthStatusPartial,
		},
		{
			name:    "repository error",
			repoErr: errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(mocks.MockHealthRepository)
			if tt.repoErr != nil {
				mockRepo.On("CheckHealth", context.Background()).Return(nil, tt.repoErr)
			} else {
				mockRepo.On("CheckHealth", context.Background()).Return(&entities.HealthCheck{Checks: tt.checks, Store: "memory"}, nil)
			}

			health, err := usecase.NewHealthUseCase(mockRepo, "1.0.0").GetHealth(context.Background())

			if tt.repoErr != nil {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, health.Status)
			assert.Equal(t, "1.0.0", health.Version)
			assert.False(t, health.Timestamp.IsZero())
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestHealthUseCase_Readiness(t *testing.T) {
	mockRepo := new(mocks.MockHealthRepository)
	mockRepo.On("IsReady", context.Background()).Return(false, "Store ping failed").Once()

	uc := usecase.NewHealthUseCase(mockRepo, "1.0.0")
	ready, msg := uc.GetReadiness(context.Background())
	assert.False(t, ready)
	assert.Equal(t, "Store ping failed", msg)
	assert.True(t, uc.GetLiveness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, uc.GetLiveness(ctx))
}
