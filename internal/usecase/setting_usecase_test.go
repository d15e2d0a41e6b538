package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/internal/usecase"
	"github.com/zots0127/marketadmin/internal/usecase/mocks"
)

func TestSettingUseCase_Get(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		setupMock   func(*mocks.MockSettingRepository)
		expected    string
		expectError error
	}{
		{
			name: "stored value",
			key:  entities.SettingFreeMode,
			setupMock: func(m *mocks.MockSettingRepository) {
				m.On("Get", mock.Anything, "free_mode").Return(&entities.Setting{Key: "free_mode", Value: "true"}, nil)
			},
			expected: "true",
		},
		{
			name: "default for well-known flag",
			key:  entities.SettingMaintenanceMode,
			setupMock: func(m *mocks.MockSettingRepository) {
				m.On("Get", mock.Anything, "maintenance_mode").Return(nil, repository.ErrSettingNotFound)
			},
			expected: "false",
		},
		{
			name: "configured default",
			key:  "max_photos",
			setupMock: func(m *mocks.MockSettingRepository) {
				m.On("Get", mock.Anything, "max_photos").Return(nil, repository.ErrSettingNotFound)
			},
			expected: "12",
		},
		{
			name: "unknown key",
			key:  "banner",
			setupMock: func(m *mocks.MockSettingRepository) {
				m.On("Get", mock.Anything, "banner").Return(nil, repository.ErrSettingNotFound)
			},
			expectError: repository.ErrSettingNotFound,
		},
		{
			name:        "invalid key",
			key:         "Free-Mode",
			setupMock:   func(m *mocks.MockSettingRepository) {},
			expectError: usecase.ErrInvalidSettingKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.MockSettingRepository)
			tt.setupMock(repo)

			uc := usecase.NewSettingUseCase(repo, map[string]string{"max_photos": "12"})
			setting, err := uc.Get(context.Background(), tt.key)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, setting.Value)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestSettingUseCase_SetReturnsStoredValue(t *testing.T) {
	repo := new(mocks.MockSettingRepository)
	repo.On("Set", mock.Anything, mock.MatchedBy(func(s *entities.Setting) bool {
		return s.Key == "free_mode" && s.Value == "yes" && s.UpdatedBy == "admin-1"
	})).Return(&entities.Setting{Key: "free_mode", Value: "true"}, nil)

	setting, err := usecase.NewSettingUseCase(repo, nil).Set(context.Background(), "admin-1", "free_mode", "yes")
	require.NoError(t, err)
	assert.Equal(t, "true", setting.Value)

	repo.AssertExpectations(t)
}

func TestSettingUseCase_SetFails(t *testing.T) {
	repo := new(mocks.MockSettingRepository)
	repo.On("Set", mock.Anything, mock.Anything).Return(nil, errors.New("read only"))

	_, err := usecase.NewSettingUseCase(repo, nil).Set(context.Background(), "admin-1", "free_mode", "true")
	assert.Error(t, err)
}

func TestSettingUseCase_ListMergesDefaults(t *testing.T) {
	repo := new(mocks.MockSettingRepository)
	repo.On("List", mock.Anything).Return([]*entities.Setting{{Key: "free_mode", Value: "true"}}, nil)

	settings, err := usecase.NewSettingUseCase(repo, nil).List(context.Background())
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, "free_mode", settings[0].Key)
	assert.Equal(t, "true", settings[0].Value)
	assert.Equal(t, "maintenance_mode", settings[1].Key)
	assert.Equal(t, "false", settings[1].Value)
}
