package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

// ErrInvalidSettingKey is returned for keys outside the allowed pattern
var ErrInvalidSettingKey = errors.New("invalid setting key")

var settingKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// SettingUseCase serves configuration flags such as free mode
type SettingUseCase struct {
	repo     repository.SettingRepository
	defaults map[string]string
	now      func() time.Time
}

// NewSettingUseCase creates a setting use case. Unset well-known flags default to "false".
func NewSettingUseCase(repo repository.SettingRepository, defaults map[string]string) *SettingUseCase {
	merged := map[string]string{
		entities.SettingFreeMode:        "false",
		entities.SettingMaintenanceMode: "false",
	}
	for k, v := range defaults {
		merged[k] = v
	}
	return &SettingUseCase{
		repo:     repo,
		defaults: merged,
		now:      time.Now,
	}
}

// Get returns the stored value, or the default when the key was never written
func (s *SettingUseCase) Get(ctx context.Context, key string) (*entities.Setting, error) {
	if !settingKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSettingKey, key)
	}

	setting, err := s.repo.Get(ctx, key)
	if errors.Is(err, repository.ErrSettingNotFound) {
		if def, ok := s.defaults[key]; ok {
			return &entities.Setting{Key: key, Value: def}, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return setting, nil
}

// Set persists value and returns the value as stored
func (s *SettingUseCase) Set(ctx context.Context, operatorID, key, value string) (*entities.Setting, error) {
	if !settingKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSettingKey, key)
	}

	stored, err := s.repo.Set(ctx, &entities.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: s.now().UTC(),
		UpdatedBy: operatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set setting: %w", err)
	}
	return stored, nil
}

// List returns stored settings merged with defaults, ordered by key
func (s *SettingUseCase) List(ctx context.Context) ([]*entities.Setting, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	seen := make(map[string]bool, len(stored))
	out := make([]*entities.Setting, 0, len(stored)+len(s.defaults))
	for _, setting := range stored {
		seen[setting.Key] = true
		out = append(out, setting)
	}
	for key, value := range s.defaults {
		if !seen[key] {
			out = append(out, &entities.Setting{Key: key, Value: value})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
