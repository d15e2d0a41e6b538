package repository

import (
	"context"
	"errors"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// SettingRepository persists configuration flags
type SettingRepository interface {
	// Get returns the stored setting or ErrSettingNotFound
	Get(ctx context.Context, key string) (*entities.Setting, error)

	// Set writes the setting and returns the value as stored
	Set(ctx context.Context, setting *entities.Setting) (*entities.Setting, error)

	// List returns every stored setting ordered by key
	List(ctx context.Context) ([]*entities.Setting, error)
}

// ErrSettingNotFound is returned when a key has never been written
var ErrSettingNotFound = errors.New("setting not found")

// UploadSigner produces pre-signed object storage upload targets
type UploadSigner interface {
	SignUpload(ctx context.Context, key, contentType string) (*entities.SignedUpload, error)
}
