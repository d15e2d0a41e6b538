package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

// Upload errors
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrMissingParameters   = errors.New("filename and contentType are required")
	ErrSignerNotConfigured = errors.New("upload signer is not configured")
)

// UploadUseCase issues pre-signed object storage uploads
type UploadUseCase struct {
	signer repository.UploadSigner
	now    func() time.Time
}

// NewUploadUseCase creates an upload use case. A nil signer makes every request fail with ErrSignerNotConfigured.
func NewUploadUseCase(signer repository.UploadSigner) *UploadUseCase {
	return &UploadUseCase{signer: signer, now: time.Now}
}

// Sign returns a time-limited upload target for the operator
func (u *UploadUseCase) Sign(ctx context.Context, operatorID string, req entities.UploadRequest) (*entities.SignedUpload, error) {
	if operatorID == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(req.Filename) == "" || strings.TrimSpace(req.ContentType) == "" {
		return nil, ErrMissingParameters
	}
	if u.signer == nil {
		return nil, ErrSignerNotConfigured
	}

	key := u.objectKey(operatorID, req.Filename)
	signed, err := u.signer.SignUpload(ctx, key, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload: %w", err)
	}
	return signed, nil
}

func (u *UploadUseCase) objectKey(operatorID, filename string) string {
	now := u.now().UTC()
	return fmt.Sprintf("uploads/%s/%04d/%02d/%s-%s",
		sanitizeName(operatorID), now.Year(), int(now.Month()), uuid.New().String(), sanitizeName(filename))
}

// sanitizeName keeps the base name and replaces anything outside [A-Za-z0-9._-]
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}
