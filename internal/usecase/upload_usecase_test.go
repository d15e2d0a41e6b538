package usecase_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/usecase"
	"github.com/zots0127/marketadmin/internal/usecase/mocks"
)

var uploadKeyPattern = regexp.MustCompile(`^uploads/admin-1/\d{4}/\d{2}/[0-9a-f-]{36}-`)

func TestUploadUseCase_Sign(t *testing.T) {
	tests := []struct {
		name        string
		operator    string
		req         entities.UploadRequest
		nilSigner   bool
		signErr     error
		expectError error
		keySuffix   string
	}{
		{
			name:      "signed",
			operator:  "admin-1",
			req:       entities.UploadRequest{Filename: "foto carro.JPG", ContentType: "image/jpeg"},
			keySuffix: "foto_carro.JPG",
		},
		{
			name:      "path components stripped",
			operator:  "admin-1",
			req:       entities.UploadRequest{Filename: "../../etc/passwd", ContentType: "text/plain"},
			keySuffix: "passwd",
		},
		{
			name:        "unauthenticated",
			req:         entities.UploadRequest{Filename: "a.png", ContentType: "image/png"},
			expectError: usecase.ErrUnauthenticated,
		},
		{
			name:        "missing content type",
			operator:    "admin-1",
			req:         entities.UploadRequest{Filename: "a.png"},
			expectError: usecase.ErrMissingParameters,
		},
		{
			name:        "missing filename",
			operator:    "admin-1",
			req:         entities.UploadRequest{ContentType: "image/png"},
			expectError: usecase.ErrMissingParameters,
		},
		{
			name:        "no signer",
			operator:    "admin-1",
			req:         entities.UploadRequest{Filename: "a.png", ContentType: "image/png"},
			nilSigner:   true,
			expectError: usecase.ErrSignerNotConfigured,
		},
		{
			name:     "signer fails",
			operator: "admin-1",
			req:      entities.UploadRequest{Filename: "a.png", ContentType: "image/png"},
			signErr:  errors.New("no credentials"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := new(mocks.MockUploadSigner)
			var captured string
			signer.On("SignUpload", mock.Anything, mock.AnythingOfType("string"), tt.req.ContentType).
				Run(func(args mock.Arguments) { captured = args.String(1) }).
				Return(func() interface{} {
					if tt.signErr != nil {
						return nil
					}
					return &entities.SignedUpload{URL: "https://bucket/x", Method: "PUT"}
				}(), tt.signErr).Maybe()

			uc := usecase.NewUploadUseCase(signer)
			if tt.nilSigner {
				uc = usecase.NewUploadUseCase(nil)
			}

			signed, err := uc.Sign(context.Background(), tt.operator, tt.req)

			switch {
			case tt.expectError != nil:
				assert.ErrorIs(t, err, tt.expectError)
				signer.AssertNotCalled(t, "SignUpload", mock.Anything, mock.Anything, mock.Anything)
			case tt.signErr != nil:
				assert.ErrorIs(t, err, tt.signErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, "PUT", signed.Method)
				assert.Regexp(t, uploadKeyPattern, captured)
				assert.Equal(t, tt.keySuffix, captured[len(captured)-len(tt.keySuffix):])
			}
		})
	}
}
