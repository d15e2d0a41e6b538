package objectstore

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_SignUpload(t *testing.T) {
	signer, err := NewSigner(Config{
		Endpoint:   "http://localhost:9000",
		Bucket:     "listings",
		AccessKey:  "minioadmin",
		SecretKey:  "minioadmin",
		PathStyle:  true,
		PresignTTL: 10 * time.Minute,
	})
	require.NoError(t, err)

	signed, err := signer.SignUpload(context.Background(), "uploads/admin-1/2024/03/abc-photo.jpg", "image/jpeg")
	require.NoError(t, err)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/listings/uploads/admin-1/2024/03/abc-photo.jpg", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "PUT", signed.Method)
	assert.Equal(t, "image/jpeg", signed.Headers["Content-Type"])
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), signed.ExpiresAt, time.Minute)
}

func TestNewSigner_Validation(t *testing.T) {
	_, err := NewSigner(Config{Bucket: "b"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewSigner(Config{AccessKey: "a", SecretKey: "s"})
	assert.Error(t, err)
}
