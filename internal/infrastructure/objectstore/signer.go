package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// ErrMissingCredentials is returned when the signer has no key pair to sign with
var ErrMissingCredentials = errors.New("object storage credentials are not configured")

// Config holds the bucket the signer issues uploads for
type Config struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	PathStyle  bool
	PresignTTL time.Duration
}

// Signer issues pre-signed PUT URLs
type Signer struct {
	svc    *s3.S3
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. Endpoint may point at any S3-compatible service.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("object storage bucket is not configured")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Signer{
		svc:    s3.New(sess),
		bucket: cfg.Bucket,
		ttl:    cfg.PresignTTL,
		now:    time.Now,
	}, nil
}

// SignUpload presigns a PUT for key. The client must send the same Content-Type.
func (s *Signer) SignUpload(ctx context.Context, key, contentType string) (*entities.SignedUpload, error) {
	req, _ := s.svc.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	req.SetContext(ctx)

	issued := s.now()
	url, err := req.Presign(s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to presign %s: %w", key, err)
	}

	return &entities.SignedUpload{
		URL:       url,
		Key:       key,
		Method:    http.MethodPut,
		ExpiresAt: issued.Add(s.ttl).UTC(),
		Headers:   map[string]string{"Content-Type": contentType},
	}, nil
}
