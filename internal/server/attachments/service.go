// Package attachments issues presigned S3 URLs so clients upload and fetch
// invoice attachments directly against object storage; the sync path never
// carries blob bytes.
package attachments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	sc "github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/config"
)

const presignValidity = 15 * time.Minute

type Service struct {
	config *sc.Config
}

func NewService(config *sc.Config) *Service {
	return &Service{config: config}
}

// storageKey places every object under its tenant prefix, so bucket-level
// policies can enforce tenant isolation on storage too.
func storageKey(tenantID string) string {
	d := time.Now()
	return fmt.Sprintf("tenants/%s/%d/%d/%d/%v", tenantID, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *Service) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return s3.NewPresignClient(client), nil
}

// GetPresignedPutUrl allocates a fresh storage key for the tenant and
// returns it with a presigned PUT URL.
func (s *Service) GetPresignedPutUrl(ctx context.Context, tenantID string) (string, string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := storageKey(tenantID)

	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

// GetPresignedGetUrl returns a presigned GET URL for an existing key. Keys
// outside the tenant's prefix are refused.
func (s *Service) GetPresignedGetUrl(ctx context.Context, tenantID, key string) (string, error) {
	if !keyBelongsToTenant(key, tenantID) {
		return "", fmt.Errorf("%w: key %q does not belong to tenant", common.ErrTenantMismatch, key)
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

func keyBelongsToTenant(key, tenantID string) bool {
	prefix := "tenants/" + tenantID + "/"
	return len(key) > len(prefix) && key[:len(prefix)] == prefix
}
