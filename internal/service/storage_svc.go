package service

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"moysklad_sync/internal/config"
	"moysklad_sync/pkg/utils"
)

// ==================== 接口定义 ====================

// StorageProvider keeps mirrored product images.
type StorageProvider interface {
	// Upload stores data and returns its public URL.
	Upload(ctx context.Context, data []byte, filename, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// ==================== 工厂方法 ====================

// NewStorageProvider returns nil for provider "" or "none": images then keep
// their remote source URL.
func NewStorageProvider(cfg config.StorageConfig) (StorageProvider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "s3":
		s, err := NewS3Storage(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}

// ==================== S3 实现 ====================

// S3Storage writes to an S3 bucket or any S3-compatible endpoint.
type S3Storage struct {
	client    *s3.Client
	bucket    string
	region    string
	endpoint  string
	cdnDomain string
	basePath  string
	now       func() time.Time
}

func NewS3Storage(cfg config.StorageConfig) (*S3Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		cdnDomain: cfg.CDNDomain,
		basePath:  strings.Trim(cfg.BasePath, "/"),
		now:       time.Now,
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	contentType = utils.SniffImageType(contentType, data)
	key := s.generateKey(utils.ImageExtension(contentType, filename))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return s.publicURL(key), nil
}

func (s *S3Storage) Delete(ctx context.Context, url string) error {
	key := s.extractKey(url)
	if key == "" {
		return fmt.Errorf("cannot derive object key from %q", url)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// generateKey is basePath/yyyy/mm/dd/<uuid><ext>.
func (s *S3Storage) generateKey(ext string) string {
	name := uuid.NewString() + ext
	datePath := s.now().Format("2006/01/02")
	if s.basePath != "" {
		return path.Join(s.basePath, datePath, name)
	}
	return path.Join(datePath, name)
}

func (s *S3Storage) publicURL(key string) string {
	switch {
	case s.cdnDomain != "":
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key)
	case s.endpoint != "":
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
}

func (s *S3Storage) extractKey(url string) string {
	prefixes := []string{fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.region)}
	if s.cdnDomain != "" {
		prefixes = append(prefixes, fmt.Sprintf("https://%s/", s.cdnDomain))
	}
	if s.endpoint != "" {
		prefixes = append(prefixes, fmt.Sprintf("%s/%s/", s.endpoint, s.bucket))
	}
	for _, p := range prefixes {
		if strings.HasPrefix(url, p) {
			return strings.TrimPrefix(url, p)
		}
	}
	return ""
}
