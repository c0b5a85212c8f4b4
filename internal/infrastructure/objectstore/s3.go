// Package objectstore uploads user supplied images.
package objectstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/util"
)

// ImageStore turns an uploaded image into a URL that can be stored on a record.
type ImageStore interface {
	StoreImage(ctx context.Context, prefix, encoded string) (string, error)
}

type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Store struct {
	client s3PutAPI
	bucket string
	region string
	logger *zap.Logger
}

func NewS3Store(ctx context.Context, bucket, region string, logger *zap.Logger) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
		logger: logger,
	}, nil
}

// StoreImage accepts base64 image data, optionally as a data URL, uploads it
// under prefix and returns its public URL. Values that already are http(s)
// URLs are returned unchanged.
func (s *S3Store) StoreImage(ctx context.Context, prefix, encoded string) (string, error) {
	if strings.HasPrefix(encoded, "http://") || strings.HasPrefix(encoded, "https://") {
		return encoded, nil
	}
	data, err := decodeImage(encoded)
	if err != nil {
		return "", err
	}
	contentType := http.DetectContentType(data)

	key := fmt.Sprintf("%s/%s", prefix, util.GenerateUUID())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("Failed to upload image to S3", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	s.logger.Debug("Image uploaded", zap.String("url", url))
	return url, nil
}

func decodeImage(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domain.NewValidationError("image", "invalid base64 encoding")
	}
	if len(data) == 0 {
		return nil, domain.NewValidationError("image", "is empty")
	}
	return data, nil
}

// PassthroughStore keeps the image value as given. It is used when no bucket
// is configured.
type PassthroughStore struct{}

func (PassthroughStore) StoreImage(_ context.Context, _ string, encoded string) (string, error) {
	return encoded, nil
}
