// Package storage keeps copies of processed documents and the change-feed cursors.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cespare/xxhash/v2"
	"github.com/docsync/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// DocumentArchive stores downloaded PO documents
type DocumentArchive interface {
	Archive(ctx context.Context, projectID, poNumber, fileName string, data []byte) (string, error)
}

// ArchiveKey is <project>/<po>/<xxhash of content>-<file name>
func ArchiveKey(projectID, poNumber, fileName string, data []byte) string {
	sum := fmt.Sprintf("%016x", xxhash.Sum64(data))
	return path.Join(projectID, poNumber, sum+"-"+path.Base(fileName))
}

// S3DocumentArchive writes documents to an S3 compatible bucket
type S3DocumentArchive struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
	logger        *zap.Logger
}

// NewS3DocumentArchive builds an archive from the storage section
func NewS3DocumentArchive(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*S3DocumentArchive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("storage credentials are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3DocumentArchive{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		presignExpiry: expiry,
		logger:        logger,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist
func (a *S3DocumentArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	a.logger.Info("archive bucket created", zap.String("bucket", a.bucket))
	return nil
}

// Archive uploads data and returns its object key
func (a *S3DocumentArchive) Archive(ctx context.Context, projectID, poNumber, fileName string, data []byte) (string, error) {
	key := ArchiveKey(projectID, poNumber, fileName, data)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(fileName)),
		Metadata: map[string]string{
			"project-id": projectID,
			"po-number":  poNumber,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", fileName, err)
	}
	a.logger.Debug("document archived", zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}

// DownloadURL returns a presigned GET url for an archived document
func (a *S3DocumentArchive) DownloadURL(ctx context.Context, key string) (string, error) {
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".heic":
		return "image/heic"
	}
	return "application/octet-stream"
}

// NoopArchive is used when archiving is disabled
type NoopArchive struct{}

// Archive returns the key it would have used without storing anything
func (NoopArchive) Archive(ctx context.Context, projectID, poNumber, fileName string, data []byte) (string, error) {
	return ArchiveKey(projectID, poNumber, fileName, data), nil
}

var (
	_ DocumentArchive = (*S3DocumentArchive)(nil)
	_ DocumentArchive = NoopArchive{}
)
