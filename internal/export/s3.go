package export

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/facets"
)

// ObjectUploader is the part of manager.Uploader used by the exporter.
type ObjectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// BucketHeader is the part of the S3 client used by health checks.
type BucketHeader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

var (
	_ ObjectUploader = (*manager.Uploader)(nil)
	_ BucketHeader   = (*s3.Client)(nil)
)

// ValidateS3Config performs basic sanity checks on the S3 settings of an export.
func ValidateS3Config(cfg facets.ExportConfig) error {
	if cfg.S3Bucket == "" {
		return nil
	}
	if strings.ContainsAny(cfg.S3Bucket, "/ ") {
		return fmt.Errorf("s3Bucket must be a bare bucket name, got %q", cfg.S3Bucket)
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey == "" {
		return fmt.Errorf("s3AccessKey provided without s3SecretKey")
	}
	if cfg.S3SecretKey != "" && cfg.S3AccessKey == "" {
		return fmt.Errorf("s3SecretKey provided without s3AccessKey")
	}
	if cfg.S3Endpoint != "" && !strings.HasPrefix(cfg.S3Endpoint, "http://") && !strings.HasPrefix(cfg.S3Endpoint, "https://") {
		return fmt.Errorf("s3Endpoint must include a scheme, got %q", cfg.S3Endpoint)
	}
	return nil
}

// NewS3Client builds an S3 client from the default AWS configuration chain,
// overridden by the region, endpoint and static credentials of cfg.
func NewS3Client(ctx context.Context, cfg facets.ExportConfig) (*s3.Client, error) {
	if err := ValidateS3Config(cfg); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, config.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	}), nil
}

// NewUploader wraps client in a multipart-capable uploader.
func NewUploader(client *s3.Client) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
	})
}

// S3HealthCheck confirms the bucket exists and is reachable with the configured credentials.
func S3HealthCheck(ctx context.Context, client BucketHeader, bucket string, timeout time.Duration) error {
	if bucket == "" {
		return nil
	}
	if client == nil {
		return fmt.Errorf("s3 client not configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := client.HeadBucket(reqCtx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %q: %s: %w", bucket, describeS3Error(err), err)
	}
	return nil
}

// describeS3Error names the failure class of an S3 API error.
func describeS3Error(err error) string {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return "request failed"
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchBucket":
		return "bucket not found"
	case "Forbidden", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return "access denied"
	}
	if apiErr.ErrorFault() == smithy.FaultServer {
		return "server error " + apiErr.ErrorCode()
	}
	return "client error " + apiErr.ErrorCode()
}

// isPermanentS3Error reports errors that retrying cannot fix, which therefore
// do not count against the upload breaker.
func isPermanentS3Error(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName":
		return true
	}
	return false
}

// objectKey joins the export prefix, category code and file name into an S3 key.
func objectKey(prefix, categoryCode, fileName string) string {
	return path.Join(strings.Trim(prefix, "/"), strings.ToLower(categoryCode), fileName)
}
