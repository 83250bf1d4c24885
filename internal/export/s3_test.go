package export

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/facets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucketHeader struct {
	bucket string
	err    error
}

func (f *fakeBucketHeader) HeadBucket(_ context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.bucket = *params.Bucket
	if f.err != nil {
		return nil, f.err
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestValidateS3Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     facets.ExportConfig
		wantErr bool
	}{
		{name: "no bucket", cfg: facets.ExportConfig{}},
		{name: "default credentials", cfg: facets.ExportConfig{S3Bucket: "exports", S3Region: "ap-south-1"}},
		{name: "static credentials", cfg: facets.ExportConfig{S3Bucket: "exports", S3AccessKey: "AKIA", S3SecretKey: "secret"}},
		{name: "minio endpoint", cfg: facets.ExportConfig{S3Bucket: "exports", S3Endpoint: "http://localhost:9000", S3UsePathStyle: true}},
		{name: "bucket with path", cfg: facets.ExportConfig{S3Bucket: "exports/daily"}, wantErr: true},
		{name: "key without secret", cfg: facets.ExportConfig{S3Bucket: "exports", S3AccessKey: "AKIA"}, wantErr: true},
		{name: "secret without key", cfg: facets.ExportConfig{S3Bucket: "exports", S3SecretKey: "secret"}, wantErr: true},
		{name: "endpoint without scheme", cfg: facets.ExportConfig{S3Bucket: "exports", S3Endpoint: "localhost:9000"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateS3Config(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestS3HealthCheck(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, S3HealthCheck(ctx, nil, "", 0))
	assert.Error(t, S3HealthCheck(ctx, nil, "exports", 0))

	header := &fakeBucketHeader{}
	require.NoError(t, S3HealthCheck(ctx, header, "exports", 0))
	assert.Equal(t, "exports", header.bucket)

	header.err = &smithy.GenericAPIError{Code: "NotFound", Fault: smithy.FaultClient}
	err := S3HealthCheck(ctx, header, "exports", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket not found")
	assert.ErrorAs(t, err, new(smithy.APIError))
}

func TestDescribeS3Error(t *testing.T) {
	assert.Equal(t, "request failed", describeS3Error(errors.New("dial tcp: connection refused")))
	assert.Equal(t, "access denied", describeS3Error(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.Equal(t, "server error SlowDown", describeS3Error(&smithy.GenericAPIError{Code: "SlowDown", Fault: smithy.FaultServer}))
	assert.Equal(t, "client error EntityTooLarge", describeS3Error(&smithy.GenericAPIError{Code: "EntityTooLarge", Fault: smithy.FaultClient}))

	assert.True(t, isPermanentS3Error(&smithy.GenericAPIError{Code: "NoSuchBucket"}))
	assert.False(t, isPermanentS3Error(&smithy.GenericAPIError{Code: "SlowDown"}))
	assert.False(t, isPermanentS3Error(context.DeadlineExceeded))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "facets/actor/a.parquet", objectKey("/facets/", "ACTOR", "a.parquet"))
	assert.Equal(t, "actor/a.parquet", objectKey("", "ACTOR", "a.parquet"))
	assert.Equal(t, "exports/daily/singer/b.parquet", objectKey("exports/daily", "Singer", "b.parquet"))
}
