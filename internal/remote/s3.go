package remote

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	inthttp "github.com/rescale/rescale-intake/internal/http"
	"github.com/rescale/rescale-intake/internal/logging"
)

// s3API is the subset of the S3 client the deleter needs.
type s3API interface {
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Deleter removes objects stored under prefix/<content id> in a bucket.
type S3Deleter struct {
	client s3API
	bucket string
	prefix string
	retry  inthttp.RetryConfig
	logger *logging.Logger
}

// NewS3Deleter wraps an existing S3 client.
func NewS3Deleter(client s3API, bucket, prefix string, logger *logging.Logger) *S3Deleter {
	return &S3Deleter{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		retry:  inthttp.DefaultRetryConfig(),
		logger: logging.OrNop(logger).Named("s3"),
	}
}

// NewS3DeleterFromEnv loads AWS configuration the standard way. Static keys
// in INTAKE_S3_ACCESS_KEY_ID / INTAKE_S3_SECRET_ACCESS_KEY take precedence
// over the default credential chain.
func NewS3DeleterFromEnv(ctx context.Context, httpClient *nethttp.Client, region, bucket, prefix string, logger *logging.Logger) (*S3Deleter, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if httpClient != nil {
		opts = append(opts, config.WithHTTPClient(httpClient))
	}
	if key, secret := os.Getenv("INTAKE_S3_ACCESS_KEY_ID"), os.Getenv("INTAKE_S3_SECRET_ACCESS_KEY"); key != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, os.Getenv("INTAKE_S3_SESSION_TOKEN"))))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Deleter(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

// Key returns the object key for a content id.
func (d *S3Deleter) Key(id string) string {
	if d.prefix == "" {
		return id
	}
	return path.Join(d.prefix, id)
}

// Delete removes every id in one DeleteObjects call, retrying transient failures.
func (d *S3Deleter) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	objects := make([]s3types.ObjectIdentifier, 0, len(ids))
	for _, id := range ids {
		objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(d.Key(id))})
	}

	retry := d.retry
	retry.OnRetry = func(attempt int, err error, errorType inthttp.ErrorType) {
		d.logger.Warn().Err(err).Int("attempt", attempt).Str("class", errorType.String()).Msg("Retrying S3 delete")
	}

	return inthttp.ExecuteWithRetry(ctx, retry, func() error {
		out, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 delete failed: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("s3 delete failed for %d objects: %s: %s",
				len(out.Errors), aws.ToString(first.Code), aws.ToString(first.Message))
		}
		return nil
	})
}
