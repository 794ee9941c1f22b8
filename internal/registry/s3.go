// s3.go provides a store for repositories kept in Amazon S3.

package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/launchcg/stratum/internal/errors"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads repository documents from an S3 bucket.
//
// Authentication uses the AWS SDK default credential chain:
//   - Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//   - Shared credentials file (~/.aws/credentials)
//   - IAM role (for EC2/ECS/Lambda)
type S3Store struct {
	url    string
	bucket string
	prefix string
	client S3API
}

// NewS3Store creates a store from an S3 URL of the form
// s3://bucket/path/to/repository.
func NewS3Store(url string) (*S3Store, error) {
	bucket, prefix, err := parseS3URL(url)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect",
			fmt.Errorf("failed to load AWS config: %w", err))
	}

	return newS3Store(url, bucket, prefix, s3.NewFromConfig(cfg)), nil
}

// NewS3StoreWithClient creates a store that uses client for all requests.
func NewS3StoreWithClient(url string, client S3API) (*S3Store, error) {
	bucket, prefix, err := parseS3URL(url)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect", err)
	}
	return newS3Store(url, bucket, prefix, client), nil
}

func newS3Store(url, bucket, prefix string, client S3API) *S3Store {
	return &S3Store{
		url:    strings.TrimSuffix(url, "/"),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		client: client,
	}
}

// Location returns the s3:// URL of the repository.
func (s *S3Store) Location() string {
	return s.url
}

// Get downloads key relative to the repository prefix.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, errors.NewNotFoundError("object", fmt.Sprintf("s3://%s/%s", s.bucket, key))
		}
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", s.bucket, key, err)
	}
	defer output.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(output.Body, maxDocumentSize)); err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return buf.Bytes(), nil
}

// parseS3URL parses an S3 URL into bucket and key/prefix.
// URL format: s3://bucket/path/to/object
func parseS3URL(url string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(url, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URL: must start with s3://")
	}

	parts := strings.SplitN(strings.TrimPrefix(url, "s3://"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}
