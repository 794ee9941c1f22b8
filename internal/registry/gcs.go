// gcs.go provides a store for repositories kept in Google Cloud Storage.

package registry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/launchcg/stratum/internal/errors"
)

// GCSCredentialsEnv names a service account key file used for gs://
// repositories. Application default credentials are used when it is unset.
const GCSCredentialsEnv = "STRATUM_GCS_CREDENTIALS"

// GCSStore reads repository documents from a Google Cloud Storage bucket.
type GCSStore struct {
	url    string
	bucket string
	prefix string
	client *storage.Client
}

// NewGCSStore creates a store from a URL of the form gs://bucket/path.
func NewGCSStore(ctx context.Context, url string) (*GCSStore, error) {
	bucket, prefix, err := parseGCSURL(url)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect", err)
	}

	var opts []option.ClientOption
	if keyPath := os.Getenv(GCSCredentialsEnv); keyPath != "" {
		if _, err := os.Stat(keyPath); err != nil {
			return nil, errors.NewRepositoryError(url, "connect",
				fmt.Errorf("service account key not found at path: %s", keyPath))
		}
		opts = append(opts, option.WithCredentialsFile(keyPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect",
			fmt.Errorf("failed to create GCS storage client: %w", err))
	}

	return &GCSStore{
		url:    strings.TrimSuffix(url, "/"),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		client: client,
	}, nil
}

// Location returns the gs:// URL of the repository.
func (s *GCSStore) Location() string {
	return s.url
}

// Get downloads key relative to the repository prefix.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, errors.NewNotFoundError("object", fmt.Sprintf("gs://%s/%s", s.bucket, key))
		}
		return nil, fmt.Errorf("failed to open object gs://%s/%s: %w", s.bucket, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read object gs://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// parseGCSURL parses a gs:// URL into bucket and prefix.
func parseGCSURL(url string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(url, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URL: must start with gs://")
	}

	parts := strings.SplitN(strings.TrimPrefix(url, "gs://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URL: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}
