package registry

import (
	"context"
	"fmt"
	"net/http"
)

// Options configures repositories created by NewRepository.
type Options struct {
	// Cache keeps spec documents of remote repositories. Nil disables it.
	Cache *Cache
	// HTTPClient is used by https repositories. Nil uses a default client.
	HTTPClient *http.Client
}

// NewRepository creates a repository from a URL. It parses the URL to
// determine the protocol and wires the matching store into an
// IndexRepository.
//
// Supported protocols:
//   - file:// or a plain path - Local filesystem (LocalStore)
//   - git+https://, git+ssh:// - Git repositories (GitStore)
//   - https://, http:// - HTTP/HTTPS servers (HTTPSStore)
//   - s3:// - Amazon S3 (S3Store)
//   - az:// - Azure Blob Storage (AzureStore)
//   - gs:// - Google Cloud Storage (GCSStore)
//   - mem: - an empty MemRepository
func NewRepository(ctx context.Context, name, url string, opts Options) (Repository, error) {
	protocol, p, err := ParseSource(url)
	if err != nil {
		return nil, err
	}

	var store Store
	switch protocol {
	case "file":
		// local documents are read directly, so they are never cached
		return NewLocalRepository(name, p)

	case "mem":
		return NewMemRepository(name), nil

	case "git":
		cache := opts.Cache
		if cache == nil {
			if cache, err = DefaultCache(); err != nil {
				return nil, err
			}
		}
		// the clone itself is the cache
		s, err := NewGitStore("git+"+p, cache)
		if err != nil {
			return nil, err
		}
		return NewIndexRepository(name, s, nil), nil

	case "https", "http":
		store, err = NewHTTPSStore(p, opts.HTTPClient)

	case "s3":
		store, err = NewS3Store("s3://" + p)

	case "az":
		store, err = NewAzureStore("az://" + p)

	case "gs":
		store, err = NewGCSStore(ctx, "gs://"+p)

	default:
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}
	if err != nil {
		return nil, err
	}

	return NewIndexRepository(name, store, opts.Cache), nil
}

// MustNewRepository creates a repository from a URL, panicking on error.
// This is useful for initialization code where errors are not expected.
func MustNewRepository(name, url string) Repository {
	repo, err := NewRepository(context.Background(), name, url, Options{})
	if err != nil {
		panic(fmt.Sprintf("failed to create repository from %s: %v", url, err))
	}
	return repo
}
