// azure.go provides a store for repositories kept in Azure Blob Storage.

package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/launchcg/stratum/internal/errors"
)

// AzureBlobAPI is the subset of the blob client used by AzureStore.
type AzureBlobAPI interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureStore reads repository documents from an Azure Blob Storage container.
//
// Authentication uses the Azure SDK default credential chain:
//   - Environment variables (AZURE_TENANT_ID, AZURE_CLIENT_ID, AZURE_CLIENT_SECRET)
//   - Managed Identity (for Azure VMs, App Service, etc.)
//   - Azure CLI credentials
type AzureStore struct {
	url       string
	account   string
	container string
	prefix    string
	client    AzureBlobAPI
}

// NewAzureStore creates a store from a URL of the form
// az://account/container/path/to/repository.
func NewAzureStore(url string) (*AzureStore, error) {
	account, _, _, err := parseAzureURL(url)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect", err)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect",
			fmt.Errorf("failed to create Azure credential: %w", err))
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", account)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect",
			fmt.Errorf("failed to create Azure blob client: %w", err))
	}

	return NewAzureStoreWithClient(url, client)
}

// NewAzureStoreWithClient creates a store that uses client for all requests.
func NewAzureStoreWithClient(url string, client AzureBlobAPI) (*AzureStore, error) {
	account, container, prefix, err := parseAzureURL(url)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect", err)
	}

	return &AzureStore{
		url:       strings.TrimSuffix(url, "/"),
		account:   account,
		container: container,
		prefix:    strings.Trim(prefix, "/"),
		client:    client,
	}, nil
}

// Location returns the az:// URL of the repository.
func (s *AzureStore) Location() string {
	return s.url
}

// Get downloads key relative to the repository prefix.
func (s *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, errors.NewNotFoundError("blob", fmt.Sprintf("az://%s/%s/%s", s.account, s.container, key))
		}
		return nil, fmt.Errorf("failed to download blob az://%s/%s/%s: %w",
			s.account, s.container, key, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxDocumentSize)); err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return buf.Bytes(), nil
}

// parseAzureURL parses an Azure Blob Storage URL into account, container, and blob path.
// URL format: az://account/container/path/to/blob
func parseAzureURL(url string) (account, container, blobPath string, err error) {
	if !strings.HasPrefix(url, "az://") {
		return "", "", "", fmt.Errorf("invalid Azure URL: must start with az://")
	}

	parts := strings.SplitN(strings.TrimPrefix(url, "az://"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid Azure URL: must be az://account/container[/path]")
	}

	account = parts[0]
	container = parts[1]
	if len(parts) > 2 {
		blobPath = parts[2]
	}
	return account, container, blobPath, nil
}
