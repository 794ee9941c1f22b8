package registry

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
)

// fakeObjects maps full object keys to contents.
type fakeObjects map[string][]byte

func publishedObjects(t *testing.T, prefix string) fakeObjects {
	t.Helper()
	objects := fakeObjects{}
	store, err := NewLocalStore(newTestRepoDir(t))
	require.NoError(t, err)
	for _, key := range []string{
		IndexFile,
		"packages/maya/2019.0.0/AAAAAAAA.yaml",
		"packages/maya/2019.2.0/BBBBBBBB.yaml",
		"packages/maya/2019.2.0/CCCCCCCC.yaml",
		"packages/maya/2019.2.0/recipe.yaml",
		"packages/python/3.7.3/src.yaml",
	} {
		data, err := store.Get(context.Background(), key)
		require.NoError(t, err)
		objects[prefix+key] = data
	}
	return objects
}

type fakeS3 struct {
	bucket  string
	objects fakeObjects
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok || *in.Bucket != f.bucket {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeAzure struct {
	container string
	objects   fakeObjects
}

func (f *fakeAzure) DownloadStream(ctx context.Context, container, name string, _ *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	data, ok := f.objects[name]
	if !ok || container != f.container {
		return azblob.DownloadStreamResponse{}, &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound), StatusCode: 404}
	}
	return azblob.DownloadStreamResponse{
		DownloadResponse: blob.DownloadResponse{Body: io.NopCloser(bytes.NewReader(data))},
	}, nil
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		url        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{url: "s3://bucket", wantBucket: "bucket"},
		{url: "s3://bucket/studio/origin", wantBucket: "bucket", wantPrefix: "studio/origin"},
		{url: "s3://", wantErr: true},
		{url: "https://bucket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			bucket, prefix, err := parseS3URL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestS3Repository(t *testing.T) {
	client := &fakeS3{bucket: "bucket", objects: publishedObjects(t, "studio/origin/")}
	store, err := NewS3StoreWithClient("s3://bucket/studio/origin/", client)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/studio/origin", store.Location())

	testIndexRepository(t, NewIndexRepository("origin", store, nil))

	_, err = store.Get(context.Background(), "missing.yaml")
	assert.True(t, errors.IsNotFound(err))
}

func TestParseAzureURL(t *testing.T) {
	tests := []struct {
		url           string
		wantAccount   string
		wantContainer string
		wantPath      string
		wantErr       bool
	}{
		{url: "az://account/container", wantAccount: "account", wantContainer: "container"},
		{url: "az://account/container/studio/origin", wantAccount: "account", wantContainer: "container", wantPath: "studio/origin"},
		{url: "az://account", wantErr: true},
		{url: "az:///container", wantErr: true},
		{url: "s3://account/container", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			account, container, p, err := parseAzureURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccount, account)
			assert.Equal(t, tt.wantContainer, container)
			assert.Equal(t, tt.wantPath, p)
		})
	}
}

func TestAzureRepository(t *testing.T) {
	client := &fakeAzure{container: "container", objects: publishedObjects(t, "")}
	store, err := NewAzureStoreWithClient("az://account/container", client)
	require.NoError(t, err)

	testIndexRepository(t, NewIndexRepository("origin", store, nil))

	_, err = store.Get(context.Background(), "missing.yaml")
	assert.True(t, errors.IsNotFound(err))
}

func TestParseGCSURL(t *testing.T) {
	bucket, prefix, err := parseGCSURL("gs://bucket/studio/origin")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "studio/origin", prefix)

	_, _, err = parseGCSURL("gs://")
	require.Error(t, err)
	_, _, err = parseGCSURL("s3://bucket")
	require.Error(t, err)
}

func TestIndexRepository_ReadSpecRequiresBuild(t *testing.T) {
	client := &fakeS3{bucket: "bucket", objects: publishedObjects(t, "")}
	store, err := NewS3StoreWithClient("s3://bucket", client)
	require.NoError(t, err)

	repo := NewIndexRepository("origin", store, nil)
	_, err = repo.ReadSpec(context.Background(), manifest.MustParseBuildIdent("maya/2019.2.0"))
	var valErr *errors.ValidationError
	require.ErrorAs(t, err, &valErr)
}
