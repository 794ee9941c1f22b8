package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name         string
		source       string
		wantProtocol string
		wantPath     string
		wantErr      bool
	}{
		{name: "file relative", source: "file:../repo", wantProtocol: "file", wantPath: "../repo"},
		{name: "file absolute", source: "file:///srv/repo", wantProtocol: "file", wantPath: "/srv/repo"},
		{name: "plain path", source: "./repo", wantProtocol: "file", wantPath: "./repo"},
		{name: "git https", source: "git+https://github.com/studio/pkgs.git#v1", wantProtocol: "git", wantPath: "https://github.com/studio/pkgs.git#v1"},
		{name: "git ssh", source: "git+ssh://git@github.com/studio/pkgs.git", wantProtocol: "git", wantPath: "ssh://git@github.com/studio/pkgs.git"},
		{name: "git invalid", source: "git+ftp://host/repo", wantErr: true},
		{name: "https", source: "https://pkgs.example.com/origin", wantProtocol: "https", wantPath: "https://pkgs.example.com/origin"},
		{name: "http", source: "http://localhost:8080", wantProtocol: "http", wantPath: "http://localhost:8080"},
		{name: "s3", source: "s3://bucket/origin", wantProtocol: "s3", wantPath: "bucket/origin"},
		{name: "azure", source: "az://account/container/origin", wantProtocol: "az", wantPath: "account/container/origin"},
		{name: "gcs", source: "gs://bucket/origin", wantProtocol: "gs", wantPath: "bucket/origin"},
		{name: "mem", source: "mem:", wantProtocol: "mem", wantPath: ""},
		{name: "empty", source: "", wantErr: true},
		{name: "unknown scheme", source: "ftp://host/repo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			protocol, p, err := ParseSource(tt.source)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProtocol, protocol)
			assert.Equal(t, tt.wantPath, p)
		})
	}
}

func TestNewRepository_ProtocolRouting(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		repo, err := NewRepository(ctx, "local", dir, Options{})
		require.NoError(t, err)
		assert.IsType(t, &IndexRepository{}, repo)
		assert.Equal(t, "local", repo.Name())
	})

	t.Run("mem", func(t *testing.T) {
		repo, err := NewRepository(ctx, "scratch", "mem:", Options{})
		require.NoError(t, err)
		assert.IsType(t, &MemRepository{}, repo)
	})

	t.Run("https", func(t *testing.T) {
		repo, err := NewRepository(ctx, "origin", "https://pkgs.example.com/origin/", Options{})
		require.NoError(t, err)
		assert.Equal(t, "https://pkgs.example.com/origin", repo.(*IndexRepository).Location())
	})

	t.Run("git", func(t *testing.T) {
		repo, err := NewRepository(ctx, "studio", "git+https://github.com/studio/pkgs.git#branch=main",
			Options{Cache: NewCache(t.TempDir())})
		require.NoError(t, err)
		assert.Equal(t, "git+https://github.com/studio/pkgs.git#branch=main", repo.(*IndexRepository).Location())
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := NewRepository(ctx, "local", dir+"/missing", Options{})
		require.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := NewRepository(ctx, "x", "ftp://host", Options{})
		require.Error(t, err)
	})
}

func TestMustNewRepository(t *testing.T) {
	assert.NotPanics(t, func() { MustNewRepository("scratch", "mem:") })
	assert.Panics(t, func() { MustNewRepository("x", "") })
}
