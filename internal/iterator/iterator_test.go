package iterator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/internal/registry/mocks"
	"github.com/launchcg/stratum/pkg/version"
)

func drain(t *testing.T, it *Iterator) []string {
	t.Helper()
	var out []string
	for {
		cand, err := it.Next(context.Background())
		require.NoError(t, err)
		if cand == nil {
			return out
		}
		out = append(out, cand.String())
	}
}

func TestIterator_VersionsDescending(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: gcc/4.8.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: gcc/6.3.0/BBBBBBBB"),
		manifest.MustParseSpec("pkg: gcc/6.3.0"),
		manifest.MustParseSpec("pkg: gcc/5.0.0/CCCCCCCC"),
	)

	it := New("gcc", []registry.Repository{repo})
	assert.Equal(t, []string{
		"gcc/6.3.0/BBBBBBBB",
		"gcc/6.3.0",
		"gcc/5.0.0/CCCCCCCC",
		"gcc/4.8.0/AAAAAAAA",
	}, drain(t, it))

	// exhausted stays exhausted
	cand, err := it.Peek(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestIterator_RecipeSource(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(manifest.MustParseSpec("pkg: gcc/6.3.0"))

	cand, err := New("gcc", []registry.Repository{repo}).Peek(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.True(t, cand.Source.IsRecipe())
	assert.Equal(t, "recipe from origin", cand.Source.String())
}

func TestIterator_PackageNotFound(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(manifest.MustParseSpec("pkg: gcc/6.3.0/AAAAAAAA"))

	_, err := New("doesntexist", []registry.Repository{repo}).Peek(context.Background())
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestIterator_MergesRepositories(t *testing.T) {
	first := registry.NewMemRepository("first")
	first.Publish(
		manifest.MustParseSpec("pkg: maya/2019.0.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: maya/2019.2.0/BBBBBBBB\ndeprecated: true"),
	)
	second := registry.NewMemRepository("second")
	second.Publish(
		manifest.MustParseSpec("pkg: maya/2019.2.0/BBBBBBBB"),
		manifest.MustParseSpec("pkg: maya/2020.0.0/CCCCCCCC"),
	)

	it := New("maya", []registry.Repository{first, second})
	var got []*Candidate
	for {
		cand, err := it.Next(context.Background())
		require.NoError(t, err)
		if cand == nil {
			break
		}
		got = append(got, cand)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "maya/2020.0.0/CCCCCCCC", got[0].String())
	assert.Equal(t, "second", got[0].Source.Repo)
	// the duplicate build comes from the first repository only
	assert.Equal(t, "maya/2019.2.0/BBBBBBBB", got[1].String())
	assert.Equal(t, "first", got[1].Source.Repo)
	assert.True(t, got[1].Spec.Deprecated)
	assert.Equal(t, "maya/2019.0.0/AAAAAAAA", got[2].String())
}

func TestIterator_Filter(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: gcc/4.8.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: gcc/6.3.0/BBBBBBBB"),
		manifest.MustParseSpec("pkg: gcc/7.0.0-rc.1/CCCCCCCC"),
	)

	r := version.MustParseRange("<6")
	var skipped []string
	it := New("gcc", []registry.Repository{repo})
	it.SetFilter(func(v *version.Version) version.Compatibility {
		if v.IsPreRelease() {
			return version.Incompatible("prereleases not allowed")
		}
		return r.IsApplicable(v)
	}, func(v *version.Version, reason string) {
		skipped = append(skipped, v.String()+": "+reason)
	})

	assert.Equal(t, []string{"gcc/4.8.0/AAAAAAAA"}, drain(t, it))
	require.Len(t, skipped, 2)
	assert.Contains(t, skipped[0], "prereleases not allowed")
	assert.Contains(t, skipped[1], "6.3.0")
}

func TestIterator_Matched(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: gcc/4.8.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: gcc/6.3.0/BBBBBBBB"),
	)
	repos := []registry.Repository{repo}

	tests := []struct {
		name string
		rng  string
		want bool
	}{
		{name: "in range", rng: "6", want: true},
		{name: "out of range", rng: "7", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := version.MustParseRange(tt.rng)
			it := New("gcc", repos)
			it.SetFilter(r.IsApplicable, nil)
			assert.False(t, it.Matched())

			drain(t, it)
			assert.Equal(t, tt.want, it.Matched())
			// an exhausted clone remembers what its origin reached
			assert.Equal(t, tt.want, it.Clone().Matched())
		})
	}
}

func TestIterator_CloneIsIndependent(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: gcc/4.8.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: gcc/6.3.0/BBBBBBBB"),
	)

	it := New("gcc", []registry.Repository{repo})
	first, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gcc/6.3.0/BBBBBBBB", first.String())

	clone := it.Clone()
	assert.Equal(t, []string{"gcc/4.8.0/AAAAAAAA"}, drain(t, it))
	// the clone kept its own position
	assert.Equal(t, []string{"gcc/4.8.0/AAAAAAAA"}, drain(t, clone))
}

func TestIterator_CloneDoesNotRefetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	v := version.MustParse("1.0.0")
	spec := manifest.MustParseSpec("pkg: zlib/1.0.0/AAAAAAAA")

	repo.EXPECT().Name().Return("origin").AnyTimes()
	repo.EXPECT().ListVersions(gomock.Any(), "zlib").Return([]*version.Version{v}, nil).Times(1)
	repo.EXPECT().ListBuilds(gomock.Any(), "zlib", v).Return([]manifest.BuildID{"AAAAAAAA"}, nil).Times(1)
	repo.EXPECT().ReadSpec(gomock.Any(), spec.Pkg).Return(spec, nil).Times(1)
	repo.EXPECT().ReadRecipe(gomock.Any(), "zlib", v).Return(nil, errors.NewNotFoundError("recipe", "zlib/1.0.0")).Times(1)

	it := New("zlib", []registry.Repository{repo})
	clone := it.Clone()
	assert.Equal(t, []string{"zlib/1.0.0/AAAAAAAA"}, drain(t, it))
	assert.Equal(t, []string{"zlib/1.0.0/AAAAAAAA"}, drain(t, clone))
	assert.Equal(t, []string{"zlib/1.0.0/AAAAAAAA"}, drain(t, clone.Clone()))
}

func TestIterator_RepositoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	repo.EXPECT().Name().Return("origin").AnyTimes()
	repo.EXPECT().ListVersions(gomock.Any(), "zlib").Return(nil, errors.New("connection refused"))

	_, err := New("zlib", []registry.Repository{repo}).Peek(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPackageNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIterator_Cancelled(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(manifest.MustParseSpec("pkg: gcc/6.3.0/AAAAAAAA"))

	ctx, cancel := context.WithCancel(context.Background())
	it := New("gcc", []registry.Repository{repo})
	_, err := it.Versions(ctx)
	require.NoError(t, err)
	cancel()

	_, err = it.Peek(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIterator_VersionsAndBuilds(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: gcc/4.8.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: gcc/6.3.0/BBBBBBBB"),
		manifest.MustParseSpec("pkg: gcc/6.3.0/src"),
	)
	it := New("gcc", []registry.Repository{repo})

	versions, err := it.Versions(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "6.3.0", versions[0].String())

	builds, err := it.Builds(context.Background(), version.MustParse("6.3"))
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "gcc/6.3.0/BBBBBBBB", builds[0].String())
	assert.Equal(t, "gcc/6.3.0/src", builds[1].String())
}
