package iterator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
)

func TestKeyNames(t *testing.T) {
	specs := []*manifest.Spec{
		manifest.MustParseSpec("pkg: lib/1.0.0/AAAAAAAA\nbuild:\n  options:\n    - var: arch/x86_64\n    - var: debug/off\n    - pkg: python/~3.7"),
		manifest.MustParseSpec("pkg: lib/1.0.0/BBBBBBBB\nbuild:\n  options:\n    - var: arch/x86_64\n    - var: debug/on\n    - pkg: python/~2.7"),
		manifest.MustParseSpec("pkg: lib/1.0.0/CCCCCCCC\nbuild:\n  options:\n    - var: arch/x86_64\n    - pkg: gcc/~9.3"),
		manifest.MustParseSpec("pkg: lib/1.0.0/src"),
	}

	tests := []struct {
		name     string
		promoted []string
		want     []string
	}{
		{name: "sorted", want: []string{"debug", "gcc", "python"}},
		{name: "promoted", promoted: []string{"python", "gcc"}, want: []string{"python", "gcc", "debug"}},
		{name: "unknown promoted names are ignored", promoted: []string{"arch", "zlib"}, want: []string{"debug", "gcc", "python"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyNames(specs, tt.promoted))
		})
	}
}

func TestBuildKey_Compare(t *testing.T) {
	id := func(s string) manifest.BuildIdent { return manifest.MustParseBuildIdent(s) }
	names := []string{"python", "debug"}

	newer := NewBuildKey(id("lib/1.0.0/AAAAAAAA"), names, manifest.OptionMap{"python": "~3.7", "debug": "off"}, true)
	older := NewBuildKey(id("lib/1.0.0/BBBBBBBB"), names, manifest.OptionMap{"python": "~2.7", "debug": "off"}, true)
	unset := NewBuildKey(id("lib/1.0.0/CCCCCCCC"), names, manifest.OptionMap{"debug": "off"}, true)
	impossible := NewBuildKey(id("lib/1.0.0/DDDDDDDD"), names, manifest.OptionMap{"python": "~3.9", "debug": "off"}, false)
	textOn := NewBuildKey(id("lib/1.0.0/EEEEEEEE"), names, manifest.OptionMap{"python": "~3.7", "debug": "on"}, true)
	src := NewBuildKey(id("lib/1.0.0/src"), names, nil, true)
	embedded := NewBuildKey(id("lib/1.0.0/embedded"), names, nil, true)

	assert.Equal(t, 1, newer.Compare(older))
	assert.Equal(t, 1, older.Compare(unset))
	assert.Equal(t, -1, impossible.Compare(unset))
	assert.Equal(t, 1, textOn.Compare(newer))
	assert.Equal(t, 1, embedded.Compare(src))
	assert.Equal(t, 1, impossible.Compare(embedded))
	assert.Equal(t, 0, src.Compare(src))
	assert.Equal(t, 0, newer.Compare(newer))

	assert.Equal(t, "Src", src.String())
	assert.Contains(t, newer.String(), "All possible: true")
	assert.Contains(t, unset.String(), "NotSet")
}

func TestIterator_BuildOrder(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: lib/1.0.0/src"),
		manifest.MustParseSpec("pkg: lib/1.0.0"),
		manifest.MustParseSpec("pkg: lib/1.0.0/AAAAAAAA\nbuild:\n  options:\n    - pkg: python/~2.7\n    - var: debug/off"),
		manifest.MustParseSpec("pkg: lib/1.0.0/BBBBBBBB\nbuild:\n  options:\n    - pkg: python/~3.7\n    - var: debug/off"),
		manifest.MustParseSpec("pkg: lib/1.0.0/CCCCCCCC\nbuild:\n  options:\n    - pkg: python/~3.7\n    - var: debug/on"),
	)

	t.Run("by option values", func(t *testing.T) {
		it := New("lib", []registry.Repository{repo})
		assert.Equal(t, []string{
			"lib/1.0.0/CCCCCCCC",
			"lib/1.0.0/BBBBBBBB",
			"lib/1.0.0/AAAAAAAA",
			"lib/1.0.0/src",
			"lib/1.0.0",
		}, drain(t, it))
	})

	t.Run("impossible builds last", func(t *testing.T) {
		it := New("lib", []registry.Repository{repo}, WithPossibleCheck(func(ctx context.Context, spec *manifest.Spec) bool {
			return spec.Pkg.Build != "CCCCCCCC"
		}))
		got := drain(t, it)
		require.Len(t, got, 5)
		assert.Equal(t, "lib/1.0.0/BBBBBBBB", got[0])
		assert.Equal(t, "lib/1.0.0/CCCCCCCC", got[2])
	})

	t.Run("promoted names", func(t *testing.T) {
		it := New("lib", []registry.Repository{repo}, WithBuildKeyOrder("python"))
		got := drain(t, it)
		assert.Equal(t, "lib/1.0.0/CCCCCCCC", got[0])
		assert.Equal(t, "lib/1.0.0/AAAAAAAA", got[2])
	})
}
