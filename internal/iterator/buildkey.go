package iterator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/pkg/version"
)

type keyKind int

const (
	keySource keyKind = iota
	keyEmbedded
	keyBinary
)

type entryKind int

const (
	entryNotSet entryKind = iota
	entryText
	entryVersion
)

// keyEntry is the sortable form of one option value. Values that parse as
// a version range compare by their bounds, anything else as text.
type keyEntry struct {
	kind     entryKind
	text     string
	max, min *version.Version
	tie      uint64
}

func newKeyEntry(value string, set bool) keyEntry {
	if !set {
		return keyEntry{kind: entryNotSet}
	}
	// "~2019.2/QYB6QLCN" pins carry a build digest after the range
	rangeStr, _, _ := strings.Cut(value, "/")
	r, err := version.ParseRange(rangeStr)
	if err != nil || rangeStr == "" {
		return keyEntry{kind: entryText, text: value}
	}
	lo, hi := version.Bounds(r)
	return keyEntry{kind: entryVersion, max: hi, min: lo, tie: xxhash.Sum64String(rangeStr), text: value}
}

func (e keyEntry) compare(o keyEntry) int {
	if e.kind != o.kind {
		return int(e.kind) - int(o.kind)
	}
	switch e.kind {
	case entryText:
		return strings.Compare(e.text, o.text)
	case entryVersion:
		if c := compareUpper(e.max, o.max); c != 0 {
			return c
		}
		if c := compareLower(e.min, o.min); c != 0 {
			return c
		}
		switch {
		case e.tie < o.tie:
			return -1
		case e.tie > o.tie:
			return 1
		}
	}
	return 0
}

// compareUpper treats a nil upper bound as infinitely high.
func compareUpper(a, b *version.Version) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(b)
}

// compareLower treats a nil lower bound as 0.0.0.
func compareLower(a, b *version.Version) int {
	if a == nil {
		a = &version.Version{}
	}
	if b == nil {
		b = &version.Version{}
	}
	return a.Compare(b)
}

func (e keyEntry) String() string {
	switch e.kind {
	case entryNotSet:
		return "NotSet"
	case entryVersion:
		hi := "inf"
		if e.max != nil {
			hi = e.max.String()
		}
		lo := "0.0.0"
		if e.min != nil {
			lo = e.min.String()
		}
		return fmt.Sprintf("%s>v>=%s", hi, lo)
	}
	return e.text
}

// BuildKey orders the builds of one version. Larger keys are tried first:
// binary builds whose requirements are all possible, then by option values
// in name order, then by digest. Embedded stubs follow the binary builds
// and source builds come last.
type BuildKey struct {
	kind     keyKind
	possible bool
	entries  []keyEntry
	digest   string
}

// NewBuildKey computes the key of a build from its option values.
func NewBuildKey(id manifest.BuildIdent, names []string, values manifest.OptionMap, possible bool) BuildKey {
	switch {
	case id.Build.IsSource() || id.Build == "":
		return BuildKey{kind: keySource}
	case id.Build.IsEmbedded():
		return BuildKey{kind: keyEmbedded}
	}

	key := BuildKey{kind: keyBinary, possible: possible, digest: string(id.Build)}
	key.entries = make([]keyEntry, len(names))
	for i, name := range names {
		value, ok := values[name]
		key.entries[i] = newKeyEntry(value, ok)
	}
	return key
}

// Compare returns -1, 0 or 1.
func (k BuildKey) Compare(o BuildKey) int {
	if k.kind != o.kind {
		return sign(int(k.kind) - int(o.kind))
	}
	if k.kind != keyBinary {
		return 0
	}
	if k.possible != o.possible {
		if k.possible {
			return 1
		}
		return -1
	}
	for i := 0; i < len(k.entries) && i < len(o.entries); i++ {
		if c := k.entries[i].compare(o.entries[i]); c != 0 {
			return sign(c)
		}
	}
	if c := len(k.entries) - len(o.entries); c != 0 {
		return sign(c)
	}
	return strings.Compare(k.digest, o.digest)
}

func (k BuildKey) String() string {
	switch k.kind {
	case keySource:
		return "Src"
	case keyEmbedded:
		return "Embed"
	}
	parts := make([]string, 0, len(k.entries)+2)
	parts = append(parts, fmt.Sprintf("All possible: %t", k.possible))
	for _, e := range k.entries {
		parts = append(parts, e.String())
	}
	parts = append(parts, k.digest)
	return strings.Join(parts, ", ")
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}

// KeyNames returns the option names that distinguish the given builds, with
// the promoted names moved to the front in their configured order. Options
// that every binary build sets to the same value are left out.
func KeyNames(specs []*manifest.Spec, promoted []string) []string {
	type counter struct {
		last    string
		count   int
		changed bool
	}

	binaries := 0
	counters := make(map[string]*counter)
	for _, spec := range specs {
		if spec.IsSource() || spec.IsRecipe() {
			continue
		}
		binaries++
		for name, value := range spec.Options() {
			c, ok := counters[name]
			if !ok {
				c = &counter{last: value}
				counters[name] = c
			}
			c.count++
			if c.last != value {
				c.changed = true
			}
		}
	}

	var names []string
	for name, c := range counters {
		if c.changed || c.count != binaries {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return promoteNames(names, promoted)
}

func promoteNames(names, promoted []string) []string {
	rank := make(map[string]int, len(promoted))
	for i, name := range promoted {
		if _, ok := rank[name]; !ok {
			rank[name] = i
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		ri, iok := rank[names[i]]
		rj, jok := rank[names[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return false
	})
	return names
}
