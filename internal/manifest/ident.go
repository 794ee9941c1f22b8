// Package manifest defines package identifiers and the package spec
// documents published to repositories: binary builds and the source recipes
// they are built from.
package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/launchcg/stratum/pkg/version"
)

const identSep = "/"

// nameRegex matches valid package names: lowercase letters, digits and
// dashes, starting with a letter.
var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ValidateName returns an error if name is not a valid package name.
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid package name %q: must be lowercase letters, digits and dashes, starting with a letter", name)
	}
	return nil
}

// BuildID identifies one build of a package version.
//
// Binary builds are identified by the digest of their build options. The
// special value "src" identifies the source package of a version, and an
// empty BuildID identifies the recipe itself.
type BuildID string

const (
	// SourceBuild is the build id of a version's source package.
	SourceBuild BuildID = "src"
	// EmbeddedBuild is the build id given to packages embedded in another.
	EmbeddedBuild BuildID = "embedded"
)

// IsSource reports whether the id refers to a source package.
func (b BuildID) IsSource() bool { return b == SourceBuild }

// IsEmbedded reports whether the id refers to an embedded package.
func (b BuildID) IsEmbedded() bool { return b == EmbeddedBuild }

// Ident names a package version.
type Ident struct {
	Name    string
	Version *version.Version
}

// String returns "name/version".
func (id Ident) String() string {
	if id.Version == nil {
		return id.Name
	}
	return id.Name + identSep + id.Version.String()
}

// WithBuild returns the build ident for this version.
func (id Ident) WithBuild(b BuildID) BuildIdent {
	return BuildIdent{Ident: id, Build: b}
}

// BuildIdent names one build of a package version.
type BuildIdent struct {
	Ident
	Build BuildID
}

// String returns "name/version/build", or "name/version" for recipes.
func (id BuildIdent) String() string {
	if id.Build == "" {
		return id.Ident.String()
	}
	return id.Ident.String() + identSep + string(id.Build)
}

// ParseBuildIdent parses "name", "name/version" or "name/version/build".
//
// Examples:
//   - "maya"
//   - "maya/2019.2.0"
//   - "maya/2019.2.0/src"
//   - "maya/2019.2.0/QYB6QLCN"
func ParseBuildIdent(s string) (BuildIdent, error) {
	parts := strings.Split(s, identSep)
	if len(parts) > 3 {
		return BuildIdent{}, fmt.Errorf("invalid package identifier %q: too many %q separators", s, identSep)
	}
	if err := ValidateName(parts[0]); err != nil {
		return BuildIdent{}, err
	}

	id := BuildIdent{Ident: Ident{Name: parts[0]}}
	if len(parts) > 1 {
		v, err := version.Parse(parts[1])
		if err != nil {
			return BuildIdent{}, fmt.Errorf("invalid package identifier %q: %w", s, err)
		}
		id.Version = v
	} else {
		id.Version = &version.Version{}
	}
	if len(parts) > 2 {
		if parts[2] == "" {
			return BuildIdent{}, fmt.Errorf("invalid package identifier %q: empty build", s)
		}
		id.Build = BuildID(parts[2])
	}
	return id, nil
}

// MustParseBuildIdent parses an identifier and panics on error.
func MustParseBuildIdent(s string) BuildIdent {
	id, err := ParseBuildIdent(s)
	if err != nil {
		panic(fmt.Sprintf("manifest.MustParseBuildIdent(%q): %v", s, err))
	}
	return id
}
