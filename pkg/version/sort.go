package version

import "sort"

// Sort sorts a slice of versions in ascending order (oldest first).
//
// The sort is performed in-place using Compare. Versions with pre-release
// tags are sorted before their release counterparts (1.0.0-rc.1 < 1.0.0).
//
// Example:
//
//	versions := []*Version{
//	    MustParse("2.0.0"),
//	    MustParse("1.0.0"),
//	    MustParse("1.5.0"),
//	}
//	Sort(versions)
//	// Result: [1.0.0, 1.5.0, 2.0.0]
func Sort(versions []*Version) {
	sort.Sort(versionSlice(versions))
}

// SortDesc sorts a slice of versions in descending order (newest first).
//
// The sort is stable so that equal versions listed by different
// repositories keep their priority order.
//
// Example:
//
//	versions := []*Version{
//	    MustParse("1.0.0"),
//	    MustParse("2.0.0"),
//	    MustParse("1.5.0"),
//	}
//	SortDesc(versions)
//	// Result: [2.0.0, 1.5.0, 1.0.0]
func SortDesc(versions []*Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].GreaterThan(versions[j])
	})
}

// versionSlice implements sort.Interface for sorting versions in ascending order.
type versionSlice []*Version

// Len returns the number of versions in the slice.
func (vs versionSlice) Len() int {
	return len(vs)
}

// Less reports whether the version at index i is less than the version at index j.
func (vs versionSlice) Less(i, j int) bool {
	return vs[i].LessThan(vs[j])
}

// Swap swaps the versions at indices i and j.
func (vs versionSlice) Swap(i, j int) {
	vs[i], vs[j] = vs[j], vs[i]
}

// Latest returns the highest version from a slice of versions.
//
// Returns nil if the slice is empty.
//
// Example:
//
//	latest := Latest([]*Version{
//	    MustParse("1.0.0"),
//	    MustParse("2.0.0"),
//	    MustParse("1.5.0"),
//	})
//	// Result: 2.0.0
func Latest(versions []*Version) *Version {
	if len(versions) == 0 {
		return nil
	}

	latest := versions[0]
	for _, v := range versions[1:] {
		if v.GreaterThan(latest) {
			latest = v
		}
	}
	return latest
}
