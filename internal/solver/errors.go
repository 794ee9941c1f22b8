package solver

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/request"
)

// PackageNotFoundError is returned when no repository knows a package the
// user asked for.
type PackageNotFoundError struct {
	Name string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package %q not found", e.Name)
}

// Unwrap lets callers match iterator.ErrPackageNotFound.
func (e *PackageNotFoundError) Unwrap() error { return iterator.ErrPackageNotFound }

// NoApplicableVersionError is returned when a package exists but none of its
// versions is in range. Err lists the versions that were available.
type NoApplicableVersionError struct {
	Request *request.PkgRequest
	Notes   []string
	Err     *errors.VersionError
}

func (e *NoApplicableVersionError) Error() string {
	msg := fmt.Sprintf("no applicable version of %s", e.Request)
	if len(e.Notes) > 0 {
		msg += ": " + strings.Join(e.Notes, "; ")
	}
	return msg
}

func (e *NoApplicableVersionError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// BlockedError is returned when every candidate of a request was tried and
// rejected. Causes holds the most frequent reasons.
type BlockedError struct {
	Request *request.PkgRequest
	Causes  []string
}

func (e *BlockedError) Error() string {
	var sb strings.Builder
	if e.Request != nil {
		fmt.Fprintf(&sb, "could not satisfy %s", e.Request)
	} else {
		sb.WriteString("blocked")
	}
	if len(e.Causes) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(e.Causes, "; "))
	}
	return sb.String()
}

// BuildEnvironmentUnresolvableError is returned when the build requirements
// of a recipe can't be solved.
type BuildEnvironmentUnresolvableError struct {
	Recipe string
	Err    error
}

func (e *BuildEnvironmentUnresolvableError) Error() string {
	return fmt.Sprintf("cannot resolve build environment of %s: %v", e.Recipe, e.Err)
}

func (e *BuildEnvironmentUnresolvableError) Unwrap() error { return e.Err }

// TimeoutError is returned when a solve runs past its timeout.
type TimeoutError struct {
	Elapsed time.Duration
	Trace   *Trace
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("solve timed out after %s", e.Elapsed.Round(time.Millisecond))
}

// CancelledError is returned when the context of a solve is cancelled.
type CancelledError struct {
	Trace *Trace
	Err   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("solve cancelled: %v", e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// ImpossibleRequestError is returned when the impossible request check finds
// initial requests nothing can satisfy.
type ImpossibleRequestError struct {
	Requests []string
	Reasons  map[string]string
}

func (e *ImpossibleRequestError) Error() string {
	parts := make([]string, len(e.Requests))
	for i, r := range e.Requests {
		parts[i] = fmt.Sprintf("%s: %s", r, e.Reasons[r])
	}
	return "impossible requests detected: " + strings.Join(parts, "; ")
}

func newImpossibleRequestError(reasons map[string]string) *ImpossibleRequestError {
	reqs := make([]string, 0, len(reasons))
	for r := range reasons {
		reqs = append(reqs, r)
	}
	sort.Strings(reqs)
	return &ImpossibleRequestError{Requests: reqs, Reasons: reasons}
}

// SolveError is the failure of a whole solve. Err is one of the errors
// above; Trace and Stats describe the search up to the failure.
type SolveError struct {
	Err   error
	Trace *Trace
	Stats *Stats
}

func (e *SolveError) Error() string {
	return "failed to resolve: " + e.Err.Error()
}

func (e *SolveError) Unwrap() error { return e.Err }

// outOfOptionsError is raised inside a step when a request has no candidates
// left. It never leaves the runtime.
type outOfOptionsError struct {
	request *request.PkgRequest
	notes   []graph.Note
	// matched is set when some version of the package was in range
	matched  bool
	iterator *iterator.Iterator
	// conflict is set when the requests for the name can't be merged
	conflict error
}

func (e *outOfOptionsError) Error() string {
	return fmt.Sprintf("out of options for %s", e.request)
}

// notFoundError is raised inside a step when a requested name is unknown.
type notFoundError struct {
	request *request.PkgRequest
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("package %q not found", e.request.Name)
}

func requesterList(by []request.RequestedBy) string {
	parts := make([]string, len(by))
	for i, r := range by {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
