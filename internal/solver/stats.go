package solver

import (
	"fmt"
	"sort"
	"time"

	"github.com/launchcg/stratum/internal/request"
)

// Stats counts what a solve did.
type Stats struct {
	Steps                int
	StepsBack            int
	BuildsSkipped        int
	IncompatibleVersions int
	IncompatibleBuilds   int
	TotalBuilds          int
	SubSolves            int
	Duration             time.Duration

	errors   map[string]*errorFreq
	problems map[string]int
	// time spent in steps on each request name
	requestTimes map[string]time.Duration
}

type errorFreq struct {
	count int
	// set for "could not satisfy" errors
	satisfy    bool
	first      []request.RequestedBy
	requesters map[request.RequestedBy]bool
}

func newStats() *Stats {
	return &Stats{
		errors:       make(map[string]*errorFreq),
		problems:     make(map[string]int),
		requestTimes: make(map[string]time.Duration),
	}
}

func (s *Stats) recordRequestTime(name string, start time.Time) {
	s.requestTimes[name] += time.Since(start)
}

// LongestRequest returns the request name the solve spent the most time
// on, summed over every step that tried to resolve it. The name is empty
// when no step was taken.
func (s *Stats) LongestRequest() (string, time.Duration) {
	var name string
	var longest time.Duration
	for n, d := range s.requestTimes {
		if name == "" || d > longest || (d == longest && n < name) {
			name, longest = n, d
		}
	}
	return name, longest
}

func (s *Stats) recordMessage(msg string) {
	f, ok := s.errors[msg]
	if !ok {
		f = &errorFreq{}
		s.errors[msg] = f
	}
	f.count++
}

func (s *Stats) recordCouldNotSatisfy(req string, by []request.RequestedBy) {
	f, ok := s.errors[req]
	if !ok {
		f = &errorFreq{
			satisfy:    true,
			first:      append([]request.RequestedBy(nil), by...),
			requesters: make(map[request.RequestedBy]bool),
		}
		s.errors[req] = f
	}
	f.count++
	for _, r := range by {
		f.requesters[r] = true
	}
	for _, r := range by {
		if r.Kind == request.PackageRequirement || r.Kind == request.BuildEnvironment {
			s.problems[r.PackageName()]++
		}
	}
}

func (f *errorFreq) message(key string) string {
	if !f.satisfy {
		return key
	}
	msg := fmt.Sprintf("could not satisfy '%s' as required by: %s", key, requesterList(f.first))
	inFirst := make(map[request.RequestedBy]bool, len(f.first))
	for _, r := range f.first {
		inFirst[r] = true
	}
	others := 0
	for r := range f.requesters {
		if !inFirst[r] {
			others++
		}
	}
	switch {
	case others == 1:
		msg += " and 1 other"
	case others > 1:
		msg += fmt.Sprintf(" and %d others", others)
	}
	return msg
}

// FrequentError is an error message and how often it was hit.
type FrequentError struct {
	Message string
	Count   int
}

// FrequentErrors returns up to limit errors, most frequent first, and the
// number of distinct errors left out.
func (s *Stats) FrequentErrors(limit int) ([]FrequentError, int) {
	keys := make([]string, 0, len(s.errors))
	for k := range s.errors {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := s.errors[keys[i]].count, s.errors[keys[j]].count
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})

	others := 0
	if limit >= 0 && len(keys) > limit {
		others = len(keys) - limit
		keys = keys[:limit]
	}
	out := make([]FrequentError, len(keys))
	for i, k := range keys {
		out[i] = FrequentError{Message: s.errors[k].message(k), Count: s.errors[k].count}
	}
	return out, others
}

// ProblemPackage is a package whose requirements blocked the solve.
type ProblemPackage struct {
	Name  string
	Count int
}

// ProblemPackages returns the packages whose requirements could not be
// satisfied, most frequent first.
func (s *Stats) ProblemPackages() []ProblemPackage {
	out := make([]ProblemPackage, 0, len(s.problems))
	for name, count := range s.problems {
		out = append(out, ProblemPackage{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// causes renders the most frequent errors for a failure message.
func (s *Stats) causes(limit int) []string {
	top, others := s.FrequentErrors(limit)
	out := make([]string, 0, len(top)+1)
	for _, f := range top {
		out = append(out, f.Message)
	}
	if others > 0 {
		out = append(out, fmt.Sprintf("and %d others", others))
	}
	return out
}
