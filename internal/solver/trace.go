package solver

import (
	"strings"

	"github.com/launchcg/stratum/internal/graph"
)

// EventKind classifies a line of a trace.
type EventKind int

const (
	EventResolve EventKind = iota
	EventBuild
	EventUnresolve
	EventRequest
	EventOptions
	EventTry
	EventNote
	EventBlocked
	EventStepBack
	EventSolved
)

func (k EventKind) String() string {
	switch k {
	case EventResolve:
		return "RESOLVE"
	case EventBuild:
		return "BUILD"
	case EventUnresolve:
		return "UNRESOLVE"
	case EventRequest:
		return "REQUEST"
	case EventOptions:
		return "SET"
	case EventTry:
		return "TRY"
	case EventNote:
		return "NOTE"
	case EventBlocked:
		return "BLOCKED"
	case EventStepBack:
		return "STEP BACK"
	}
	return "SOLVED"
}

// Event is one line of a trace.
type Event struct {
	Depth int
	Kind  EventKind
	Text  string
}

func (e Event) String() string {
	return strings.Repeat("  ", e.Depth) + e.Kind.String() + " " + e.Text
}

// Trace is the record of every decision a solve made, in order. It renders
// as a decision tree indented by depth.
type Trace struct {
	events []Event
}

// Events returns the recorded events.
func (t *Trace) Events() []Event { return t.events }

// Len returns the number of events.
func (t *Trace) Len() int { return len(t.events) }

func (t *Trace) add(depth int, kind EventKind, text string) {
	t.events = append(t.events, Event{Depth: depth, Kind: kind, Text: text})
}

// record adds the notes and changes of a decision taken at depth.
func (t *Trace) record(depth int, d *graph.Decision) {
	for _, n := range d.Notes {
		switch n := n.(type) {
		case graph.SkipPackageNote:
			t.add(depth, EventTry, n.Pkg+" - "+n.Reason)
		default:
			t.add(depth, EventNote, n.String())
		}
	}
	for _, c := range d.Changes {
		switch c := c.(type) {
		case graph.SetPackage:
			t.add(depth, EventResolve, c.Spec.Pkg.String())
		case graph.SetPackageBuild:
			t.add(depth, EventBuild, c.Spec.Pkg.String())
		case graph.UnresolvePackage:
			t.add(depth, EventUnresolve, c.Name+": "+c.Reason)
		case graph.RequestPackage:
			t.add(depth, EventRequest, c.Request.String())
		case graph.RequestVar:
			t.add(depth, EventRequest, "var "+c.Request.String())
		case graph.SetOptions:
			t.add(depth, EventOptions, c.Options.String())
		case graph.StepBack:
			t.add(depth, EventBlocked, c.Cause)
		}
	}
}

// Filter returns the events of the given kinds.
func (t *Trace) Filter(kinds ...EventKind) []Event {
	want := make(map[EventKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Event
	for _, e := range t.events {
		if want[e.Kind] {
			out = append(out, e)
		}
	}
	return out
}

func (t *Trace) String() string {
	var sb strings.Builder
	for _, e := range t.events {
		sb.WriteString(e.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
