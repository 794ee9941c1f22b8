package solver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/internal/solution"
)

// Runtime is one search. Each call to Next takes one step.
type Runtime struct {
	// ID identifies the run in logs and lock files.
	ID uuid.UUID

	s       *Solver
	logger  *slog.Logger
	graph   *graph.Graph
	current *graph.Node
	trace   *Trace
	stats   *Stats
	span    trace.Span

	start      time.Time
	window     time.Time
	verbosity  int
	started    bool
	done       bool
	solved     *graph.Node
	err        error
	initialErr error
}

// Run starts a search. Nothing is fetched until the first step.
func (s *Solver) Run(ctx context.Context) *Runtime {
	id := uuid.New()
	_, span := tracer.Start(ctx, "solver.Solve", trace.WithAttributes(
		attribute.String("solve.id", id.String()),
		attribute.Int("solve.depth", s.depth),
		attribute.Int("solve.requests", len(s.requests)),
	))

	now := time.Now()
	r := &Runtime{
		ID:     id,
		s:      s,
		logger: s.cfg.logger.With(slog.String("solve", id.String()), slog.Int("depth", s.depth)),
		trace:  &Trace{},
		stats:  newStats(),
		span:   span,
		start:  now,
		window: now,
	}

	state, err := s.initialState()
	if err != nil {
		r.initialErr = err
		state = graph.NewState()
	}
	r.graph = graph.New(state)
	r.current = r.graph.Root
	return r
}

// Trace returns the decisions made so far.
func (r *Runtime) Trace() *Trace { return r.trace }

// Stats returns the counters of the search so far.
func (r *Runtime) Stats() *Stats { return r.stats }

// Graph returns the search graph.
func (r *Runtime) Graph() *graph.Graph { return r.graph }

// Current returns the node the next step starts from.
func (r *Runtime) Current() *graph.Node { return r.current }

// Done reports whether the search found a solution.
func (r *Runtime) Done() bool { return r.done }

// Verbosity returns how many times the solve has been found to take too
// long, up to the configured cap.
func (r *Runtime) Verbosity() int { return r.verbosity }

// Solution runs the search to completion and assembles the result.
func (r *Runtime) Solution(ctx context.Context) (*solution.Solution, error) {
	for !r.done {
		if _, _, err := r.Next(ctx); err != nil {
			return nil, err
		}
	}
	return solution.Assemble(r.solved.State)
}

// Next takes one step. It returns the node the step was taken from and the
// decision made there. When the node is terminal the decision is nil and
// the search is done; later calls return nil values. A failed search
// returns a *SolveError on this and every later call.
func (r *Runtime) Next(ctx context.Context) (*graph.Node, *graph.Decision, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	if r.done {
		return nil, nil, nil
	}
	if err := r.interrupted(ctx); err != nil {
		return nil, nil, r.fail(err)
	}

	if !r.started {
		r.started = true
		if r.initialErr != nil {
			return nil, nil, r.fail(r.initialErr)
		}
		if err := r.checkInitial(ctx); err != nil {
			return nil, nil, r.fail(err)
		}
	}

	node := r.current
	r.stats.Steps++
	getInstruments(r.logger).steps.Add(ctx, 1)

	decision, child, err := r.step(ctx, node)
	switch {
	case err == nil && decision == nil:
		r.checkTerminal(node.State)
		r.done = true
		r.solved = node
		r.trace.add(node.Depth, EventSolved, node.State.String())
		r.finish(ctx, "solved")
		return node, nil, nil

	case err == nil:
		r.trace.record(node.Depth, decision)
		r.log(ctx, "step", slog.Int("depth", node.Depth), slog.String("decision", decision.String()))
		r.current = child
		return node, decision, nil
	}

	var oo *outOfOptionsError
	var nf *notFoundError
	switch {
	case errors.As(err, &oo):
		r.stats.recordCouldNotSatisfy(oo.request.String(), oo.request.RequestedBy)
		if oo.conflict != nil {
			r.stats.recordMessage(oo.conflict.Error())
		}
		cause := fmt.Sprintf("could not satisfy '%s' as required by: %s", oo.request, requesterList(oo.request.RequestedBy))
		decision = graph.NewDecision(graph.StepBack{Cause: cause})
		decision.AddNotes(condenseNotes(oo.request.Name, oo.notes)...)
		if node.Parent == nil {
			r.trace.record(node.Depth, decision)
			return nil, nil, r.fail(r.rootFailure(ctx, oo))
		}

	case errors.As(err, &nf):
		for _, by := range nf.request.RequestedBy {
			if by.Kind == request.CommandLine {
				return nil, nil, r.fail(&PackageNotFoundError{Name: nf.request.Name})
			}
		}
		cause := fmt.Sprintf("package '%s' not found during the solve as required by: %s", nf.request.Name, requesterList(nf.request.RequestedBy))
		r.stats.recordMessage(cause)
		decision = graph.NewDecision(graph.StepBack{Cause: cause})
		if node.Parent == nil {
			r.trace.record(node.Depth, decision)
			return nil, nil, r.fail(&PackageNotFoundError{Name: nf.request.Name})
		}

	default:
		if ierr := r.interrupted(ctx); ierr != nil {
			return nil, nil, r.fail(ierr)
		}
		return nil, nil, r.fail(err)
	}

	r.trace.record(node.Depth, decision)
	r.stepBack(ctx, node)
	return node, decision, nil
}

// stepBack abandons node and resumes its parent.
func (r *Runtime) stepBack(ctx context.Context, node *graph.Node) {
	r.stats.StepsBack++
	getInstruments(r.logger).stepsBack.Add(ctx, 1)
	r.current = node.Parent
	resume := r.current.State.NextRequest(r.s.cfg.requestPriority)
	r.trace.add(r.current.Depth, EventStepBack, "resume "+resume)
	r.log(ctx, "step back", slog.Int("depth", r.current.Depth), slog.String("resume", resume))
}

// rootFailure picks the error for a search that ran out of options at the
// root. Only a request that no version was ever in range for is reported as
// having no applicable version; anything tried and rejected, here or after
// stepping back, is blocked.
func (r *Runtime) rootFailure(ctx context.Context, oo *outOfOptionsError) error {
	if oo.conflict != nil || oo.matched || oo.iterator == nil {
		return &BlockedError{Request: oo.request, Causes: r.stats.causes(r.s.cfg.maxFrequent)}
	}
	notes := make([]string, len(oo.notes))
	for i, n := range oo.notes {
		notes[i] = n.String()
	}
	rng := "*"
	if oo.request.Range != nil {
		rng = oo.request.Range.String()
	}
	var available []string
	if versions, err := oo.iterator.Versions(ctx); err == nil {
		for _, v := range versions {
			available = append(available, v.String())
		}
	}
	return &NoApplicableVersionError{
		Request: oo.request,
		Notes:   notes,
		Err:     errors.NewVersionError(oo.request.Name, rng, available, ""),
	}
}

// checkInitial runs the impossible request check on the initial requests.
func (r *Runtime) checkInitial(ctx context.Context) error {
	if !r.s.impossible.Initial {
		return nil
	}
	reasons, err := r.s.impossible.CheckRequests(ctx, r.graph.Root.State)
	if err != nil {
		return err
	}
	if len(reasons) > 0 {
		for _, reason := range reasons {
			r.stats.recordMessage(reason)
		}
		return newImpossibleRequestError(reasons)
	}
	return nil
}

// checkTerminal panics if a terminal state resolves a package its own
// requests reject. The validators make this impossible, so reaching it
// means the search is broken.
func (r *Runtime) checkTerminal(state *graph.State) {
	for _, p := range state.Packages() {
		if p.Source.Kind == iterator.Embedded {
			continue
		}
		req, err := state.MergedRequest(p.Spec.Name())
		if err != nil {
			panic(fmt.Sprintf("solver: terminal state has conflicting requests: %v", err))
		}
		if req == nil {
			continue
		}
		if c := req.IsSatisfiedBy(p.Spec); !c.OK() {
			panic(fmt.Sprintf("solver: terminal state resolves %s for %s: %s", p.Spec.Pkg, req, c.Reason()))
		}
	}
}

// interrupted reports a timeout or cancellation, and raises the log level
// when the solve is taking too long.
func (r *Runtime) interrupted(ctx context.Context) error {
	elapsed := time.Since(r.start)
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Elapsed: elapsed, Trace: r.trace}
		}
		return &CancelledError{Trace: r.trace, Err: err}
	}
	if r.s.cfg.timeout > 0 && elapsed > r.s.cfg.timeout {
		return &TimeoutError{Elapsed: elapsed, Trace: r.trace}
	}

	if r.s.cfg.tooLong > 0 && time.Since(r.window) > r.s.cfg.tooLong {
		r.window = time.Now()
		if r.verbosity < r.s.cfg.tooLongCap {
			r.verbosity++
			r.logger.Warn("solve is taking too long",
				slog.Duration("elapsed", elapsed),
				slog.Int("steps", r.stats.Steps),
				slog.Int("verbosity", r.verbosity),
			)
		}
	}
	return nil
}

// log writes a step message at Debug, or Info once the solve has taken too
// long.
func (r *Runtime) log(ctx context.Context, msg string, attrs ...slog.Attr) {
	level := slog.LevelDebug
	if r.verbosity > 0 {
		level = slog.LevelInfo
	}
	r.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (r *Runtime) fail(err error) error {
	se := &SolveError{Err: err, Trace: r.trace, Stats: r.stats}
	r.err = se
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())
	r.finish(context.Background(), "failed")
	r.logger.Debug("solve failed", slog.String("error", err.Error()))
	return se
}

func (r *Runtime) finish(ctx context.Context, outcome string) {
	r.stats.Duration = time.Since(r.start)
	m := getInstruments(r.logger)
	m.solves.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.duration.Record(ctx, r.stats.Duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))

	r.span.SetAttributes(
		attribute.String("solve.outcome", outcome),
		attribute.Int("solve.steps", r.stats.Steps),
		attribute.Int("solve.steps_back", r.stats.StepsBack),
	)
	r.span.End()

	r.logger.Info("solve finished",
		slog.String("outcome", outcome),
		slog.Int("steps", r.stats.Steps),
		slog.Int("steps_back", r.stats.StepsBack),
		slog.Duration("duration", r.stats.Duration),
	)
}

// condenseNotes replaces notes that all give the same reason with one.
func condenseNotes(name string, notes []graph.Note) []graph.Note {
	if len(notes) == 0 {
		return nil
	}
	switch first := notes[0].(type) {
	case graph.SkipPackageNote:
		for _, n := range notes[1:] {
			skip, ok := n.(graph.SkipPackageNote)
			if !ok || skip.Reason != first.Reason {
				return notes
			}
		}
		return []graph.Note{graph.OtherNote{
			Message: fmt.Sprintf("All options for '%s' were skipped: %s", name, first.Reason),
		}}
	case graph.OtherNote:
		for _, n := range notes[1:] {
			other, ok := n.(graph.OtherNote)
			if !ok || other != first {
				return notes
			}
		}
		return []graph.Note{graph.OtherNote{Message: "All options were skipped: " + first.Message}}
	}
	return notes
}
