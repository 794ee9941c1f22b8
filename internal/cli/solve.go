package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/lockfile"
	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/internal/solution"
	"github.com/launchcg/stratum/internal/solver"
	"github.com/launchcg/stratum/internal/telemetry"
)

// solveFlags are shared by solve and explain.
type solveFlags struct {
	vars        []string
	dir         string
	timeout     time.Duration
	binaryOnly  bool
	noBuild     bool
	prerelease  bool
	lock        bool
	locked      bool
	metricsFile string
}

func (f *solveFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&f.vars, "set", "s", nil, "Request a variable as name=value (or pkg.name=value)")
	flags.StringVarP(&f.dir, "dir", "d", ".", "Directory of the lock file")
	flags.DurationVar(&f.timeout, "timeout", 0, "Stop the solve after this long (overrides the config)")
	flags.BoolVar(&f.binaryOnly, "binary-only", false, "Only use published builds")
	flags.BoolVar(&f.noBuild, "no-build", false, "Never resolve recipes as source builds")
	flags.BoolVar(&f.prerelease, "pre", false, "Include pre-release versions")
	flags.BoolVar(&f.lock, "lock", false, "Write the solution to "+lockfile.LockFileName)
	flags.BoolVar(&f.locked, "locked", false, "Solve the packages pinned in "+lockfile.LockFileName)
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write solver metrics to this file in Prometheus text format")
}

func (c *CLI) newSolveCmd() *cobra.Command {
	f := &solveFlags{}
	cmd := &cobra.Command{
		Use:   "solve [requests...]",
		Short: "Resolve a set of package requests",
		Long: `Resolve package requests into a consistent set of builds.

Requests have the form name[:components][/range[/build]], for example:

  stratum solve maya/2019 my-plugin:{run,dev}/~1.2.0 -s debug=off`,
		Example: "  stratum solve gcc/6 python/3.7 --lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			sol, rt, err := c.runSolve(cmd.Context(), args, f)
			if err != nil {
				if rt != nil {
					printFailure(cmd.ErrOrStderr(), rt.Stats())
				}
				return err
			}
			out := cmd.OutOrStdout()
			printSolution(out, sol)
			printStats(out, rt.Stats())
			if f.lock {
				return writeLock(out, f.dir, rt, sol)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// runSolve builds a solver from the config and the flags and runs it. The
// runtime is returned even when the solve fails.
func (c *CLI) runSolve(ctx context.Context, args []string, f *solveFlags) (*solution.Solution, *solver.Runtime, error) {
	if len(args) == 0 && !f.locked {
		return nil, nil, errors.New("nothing to solve: give at least one request")
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = Version
	tcfg.Metrics = f.metricsFile != ""
	tp, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	s, err := c.newSolver(ctx, args, f)
	if err != nil {
		return nil, nil, err
	}

	rt := s.Run(ctx)
	c.logger.Info("solving", "id", rt.ID, "requests", len(s.Requests()))
	sol, err := rt.Solution(ctx)

	if f.metricsFile != "" {
		if werr := tp.WriteMetrics(f.metricsFile); werr != nil {
			c.logger.Warn("could not write metrics", "error", werr)
		}
	}
	return sol, rt, err
}

func (c *CLI) newSolver(ctx context.Context, args []string, f *solveFlags) (*solver.Solver, error) {
	repos, err := c.repositories(ctx)
	if err != nil {
		return nil, err
	}

	opts, err := c.cfg.SolverOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, solver.WithLogger(c.logger))
	if f.timeout > 0 {
		opts = append(opts, solver.WithTimeout(f.timeout))
	}
	if f.binaryOnly {
		opts = append(opts, solver.WithBinaryOnly(true))
	}
	if f.noBuild {
		opts = append(opts, solver.WithBuildFromSource(false))
	}
	if f.prerelease {
		opts = append(opts, solver.WithPreReleasePolicy(request.IncludeAll))
	}

	s, err := solver.New(repos, opts...)
	if err != nil {
		return nil, err
	}

	if f.locked {
		lock, err := lockfile.Load(f.dir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load lock file")
		}
		if len(lock.Packages) == 0 {
			return nil, fmt.Errorf("no packages locked in %s", lock.Path())
		}
		reqs, err := lock.Requests()
		if err != nil {
			return nil, err
		}
		s.AddRequest(reqs...)
		s.AddVarRequest(lockedVars(lock)...)
	}

	for _, arg := range args {
		req, err := request.ParsePkgRequest(arg, request.FromCommandLine)
		if err != nil {
			return nil, err
		}
		s.AddRequest(req)
	}
	for _, v := range f.vars {
		vr, err := request.ParseVarRequest(v)
		if err != nil {
			return nil, err
		}
		s.AddVarRequest(vr)
	}
	return s, nil
}

// lockedVars pins the options of a locked solution.
func lockedVars(lock *lockfile.LockFile) []request.VarRequest {
	var vars []request.VarRequest
	for k, v := range lock.Options {
		vars = append(vars, request.VarRequest{Name: k, Value: v})
	}
	return vars
}

func writeLock(out io.Writer, dir string, rt *solver.Runtime, sol *solution.Solution) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrap(err, "failed to resolve path")
	}
	lock := lockfile.FromSolution(abs, rt.ID, sol)
	if err := lock.Save(); err != nil {
		return errors.Wrap(err, "failed to write lock file")
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(out, "%s Wrote %s\n", green("✓"), lock.Path())
	return nil
}

func printSolution(out io.Writer, sol *solution.Solution) {
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(out, "%s\n", bold("Resolved packages:"))
	for _, item := range sol.Items() {
		line := fmt.Sprintf("  %s", cyan(item.Spec.Pkg))
		if item.IsBuiltFromSource() {
			line += " " + yellow("(build from source)")
		}
		var by []string
		for _, r := range item.RequestedBy {
			by = append(by, r.String())
		}
		if len(by) > 0 {
			line += " required by " + strings.Join(by, ", ")
		}
		fmt.Fprintln(out, line)

		if env := item.BuildEnv(); env != nil {
			for _, dep := range env.Items() {
				fmt.Fprintf(out, "      build env: %s\n", dep.Spec.Pkg)
			}
		}
	}

	if opts := sol.Options(); len(opts) > 0 {
		fmt.Fprintf(out, "%s %s\n", bold("Options:"), opts)
	}
}

func printStats(out io.Writer, stats *solver.Stats) {
	fmt.Fprintf(out, "Solved in %s: %s steps, %s back, %s builds considered",
		stats.Duration.Round(time.Millisecond),
		humanize.Comma(int64(stats.Steps)),
		humanize.Comma(int64(stats.StepsBack)),
		humanize.Comma(int64(stats.TotalBuilds)),
	)
	if stats.SubSolves > 0 {
		fmt.Fprintf(out, ", %s", pluralize(stats.SubSolves, "build environment"))
	}
	if name, d := stats.LongestRequest(); name != "" {
		fmt.Fprintf(out, ", longest request %s (%s)", name, d.Round(time.Microsecond))
	}
	fmt.Fprintln(out)
}

// printFailure lists the most frequent errors of a failed solve.
func printFailure(out io.Writer, stats *solver.Stats) {
	red := color.New(color.FgRed).SprintFunc()
	if stats == nil {
		return
	}

	frequent, others := stats.FrequentErrors(solver.DefaultMaxFrequentErrors)
	if len(frequent) == 0 {
		return
	}
	fmt.Fprintf(out, "%s after %s steps (%s back):\n", red("Solve failed"),
		humanize.Comma(int64(stats.Steps)), humanize.Comma(int64(stats.StepsBack)))
	for _, f := range frequent {
		fmt.Fprintf(out, "  %s %s\n", red(humanize.Comma(int64(f.Count))+"x"), f.Message)
	}
	if others > 0 {
		fmt.Fprintf(out, "  and %s\n", pluralize(others, "other error"))
	}
	for _, p := range stats.ProblemPackages() {
		fmt.Fprintf(out, "  problem package %s (%s)\n", p.Name, pluralize(p.Count, "time"))
	}
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}
