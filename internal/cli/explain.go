package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/launchcg/stratum/internal/solver"
)

func (c *CLI) newExplainCmd() *cobra.Command {
	f := &solveFlags{}
	var hideTries bool
	cmd := &cobra.Command{
		Use:   "explain [requests...]",
		Short: "Resolve requests and print every decision the solver made",
		Long: `Resolve package requests like solve, and print the decision tree of the
search: every package resolved, every build tried and skipped, and every
step back. The tree is printed whether or not the solve succeeds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sol, rt, err := c.runSolve(cmd.Context(), args, f)
			if rt == nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTrace(out, rt.Trace(), hideTries)
			fmt.Fprintln(out)
			if err != nil {
				printFailure(out, rt.Stats())
				return err
			}
			printSolution(out, sol)
			printStats(out, rt.Stats())
			if f.lock {
				return writeLock(out, f.dir, rt, sol)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&hideTries, "hide-tries", false, "Don't print builds that were tried and skipped")
	return cmd
}

var eventColors = map[solver.EventKind]*color.Color{
	solver.EventResolve:   color.New(color.FgGreen),
	solver.EventBuild:     color.New(color.FgYellow),
	solver.EventUnresolve: color.New(color.FgRed),
	solver.EventRequest:   color.New(color.FgCyan),
	solver.EventOptions:   color.New(color.FgBlue),
	solver.EventTry:       color.New(color.Faint),
	solver.EventNote:      color.New(color.Faint),
	solver.EventBlocked:   color.New(color.FgRed, color.Bold),
	solver.EventStepBack:  color.New(color.FgMagenta),
	solver.EventSolved:    color.New(color.FgGreen, color.Bold),
}

// printTrace renders the decision tree, indented by depth.
func printTrace(out io.Writer, trace *solver.Trace, hideTries bool) {
	for _, e := range trace.Events() {
		if hideTries && e.Kind == solver.EventTry {
			continue
		}
		label := e.Kind.String()
		if c, ok := eventColors[e.Kind]; ok {
			label = c.Sprint(label)
		}
		fmt.Fprintf(out, "%s%s %s\n", strings.Repeat("  ", e.Depth), label, e.Text)
	}
}
