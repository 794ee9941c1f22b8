package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/launchcg/stratum/internal/errors"
)

func (c *CLI) newRepoCmd() *cobra.Command {
	repoCmd := &cobra.Command{
		Use:   "repo",
		Short: "Inspect repositories",
		Long:  "Commands for inspecting the configured package repositories.",
	}

	repoCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured repositories in search order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cyan := color.New(color.FgCyan).SprintFunc()
			out := cmd.OutOrStdout()
			for _, r := range c.cfg.SortedRepositories() {
				fmt.Fprintf(out, "%s\t%s\tpriority %d\n", cyan(r.Name), r.URL, r.Priority)
			}
			return nil
		},
	})

	repoCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check every repository can be read",
		Long:  "Opens every configured repository and lists its packages.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := c.repositories(cmd.Context())
			if err != nil {
				return err
			}

			counts := make([]int, len(repos))
			errs := make([]error, len(repos))
			g, ctx := errgroup.WithContext(cmd.Context())
			for i, repo := range repos {
				g.Go(func() error {
					names, err := repo.ListPackages(ctx)
					counts[i], errs[i] = len(names), err
					return nil
				})
			}
			_ = g.Wait()

			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			out := cmd.OutOrStdout()
			var failed []error
			for i, repo := range repos {
				if errs[i] != nil {
					fmt.Fprintf(out, "%s %s: %v\n", red("✗"), repo.Name(), errs[i])
					failed = append(failed, errors.NewRepositoryError(repo.Name(), "list", errs[i]))
					continue
				}
				fmt.Fprintf(out, "%s %s: %s\n", green("✓"), repo.Name(), pluralize(counts[i], "package"))
			}
			return errors.Join(failed...)
		},
	})
	return repoCmd
}
