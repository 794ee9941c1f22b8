package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/pkg/version"
)

func (c *CLI) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name[/version[/build]]>",
		Short: "Show a package spec",
		Long: `Display the spec of a package build. Without a build, the recipe of the
version is shown. Without a version, the latest version is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := c.repositories(cmd.Context())
			if err != nil {
				return err
			}
			return runInfo(cmd.Context(), cmd.OutOrStdout(), repos, args[0])
		},
	}
}

func runInfo(ctx context.Context, out io.Writer, repos []registry.Repository, arg string) error {
	id, err := manifest.ParseBuildIdent(arg)
	if err != nil {
		return err
	}

	if strings.Count(arg, "/") == 0 {
		latest, err := latestVersion(ctx, repos, id.Name)
		if err != nil {
			return err
		}
		id.Version = latest
	}

	for _, repo := range repos {
		var spec *manifest.Spec
		if id.Build == "" {
			spec, err = repo.ReadRecipe(ctx, id.Name, id.Version)
		} else {
			spec, err = repo.ReadSpec(ctx, id)
		}
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return errors.NewRepositoryError(repo.Name(), "read", err)
		}

		builds, err := repo.ListBuilds(ctx, id.Name, id.Version)
		if err != nil && !errors.IsNotFound(err) {
			return errors.NewRepositoryError(repo.Name(), "list", err)
		}
		return printSpec(out, repo.Name(), spec, builds)
	}
	return errors.NewNotFoundError("package", id.String())
}

func latestVersion(ctx context.Context, repos []registry.Repository, name string) (*version.Version, error) {
	var all []*version.Version
	for _, repo := range repos {
		versions, err := repo.ListVersions(ctx, name)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, errors.NewRepositoryError(repo.Name(), "list", err)
		}
		all = append(all, versions...)
	}
	if latest := version.Latest(all); latest != nil {
		return latest, nil
	}
	return nil, errors.NewNotFoundError("package", name)
}

func printSpec(out io.Writer, repo string, spec *manifest.Spec, builds []manifest.BuildID) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	title := spec.Pkg.String()
	if spec.IsRecipe() {
		title += " (recipe)"
	}
	fmt.Fprintf(out, "%s\n\n", bold(title))
	fmt.Fprintf(out, "  %s: %s\n", cyan("Repository"), repo)
	if spec.Deprecated {
		fmt.Fprintf(out, "  %s\n", yellow("Deprecated"))
	}

	if len(builds) > 0 {
		names := make([]string, len(builds))
		for i, b := range builds {
			names[i] = string(b)
		}
		fmt.Fprintf(out, "  %s: %s\n", cyan("Builds"), strings.Join(names, ", "))
	}

	data, err := spec.Marshal()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s", data)
	return nil
}
