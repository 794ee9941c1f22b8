package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/pkg/version"
)

func (c *CLI) newLsCmd() *cobra.Command {
	var showRepo bool
	cmd := &cobra.Command{
		Use:   "ls [name[/version]]",
		Short: "List packages, versions or builds",
		Long: `List the packages of all repositories. With a package name, list its
versions newest first. With name/version, list the builds of that version.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := c.repositories(cmd.Context())
			if err != nil {
				return err
			}
			l := &lister{repos: repos, showRepo: showRepo}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				return l.packages(cmd, out)
			}
			name, ver, hasVersion := strings.Cut(args[0], "/")
			if err := manifest.ValidateName(name); err != nil {
				return err
			}
			if !hasVersion {
				return l.versions(cmd, out, name)
			}
			v, err := version.Parse(ver)
			if err != nil {
				return err
			}
			return l.builds(cmd, out, name, v)
		},
	}
	cmd.Flags().BoolVar(&showRepo, "show-repo", false, "Show which repository each entry comes from")
	return cmd
}

type lister struct {
	repos    []registry.Repository
	showRepo bool
}

// seen maps an entry to the repositories listing it, in priority order.
type seen struct {
	keys  []string
	repos map[string][]string
}

func (s *seen) add(key, repo string) {
	if s.repos == nil {
		s.repos = make(map[string][]string)
	}
	if _, ok := s.repos[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.repos[key] = append(s.repos[key], repo)
}

func (l *lister) print(out io.Writer, s *seen) {
	faint := color.New(color.Faint).SprintFunc()
	for _, k := range s.keys {
		if l.showRepo {
			fmt.Fprintf(out, "%s %s\n", k, faint("("+strings.Join(s.repos[k], ", ")+")"))
			continue
		}
		fmt.Fprintln(out, k)
	}
}

func (l *lister) packages(cmd *cobra.Command, out io.Writer) error {
	var s seen
	for _, repo := range l.repos {
		names, err := repo.ListPackages(cmd.Context())
		if err != nil {
			return errors.NewRepositoryError(repo.Name(), "list", err)
		}
		for _, n := range names {
			s.add(n, repo.Name())
		}
	}
	sort.Strings(s.keys)
	l.print(out, &s)
	return nil
}

func (l *lister) versions(cmd *cobra.Command, out io.Writer, name string) error {
	var all []*version.Version
	var s seen
	for _, repo := range l.repos {
		versions, err := repo.ListVersions(cmd.Context(), name)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return errors.NewRepositoryError(repo.Name(), "list", err)
		}
		for _, v := range versions {
			if _, ok := s.repos[v.String()]; !ok {
				all = append(all, v)
			}
			s.add(v.String(), repo.Name())
		}
	}
	if len(all) == 0 {
		return errors.NewNotFoundError("package", name)
	}

	version.SortDesc(all)
	s.keys = s.keys[:0]
	for _, v := range all {
		s.keys = append(s.keys, v.String())
	}
	l.print(out, &s)
	return nil
}

func (l *lister) builds(cmd *cobra.Command, out io.Writer, name string, v *version.Version) error {
	var s seen
	for _, repo := range l.repos {
		builds, err := repo.ListBuilds(cmd.Context(), name, v)
		if err != nil && !errors.IsNotFound(err) {
			return errors.NewRepositoryError(repo.Name(), "list", err)
		}
		for _, b := range builds {
			s.add(name+"/"+v.String()+"/"+string(b), repo.Name())
		}
		if _, err := repo.ReadRecipe(cmd.Context(), name, v); err == nil {
			s.add(name+"/"+v.String()+" (recipe)", repo.Name())
		}
	}
	if len(s.keys) == 0 {
		return errors.NewNotFoundError("package version", name+"/"+v.String())
	}
	l.print(out, &s)
	return nil
}
