// Package cli implements the command-line interface for stratum.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/launchcg/stratum/internal/config"
	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/registry"
)

// CLI is the stratum command tree.
type CLI struct {
	rootCmd *cobra.Command

	// Global flags
	verbose    int
	configPath string
	logFormat  string
	repoFlags  []string
	noColor    bool

	logger *slog.Logger
	cfg    *config.Config
}

// New creates the command tree.
func New() *CLI {
	c := &CLI{logger: slog.New(slog.DiscardHandler)}

	rootCmd := &cobra.Command{
		Use:   "stratum",
		Short: "Resolve package environments from layered repositories",
		Long: `Stratum finds a consistent set of package builds for a set of requests.
Packages are read from one or more repositories, and recipes can be resolved
as source builds when no published build fits.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&c.verbose, "verbose", "v", "Increase verbosity (-v info, -vv debug)")
	flags.StringVarP(&c.configPath, "config", "c", "", "Config file (default ./"+config.DefaultFile+" if present)")
	flags.StringVar(&c.logFormat, "log-format", "text", "Log format: text or json")
	flags.StringArrayVarP(&c.repoFlags, "repo", "r", nil, "Add a repository as name=url, searched before configured ones")
	flags.BoolVar(&c.noColor, "no-color", false, "Disable colored output")

	c.rootCmd = rootCmd
	rootCmd.AddCommand(
		c.newSolveCmd(),
		c.newExplainCmd(),
		c.newLsCmd(),
		c.newInfoCmd(),
		c.newRepoCmd(),
		c.newVersionCmd(),
	)
	return c
}

// Execute runs the command line. A panic below it is returned as an
// internal error.
func (c *CLI) Execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// setup configures logging and color, and loads the config file.
func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	switch {
	case c.verbose >= 2:
		level = slog.LevelDebug
	case c.verbose == 1:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.logFormat {
	case "json":
		c.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), opts))
	case "text", "":
		c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
	default:
		return fmt.Errorf("invalid --log-format %q: must be text or json", c.logFormat)
	}

	if c.noColor || !isTerminal(cmd.OutOrStdout()) {
		color.NoColor = true
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// loadConfig reads --config, or stratum.hcl in the working directory, and
// adds the --repo flags.
func (c *CLI) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		if found, ok := config.Find("."); ok {
			path = found
		}
	}

	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		c.logger.Debug("loaded config", "path", path, "repositories", len(cfg.Repositories))
	}

	// flag repositories go first, above any configured priority
	top := 0
	for _, r := range cfg.Repositories {
		top = max(top, r.Priority+1)
	}
	var extra []config.RepositoryBlock
	for i, flag := range c.repoFlags {
		name, url, ok := strings.Cut(flag, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid --repo %q: must be name=url", flag)
		}
		extra = append(extra, config.RepositoryBlock{Name: name, URL: url, Priority: top + len(c.repoFlags) - i})
	}
	cfg.Repositories = append(extra, cfg.Repositories...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// repositories opens the configured repositories.
func (c *CLI) repositories(ctx context.Context) ([]registry.Repository, error) {
	if len(c.cfg.Repositories) == 0 {
		return nil, errors.New("no repositories configured: add a repository block to " + config.DefaultFile + " or use --repo")
	}
	return c.cfg.OpenRepositories(ctx, registry.Options{})
}
