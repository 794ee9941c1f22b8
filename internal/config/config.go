package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/internal/solver"
	"github.com/launchcg/stratum/internal/validation"
)

// DefaultFile is the config file name looked up in a directory.
const DefaultFile = "stratum.hcl"

// Config represents the stratum.hcl file structure.
type Config struct {
	// Variables are resolved from the environment before the rest of the
	// file is decoded, and are available as var.NAME.
	Variables []VariableBlock `hcl:"variable,block"`

	// Repositories are searched in priority order, highest first.
	Repositories []RepositoryBlock `hcl:"repository,block"`

	// Solver configures the solve. Optional.
	Solver *SolverBlock `hcl:"solver,block"`

	// Rules reconfigure validators for some packages.
	Rules []RuleBlock `hcl:"validation_rule,block"`

	// CacheDir holds spec documents fetched from remote repositories.
	// Defaults to the user cache directory.
	CacheDir string `hcl:"cache_dir,optional"`

	// filename is reported in errors found after decoding
	filename string
}

// VariableBlock defines a variable usable as var.NAME.
type VariableBlock struct {
	Name string `hcl:"name,label"`

	Description string `hcl:"description,optional"`

	// Default is used when Env is unset
	Default string `hcl:"default,optional"`

	Required bool `hcl:"required,optional"`

	// Env names the environment variable the value is read from
	Env string `hcl:"env,optional"`
}

// RepositoryBlock defines a package repository.
//
//	repository "origin" {
//	  url      = "s3://packages/origin"
//	  priority = 10
//	}
type RepositoryBlock struct {
	Name string `hcl:"name,label"`

	// URL is anything registry.NewRepository accepts
	URL string `hcl:"url,attr"`

	Priority int `hcl:"priority,optional"`
}

// SolverBlock holds solver options. Unset attributes keep the solver
// defaults.
type SolverBlock struct {
	PreReleasePolicy  string            `hcl:"prerelease_policy,optional"`
	Timeout           string            `hcl:"timeout,optional"`
	TooLong           string            `hcl:"too_long,optional"`
	TooLongCap        *int              `hcl:"too_long_cap,optional"`
	MaxFrequentErrors *int              `hcl:"max_frequent_errors,optional"`
	CheckInitial      bool              `hcl:"check_impossible_initial,optional"`
	CheckValidation   bool              `hcl:"check_impossible_validation,optional"`
	CheckBuilds       bool              `hcl:"check_impossible_builds,optional"`
	BuildKeyOrder     []string          `hcl:"build_key_order,optional"`
	RequestPriority   []string          `hcl:"request_priority,optional"`
	BinaryOnly        bool              `hcl:"binary_only,optional"`
	BuildFromSource   *bool             `hcl:"build_from_source,optional"`
	Options           map[string]string `hcl:"options,optional"`
}

// RuleBlock defines a validation rule. The label names the validator, or
// "*" for all of them.
//
//	validation_rule "Deprecation" {
//	  target = "maya/2019"
//	  effect = "allow"
//	}
type RuleBlock struct {
	Validator string `hcl:"validator,label"`
	Target    string `hcl:"target,optional"`
	Effect    string `hcl:"effect,attr"`
	Condition string `hcl:"condition,optional"`
}

// Find returns the config file for dir: dir/stratum.hcl if it exists.
func Find(dir string) (string, bool) {
	path := filepath.Join(dir, DefaultFile)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Load parses and validates a config file.
func Load(filename string) (*Config, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewConfigError(filename, 0, 0, "failed to read config", err)
	}
	return Parse(src, filename)
}

// Parse parses and validates config source. Relative paths in file() are
// resolved against the directory of filename.
func Parse(src []byte, filename string) (*Config, error) {
	parser := NewParser()
	file, diags := parser.ParseSource(src, filename)
	if diags.HasErrors() {
		return nil, diagError(filename, "failed to parse", diags)
	}

	variables, resolved, remain, err := extractVariables(filename, file.Body)
	if err != nil {
		return nil, err
	}

	var cfg Config
	ctx := NewConfigEvalContext(filepath.Dir(filename), resolved)
	if diags := gohcl.DecodeBody(remain, ctx, &cfg); diags.HasErrors() {
		return nil, diagError(filename, "failed to decode", diags)
	}
	cfg.Variables = variables
	cfg.filename = filename

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	names := make(map[string]bool)
	for _, repo := range c.Repositories {
		if repo.Name == "" {
			return c.invalid("repository name is required")
		}
		if names[repo.Name] {
			return c.invalid(fmt.Sprintf("duplicate repository name: %s", repo.Name))
		}
		names[repo.Name] = true
		if repo.URL == "" {
			return c.invalid(fmt.Sprintf("repository %q must have a url", repo.Name))
		}
		if _, _, err := registry.ParseSource(repo.URL); err != nil {
			return c.wrap(fmt.Sprintf("repository %q", repo.Name), err)
		}
	}

	for _, rule := range c.Rules {
		if _, err := validation.ParseEffect(rule.Effect); err != nil {
			return c.wrap(fmt.Sprintf("validation_rule %q", rule.Validator), err)
		}
	}

	if c.Solver != nil {
		if _, err := c.Solver.options(); err != nil {
			return c.wrap("solver", err)
		}
	}
	return nil
}

func (c *Config) invalid(msg string) error {
	return errors.NewConfigError(c.filename, 0, 0, msg, nil)
}

func (c *Config) wrap(msg string, err error) error {
	return errors.NewConfigError(c.filename, 0, 0, msg, err)
}

// SortedRepositories returns the repository blocks by priority, highest
// first. Equal priorities keep file order.
func (c *Config) SortedRepositories() []RepositoryBlock {
	repos := slices.Clone(c.Repositories)
	slices.SortStableFunc(repos, func(a, b RepositoryBlock) int {
		return b.Priority - a.Priority
	})
	return repos
}

// OpenRepositories opens every repository in priority order.
func (c *Config) OpenRepositories(ctx context.Context, opts registry.Options) ([]registry.Repository, error) {
	if opts.Cache == nil && c.CacheDir != "" {
		opts.Cache = registry.NewCache(c.CacheDir)
	}

	var repos []registry.Repository
	for _, block := range c.SortedRepositories() {
		repo, err := registry.NewRepository(ctx, block.Name, block.URL, opts)
		if err != nil {
			return nil, errors.NewRepositoryError(block.Name, "open", err)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// SolverOptions converts the solver block and the validation rules into
// solver options.
func (c *Config) SolverOptions() ([]solver.Option, error) {
	var opts []solver.Option
	if c.Solver != nil {
		o, err := c.Solver.options()
		if err != nil {
			return nil, c.wrap("solver", err)
		}
		opts = append(opts, o...)
	}

	if len(c.Rules) > 0 {
		rules := make([]validation.Rule, 0, len(c.Rules))
		for _, block := range c.Rules {
			effect, err := validation.ParseEffect(block.Effect)
			if err != nil {
				return nil, c.wrap(fmt.Sprintf("validation_rule %q", block.Validator), err)
			}
			target := block.Target
			if target == "" {
				target = "*"
			}
			rules = append(rules, validation.Rule{
				Validator: block.Validator,
				Target:    target,
				Effect:    effect,
				Condition: block.Condition,
			})
		}
		opts = append(opts, solver.WithRules(rules...))
	}
	return opts, nil
}

func (s *SolverBlock) options() ([]solver.Option, error) {
	var opts []solver.Option

	policy, err := request.ParsePreReleasePolicy(s.PreReleasePolicy)
	if err != nil {
		return nil, err
	}
	opts = append(opts, solver.WithPreReleasePolicy(policy))

	if s.Timeout != "" {
		d, err := parseDuration("timeout", s.Timeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, solver.WithTimeout(d))
	}

	if s.TooLong != "" || s.TooLongCap != nil {
		interval := solver.DefaultTooLong
		if s.TooLong != "" {
			if interval, err = parseDuration("too_long", s.TooLong); err != nil {
				return nil, err
			}
		}
		limit := solver.DefaultTooLongCap
		if s.TooLongCap != nil {
			if *s.TooLongCap < 0 {
				return nil, fmt.Errorf("too_long_cap must not be negative")
			}
			limit = *s.TooLongCap
		}
		opts = append(opts, solver.WithTooLong(interval, limit))
	}

	if s.MaxFrequentErrors != nil {
		if *s.MaxFrequentErrors < 0 {
			return nil, fmt.Errorf("max_frequent_errors must not be negative")
		}
		opts = append(opts, solver.WithMaxFrequentErrors(*s.MaxFrequentErrors))
	}

	if s.CheckInitial || s.CheckValidation || s.CheckBuilds {
		opts = append(opts, solver.WithImpossibleChecks(s.CheckInitial, s.CheckValidation, s.CheckBuilds))
	}
	if len(s.BuildKeyOrder) > 0 {
		opts = append(opts, solver.WithBuildKeyOrder(s.BuildKeyOrder...))
	}
	if len(s.RequestPriority) > 0 {
		opts = append(opts, solver.WithRequestPriority(s.RequestPriority...))
	}
	if s.BinaryOnly {
		opts = append(opts, solver.WithBinaryOnly(true))
	}
	if s.BuildFromSource != nil {
		opts = append(opts, solver.WithBuildFromSource(*s.BuildFromSource))
	}
	if len(s.Options) > 0 {
		opts = append(opts, solver.WithOptions(manifest.OptionMap(s.Options)))
	}
	return opts, nil
}

func parseDuration(attr, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", attr, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", attr)
	}
	return d, nil
}
