package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/internal/solver"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	t.Setenv("STRATUM_TEST_BUCKET", "studio-packages")
	path := writeConfig(t, `
variable "bucket" {
  env     = "STRATUM_TEST_BUCKET"
  default = "packages"
}

repository "local" {
  url = "mem:"
}

repository "origin" {
  url      = "s3://${var.bucket}/origin"
  priority = 10
}

solver {
  prerelease_policy   = "IncludeAll"
  timeout             = "90s"
  too_long            = "10s"
  too_long_cap        = 3
  max_frequent_errors = 5
  build_key_order     = ["debug", "arch"]
  request_priority    = ["python"]
  binary_only         = true
  options = {
    "arch" = "x86_64"
  }
}

validation_rule "Deprecation" {
  target = "maya/2019"
  effect = "allow"
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Variables, 1)
	assert.Equal(t, "bucket", cfg.Variables[0].Name)

	require.Len(t, cfg.Repositories, 2)
	assert.Equal(t, "s3://studio-packages/origin", cfg.Repositories[1].URL)

	require.NotNil(t, cfg.Solver)
	assert.Equal(t, "IncludeAll", cfg.Solver.PreReleasePolicy)
	assert.Equal(t, "90s", cfg.Solver.Timeout)
	require.NotNil(t, cfg.Solver.TooLongCap)
	assert.Equal(t, 3, *cfg.Solver.TooLongCap)
	assert.Equal(t, []string{"debug", "arch"}, cfg.Solver.BuildKeyOrder)
	assert.Equal(t, []string{"python"}, cfg.Solver.RequestPriority)
	assert.True(t, cfg.Solver.BinaryOnly)
	assert.Nil(t, cfg.Solver.BuildFromSource)
	assert.Equal(t, map[string]string{"arch": "x86_64"}, cfg.Solver.Options)

	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "Deprecation", cfg.Rules[0].Validator)
	assert.Equal(t, "maya/2019", cfg.Rules[0].Target)
	assert.Equal(t, "allow", cfg.Rules[0].Effect)
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Repositories)
	assert.Nil(t, cfg.Solver)

	opts, err := cfg.SolverOptions()
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFile))
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "failed to read config", cfgErr.Message)
}

func TestLoad_InvalidHCL(t *testing.T) {
	path := writeConfig(t, `
repository "origin" {
  url = "mem:"
`)
	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, path, cfgErr.File)
	assert.Positive(t, cfgErr.Line)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing url",
			content: `repository "origin" {}`,
			wantErr: "failed to decode",
		},
		{
			name: "duplicate repository",
			content: `
repository "origin" { url = "mem:" }
repository "origin" { url = "mem:" }
`,
			wantErr: "duplicate repository name: origin",
		},
		{
			name:    "invalid url",
			content: `repository "origin" { url = "git+ftp://host/repo" }`,
			wantErr: "invalid git URL",
		},
		{
			name: "invalid effect",
			content: `
validation_rule "Deprecation" {
  effect = "ignore"
}
`,
			wantErr: "invalid rule effect",
		},
		{
			name:    "invalid prerelease policy",
			content: `solver { prerelease_policy = "Sometimes" }`,
			wantErr: "invalid pre-release policy",
		},
		{
			name:    "invalid timeout",
			content: `solver { timeout = "soon" }`,
			wantErr: "invalid timeout",
		},
		{
			name:    "negative too long",
			content: `solver { too_long = "-1s" }`,
			wantErr: "too_long must not be negative",
		},
		{
			name:    "negative cap",
			content: `solver { too_long_cap = -1 }`,
			wantErr: "too_long_cap must not be negative",
		},
		{
			name:    "unknown attribute",
			content: `solver { fast = true }`,
			wantErr: "failed to decode",
		},
		{
			name: "required variable",
			content: `
variable "token" {
  env      = "STRATUM_TEST_UNSET_TOKEN"
  required = true
}
`,
			wantErr: `required variable "token" has no value`,
		},
		{
			name: "duplicate variable",
			content: `
variable "a" { default = "1" }
variable "a" { default = "2" }
`,
			wantErr: `duplicate variable "a"`,
		},
		{
			name:    "undefined variable",
			content: `repository "origin" { url = var.missing }`,
			wantErr: "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var cfgErr *errors.ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	_, ok := Find(dir)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), nil, 0644))
	path, ok := Find(dir)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, DefaultFile), path)
}

func TestConfig_SortedRepositories(t *testing.T) {
	cfg := &Config{Repositories: []RepositoryBlock{
		{Name: "a", URL: "mem:", Priority: 0},
		{Name: "b", URL: "mem:", Priority: 5},
		{Name: "c", URL: "mem:", Priority: 0},
		{Name: "d", URL: "mem:", Priority: 10},
	}}

	var names []string
	for _, r := range cfg.SortedRepositories() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"d", "b", "a", "c"}, names)
	assert.Equal(t, "a", cfg.Repositories[0].Name, "original order is kept")
}

func TestConfig_OpenRepositories(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Repositories: []RepositoryBlock{
		{Name: "scratch", URL: "mem:"},
		{Name: "origin", URL: "file://" + dir, Priority: 1},
	}}

	repos, err := cfg.OpenRepositories(context.Background(), registry.Options{})
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "origin", repos[0].Name())
	assert.Equal(t, "scratch", repos[1].Name())
}

func TestConfig_OpenRepositories_Error(t *testing.T) {
	cfg := &Config{Repositories: []RepositoryBlock{{Name: "bad", URL: "ftp://host"}}}

	_, err := cfg.OpenRepositories(context.Background(), registry.Options{})
	require.Error(t, err)

	var repoErr *errors.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.Equal(t, "bad", repoErr.Repo)
}

func TestConfig_SolverOptions(t *testing.T) {
	buildFromSource := false
	cfg := &Config{
		Solver: &SolverBlock{
			PreReleasePolicy: "IncludeAll",
			Timeout:          "1m",
			CheckInitial:     true,
			BuildFromSource:  &buildFromSource,
		},
		Rules: []RuleBlock{
			{Validator: "Deprecation", Effect: "allow"},
			{Validator: "*", Target: "maya/2020", Effect: "deny"},
		},
	}

	opts, err := cfg.SolverOptions()
	require.NoError(t, err)
	// policy, timeout, impossible checks, build from source, rules
	assert.Len(t, opts, 5)

	s, err := solver.New([]registry.Repository{registry.NewMemRepository("origin")}, opts...)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestConfig_SolverOptions_InvalidRule(t *testing.T) {
	cfg := &Config{Rules: []RuleBlock{{Validator: "Deprecation", Effect: "maybe"}}}
	_, err := cfg.SolverOptions()
	assert.ErrorContains(t, err, "invalid rule effect")
}

func TestSolverBlock_DefaultPolicy(t *testing.T) {
	policy, err := request.ParsePreReleasePolicy((&SolverBlock{}).PreReleasePolicy)
	require.NoError(t, err)
	assert.Equal(t, request.ExcludeAll, policy)
}

func TestVariableBlock_Resolve(t *testing.T) {
	t.Setenv("STRATUM_TEST_SET", "from-env")

	tests := []struct {
		name    string
		block   VariableBlock
		want    string
		wantErr bool
	}{
		{
			name:  "from env",
			block: VariableBlock{Name: "v", Env: "STRATUM_TEST_SET", Default: "fallback"},
			want:  "from-env",
		},
		{
			name:  "from default",
			block: VariableBlock{Name: "v", Env: "STRATUM_TEST_UNSET", Default: "fallback"},
			want:  "fallback",
		},
		{
			name:  "optional not set",
			block: VariableBlock{Name: "v", Env: "STRATUM_TEST_UNSET"},
			want:  "",
		},
		{
			name:    "required not set",
			block:   VariableBlock{Name: "v", Env: "STRATUM_TEST_UNSET", Required: true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.block.Resolve()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParser_ParseFile(t *testing.T) {
	path := writeConfig(t, `repository "origin" { url = "mem:" }`)

	file, diags := NewParser().ParseFile(path)
	assert.False(t, diags.HasErrors())
	assert.NotNil(t, file)
}

func TestParser_ParseFile_NotExists(t *testing.T) {
	_, diags := NewParser().ParseFile("/nonexistent/stratum.hcl")
	assert.True(t, diags.HasErrors())
}

func evalString(t *testing.T, ctx *hcl.EvalContext, src string) (cty.Value, hcl.Diagnostics) {
	t.Helper()
	file, diags := NewParser().ParseSource([]byte("value = "+src), "test.hcl")
	require.False(t, diags.HasErrors(), diags.Error())
	attrs, diags := file.Body.JustAttributes()
	require.False(t, diags.HasErrors(), diags.Error())
	return attrs["value"].Expr.Value(ctx)
}

func TestEnvFunction(t *testing.T) {
	t.Setenv("STRATUM_TEST_ENV", "set")

	tests := []struct {
		name string
		expr string
		want string
	}{
		{name: "set", expr: `env("STRATUM_TEST_ENV")`, want: "set"},
		{name: "set ignores default", expr: `env("STRATUM_TEST_ENV", "x")`, want: "set"},
		{name: "default", expr: `env("STRATUM_TEST_UNSET", "fallback")`, want: "fallback"},
		{name: "not set", expr: `env("STRATUM_TEST_UNSET")`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, diags := evalString(t, NewEvalContext(), tt.expr)
			require.False(t, diags.HasErrors(), diags.Error())
			assert.Equal(t, tt.want, val.AsString())
		})
	}
}

func TestFileFunction(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maya.expr"), []byte(`options["debug"] == "off"`), 0644))
	ctx := NewConfigEvalContext(dir, nil)

	val, diags := evalString(t, ctx, `file("maya.expr")`)
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, `options["debug"] == "off"`, val.AsString())

	_, diags = evalString(t, ctx, `file("missing.expr")`)
	assert.True(t, diags.HasErrors())
}

func TestLoad_RuleConditionFromFile(t *testing.T) {
	path := writeConfig(t, `
validation_rule "Options" {
  target    = "maya"
  effect    = "require"
  condition = file("maya.expr")
}
`)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "maya.expr"), []byte(`"python" in resolved`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, `"python" in resolved`, cfg.Rules[0].Condition)

	opts, err := cfg.SolverOptions()
	require.NoError(t, err)
	_, err = solver.New(nil, opts...)
	assert.NoError(t, err)
}
