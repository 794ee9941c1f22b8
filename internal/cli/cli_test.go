package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchcg/stratum/internal/lockfile"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
)

var testSpecs = []string{
	"pkg: maya/2019.0.0/AAAAAAAA",
	"pkg: maya/2019.2.0/AAAAAAAA",
	"pkg: maya/2020.0.0/AAAAAAAA",
	"pkg: my-plugin/1.0.0/BBBBBBBB\ninstall:\n  requirements:\n    - pkg: maya/2019",
	"pkg: gcc/6.3.0/AAAAAAAA",
	"pkg: my-tool/1.0.0\nbuild:\n  options:\n    - pkg: gcc/6\n    - var: debug/off",
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	specs := make([]*manifest.Spec, len(testSpecs))
	for i, s := range testSpecs {
		specs[i] = manifest.MustParseSpec(s)
	}
	require.NoError(t, registry.Publish(dir, specs...))
	return dir
}

// run executes the command line and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := New()
	c.SetArgs(args)
	c.SetOutput(&stdout, &stderr)
	err := c.Execute(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version", "--config", "/nonexistent/stratum.hcl")
	require.NoError(t, err)
	assert.Equal(t, "stratum dev (unknown) built unknown\n", out)
}

func TestSolve(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := run(t, "solve", "--repo", "origin="+repo, "my-plugin")
	require.NoError(t, err)
	assert.Contains(t, out, "my-plugin/1.0.0/BBBBBBBB required by command line")
	assert.Contains(t, out, "maya/2019.2.0/AAAAAAAA required by my-plugin/1.0.0/BBBBBBBB")
	assert.Contains(t, out, "Solved in")
	assert.Regexp(t, `longest request (my-plugin|maya) \(`, out)
}

func TestSolve_BuildFromSource(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := run(t, "solve", "-r", "origin="+repo, "my-tool", "-s", "debug=on")
	require.NoError(t, err)
	assert.Contains(t, out, "(build from source)")
	assert.Contains(t, out, "build env: gcc/6.3.0/AAAAAAAA")
	assert.Contains(t, out, "my-tool.debug=on")
	assert.Contains(t, out, "1 build environment")

	_, _, err = run(t, "solve", "-r", "origin="+repo, "my-tool", "--no-build")
	assert.Error(t, err)
}

func TestSolve_Errors(t *testing.T) {
	repo := newTestRepo(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no requests", args: []string{"solve", "-r", "origin=" + repo}, wantErr: "nothing to solve"},
		{name: "no repositories", args: []string{"solve", "maya"}, wantErr: "no repositories configured"},
		{name: "invalid request", args: []string{"solve", "-r", "origin=" + repo, "Maya!"}, wantErr: "invalid"},
		{name: "invalid var", args: []string{"solve", "-r", "origin=" + repo, "maya", "-s", "novalue"}, wantErr: "novalue"},
		{name: "invalid repo flag", args: []string{"solve", "-r", "origin", "maya"}, wantErr: "must be name=url"},
		{name: "invalid log format", args: []string{"solve", "--log-format", "xml", "maya"}, wantErr: "invalid --log-format"},
		{name: "package not found", args: []string{"solve", "-r", "origin=" + repo, "houdini"}, wantErr: "houdini"},
		{name: "conflict", args: []string{"solve", "-r", "origin=" + repo, "my-plugin", "maya/2020"}, wantErr: "failed to resolve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSolve_LockAndLocked(t *testing.T) {
	repo := newTestRepo(t)
	dir := t.TempDir()

	out, _, err := run(t, "solve", "-r", "origin="+repo, "my-plugin", "--lock", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, lockfile.LockFileName)

	lock, err := lockfile.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"maya", "my-plugin"}, lock.LockedPackages())
	assert.Equal(t, "2019.2.0", lock.Get("maya").Version)

	// a newer 2019 release doesn't move the locked solve
	require.NoError(t, registry.Publish(repo, manifest.MustParseSpec("pkg: maya/2019.5.0/AAAAAAAA")))

	out, _, err = run(t, "solve", "-r", "origin="+repo, "--locked", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "maya/2019.2.0/AAAAAAAA")

	out, _, err = run(t, "solve", "-r", "origin="+repo, "my-plugin")
	require.NoError(t, err)
	assert.Contains(t, out, "maya/2019.5.0/AAAAAAAA")
}

func TestSolve_LockedWithoutLock(t *testing.T) {
	tests := []struct {
		name string
		lock string
		want string
	}{
		{name: "no lock file", want: "no packages locked"},
		{name: "malformed lock file", lock: "{not json", want: "failed to load lock file: "},
	}

	repo := newTestRepo(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.lock != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, lockfile.LockFileName), []byte(tt.lock), 0o644))
			}
			_, _, err := run(t, "solve", "-r", "origin="+repo, "--locked", "--dir", dir)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSolve_MetricsFile(t *testing.T) {
	repo := newTestRepo(t)
	path := filepath.Join(t.TempDir(), "stratum.prom")

	_, _, err := run(t, "solve", "-r", "origin="+repo, "my-plugin", "--metrics-file", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stratum_solver_steps_total")
}

func TestSolve_Config(t *testing.T) {
	repo := newTestRepo(t)
	cfgPath := filepath.Join(t.TempDir(), "stratum.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
repository "origin" {
  url = "`+repo+`"
}

validation_rule "*" {
  target = "maya/2019.2"
  effect = "deny"
}
`), 0644))

	out, _, err := run(t, "solve", "--config", cfgPath, "my-plugin")
	require.NoError(t, err)
	assert.Contains(t, out, "maya/2019.0.0/AAAAAAAA")
}

func TestExplain(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := run(t, "explain", "-r", "origin="+repo, "my-plugin")
	require.NoError(t, err)
	assert.Contains(t, out, "RESOLVE my-plugin/1.0.0/BBBBBBBB")
	assert.Contains(t, out, "  RESOLVE maya/2019.2.0/AAAAAAAA")
	assert.Contains(t, out, "Resolved packages:")
}

func TestExplain_Failure(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := run(t, "explain", "-r", "origin="+repo, "maya/2020", "my-plugin")
	require.Error(t, err)
	assert.Contains(t, out, "RESOLVE maya/2020.0.0/AAAAAAAA")
	assert.Contains(t, out, "BLOCKED")
	assert.Contains(t, out, "Solve failed")
}

func TestExplain_HideTries(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := run(t, "explain", "-r", "origin="+repo, "maya/2019.0")
	require.NoError(t, err)
	assert.Contains(t, out, "TRY maya/2020.0.0")

	out, _, err = run(t, "explain", "-r", "origin="+repo, "maya/2019.0", "--hide-tries")
	require.NoError(t, err)
	assert.NotContains(t, out, "TRY")
}

func TestLs(t *testing.T) {
	repo := newTestRepo(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "packages", args: nil, want: []string{"gcc", "maya", "my-plugin", "my-tool"}},
		{name: "versions", args: []string{"maya"}, want: []string{"2020.0.0", "2019.2.0", "2019.0.0"}},
		{name: "builds", args: []string{"maya/2019.2.0"}, want: []string{"maya/2019.2.0/AAAAAAAA"}},
		{name: "recipe", args: []string{"my-tool/1.0.0"}, want: []string{"my-tool/1.0.0 (recipe)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"ls", "-r", "origin=" + repo}, tt.args...)
			out, _, err := run(t, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.Split(strings.TrimSpace(out), "\n"))
		})
	}
}

func TestLs_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, _, err := run(t, "ls", "-r", "origin="+repo, "houdini")
	assert.ErrorContains(t, err, "houdini")
}

func TestLs_ShowRepo(t *testing.T) {
	first, second := newTestRepo(t), newTestRepo(t)
	out, _, err := run(t, "ls", "-r", "a="+first, "-r", "b="+second, "--show-repo", "gcc")
	require.NoError(t, err)
	assert.Equal(t, "6.3.0 (a, b)\n", out)
}

func TestInfo(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := run(t, "info", "-r", "origin="+repo, "my-plugin/1.0.0/BBBBBBBB")
	require.NoError(t, err)
	assert.Contains(t, out, "my-plugin/1.0.0/BBBBBBBB")
	assert.Contains(t, out, "Repository: origin")
	assert.Contains(t, out, "maya/2019")

	out, _, err = run(t, "info", "-r", "origin="+repo, "my-tool")
	require.NoError(t, err)
	assert.Contains(t, out, "my-tool/1.0.0 (recipe)")
	assert.Contains(t, out, "gcc/6")

	_, _, err = run(t, "info", "-r", "origin="+repo, "maya/2021.0.0/AAAAAAAA")
	assert.Error(t, err)
}

func TestRepo(t *testing.T) {
	repo := newTestRepo(t)

	out, _, err := run(t, "repo", "list", "-r", "origin="+repo, "-r", "scratch=mem:")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "origin\t"))
	assert.True(t, strings.HasPrefix(lines[1], "scratch\t"))

	out, _, err = run(t, "repo", "check", "-r", "origin="+repo, "-r", "scratch=mem:")
	require.NoError(t, err)
	assert.Contains(t, out, "origin: 4 packages")
	assert.Contains(t, out, "scratch: 0 packages")
}
