package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/internal/request"
)

var origin = iterator.RepositorySource("origin")

func stateWith(changes ...graph.Change) *graph.State {
	return graph.NewDecision(changes...).Apply(graph.NewState())
}

func requestPkg(s string) graph.Change {
	return graph.RequestPackage{Request: request.MustParsePkgRequest(s)}
}

func requestVar(name, value string) graph.Change {
	return graph.RequestVar{Request: request.VarRequest{Name: name, Value: value}, RequestedBy: request.FromCommandLine}
}

func resolve(spec string) graph.Change {
	return graph.SetPackage{Spec: manifest.MustParseSpec(spec), Source: origin}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name      string
		validator Validator
		state     *graph.State
		spec      string
		src       iterator.Source
		wantOK    bool
		wantMatch string
	}{
		{
			name:      "deprecated build not requested",
			validator: Deprecation{},
			state:     stateWith(requestPkg("maya")),
			spec:      "pkg: maya/2019.2.0/AAAAAAAA\ndeprecated: true",
			wantMatch: "deprecated",
		},
		{
			name:      "deprecated build requested",
			validator: Deprecation{},
			state:     stateWith(requestPkg("maya/2019.2.0/AAAAAAAA")),
			spec:      "pkg: maya/2019.2.0/AAAAAAAA\ndeprecated: true",
			wantOK:    true,
		},
		{
			name:      "request satisfied",
			validator: PkgRequest{},
			state:     stateWith(requestPkg("maya/2019")),
			spec:      "pkg: maya/2019.2.0/AAAAAAAA",
			wantOK:    true,
		},
		{
			name:      "request not satisfied",
			validator: PkgRequest{},
			state:     stateWith(requestPkg("maya/=2019.0.0")),
			spec:      "pkg: maya/2019.2.0/AAAAAAAA",
		},
		{
			name:      "not requested",
			validator: PkgRequest{},
			state:     stateWith(requestPkg("nuke")),
			spec:      "pkg: maya/2019.2.0/AAAAAAAA",
			wantMatch: "was not requested",
		},
		{
			name:      "prerelease excluded",
			validator: PkgRequest{},
			state:     stateWith(requestPkg("maya")),
			spec:      "pkg: maya/2020.0.0-beta.1/AAAAAAAA",
			wantMatch: "prereleases not allowed",
		},
		{
			name:      "missing component",
			validator: Components{},
			state:     stateWith(requestPkg("python:dev/3")),
			spec:      "pkg: python/3.7.3/AAAAAAAA",
			wantMatch: "dev",
		},
		{
			name:      "declared component",
			validator: Components{},
			state:     stateWith(requestPkg("python:dev/3")),
			spec:      "pkg: python/3.7.3/AAAAAAAA\ninstall:\n  components:\n    - name: run\n    - name: dev",
			wantOK:    true,
		},
		{
			name:      "option mismatch",
			validator: Options{},
			state:     stateWith(requestVar("python.abi", "cp37m")),
			spec:      "pkg: python/3.7.3/AAAAAAAA\nbuild:\n  options:\n    - var: abi/cp27mu",
			wantMatch: "invalid value for python.abi",
		},
		{
			name:      "global option match",
			validator: Options{},
			state:     stateWith(requestVar("debug", "on")),
			spec:      "pkg: python/3.7.3/AAAAAAAA\nbuild:\n  options:\n    - var: debug/on",
			wantOK:    true,
		},
		{
			name:      "other package's option",
			validator: Options{},
			state:     stateWith(requestVar("maya.debug", "on")),
			spec:      "pkg: python/3.7.3/AAAAAAAA\nbuild:\n  options:\n    - var: debug/off",
			wantOK:    true,
		},
		{
			name:      "recipe option outside choices",
			validator: Options{},
			state:     stateWith(requestVar("debug", "maybe")),
			spec:      "pkg: python/3.7.3\nbuild:\n  options:\n    - var: debug/off\n      choices: ['on', 'off']",
			wantMatch: "must be one of",
		},
		{
			name:      "var requirement conflict",
			validator: VarRequirements{},
			state:     stateWith(requestVar("python.abi", "cp37m")),
			spec:      "pkg: numpy/1.16.0/AAAAAAAA\ninstall:\n  requirements:\n    - var: python.abi/cp27mu",
			wantMatch: "python.abi",
		},
		{
			name:      "conflicting requirement",
			validator: PkgRequirements{},
			state:     stateWith(requestPkg("my-plugin"), requestPkg("maya/=2020.0.0")),
			spec:      "pkg: my-plugin/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: maya/=2019.0.0",
			wantMatch: "conflicting requirement",
		},
		{
			name:      "resolved package needing a revisit is allowed",
			validator: PkgRequirements{},
			state:     stateWith(requestPkg("maya/2019"), resolve("pkg: maya/2019.2.0/AAAAAAAA")),
			spec:      "pkg: some-library/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: maya/~2019.0.0",
			wantOK:    true,
		},
		{
			name:      "embedded clash",
			validator: EmbeddedPackages{},
			state:     stateWith(requestPkg("zlib"), resolve("pkg: zlib/1.2.11/AAAAAAAA")),
			spec:      "pkg: maya/2019.2.0/AAAAAAAA\ninstall:\n  embedded:\n    - zlib/1.2.8",
			wantMatch: "conflicts",
		},
		{
			name:      "embedded does not satisfy request",
			validator: EmbeddedPackages{},
			state:     stateWith(requestPkg("zlib/=1.2.11")),
			spec:      "pkg: maya/2019.2.0/AAAAAAAA\ninstall:\n  embedded:\n    - zlib/1.2.8",
			wantMatch: "does not satisfy",
		},
		{
			name:      "binary only denies recipes",
			validator: BinaryOnly{},
			state:     stateWith(requestPkg("maya")),
			spec:      "pkg: maya/2019.2.0",
			src:       iterator.RecipeSource("origin"),
			wantMatch: "only binary packages are allowed",
		},
		{
			name:      "binary only allows requested source",
			validator: BinaryOnly{},
			state:     stateWith(requestPkg("maya/2019.2.0/src")),
			spec:      "pkg: maya/2019.2.0/src",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.src
			if src == (iterator.Source{}) {
				src = origin
			}
			out := tt.validator.Validate(tt.state, manifest.MustParseSpec(tt.spec), src)
			assert.Equal(t, tt.wantOK, out.OK(), out.String())
			if tt.wantMatch != "" {
				assert.Contains(t, out.Reason, tt.wantMatch)
			}
		})
	}
}

func TestPipeline_Order(t *testing.T) {
	p, err := NewPipeline()
	require.NoError(t, err)
	assert.Equal(t, []string{
		NameDeprecation, NamePkgRequest, NameComponents, NameOptions,
		NameVarRequirements, NamePkgRequirements, NameEmbeddedPackages,
	}, p.Validators())

	p, err = NewPipeline(WithBinaryOnly())
	require.NoError(t, err)
	assert.Equal(t, NameBinaryOnly, p.Validators()[0])
}

func TestPipeline_FirstDenialWins(t *testing.T) {
	p, err := NewPipeline()
	require.NoError(t, err)

	state := stateWith(requestPkg("maya/=2019.0.0"))
	out := p.Validate(state, manifest.MustParseSpec("pkg: maya/2019.2.0/AAAAAAAA\ndeprecated: true"), origin)
	assert.Equal(t, Denied, out.Kind)
	assert.Contains(t, out.Reason, "deprecated")
}

func TestPipeline_RuleSpecificity(t *testing.T) {
	state := stateWith(requestPkg("maya"))
	deprecated := manifest.MustParseSpec("pkg: maya/2019.2.0/AAAAAAAA\ndeprecated: true")

	tests := []struct {
		name   string
		rules  []Rule
		wantOK bool
	}{
		{
			name:  "no rules",
			rules: nil,
		},
		{
			name:   "wildcard allow",
			rules:  []Rule{{Validator: "*", Target: "*", Effect: EffectAllow}},
			wantOK: true,
		},
		{
			name: "named deny beats later wildcard allow",
			rules: []Rule{
				{Validator: "*", Target: "maya", Effect: EffectDeny},
				{Validator: "*", Target: "*", Effect: EffectAllow},
			},
		},
		{
			name: "ranged allow beats named deny",
			rules: []Rule{
				{Validator: "*", Target: "maya/2019", Effect: EffectAllow},
				{Validator: "*", Target: "maya", Effect: EffectDeny},
			},
			wantOK: true,
		},
		{
			name: "range that does not apply",
			rules: []Rule{
				{Validator: "*", Target: "maya/>=2020", Effect: EffectAllow},
			},
		},
		{
			name: "ties go to the last declared",
			rules: []Rule{
				{Validator: "*", Target: "maya", Effect: EffectDeny},
				{Validator: "*", Target: "maya", Effect: EffectAllow},
			},
			wantOK: true,
		},
		{
			name:  "other validator",
			rules: []Rule{{Validator: NameOptions, Target: "maya", Effect: EffectAllow}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPipeline(WithRules(tt.rules...))
			require.NoError(t, err)
			out := p.Validate(state, deprecated, origin)
			assert.Equal(t, tt.wantOK, out.OK(), out.String())
		})
	}
}

func TestPipeline_RequireRule(t *testing.T) {
	rule := Rule{
		Validator: NamePkgRequest,
		Target:    "maya",
		Effect:    EffectRequire,
		Condition: `options["debug"] == "off" && "python" in resolved`,
	}
	p, err := NewPipeline(WithRules(rule))
	require.NoError(t, err)
	spec := manifest.MustParseSpec("pkg: maya/2019.2.0/AAAAAAAA")

	out := p.Validate(stateWith(requestPkg("maya"), requestVar("debug", "on")), spec, origin)
	assert.Equal(t, Unmet, out.Kind)

	out = p.Validate(stateWith(
		requestPkg("maya"),
		requestVar("debug", "off"),
		resolve("pkg: python/3.7.3/AAAAAAAA"),
	), spec, origin)
	assert.True(t, out.OK(), out.String())
}

func TestCompileRule_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{name: "bad target", rule: Rule{Target: "Maya", Effect: EffectAllow}},
		{name: "bad range", rule: Rule{Target: "maya/>>1", Effect: EffectAllow}},
		{name: "require without condition", rule: Rule{Target: "maya", Effect: EffectRequire}},
		{name: "condition not bool", rule: Rule{Target: "maya", Effect: EffectRequire, Condition: `pkg + "x"`}},
		{name: "unknown variable", rule: Rule{Target: "maya", Effect: EffectRequire, Condition: `nope == 1`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline(WithRules(tt.rule))
			assert.Error(t, err)
		})
	}

	e, err := ParseEffect("Require")
	require.NoError(t, err)
	assert.Equal(t, EffectRequire, e)
	_, err = ParseEffect("maybe")
	assert.Error(t, err)
}

func TestImpossibleChecker(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: gcc/6.3.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: gcc/4.8.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: maya/2019.2.0"),
		manifest.MustParseSpec("pkg: my-plugin/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: gcc/3"),
	)
	ctx := context.Background()

	tests := []struct {
		name         string
		req          string
		allowRecipes bool
		wantOK       bool
	}{
		{name: "satisfiable", req: "gcc/6", wantOK: true},
		{name: "no applicable version", req: "gcc/3.*"},
		{name: "not found", req: "doesntexist"},
		{name: "empty range", req: "gcc/>6,<5"},
		{name: "recipe only", req: "maya/2019"},
		{name: "recipe allowed", req: "maya/2019", allowRecipes: true, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewImpossibleChecker([]registry.Repository{repo}, tt.allowRecipes)
			res, err := c.Check(ctx, request.MustParsePkgRequest(tt.req))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, res.OK(), res.Reason())
		})
	}

	c := NewImpossibleChecker([]registry.Repository{repo}, false)
	plugin := manifest.MustParseSpec("pkg: my-plugin/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: gcc/3")
	res, err := c.CheckSpec(ctx, nil, plugin)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.False(t, c.Possible(ctx, plugin))

	failures, err := c.CheckRequests(ctx, stateWith(requestPkg("gcc/6"), requestPkg("maya/2019")))
	require.NoError(t, err)
	assert.Len(t, failures, 1)
	assert.Contains(t, failures, "maya/2019")
}

func optional(s string) graph.Change {
	req := request.MustParsePkgRequest(s)
	req.InclusionPolicy = request.IfAlreadyPresent
	return graph.RequestPackage{Request: req}
}

func TestImpossibleChecker_CheckRequests(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: gcc/6.3.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: maya/2019.0.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: maya/2019.2.0/AAAAAAAA\ninstall:\n  embedded:\n    - qt/5.12.6"),
		manifest.MustParseSpec("pkg: maya/2020.0.0/AAAAAAAA"),
	)
	ctx := context.Background()

	tests := []struct {
		name  string
		state *graph.State
		want  []string
	}{
		{
			name:  "optional request is not checked",
			state: stateWith(requestPkg("gcc/6"), optional("doesntexist")),
		},
		{
			name:  "optional conflict is not checked",
			state: stateWith(optional("maya/=2019.0.0"), optional("maya/=2020.0.0")),
		},
		{
			name:  "provided by an embedded package",
			state: stateWith(requestPkg("maya"), requestPkg("qt/5.12")),
		},
		{
			name:  "embedded version out of range",
			state: stateWith(requestPkg("maya"), requestPkg("qt/6")),
			want:  []string{"qt"},
		},
		{
			name:  "conflicting exact versions",
			state: stateWith(requestPkg("maya/=2019.0.0"), requestPkg("maya/=2020.0.0")),
			want:  []string{"maya"},
		},
		{
			name:  "merged range has no build",
			state: stateWith(requestPkg("maya/2019"), requestPkg("maya/<2019.1")),
		},
		{
			name:  "optional request narrows an always one",
			state: stateWith(requestPkg("gcc"), optional("gcc/7")),
			want:  []string{"gcc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewImpossibleChecker([]registry.Repository{repo}, false)
			failures, err := c.CheckRequests(ctx, tt.state)
			require.NoError(t, err)
			var got []string
			for k := range failures {
				name, _, _ := strings.Cut(k, "/")
				got = append(got, name)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestImpossibleChecker_CheckSpec(t *testing.T) {
	repo := registry.NewMemRepository("origin")
	repo.Publish(
		manifest.MustParseSpec("pkg: host/1.0.0/AAAAAAAA\ninstall:\n  embedded:\n    - stub/1.0.0"),
		manifest.MustParseSpec("pkg: gcc/4.8.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: gcc/6.3.0/AAAAAAAA"),
		manifest.MustParseSpec("pkg: lib/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: gcc/4"),
	)
	ctx := context.Background()
	app := manifest.MustParseSpec("pkg: app/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: stub/1\n    - pkg: gcc/6")
	hostState := stateWith(
		requestPkg("host"),
		resolve("pkg: host/1.0.0/AAAAAAAA"),
		graph.SetPackage{Spec: manifest.MustParseSpec("pkg: stub/1.0.0/embedded"), Source: iterator.EmbeddedSource(manifest.MustParseBuildIdent("host/1.0.0/AAAAAAAA"))},
	)

	tests := []struct {
		name   string
		state  *graph.State
		spec   *manifest.Spec
		wantOK bool
	}{
		{name: "embedded in a resolved package", state: hostState, spec: app, wantOK: true},
		{name: "embedded in a published build", state: nil, spec: app, wantOK: true},
		{
			name:   "combined with an unresolved request",
			state:  stateWith(requestPkg("gcc/>=5")),
			spec:   manifest.MustParseSpec("pkg: lib/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: gcc/4"),
			wantOK: false,
		},
		{
			name:   "requirement alone is possible",
			state:  graph.NewState(),
			spec:   manifest.MustParseSpec("pkg: lib/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: gcc/4"),
			wantOK: true,
		},
		{
			name:   "uncombinable requests are left to the validators",
			state:  stateWith(requestPkg("gcc/=6.3.0")),
			spec:   manifest.MustParseSpec("pkg: lib/1.0.0/AAAAAAAA\ninstall:\n  requirements:\n    - pkg: gcc/=4.8.0"),
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewImpossibleChecker([]registry.Repository{repo}, false)
			res, err := c.CheckSpec(ctx, tt.state, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, res.OK(), res.Reason())
		})
	}
}
