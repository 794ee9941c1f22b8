package validation

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/pkg/version"
)

// Effect is what a rule does to its validator.
type Effect int

const (
	// EffectAllow skips the validator.
	EffectAllow Effect = iota
	// EffectDeny rejects matching packages.
	EffectDeny
	// EffectRequire runs the validator only if the condition holds.
	EffectRequire
)

// ParseEffect parses "allow", "deny" or "require".
func ParseEffect(s string) (Effect, error) {
	switch strings.ToLower(s) {
	case "allow":
		return EffectAllow, nil
	case "deny":
		return EffectDeny, nil
	case "require":
		return EffectRequire, nil
	}
	return EffectAllow, fmt.Errorf("invalid rule effect %q: must be allow, deny or require", s)
}

func (e Effect) String() string {
	switch e {
	case EffectDeny:
		return "deny"
	case EffectRequire:
		return "require"
	}
	return "allow"
}

// Rule reconfigures one validator for some packages.
//
// Target is "*", a package name or "name/range". Condition is an expr
// expression over pkg, version, build, options and resolved, and is only
// used by Require rules:
//
//	options["debug"] == "off" && "maya" in resolved
type Rule struct {
	Validator string // validator name or "*"
	Target    string
	Effect    Effect
	Condition string
}

func (r Rule) String() string {
	return fmt.Sprintf("%s(%s %s)", r.Effect, r.Validator, r.Target)
}

type compiledRule struct {
	Rule
	name    string
	rng     version.Range
	program *vm.Program
	index   int
}

// ruleEnv is the environment Require conditions are evaluated in.
type ruleEnv struct {
	Pkg      string            `expr:"pkg"`
	Version  string            `expr:"version"`
	Build    string            `expr:"build"`
	Options  map[string]string `expr:"options"`
	Resolved map[string]string `expr:"resolved"`
}

func compileRule(r Rule, index int) (*compiledRule, error) {
	if r.Validator == "" {
		r.Validator = "*"
	}
	out := &compiledRule{Rule: r, index: index}

	switch target := strings.TrimSpace(r.Target); target {
	case "", "*":
		out.Target = "*"
	default:
		name, rng, hasRange := strings.Cut(target, "/")
		if err := manifest.ValidateName(name); err != nil {
			return nil, fmt.Errorf("invalid rule target %q: %w", r.Target, err)
		}
		out.name = name
		if hasRange {
			parsed, err := version.ParseRange(rng)
			if err != nil {
				return nil, fmt.Errorf("invalid rule target %q: %w", r.Target, err)
			}
			out.rng = parsed
		}
	}

	if r.Effect == EffectRequire {
		if strings.TrimSpace(r.Condition) == "" {
			return nil, fmt.Errorf("rule %s: require rules need a condition", r)
		}
		program, err := expr.Compile(r.Condition, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid condition: %w", r, err)
		}
		out.program = program
	}
	return out, nil
}

// specificity scores how well the rule matches: 3 for a name and range
// target, 2 for a name, 1 for a wildcard and 0 for no match.
func (r *compiledRule) specificity(validator string, spec *manifest.Spec) int {
	if r.Validator != "*" && r.Validator != validator {
		return 0
	}
	switch {
	case r.name == "":
		return 1
	case r.name != spec.Name():
		return 0
	case r.rng == nil:
		return 2
	case r.rng.IsApplicable(spec.Version()).OK():
		return 3
	}
	return 0
}

func (r *compiledRule) eval(state *graph.State, spec *manifest.Spec) (bool, error) {
	env := ruleEnv{
		Pkg:      spec.Name(),
		Version:  spec.Version().String(),
		Build:    string(spec.Pkg.Build),
		Options:  map[string]string(state.Options().Clone()),
		Resolved: make(map[string]string),
	}
	for k, v := range spec.Options() {
		env.Options[spec.Name()+"."+k] = v
	}
	for _, p := range state.Packages() {
		env.Resolved[p.Spec.Name()] = p.Spec.Version().String()
	}
	out, err := expr.Run(r.program, env)
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
