// Package validation decides whether a candidate build may join a state.
//
// A Pipeline runs validators in a fixed order and stops at the first one
// that objects. Rules can switch a validator off for some packages, deny
// packages outright, or make a validator conditional on an expression.
package validation

import (
	"fmt"

	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/manifest"
)

// OutcomeKind is the verdict of a validator.
type OutcomeKind int

const (
	// Allowed candidates may be resolved.
	Allowed OutcomeKind = iota
	// Denied candidates are rejected.
	Denied
	// Unmet candidates failed a required condition.
	Unmet
)

// Outcome is a verdict with its reason.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Allow accepts a candidate.
func Allow() Outcome { return Outcome{Kind: Allowed} }

// Deny rejects a candidate.
func Deny(format string, args ...any) Outcome {
	return Outcome{Kind: Denied, Reason: fmt.Sprintf(format, args...)}
}

// RequireUnmet rejects a candidate that fails a rule's condition.
func RequireUnmet(format string, args ...any) Outcome {
	return Outcome{Kind: Unmet, Reason: fmt.Sprintf(format, args...)}
}

// OK reports whether the candidate was allowed.
func (o Outcome) OK() bool { return o.Kind == Allowed }

func (o Outcome) String() string {
	switch o.Kind {
	case Denied:
		return "denied: " + o.Reason
	case Unmet:
		return "requirement unmet: " + o.Reason
	}
	return "allowed"
}

// Validator checks one concern of a candidate against a state.
type Validator interface {
	Name() string
	Validate(state *graph.State, spec *manifest.Spec, src iterator.Source) Outcome
}

// Validator names.
const (
	NameBinaryOnly       = "BinaryOnly"
	NameDeprecation      = "Deprecation"
	NamePkgRequest       = "PkgRequest"
	NameComponents       = "Components"
	NameOptions          = "Options"
	NameVarRequirements  = "VarRequirements"
	NamePkgRequirements  = "PkgRequirements"
	NameEmbeddedPackages = "EmbeddedPackages"
)

// Defaults returns the validators in their default order.
func Defaults() []Validator {
	return []Validator{
		Deprecation{},
		PkgRequest{},
		Components{},
		Options{},
		VarRequirements{},
		PkgRequirements{},
		EmbeddedPackages{},
	}
}

// Pipeline runs validators in order, subject to rules.
type Pipeline struct {
	validators []Validator
	rules      []*compiledRule
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline) error

// WithBinaryOnly puts the BinaryOnly validator first.
func WithBinaryOnly() PipelineOption {
	return func(p *Pipeline) error {
		p.validators = append([]Validator{BinaryOnly{}}, p.validators...)
		return nil
	}
}

// WithValidators replaces the default validators.
func WithValidators(validators ...Validator) PipelineOption {
	return func(p *Pipeline) error {
		p.validators = validators
		return nil
	}
}

// WithRules adds rules. Conditions are compiled immediately.
func WithRules(rules ...Rule) PipelineOption {
	return func(p *Pipeline) error {
		for _, r := range rules {
			compiled, err := compileRule(r, len(p.rules))
			if err != nil {
				return err
			}
			p.rules = append(p.rules, compiled)
		}
		return nil
	}
}

// NewPipeline returns the default pipeline with the given options applied.
func NewPipeline(opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{validators: Defaults()}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Validators returns the validator names in evaluation order.
func (p *Pipeline) Validators() []string {
	names := make([]string, len(p.validators))
	for i, v := range p.validators {
		names[i] = v.Name()
	}
	return names
}

// Validate returns the first objection to the candidate, or Allow.
func (p *Pipeline) Validate(state *graph.State, spec *manifest.Spec, src iterator.Source) Outcome {
	for _, v := range p.validators {
		rule := p.match(v.Name(), spec)
		if rule != nil {
			switch rule.Effect {
			case EffectAllow:
				continue
			case EffectDeny:
				return Deny("%s denied by rule %s", spec.Pkg, rule)
			case EffectRequire:
				ok, err := rule.eval(state, spec)
				if err != nil {
					return RequireUnmet("rule %s: %v", rule, err)
				}
				if !ok {
					return RequireUnmet("%s does not meet %s", spec.Pkg, rule)
				}
			}
		}
		if out := v.Validate(state, spec, src); !out.OK() {
			return out
		}
	}
	return Allow()
}

// match returns the most specific rule for the validator and spec. Among
// equally specific rules the last declared wins.
func (p *Pipeline) match(validator string, spec *manifest.Spec) *compiledRule {
	var best *compiledRule
	bestScore := 0
	for _, r := range p.rules {
		score := r.specificity(validator, spec)
		if score > 0 && score >= bestScore {
			best, bestScore = r, score
		}
	}
	return best
}
