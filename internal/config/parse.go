package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/launchcg/stratum/internal/errors"
)

// Parser wraps HCL parsing functionality and provides a reusable parser instance.
type Parser struct {
	parser *hclparse.Parser
}

// NewParser creates a new HCL parser instance.
func NewParser() *Parser {
	return &Parser{
		parser: hclparse.NewParser(),
	}
}

// ParseFile parses an HCL file and returns the parsed file and any diagnostics.
func (p *Parser) ParseFile(filename string) (*hcl.File, hcl.Diagnostics) {
	return p.parser.ParseHCLFile(filename)
}

// ParseSource parses HCL from memory. The filename is only used in
// diagnostics.
func (p *Parser) ParseSource(src []byte, filename string) (*hcl.File, hcl.Diagnostics) {
	return p.parser.ParseHCL(src, filename)
}

// NewEvalContext creates an HCL evaluation context with the env() function.
func NewEvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunction(),
		},
	}
}

// NewConfigEvalContext creates the evaluation context for stratum.hcl. It
// provides env(), file() relative to baseDir, and a var object holding the
// resolved variables so that var.NAME can be used in expressions.
func NewConfigEvalContext(baseDir string, resolvedVars map[string]string) *hcl.EvalContext {
	ctyVars := make(map[string]cty.Value)
	for name, value := range resolvedVars {
		ctyVars[name] = cty.StringVal(value)
	}

	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env":  envFunction(),
			"file": fileFunction(baseDir),
		},
		Variables: map[string]cty.Value{
			"var": cty.ObjectVal(ctyVars),
		},
	}
}

// variableBlockSchema defines the HCL schema for extracting variable blocks.
var variableBlockSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "variable", LabelNames: []string{"name"}},
	},
}

// extractVariables decodes the variable blocks of body and resolves their
// values. It returns the rest of the body for the second decoding pass.
func extractVariables(filename string, body hcl.Body) ([]VariableBlock, map[string]string, hcl.Body, error) {
	content, remain, diags := body.PartialContent(variableBlockSchema)
	if diags.HasErrors() {
		return nil, nil, nil, diagError(filename, "invalid variable blocks", diags)
	}

	var variables []VariableBlock
	resolved := make(map[string]string)

	// variables may only use env(), not each other
	basicCtx := NewEvalContext()

	for _, block := range content.Blocks {
		v := VariableBlock{Name: block.Labels[0]}
		if diags := gohcl.DecodeBody(block.Body, basicCtx, &v); diags.HasErrors() {
			return nil, nil, nil, diagError(filename, fmt.Sprintf("invalid variable %q", v.Name), diags)
		}
		if _, dup := resolved[v.Name]; dup {
			return nil, nil, nil, errors.NewConfigError(filename, block.DefRange.Start.Line, block.DefRange.Start.Column,
				fmt.Sprintf("duplicate variable %q", v.Name), nil)
		}

		value, err := v.Resolve()
		if err != nil {
			return nil, nil, nil, errors.NewConfigError(filename, block.DefRange.Start.Line, block.DefRange.Start.Column,
				"unresolved variable", err)
		}
		variables = append(variables, v)
		resolved[v.Name] = value
	}

	return variables, resolved, remain, nil
}

// Resolve returns the variable's value: the environment variable if set,
// then the default. A required variable with neither is an error.
func (v *VariableBlock) Resolve() (string, error) {
	if v.Env != "" {
		if val, ok := os.LookupEnv(v.Env); ok {
			return val, nil
		}
	}
	if v.Default != "" {
		return v.Default, nil
	}
	if v.Required {
		return "", fmt.Errorf("required variable %q has no value (set via env var %q or default)", v.Name, v.Env)
	}
	return "", nil
}

// diagError converts HCL diagnostics into a ConfigError pointing at the
// first problem.
func diagError(filename, msg string, diags hcl.Diagnostics) error {
	line, col := 0, 0
	for _, d := range diags {
		if d.Subject != nil {
			line, col = d.Subject.Start.Line, d.Subject.Start.Column
			break
		}
	}
	return errors.NewConfigError(filename, line, col, msg, diags)
}

// fileFunction returns an HCL function that reads file contents.
// Usage in HCL: file("rules/maya.expr")
// Paths are resolved relative to the directory of the config file.
func fileFunction(baseDir string) function.Function {
	return function.New(&function.Spec{
		Description: "Reads the contents of a file relative to the config directory",
		Params: []function.Parameter{
			{
				Name:        "path",
				Type:        cty.String,
				Description: "The relative path to the file to read",
			},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			relPath := args[0].AsString()
			content, err := os.ReadFile(filepath.Join(baseDir, relPath))
			if err != nil {
				return cty.StringVal(""), fmt.Errorf("failed to read file %s: %w", relPath, err)
			}
			return cty.StringVal(string(content)), nil
		},
	})
}

// envFunction returns an HCL function that reads environment variables.
// Usage in HCL: env("VAR_NAME") or env("VAR_NAME", "default_value")
// If the variable is not set and no default is provided, returns an empty string.
func envFunction() function.Function {
	return function.New(&function.Spec{
		Description: "Reads an environment variable, with an optional default value",
		Params: []function.Parameter{
			{
				Name:        "name",
				Type:        cty.String,
				Description: "The name of the environment variable to read",
			},
		},
		VarParam: &function.Parameter{
			Name:        "default",
			Type:        cty.String,
			Description: "Optional default value if the environment variable is not set",
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			value := os.Getenv(args[0].AsString())
			if value == "" && len(args) > 1 {
				value = args[1].AsString()
			}
			return cty.StringVal(value), nil
		},
	})
}
