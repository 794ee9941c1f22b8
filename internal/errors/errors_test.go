package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		expected string
	}{
		{
			name:     "with line and column",
			err:      &ConfigError{File: "stratum.hcl", Line: 10, Column: 5, Message: "invalid syntax"},
			expected: "config error at stratum.hcl:10:5: invalid syntax",
		},
		{
			name:     "with line only",
			err:      &ConfigError{File: "stratum.hcl", Line: 10, Message: "invalid syntax"},
			expected: "config error at stratum.hcl:10: invalid syntax",
		},
		{
			name:     "file only",
			err:      &ConfigError{File: "stratum.hcl", Message: "file not found"},
			expected: "config error at stratum.hcl: file not found",
		},
		{
			name: "with wrapped error",
			err: &ConfigError{
				File:    "stratum.hcl",
				Line:    10,
				Column:  5,
				Message: "parsing failed",
				Err:     errors.New("unexpected token"),
			},
			expected: "config error at stratum.hcl:10:5: parsing failed: unexpected token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewConfigError("stratum.hcl", 1, 1, "test", underlying)
	assert.Equal(t, underlying, err.Unwrap())

	assert.Nil(t, (&ConfigError{File: "stratum.hcl", Message: "test"}).Unwrap())
}

func TestRepositoryError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RepositoryError
		expected string
	}{
		{
			name:     "with underlying error",
			err:      NewRepositoryError("origin", "index", errors.New("connection refused")),
			expected: "repository error: index failed for origin: connection refused",
		},
		{
			name:     "without underlying error",
			err:      NewRepositoryError("origin", "list", nil),
			expected: "repository error: list failed for origin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestRepositoryError_ErrorChaining(t *testing.T) {
	inner := errors.New("connection failed")
	err := Wrap(NewRepositoryError("s3://bucket/repo", "connect", inner), "loading repositories")

	assert.True(t, Is(err, inner))

	var target *RepositoryError
	assert.True(t, As(err, &target))
	assert.Equal(t, "connect", target.Op)
	assert.Equal(t, "s3://bucket/repo", target.Repo)
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t,
		`validation error for package:maya/2019.2.0: field "compat": invalid rule 'q'`,
		NewValidationError("package:maya/2019.2.0", "compat", "invalid rule 'q'").Error())
	assert.Equal(t,
		"validation error for rule:maya: unknown validator",
		NewValidationError("rule:maya", "", "unknown validator").Error())
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		what, name, expected string
	}{
		{"package", "maya", "package not found: maya"},
		{"build", "maya/2019.2.0/QYB6QLCN", "build not found: maya/2019.2.0/QYB6QLCN"},
		{"file", "/repo/index.json", "file not found: /repo/index.json"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			err := NewNotFoundError(tt.what, tt.name)
			assert.Equal(t, tt.expected, err.Error())
			assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", err)))
		})
	}

	assert.False(t, IsNotFound(errors.New("other")))
	assert.False(t, IsNotFound(nil))
}

func TestVersionError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *VersionError
		expected string
	}{
		{
			name:     "with range and available",
			err:      NewVersionError("maya", "^2020.0.0", []string{"2019.0.0", "2019.2.0"}, ""),
			expected: `version error for maya: range "^2020.0.0" cannot be satisfied (available: 2019.0.0, 2019.2.0)`,
		},
		{
			name:     "with custom message",
			err:      NewVersionError("maya", "^2020.0.0", []string{"2019.0.0"}, "no compatible version found"),
			expected: "version error for maya: no compatible version found (available: 2019.0.0)",
		},
		{
			name:     "without available versions",
			err:      NewVersionError("maya", "^2020.0.0", nil, ""),
			expected: `version error for maya: range "^2020.0.0" cannot be satisfied`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "should be nil"))

	original := errors.New("original error")
	wrapped := Wrap(original, "additional context")
	assert.Equal(t, "additional context: original error", wrapped.Error())
	assert.Equal(t, original, Unwrap(wrapped))
}

func TestExportedFunctions(t *testing.T) {
	err1 := New("test error")
	err2 := errors.New("other error")
	joined := Join(err1, err2)
	assert.True(t, Is(joined, err1))
	assert.True(t, Is(joined, err2))

	var target *NotFoundError
	assert.False(t, As(joined, &target))
}
