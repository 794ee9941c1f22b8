package solver

import (
	"log/slog"
	"time"

	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/internal/validation"
)

// Defaults for the solver options.
const (
	DefaultTooLong           = 30 * time.Second
	DefaultTooLongCap        = 2
	DefaultMaxFrequentErrors = 15
)

type config struct {
	logger          *slog.Logger
	binaryOnly      bool
	buildFromSource bool
	timeout         time.Duration
	tooLong         time.Duration
	tooLongCap      int
	maxFrequent     int
	checkInitial    bool
	checkValidation bool
	checkBuilds     bool
	buildKeyOrder   []string
	requestPriority []string
	prerelease      request.PreReleasePolicy
	rules           []validation.Rule
	validators      []validation.Validator
	options         manifest.OptionMap
}

func defaultConfig() config {
	return config{
		logger:          slog.New(slog.DiscardHandler),
		buildFromSource: true,
		tooLong:         DefaultTooLong,
		tooLongCap:      DefaultTooLongCap,
		maxFrequent:     DefaultMaxFrequentErrors,
		options:         manifest.OptionMap{},
	}
}

// Option configures a Solver.
type Option func(*config)

// WithLogger sets the logger. Steps are logged at Debug until a solve takes
// too long.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBinaryOnly rejects recipes and unrequested source packages.
func WithBinaryOnly(enabled bool) Option {
	return func(c *config) { c.binaryOnly = enabled }
}

// WithBuildFromSource allows recipes to be built during the solve. It is on
// by default.
func WithBuildFromSource(enabled bool) Option {
	return func(c *config) { c.buildFromSource = enabled }
}

// WithTimeout stops a solve after d. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithTooLong raises the log level of a solve every interval it runs, at
// most limit times. A zero interval disables it.
func WithTooLong(interval time.Duration, limit int) Option {
	return func(c *config) {
		c.tooLong = interval
		c.tooLongCap = limit
	}
}

// WithMaxFrequentErrors limits how many of the most frequent errors a
// failure reports.
func WithMaxFrequentErrors(n int) Option {
	return func(c *config) { c.maxFrequent = n }
}

// WithImpossibleChecks turns on the impossible request checks: on the
// initial requests, on each candidate's requirements before it is resolved,
// and while ordering builds.
func WithImpossibleChecks(initial, validation, builds bool) Option {
	return func(c *config) {
		c.checkInitial = initial
		c.checkValidation = validation
		c.checkBuilds = builds
	}
}

// WithBuildKeyOrder puts the named options first when ordering builds.
func WithBuildKeyOrder(names ...string) Option {
	return func(c *config) { c.buildKeyOrder = names }
}

// WithRequestPriority resolves the named packages before any others.
func WithRequestPriority(names ...string) Option {
	return func(c *config) { c.requestPriority = names }
}

// WithPreReleasePolicy sets the pre-release policy of the initial requests.
func WithPreReleasePolicy(p request.PreReleasePolicy) Option {
	return func(c *config) { c.prerelease = p }
}

// WithRules adds validation rules.
func WithRules(rules ...validation.Rule) Option {
	return func(c *config) { c.rules = append(c.rules, rules...) }
}

// WithValidators replaces the default validators.
func WithValidators(validators ...validation.Validator) Option {
	return func(c *config) { c.validators = validators }
}

// WithOptions sets option values before any package is resolved.
func WithOptions(opts manifest.OptionMap) Option {
	return func(c *config) {
		for k, v := range opts {
			c.options[k] = v
		}
	}
}
