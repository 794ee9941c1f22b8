package solver

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/launchcg/stratum/internal/solver"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

// instruments are created on first use so that a meter provider installed
// after package init is picked up.
type instruments struct {
	solves    metric.Int64Counter
	steps     metric.Int64Counter
	stepsBack metric.Int64Counter
	duration  metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     instruments
)

func getInstruments(logger *slog.Logger) *instruments {
	instOnce.Do(func() {
		var failed []string
		var err error

		inst.solves, err = meter.Int64Counter("stratum_solver_solves_total",
			metric.WithDescription("Number of solves by outcome"),
		)
		if err != nil {
			failed = append(failed, "solves: "+err.Error())
		}

		inst.steps, err = meter.Int64Counter("stratum_solver_steps_total",
			metric.WithDescription("Number of solver steps taken"),
		)
		if err != nil {
			failed = append(failed, "steps: "+err.Error())
		}

		inst.stepsBack, err = meter.Int64Counter("stratum_solver_steps_back_total",
			metric.WithDescription("Number of times the solver backtracked"),
		)
		if err != nil {
			failed = append(failed, "steps_back: "+err.Error())
		}

		inst.duration, err = meter.Float64Histogram("stratum_solver_duration_seconds",
			metric.WithDescription("Wall time of a solve"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "duration: "+err.Error())
		}

		if len(failed) > 0 {
			fallback := noop.Meter{}
			if inst.solves == nil {
				inst.solves, _ = fallback.Int64Counter("")
			}
			if inst.steps == nil {
				inst.steps, _ = fallback.Int64Counter("")
			}
			if inst.stepsBack == nil {
				inst.stepsBack, _ = fallback.Int64Counter("")
			}
			if inst.duration == nil {
				inst.duration, _ = fallback.Float64Histogram("")
			}
			logger.Error("failed to create some solver metrics", slog.Any("errors", failed))
		}
	})
	return &inst
}
