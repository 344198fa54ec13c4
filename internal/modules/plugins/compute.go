package plugins

import (
	"context"
	"math"
	"sort"

	"github.com/aristath/oracle-portfolio/pkg/expr"
	"github.com/aristath/oracle-portfolio/pkg/formulas"
)

// smoothingPeriod is the EMA length applied when an indicator enables smoothing.
const smoothingPeriod = 5

// Calculator computes the current value of an indicator from test or live data.
// Registered through Registry.SetCalculator to replace the default series calculation.
type Calculator func(ctx context.Context, ind *Indicator, data TestData) (float64, error)

// Series returns the observation values ordered by date.
func Series(observations []Observation) []float64 {
	sorted := make([]Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	values := make([]float64, len(sorted))
	for i, o := range sorted {
		values[i] = o.Value
	}
	return values
}

// Calculate derives the indicator value from a historical series.
//
// The series is shifted by lag_periods, optionally smoothed with an EMA and then
// normalized against the lagged series. The second return value is false when no
// observation remains after the lag, in which case the caller decides the fallback.
func (i *Indicator) Calculate(observations []Observation) (float64, bool) {
	values := formulas.Lag(Series(observations), i.Config.LagPeriods)
	if len(values) == 0 {
		return 0, false
	}

	latest := values[len(values)-1]
	if i.Config.Smoothing {
		if ema := formulas.CalculateEMA(values, smoothingPeriod); ema != nil {
			latest = *ema
		}
	}

	switch i.Config.Normalization {
	case "z-score":
		return formulas.ZScore(latest, values), true
	case "min-max":
		return formulas.MinMaxScale(latest, values), true
	default:
		return latest, true
	}
}

// Evaluate computes the formula with variables shadowing parameters and clamps the
// result into output_range when one is configured. When cache is non-nil and the
// formula enables caching, the parsed expression is reused across calls.
func (f *Formula) Evaluate(variables, parameters map[string]float64, cache *expr.Cache) (float64, error) {
	var (
		e   *expr.Expression
		err error
	)
	if f.Config.Caching && cache != nil {
		e, err = cache.Get(f.Expression)
	} else {
		e, err = expr.Parse(f.Expression)
	}
	if err != nil {
		return 0, &EvaluationError{PluginID: f.ID, Err: err}
	}

	result, err := e.Eval(expr.Chain{expr.Vars(variables), expr.Vars(parameters)})
	if err != nil {
		return 0, &EvaluationError{PluginID: f.ID, Err: err}
	}

	if r := f.Config.OutputRange; r != nil {
		result = math.Max(r.Min, math.Min(r.Max, result))
	}
	return result, nil
}

// Detect checks the regime conditions against indicator values.
//
// Every condition must hold for conditions_met, a missing indicator failing its
// condition. The regime is detected when conditions are met and confidence reaches
// confidence_required. The score averages, over conditions whose indicator is present,
// the product of min(1, v/min) and min(1, max/v).
func (r *Regime) Detect(indicators map[string]float64, confidence float64) Detection {
	required := 0.0
	if r.Config.ConfidenceRequired != nil {
		required = *r.Config.ConfidenceRequired
	}

	met := r.conditionsMet(indicators)
	return Detection{
		Detected:      met && confidence >= required,
		Confidence:    confidence,
		ConditionsMet: met,
		Score:         Number(r.score(indicators)),
	}
}

func (r *Regime) conditionsMet(indicators map[string]float64) bool {
	for _, name := range sortedKeys(r.Conditions) {
		c := r.Conditions[name]
		v, ok := indicators[name]
		if !ok {
			return false
		}
		if c.Min != nil && v < *c.Min {
			return false
		}
		if c.Max != nil && v > *c.Max {
			return false
		}
		if c.Equals != nil && v != *c.Equals {
			return false
		}
	}
	return true
}

func (r *Regime) score(indicators map[string]float64) float64 {
	var total float64
	var count int

	for _, name := range sortedKeys(r.Conditions) {
		c := r.Conditions[name]
		v, ok := indicators[name]
		if !ok {
			continue
		}

		s := 1.0
		if c.Min != nil {
			s *= math.Min(1, v / *c.Min)
		}
		if c.Max != nil {
			s *= math.Min(1, *c.Max/v)
		}
		total += s
		count++
	}

	if count == 0 {
		return 0
	}
	return total / float64(count)
}
