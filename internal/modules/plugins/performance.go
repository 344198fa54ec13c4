package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/oracle-portfolio/internal/utils"
)

// Rating buckets the duration of a performance test.
type Rating string

const (
	RatingExcellent  Rating = "excellent"
	RatingGood       Rating = "good"
	RatingAcceptable Rating = "acceptable"
	RatingSlow       Rating = "slow"
)

// defaultConfidence is used by regime tests when the test data carries none.
const defaultConfidence = 0.5

// RateDuration maps a duration onto a rating:
// excellent below 100ms, good below 500ms, acceptable below 1s, slow otherwise.
func RateDuration(d time.Duration) Rating {
	switch {
	case d < 100*time.Millisecond:
		return RatingExcellent
	case d < 500*time.Millisecond:
		return RatingGood
	case d < time.Second:
		return RatingAcceptable
	default:
		return RatingSlow
	}
}

// PerformanceResult reports one timed invocation of a plugin's compute function.
type PerformanceResult struct {
	PluginID          string  `json:"plugin_id"`
	PluginName        string  `json:"plugin_name"`
	DurationMS        float64 `json:"duration_ms"`
	Success           bool    `json:"success"`
	Error             string  `json:"error,omitempty"`
	Result            any     `json:"result"`
	PerformanceRating Rating  `json:"performance_rating"`
}

// PerformanceTest runs the compute function of a registered plugin once.
// Returns *NotFoundError when the plugin does not exist; compute failures are
// reported in the result.
func (r *Registry) PerformanceTest(ctx context.Context, kind Kind, id string, data TestData) (PerformanceResult, error) {
	p, err := r.Plugin(kind, id)
	if err != nil {
		return PerformanceResult{}, err
	}
	return r.RunPerformance(ctx, p, data), nil
}

// RunPerformance times a single compute invocation of p, registered or not.
// Errors and panics are reported as success=false and never propagate.
func (r *Registry) RunPerformance(ctx context.Context, p Plugin, data TestData) PerformanceResult {
	common := p.Common()
	result := PerformanceResult{
		PluginID:   common.ID,
		PluginName: common.Name,
	}

	timer := utils.NewTimer("performance_test:"+common.ID, r.log)
	value, err := r.compute(ctx, p, data)
	duration := timer.Stop()

	result.DurationMS = utils.Milliseconds(duration)
	result.PerformanceRating = RateDuration(duration)
	if err != nil {
		result.Error = err.Error()
		r.log.Warn().Err(err).Str("id", common.ID).Msg("Performance test failed")
		return result
	}

	result.Success = true
	result.Result = value
	return result
}

func (r *Registry) compute(ctx context.Context, p Plugin, data TestData) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &EvaluationError{PluginID: p.Common().ID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	switch t := p.(type) {
	case *Indicator:
		v, err := r.Calculate(ctx, t, data)
		if err != nil {
			return nil, err
		}
		return Number(v), nil
	case *Formula:
		v, err := r.Evaluate(t, data.Variables, t.Parameters)
		if err != nil {
			return nil, err
		}
		return Number(v), nil
	case *Regime:
		confidence := defaultConfidence
		if data.Confidence != nil {
			confidence = *data.Confidence
		}
		return t.Detect(data.Indicators, confidence), nil
	}
	return nil, &UnknownKindError{Kind: string(p.Kind())}
}
