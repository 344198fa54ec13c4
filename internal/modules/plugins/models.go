// Package plugins implements the runtime plugin registry of the portfolio dashboard.
//
// Users define three kinds of plugins at runtime: indicators (weighted data sources),
// formulas (arithmetic expressions over named variables) and regimes (economic regimes
// with trigger conditions and target allocations). Plugins are created from per-kind
// templates, validated, registered into an in-memory catalog, observed through lifecycle
// hooks, persisted through hook subscribers and exported/imported as JSON documents.
package plugins

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Plugin is implemented by *Indicator, *Formula and *Regime.
type Plugin interface {
	// Kind returns the collection the plugin belongs to
	Kind() Kind
	// Common returns the fields shared by every kind
	Common() *Base
	// Clone returns a deep copy that shares no memory with the receiver
	Clone() Plugin
}

// Base holds the fields shared by every plugin kind.
type Base struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Type     string   `json:"type"`
	UI       UI       `json:"ui"`
	Metadata Metadata `json:"metadata"`
}

// Common implements Plugin.
func (b *Base) Common() *Base {
	return b
}

func (b Base) clone() Base {
	out := b
	if b.UI.Fields != nil {
		out.UI.Fields = make([]Field, len(b.UI.Fields))
		for i, f := range b.UI.Fields {
			out.UI.Fields[i] = f.clone()
		}
	}
	out.Metadata.Tags = cloneStrings(b.Metadata.Tags)
	out.Metadata.Dependencies = cloneStrings(b.Metadata.Dependencies)
	return out
}

// UI is cosmetic display metadata for the admin panel.
type UI struct {
	Icon        string  `json:"icon"`
	Color       string  `json:"color"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

// Field declares one input of the plugin form. Name may be a dotted path ("allocations.stocks").
type Field struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Step        *float64 `json:"step,omitempty"`
	Options     []string `json:"options,omitempty"`
	Required    bool     `json:"required"`
	Placeholder string   `json:"placeholder,omitempty"`
}

func (f Field) clone() Field {
	out := f
	out.Min = cloneFloat(f.Min)
	out.Max = cloneFloat(f.Max)
	out.Step = cloneFloat(f.Step)
	out.Options = cloneStrings(f.Options)
	return out
}

// Metadata tracks authorship and lifecycle timestamps.
type Metadata struct {
	Version      string    `json:"version"`
	Author       string    `json:"author"`
	Created      time.Time `json:"created"`
	Modified     time.Time `json:"modified"`
	Tags         []string  `json:"tags"`
	Dependencies []string  `json:"dependencies"`
}

// Indicator is a weighted data source.
type Indicator struct {
	Base
	Weight  float64         `json:"weight"`
	Enabled bool            `json:"enabled"`
	Sources []string        `json:"sources"`
	Config  IndicatorConfig `json:"config"`
}

// IndicatorConfig configures how an indicator fetches and shapes its series.
type IndicatorConfig struct {
	APIEndpoint     string `json:"api_endpoint"`
	UpdateFrequency string `json:"update_frequency"` // realtime, hourly, daily, weekly
	Normalization   string `json:"normalization"`    // none, z-score, min-max
	LagPeriods      int    `json:"lag_periods"`
	Smoothing       bool   `json:"smoothing"`
}

// Kind implements Plugin.
func (i *Indicator) Kind() Kind { return KindIndicator }

// Clone implements Plugin.
func (i *Indicator) Clone() Plugin {
	out := *i
	out.Base = i.Base.clone()
	out.Sources = cloneStrings(i.Sources)
	return &out
}

// Formula is an arithmetic expression over named variables and parameters.
type Formula struct {
	Base
	Expression string             `json:"expression"`
	Parameters map[string]float64 `json:"parameters"`
	Variables  []string           `json:"variables"`
	Config     FormulaConfig      `json:"config"`
}

// FormulaConfig constrains formula output.
type FormulaConfig struct {
	ValidationRules []string `json:"validation_rules"`
	OutputRange     *Range   `json:"output_range,omitempty"`
	Precision       int      `json:"precision"`
	Caching         bool     `json:"caching"`
}

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Kind implements Plugin.
func (f *Formula) Kind() Kind { return KindFormula }

// Clone implements Plugin.
func (f *Formula) Clone() Plugin {
	out := *f
	out.Base = f.Base.clone()
	out.Parameters = cloneFloatMap(f.Parameters)
	out.Variables = cloneStrings(f.Variables)
	out.Config.ValidationRules = cloneStrings(f.Config.ValidationRules)
	if f.Config.OutputRange != nil {
		r := *f.Config.OutputRange
		out.Config.OutputRange = &r
	}
	return &out
}

// Regime is an economic regime with detection conditions and target allocations.
type Regime struct {
	Base
	Conditions  map[string]Condition `json:"conditions"`
	Allocations map[string]float64   `json:"allocations"`
	Config      RegimeConfig         `json:"config"`
}

// Condition bounds one indicator value. Unset bounds are ignored.
type Condition struct {
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Equals *float64 `json:"equals,omitempty"`
}

// RegimeConfig holds the detection thresholds of a regime.
type RegimeConfig struct {
	TriggerThreshold    *float64 `json:"trigger_threshold,omitempty"`
	ConfidenceRequired  *float64 `json:"confidence_required,omitempty"`
	MinDuration         string   `json:"min_duration"`
	TransitionSmoothing bool     `json:"transition_smoothing"`
}

// Kind implements Plugin.
func (r *Regime) Kind() Kind { return KindRegime }

// Clone implements Plugin.
func (r *Regime) Clone() Plugin {
	out := *r
	out.Base = r.Base.clone()
	out.Allocations = cloneFloatMap(r.Allocations)
	if r.Conditions != nil {
		out.Conditions = make(map[string]Condition, len(r.Conditions))
		for name, c := range r.Conditions {
			out.Conditions[name] = Condition{Min: cloneFloat(c.Min), Max: cloneFloat(c.Max), Equals: cloneFloat(c.Equals)}
		}
	}
	out.Config.TriggerThreshold = cloneFloat(r.Config.TriggerThreshold)
	out.Config.ConfidenceRequired = cloneFloat(r.Config.ConfidenceRequired)
	return &out
}

// Number is a float64 that encodes non-finite values as JSON null.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// Detection is the outcome of Regime.Detect.
type Detection struct {
	Detected      bool    `json:"detected"`
	Confidence    float64 `json:"confidence"`
	ConditionsMet bool    `json:"conditions_met"`
	Score         Number  `json:"score"`
}

// Observation is one point of an indicator series.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// TestData is the input of a performance test. Each kind reads its own fields.
type TestData struct {
	HistoricalData []Observation      `json:"historical_data,omitempty"`
	Variables      map[string]float64 `json:"variables,omitempty"`
	Parameters     map[string]float64 `json:"parameters,omitempty"`
	Indicators     map[string]float64 `json:"indicators,omitempty"`
	Confidence     *float64           `json:"confidence,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 {
	return &v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
