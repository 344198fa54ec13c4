package plugins

import (
	"strings"
	"time"

	"github.com/aristath/oracle-portfolio/internal/utils"
	"github.com/aristath/oracle-portfolio/pkg/expr"
)

// DefaultAuthor is stamped on templates.
const DefaultAuthor = "Oracle Portfolio"

// UpdateFrequencies lists accepted indicator refresh cadences.
var UpdateFrequencies = []string{"realtime", "hourly", "daily", "weekly"}

// Normalizations lists accepted indicator normalization methods.
var Normalizations = []string{"none", "z-score", "min-max"}

// NewTemplate returns a fresh default plugin of the given kind.
// Every call builds new values, so callers may mutate the result freely.
func NewTemplate(kind Kind, now time.Time) (Plugin, error) {
	switch kind {
	case KindIndicator:
		return indicatorTemplate(now), nil
	case KindFormula:
		return formulaTemplate(now), nil
	case KindRegime:
		return regimeTemplate(now), nil
	}
	return nil, &UnknownKindError{Kind: string(kind)}
}

func newMetadata(now time.Time, tags ...string) Metadata {
	return Metadata{
		Version:      "1.0.0",
		Author:       DefaultAuthor,
		Created:      now,
		Modified:     now,
		Tags:         append([]string{"custom"}, tags...),
		Dependencies: []string{},
	}
}

func indicatorTemplate(now time.Time) *Indicator {
	return &Indicator{
		Base: Base{
			Category: "custom",
			Type:     "api",
			UI: UI{
				Icon:  "📊",
				Color: "#3b82f6",
				Fields: []Field{
					{Name: "weight", Label: "Pondération (%)", Type: "number", Min: Ptr(0), Max: Ptr(100), Required: true},
					{Name: "enabled", Label: "Activé", Type: "toggle"},
					{Name: "sources", Label: "Sources", Type: "multiselect"},
					{Name: "config.api_endpoint", Label: "Endpoint API", Type: "url", Required: true},
					{Name: "config.update_frequency", Label: "Fréquence", Type: "select", Options: UpdateFrequencies, Required: true},
				},
			},
			Metadata: newMetadata(now),
		},
		Weight:  25,
		Enabled: true,
		Sources: []string{},
		Config: IndicatorConfig{
			UpdateFrequency: "daily",
			Normalization:   "z-score",
		},
	}
}

func formulaTemplate(now time.Time) *Formula {
	return &Formula{
		Base: Base{
			Category: "custom",
			Type:     "mathematical",
			UI: UI{
				Icon:        "🧮",
				Color:       "#10b981",
				Description: "Fonctions disponibles: " + strings.Join(expr.Functions(), ", "),
				Fields: []Field{
					{Name: "expression", Label: "Expression", Type: "textarea", Required: true, Placeholder: "(a * 0.6) + (b * 0.4)"},
					{Name: "parameters", Label: "Paramètres", Type: "json"},
					{Name: "config.output_range.min", Label: "Valeur Min", Type: "number"},
					{Name: "config.output_range.max", Label: "Valeur Max", Type: "number"},
				},
			},
			Metadata: newMetadata(now, "formula"),
		},
		Parameters: map[string]float64{},
		Variables:  []string{},
		Config: FormulaConfig{
			ValidationRules: []string{},
			OutputRange:     &Range{Min: 0, Max: 1},
			Precision:       4,
			Caching:         true,
		},
	}
}

func regimeTemplate(now time.Time) *Regime {
	return &Regime{
		Base: Base{
			Category: "custom",
			Type:     "economic",
			UI: UI{
				Icon:  "📈",
				Color: "#f59e0b",
				Fields: []Field{
					{Name: "config.trigger_threshold", Label: "Seuil Déclenchement", Type: "slider", Min: Ptr(0), Max: Ptr(1), Step: Ptr(0.1), Required: true},
					{Name: "config.confidence_required", Label: "Confiance Requise", Type: "slider", Min: Ptr(0), Max: Ptr(1), Step: Ptr(0.1), Required: true},
					{Name: "allocations.stocks", Label: "Actions (%)", Type: "number", Min: Ptr(0), Max: Ptr(100), Required: true},
					{Name: "allocations.bonds", Label: "Obligations (%)", Type: "number", Min: Ptr(0), Max: Ptr(100), Required: true},
					{Name: "allocations.commodities", Label: "Matières Premières (%)", Type: "number", Min: Ptr(0), Max: Ptr(100), Required: true},
					{Name: "allocations.cash", Label: "Liquidités (%)", Type: "number", Min: Ptr(0), Max: Ptr(100), Required: true},
				},
			},
			Metadata: newMetadata(now, "regime"),
		},
		Conditions: map[string]Condition{},
		Allocations: map[string]float64{
			"stocks":      50,
			"bonds":       30,
			"commodities": 15,
			"cash":        5,
		},
		Config: RegimeConfig{
			TriggerThreshold:    Ptr(0.7),
			ConfidenceRequired:  Ptr(0.6),
			MinDuration:         "1d",
			TransitionSmoothing: true,
		},
	}
}

// GenerateID derives a plugin id from its display name.
func GenerateID(name string) string {
	return utils.Slugify(name)
}

// CreateFromTemplate builds a plugin of the given kind from its template with
// overrides deep-merged on top. The id is derived from the name when absent and
// both lifecycle timestamps are set to now.
func CreateFromTemplate(kind Kind, overrides map[string]any, now time.Time) (Plugin, error) {
	template, err := NewTemplate(kind, now)
	if err != nil {
		return nil, err
	}

	plugin := template
	if len(overrides) > 0 {
		base, err := ToMap(template)
		if err != nil {
			return nil, err
		}
		plugin, err = FromMap(kind, Merge(base, overrides))
		if err != nil {
			return nil, err
		}
	}

	common := plugin.Common()
	if common.ID == "" && common.Name != "" {
		common.ID = GenerateID(common.Name)
	}
	common.Metadata.Created = now
	common.Metadata.Modified = now

	return plugin, nil
}

// NewIndicator creates an indicator named name from the template.
func NewIndicator(name string, overrides map[string]any, now time.Time) (*Indicator, error) {
	data := Merge(overrides, map[string]any{"name": name, "id": GenerateID(name)})
	p, err := CreateFromTemplate(KindIndicator, data, now)
	if err != nil {
		return nil, err
	}
	return p.(*Indicator), nil
}

// NewFormula creates a formula named name with the given expression and parameters.
func NewFormula(name, expression string, parameters map[string]float64, now time.Time) (*Formula, error) {
	data := map[string]any{
		"name":       name,
		"id":         GenerateID(name),
		"expression": expression,
		"parameters": floatsToAny(parameters),
	}
	p, err := CreateFromTemplate(KindFormula, data, now)
	if err != nil {
		return nil, err
	}
	return p.(*Formula), nil
}

// NewRegime creates a regime named name with the given allocations and conditions.
// The allocations replace the template defaults rather than merging with them.
func NewRegime(name string, allocations map[string]float64, conditions map[string]Condition, now time.Time) (*Regime, error) {
	p, err := CreateFromTemplate(KindRegime, map[string]any{"name": name, "id": GenerateID(name)}, now)
	if err != nil {
		return nil, err
	}
	r := p.(*Regime)
	r.Allocations = cloneFloatMap(allocations)
	if conditions != nil {
		r.Conditions = make(map[string]Condition, len(conditions))
		for k, c := range conditions {
			r.Conditions[k] = Condition{Min: cloneFloat(c.Min), Max: cloneFloat(c.Max), Equals: cloneFloat(c.Equals)}
		}
	}
	return r, nil
}

func floatsToAny(in map[string]float64) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
