package plugins

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Common(t *testing.T) {
	tests := []struct {
		name     string
		base     Base
		expected []string
	}{
		{name: "valid", base: Base{ID: "gdp_growth_2", Name: "GDP"}, expected: []string{}},
		{name: "missing id", base: Base{Name: "GDP"}, expected: []string{"ID requis"}},
		{name: "blank name", base: Base{ID: "gdp", Name: "  "}, expected: []string{"Nom requis"}},
		{
			name:     "uppercase id",
			base:     Base{ID: "GDP", Name: "GDP"},
			expected: []string{"ID doit contenir uniquement des lettres minuscules, chiffres et underscores"},
		},
		{
			name:     "dashed id",
			base:     Base{ID: "gdp-growth", Name: "GDP"},
			expected: []string{"ID doit contenir uniquement des lettres minuscules, chiffres et underscores"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(&Indicator{Base: tt.base, Weight: 10})
			assert.Equal(t, tt.expected, v.Errors)
			assert.Equal(t, len(tt.expected) == 0, v.Valid)
		})
	}
}

func TestValidate_Indicator(t *testing.T) {
	base := Base{ID: "copper", Name: "Copper"}

	tests := []struct {
		name      string
		indicator Indicator
		expected  string
	}{
		{name: "negative weight", indicator: Indicator{Weight: -1}, expected: "Pondération doit être entre 0 et 100"},
		{name: "weight above 100", indicator: Indicator{Weight: 100.5}, expected: "Pondération doit être entre 0 et 100"},
		{name: "relative endpoint", indicator: Indicator{Config: IndicatorConfig{APIEndpoint: "/copper"}}, expected: "Endpoint API invalide"},
		{name: "malformed endpoint", indicator: Indicator{Config: IndicatorConfig{APIEndpoint: "not a url"}}, expected: "Endpoint API invalide"},
		{name: "unknown frequency", indicator: Indicator{Config: IndicatorConfig{UpdateFrequency: "monthly"}}, expected: "Fréquence de mise à jour invalide"},
		{name: "unknown normalization", indicator: Indicator{Config: IndicatorConfig{Normalization: "log"}}, expected: "Normalisation invalide"},
		{name: "negative lag", indicator: Indicator{Config: IndicatorConfig{LagPeriods: -2}}, expected: "Périodes de décalage doivent être positives"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind := tt.indicator
			ind.Base = base
			v := Validate(&ind)
			assert.False(t, v.Valid)
			assert.Equal(t, []string{tt.expected}, v.Errors)
		})
	}

	valid := &Indicator{
		Base:   base,
		Weight: 100,
		Config: IndicatorConfig{APIEndpoint: "https://api.example.com/copper?series=lme", UpdateFrequency: "hourly", Normalization: "min-max"},
	}
	assert.True(t, Validate(valid).Valid)
}

func TestValidate_FormulaSmokeTest(t *testing.T) {
	base := Base{ID: "ratio", Name: "Ratio"}

	v := Validate(&Formula{Base: base, Expression: "a / 0"})
	assert.True(t, v.Valid, "non-finite results are accepted")

	v = Validate(&Formula{Base: base, Expression: "0 / 0"})
	assert.True(t, v.Valid)

	v = Validate(&Formula{Base: base, Expression: "a +"})
	assert.False(t, v.Valid)
	assert.True(t, hasPrefix(v.Errors, "Expression invalide"), v.Errors)

	v = Validate(&Formula{Base: base, Expression: " \t\n "})
	assert.Equal(t, []string{"Expression mathématique requise"}, v.Errors, "blank expressions are not smoke tested")

	v = Validate(&Formula{Base: base, Expression: strings.Repeat("(", 1000) + "a" + strings.Repeat(")", 1000)})
	assert.False(t, v.Valid)
	assert.Equal(t, []string{"Expression invalide: syntax error at position 257: expression too deeply nested"}, v.Errors)
}

func TestValidate_Formula(t *testing.T) {
	base := Base{ID: "mix", Name: "Mix"}

	tests := []struct {
		name    string
		formula Formula
		valid   bool
		prefix  string
	}{
		{name: "smoke variables", formula: Formula{Expression: "(a * 0.6) + (b * 0.4) - c"}, valid: true},
		{name: "parameters bound", formula: Formula{Expression: "a * w", Parameters: map[string]float64{"w": 0.5}}, valid: true},
		{name: "declared variables bound", formula: Formula{Expression: "gdp * 2", Variables: []string{"gdp"}}, valid: true},
		{name: "functions", formula: Formula{Expression: "sigmoid(a) + max(b, c)"}, valid: true},
		{name: "undeclared identifier", formula: Formula{Expression: "gdp * 2"}, prefix: "Expression invalide"},
		{name: "unknown function", formula: Formula{Expression: "launch(a)"}, prefix: "Expression invalide"},
		{name: "empty expression", formula: Formula{}, prefix: "Expression mathématique requise"},
		{
			name:    "inverted output range",
			formula: Formula{Expression: "a", Config: FormulaConfig{OutputRange: &Range{Min: 1, Max: 0}}},
			prefix:  "Valeur min doit être inférieure à valeur max",
		},
		{
			name:    "empty output range",
			formula: Formula{Expression: "a", Config: FormulaConfig{OutputRange: &Range{Min: 1, Max: 1}}},
			prefix:  "Valeur min doit être inférieure à valeur max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.formula
			f.Base = base
			v := Validate(&f)
			assert.Equal(t, tt.valid, v.Valid, v.Errors)
			if !tt.valid {
				assert.True(t, hasPrefix(v.Errors, tt.prefix), v.Errors)
			}
		})
	}
}

func TestValidate_RegimeAllocations(t *testing.T) {
	tests := []struct {
		name        string
		allocations map[string]float64
		valid       bool
		expected    []string
	}{
		{name: "exact", allocations: map[string]float64{"stocks": 70, "bonds": 20, "commodities": 10}, valid: true},
		{name: "within tolerance", allocations: map[string]float64{"stocks": 33.333, "bonds": 33.333, "cash": 33.33}, valid: true},
		{name: "no allocations", allocations: nil, valid: true},
		{
			name:        "short",
			allocations: map[string]float64{"stocks": 70, "bonds": 20, "commodities": 5},
			expected:    []string{"Total des allocations doit être 100% (actuellement 95%)"},
		},
		{
			name:        "over tolerance",
			allocations: map[string]float64{"stocks": 60, "bonds": 40.5},
			expected:    []string{"Total des allocations doit être 100% (actuellement 100.5%)"},
		},
		{
			name:        "negative value",
			allocations: map[string]float64{"stocks": 110, "bonds": -10},
			expected:    []string{"Allocation bonds ne peut être négative"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(&Regime{Base: Base{ID: "r", Name: "R"}, Allocations: tt.allocations})
			assert.Equal(t, tt.valid, v.Valid)
			if !tt.valid {
				assert.Equal(t, tt.expected, v.Errors)
			}
		})
	}
}

func TestValidate_RegimeThresholds(t *testing.T) {
	r := &Regime{
		Base: Base{ID: "r", Name: "R"},
		Config: RegimeConfig{
			TriggerThreshold:   Ptr(1.5),
			ConfidenceRequired: Ptr(-0.1),
		},
	}

	v := Validate(r)
	assert.False(t, v.Valid)
	assert.Equal(t, []string{
		"Seuil de déclenchement doit être entre 0 et 1",
		"Confiance requise doit être entre 0 et 1",
	}, v.Errors)

	r.Config.TriggerThreshold = Ptr(1)
	r.Config.ConfidenceRequired = Ptr(0)
	assert.True(t, Validate(r).Valid)
}

func TestValidation_Err(t *testing.T) {
	assert.NoError(t, Validation{Valid: true, Errors: []string{}}.Err())

	err := Validation{Valid: false, Errors: []string{"ID requis", "Nom requis"}}.Err()
	assert.True(t, IsValidation(err))
	assert.Equal(t, "Plugin invalide: ID requis, Nom requis", err.Error())
}
