package testing

// Raw plugin documents shared by handler, persistence and snapshot tests.
// They are kept as JSON so that any package can use them without import cycles.

// IndicatorFixture is a valid indicator document ("copper_price").
const IndicatorFixture = `{
	"id": "copper_price",
	"name": "Copper Price",
	"category": "commodities",
	"type": "api",
	"weight": 30,
	"enabled": true,
	"sources": ["LME"],
	"config": {
		"api_endpoint": "https://api.example.com/copper",
		"update_frequency": "daily",
		"normalization": "z-score"
	}
}`

// FormulaFixture is a valid formula document ("weighted_growth").
const FormulaFixture = `{
	"id": "weighted_growth",
	"name": "Weighted Growth",
	"category": "custom",
	"type": "mathematical",
	"expression": "(a * w) + (b * (1 - w))",
	"parameters": {"w": 0.6},
	"variables": ["a", "b"],
	"config": {
		"output_range": {"min": 0, "max": 10},
		"precision": 4,
		"caching": true
	}
}`

// RegimeFixture is a valid regime document ("boom").
const RegimeFixture = `{
	"id": "boom",
	"name": "Boom",
	"category": "custom",
	"type": "economic",
	"conditions": {
		"gdp_growth": {"min": 2},
		"inflation": {"max": 3}
	},
	"allocations": {"stocks": 70, "bonds": 20, "commodities": 10},
	"config": {
		"trigger_threshold": 0.7,
		"confidence_required": 0.6,
		"min_duration": "1d",
		"transition_smoothing": true
	}
}`

// ConfigDocumentFixture is an export document holding one plugin of each kind.
const ConfigDocumentFixture = `{
	"version": "1.0.0",
	"exported": "2026-01-01T00:00:00Z",
	"config": {
		"indicators": {"copper_price": ` + IndicatorFixture + `},
		"formulas": {"weighted_growth": ` + FormulaFixture + `},
		"regimes": {"boom": ` + RegimeFixture + `}
	}
}`
