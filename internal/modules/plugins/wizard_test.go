package plugins

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizard_Steps(t *testing.T) {
	reg := newTestRegistry(t)
	w, err := NewWizard(reg, KindIndicator)
	require.NoError(t, err)

	assert.Equal(t, 1, w.Step().Number)
	assert.Equal(t, 1, w.Prev().Number, "first step is sticky")

	for i := 2; i <= len(WizardSteps); i++ {
		assert.Equal(t, i, w.Next().Number)
	}
	assert.Equal(t, len(WizardSteps), w.Next().Number, "last step is sticky")
	assert.Equal(t, "Validation et tests", w.Prev().Title)
}

func TestWizard_NameDerivesID(t *testing.T) {
	reg := newTestRegistry(t)
	w, err := NewWizard(reg, KindIndicator)
	require.NoError(t, err)

	w.Set("name", "Copper Price")
	assert.Equal(t, "copper_price", w.State().Draft["id"])

	w.Set("name", "Copper Spot")
	assert.Equal(t, "copper_spot", w.State().Draft["id"], "derived id follows the name")

	w.Set("id", "cu")
	w.Set("name", "Copper")
	assert.Equal(t, "cu", w.State().Draft["id"], "explicit id is kept")
}

func TestWizard_DottedPaths(t *testing.T) {
	reg := newTestRegistry(t)
	w, err := NewWizard(reg, KindRegime)
	require.NoError(t, err)

	w.SetMany(map[string]any{
		"name":                    "Boom",
		"allocations.stocks":      70,
		"allocations.bonds":       20,
		"allocations.cash":        0,
		"allocations.commodities": 10,
		"ui.icon":                 "🔥",
	})

	p, err := w.Plugin()
	require.NoError(t, err)
	r := p.(*Regime)
	assert.Equal(t, "boom", r.ID)
	assert.Equal(t, map[string]float64{"stocks": 70, "bonds": 20, "cash": 0, "commodities": 10}, r.Allocations)
	assert.Equal(t, "🔥", r.UI.Icon)
	assert.Equal(t, "#f59e0b", r.UI.Color)
	assert.True(t, w.Validate().Valid)
}

func TestWizard_ExpressionRefreshesVariables(t *testing.T) {
	reg := newTestRegistry(t)
	w, err := NewWizard(reg, KindFormula)
	require.NoError(t, err)

	w.Set("parameters", map[string]any{"w": 0.5})
	w.Set("expression", "gdp * w + sigmoid(inflation)")

	p, err := w.Plugin()
	require.NoError(t, err)
	assert.Equal(t, []string{"gdp", "inflation"}, p.(*Formula).Variables)

	w.Set("expression", "gdp *")
	p, err = w.Plugin()
	require.NoError(t, err)
	assert.Equal(t, []string{"gdp", "inflation"}, p.(*Formula).Variables, "unparsable expression keeps previous variables")
}

func TestWizard_ValidateReportsShapeErrors(t *testing.T) {
	reg := newTestRegistry(t)
	w, err := NewWizard(reg, KindIndicator)
	require.NoError(t, err)

	w.Set("name", "Copper")
	w.Set("sources", "LME")

	v := w.Validate()
	assert.False(t, v.Valid)
	assert.Equal(t, []string{"Sources doit être un tableau"}, v.Errors)

	state := w.State()
	assert.Equal(t, v, state.Validation)
	assert.Equal(t, "LME", state.Draft["sources"])
}

func TestWizard_TestAndFinalize(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	w, err := NewWizard(reg, KindFormula)
	require.NoError(t, err)

	w.Set("name", "Growth Mix")
	w.Set("parameters", map[string]any{"w": 0.5})
	w.Set("expression", "a * w + b")

	result, err := w.Test(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success, result.Error)
	assert.InDelta(t, 0.7, float64(result.Result.(Number)), 1e-9)
	assert.Empty(t, reg.Plugins(KindFormula), "testing does not register")

	p, err := w.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "growth_mix", p.Common().ID)

	_, err = reg.Plugin(KindFormula, "growth_mix")
	assert.NoError(t, err)

	_, err = w.Finalize(ctx)
	assert.True(t, IsDuplicate(err))
}

func TestWizard_FinalizeInvalid(t *testing.T) {
	reg := newTestRegistry(t)
	w, err := NewWizard(reg, KindRegime)
	require.NoError(t, err)

	w.Set("name", "Bust")
	w.Set("allocations.stocks", 90)

	_, err = w.Finalize(context.Background())
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, reg.Plugins(KindRegime))
}

func TestWizards_Sessions(t *testing.T) {
	reg := newTestRegistry(t)
	store := NewWizards(reg, zerolog.Nop())

	w, err := store.Start(KindIndicator)
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID())
	assert.Equal(t, KindIndicator, w.Kind())
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(w.ID())
	require.NoError(t, err)
	assert.Same(t, w, got)

	store.Close(w.ID())
	_, err = store.Get(w.ID())
	assert.ErrorIs(t, err, ErrWizardNotFound)
	assert.Equal(t, 0, store.Len())

	_, err = store.Start(Kind("widget"))
	assert.True(t, IsUnknownKind(err))
}

func TestWizards_Expire(t *testing.T) {
	reg := newTestRegistry(t)
	clock := testNow
	reg.now = func() time.Time { return clock }
	store := NewWizards(reg, zerolog.Nop())

	idle, err := store.Start(KindIndicator)
	require.NoError(t, err)
	edited, err := store.Start(KindFormula)
	require.NoError(t, err)
	stepped, err := store.Start(KindRegime)
	require.NoError(t, err)

	clock = testNow.Add(30 * time.Minute)
	edited.Set("name", "Growth Mix")
	clock = testNow.Add(45 * time.Minute)
	stepped.Next()
	assert.Equal(t, clock, stepped.Updated())

	clock = testNow.Add(61 * time.Minute)
	assert.Equal(t, 1, store.Expire(time.Hour))
	_, err = store.Get(idle.ID())
	assert.ErrorIs(t, err, ErrWizardNotFound)
	_, err = store.Get(edited.ID())
	assert.NoError(t, err)
	_, err = store.Get(stepped.ID())
	assert.NoError(t, err)

	clock = testNow.Add(2 * time.Hour)
	assert.Equal(t, 2, store.Expire(time.Hour))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, store.Expire(time.Hour))
}

func TestSampleTestData(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	ind := SampleTestData(KindIndicator, testNow, rnd)
	require.Len(t, ind.HistoricalData, sampleSeriesLength)
	assert.Equal(t, testNow, ind.HistoricalData[0].Date)
	for _, o := range ind.HistoricalData {
		assert.GreaterOrEqual(t, o.Value, 0.0)
		assert.Less(t, o.Value, 100.0)
	}

	f := SampleTestData(KindFormula, testNow, rnd)
	assert.Equal(t, map[string]float64{"a": 0.6, "b": 0.4, "c": 0.8}, f.Variables)

	r := SampleTestData(KindRegime, testNow, rnd)
	assert.Len(t, r.Indicators, 4)
	assert.Equal(t, Ptr(0.8), r.Confidence)
}
