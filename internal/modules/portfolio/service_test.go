package portfolio

import (
	"testing"

	"github.com/minghan/leversim/internal/modules/etf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(etf.DefaultCatalog(), zerolog.Nop())
}

func TestValidateWeights(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name    string
		weights map[string]float64
		wantErr bool
	}{
		{"single asset", map[string]float64{"0050": 1.0}, false},
		{"two assets", map[string]float64{"0050": 0.6, "0056": 0.4}, false},
		{"empty", map[string]float64{}, true},
		{"unknown symbol", map[string]float64{"VT": 1.0}, true},
		{"zero weight", map[string]float64{"0050": 0, "0056": 1.0}, true},
		{"negative weight", map[string]float64{"0050": 1.2, "0056": -0.2}, true},
		{"sum below one", map[string]float64{"0050": 0.5, "0056": 0.4}, true},
		{"sum above one", map[string]float64{"0050": 0.7, "0056": 0.4}, true},
		{"within tolerance", map[string]float64{"0050": 0.3333333, "0056": 0.3333333, "00878": 0.3333334}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ValidateWeights(tt.weights)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolve_BlendsYieldAndGrowth(t *testing.T) {
	svc := newTestService(t)

	profile, err := svc.Resolve(map[string]float64{"0050": 0.5, "0056": 0.5})
	require.NoError(t, err)

	// 0.5*3.2% + 0.5*6.5% and 0.5*6.0% + 0.5*1.5%
	assert.InDelta(t, 0.0485, profile.DividendYield, 1e-9)
	assert.InDelta(t, 0.0375, profile.ExpectedCAGR, 1e-9)
	assert.Equal(t, "元大台灣50", profile.Names["0050"])
	assert.Equal(t, "元大高股息", profile.Names["0056"])
}

func TestResolve_SingleAssetMatchesCatalog(t *testing.T) {
	svc := newTestService(t)

	profile, err := svc.Resolve(map[string]float64{"2330": 1.0})
	require.NoError(t, err)

	assert.InDelta(t, 0.02, profile.DividendYield, 1e-9)
	assert.InDelta(t, 0.13, profile.ExpectedCAGR, 1e-9)
}

func TestPlanRebalance_SellsBeforeBuys(t *testing.T) {
	svc := newTestService(t)

	holdings := map[string]float64{"0050": 800_000, "0056": 200_000}
	targets := map[string]float64{"0050": 0.5, "0056": 0.5}

	plan, err := svc.PlanRebalance(holdings, targets)
	require.NoError(t, err)

	assert.Equal(t, 1_000_000.0, plan.TotalValue)
	require.Len(t, plan.Actions, 2)

	sell := plan.Actions[0]
	assert.Equal(t, "0050", sell.Symbol)
	assert.InDelta(t, -300_000, sell.Amount, 0.01)
	assert.InDelta(t, 0.8, sell.CurrentWeight, 1e-9)

	buy := plan.Actions[1]
	assert.Equal(t, "0056", buy.Symbol)
	assert.InDelta(t, 300_000, buy.Amount, 0.01)

	assert.InDelta(t, 0.3, plan.MaxDrift, 1e-9)
}

func TestPlanRebalance_SellsSymbolsAbsentFromTargets(t *testing.T) {
	svc := newTestService(t)

	holdings := map[string]float64{"2330": 500_000, "0050": 500_000}
	targets := map[string]float64{"0050": 1.0}

	plan, err := svc.PlanRebalance(holdings, targets)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	assert.Equal(t, "2330", plan.Actions[0].Symbol)
	assert.InDelta(t, -500_000, plan.Actions[0].Amount, 0.01)
	assert.Equal(t, "0050", plan.Actions[1].Symbol)
	assert.InDelta(t, 500_000, plan.Actions[1].Amount, 0.01)
}

func TestPlanRebalance_AlreadyBalanced(t *testing.T) {
	svc := newTestService(t)

	holdings := map[string]float64{"0050": 500_000, "0056": 500_000}
	targets := map[string]float64{"0050": 0.5, "0056": 0.5}

	plan, err := svc.PlanRebalance(holdings, targets)
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
	assert.InDelta(t, 0, plan.MaxDrift, 1e-9)
}

func TestPlanRebalance_RejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.PlanRebalance(map[string]float64{"0050": -1}, map[string]float64{"0050": 1.0})
	assert.Error(t, err)

	_, err = svc.PlanRebalance(map[string]float64{}, map[string]float64{"0050": 1.0})
	assert.Error(t, err)

	_, err = svc.PlanRebalance(map[string]float64{"0050": 1000}, map[string]float64{"0050": 0.5})
	assert.Error(t, err)
}
