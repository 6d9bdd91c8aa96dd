package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

func cents(v float64) *float64 { return &v }

func TestComputeEdge(t *testing.T) {
	ea := ComputeEdge(0.75, 0.60, 0.40)
	assert.InDelta(t, 0.15, ea.YesEdge, 1e-9)
	assert.InDelta(t, -0.15, ea.NoEdge, 1e-9)
	assert.InDelta(t, 0.15, ea.YesExpectedValue, 1e-9)
	assert.InDelta(t, -0.15, ea.NoExpectedValue, 1e-9)
	assert.Equal(t, models.SideYes, ea.BestBet)
	assert.True(t, ea.IsPositiveEV)
	assert.InDelta(t, 0.15, ea.BestExpectedValue, 1e-9)
}

func TestComputeEdge_NoSide(t *testing.T) {
	ea := ComputeEdge(0.10, 0.30, 0.70)
	assert.Equal(t, models.SideNo, ea.BestBet)
	assert.InDelta(t, 0.20, ea.NoEdge, 1e-9)
	assert.InDelta(t, -0.20, ea.YesEdge, 1e-9)
	assert.True(t, ea.IsPositiveEV)
}

func TestComputeEdge_FairPriceHasNoEdge(t *testing.T) {
	ea := ComputeEdge(0.5, 0.5, 0.5)
	assert.Equal(t, models.SideNo, ea.BestBet, "ties go to NO")
	assert.False(t, ea.IsPositiveEV)
	assert.Zero(t, ea.YesEdge)
}

func TestComputeEdge_GarbageInPropagates(t *testing.T) {
	ea := ComputeEdge(-0.5, 1.5, 0.2)
	assert.InDelta(t, -2.0, ea.YesEdge, 1e-9)
	assert.InDelta(t, 1.3, ea.NoEdge, 1e-9)
}

func TestEdgeFromQuote_AskEdgeMidEV(t *testing.T) {
	q := models.MarketQuote{YesBid: 0.55, YesAsk: 0.60, NoBid: 0.40, NoAsk: 0.45}
	ea := EdgeFromQuote(0.75, q)

	assert.InDelta(t, 0.575, ea.YesPrice, 1e-9)
	assert.InDelta(t, 0.425, ea.NoPrice, 1e-9)
	assert.InDelta(t, 0.75-0.575, ea.YesExpectedValue, 1e-9)
	assert.InDelta(t, 0.15, ea.YesEdge, 1e-9)
	assert.InDelta(t, -0.20, ea.NoEdge, 1e-9)

	side, edge := BestEdge(ea)
	assert.Equal(t, models.SideYes, side)
	assert.InDelta(t, 0.15, edge, 1e-9)
}

func TestComputeStake(t *testing.T) {
	res, err := ComputeStake(1000, 60, cents(50))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Odds, 1e-9)
	assert.InDelta(t, 0.2, res.KellyFraction, 1e-9)
	assert.InDelta(t, 200, res.RecommendedStake, 1e-6)
	assert.InDelta(t, 40, res.ExpectedValue, 1e-6)
	assert.InDelta(t, 20, res.EdgePercent, 1e-6)
	assert.Equal(t, "Edge: 20.00%", res.Annotation)
	assert.False(t, res.NoEdge)
	assert.False(t, res.SuggestHalfKelly)
}

func TestComputeStake_NoEdge(t *testing.T) {
	res, err := ComputeStake(1000, 40, cents(50))
	require.NoError(t, err)
	assert.Zero(t, res.KellyFraction)
	assert.Zero(t, res.RecommendedStake)
	assert.Zero(t, res.ExpectedValue)
	assert.True(t, res.NoEdge)
	assert.Equal(t, annotationNoEdge, res.Annotation)
	assert.Less(t, res.RawKellyFraction, 0.0)
}

func TestComputeStake_EvenMoneyWithoutPrice(t *testing.T) {
	res, err := ComputeStake(500, 55, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Odds)
	assert.InDelta(t, 0.10, res.KellyFraction, 1e-9)
	assert.InDelta(t, 50, res.RecommendedStake, 1e-6)
	assert.Nil(t, res.MarketPriceCents)
}

func TestComputeStake_HalfKellyAdvisory(t *testing.T) {
	res, err := ComputeStake(1000, 80, cents(40))
	require.NoError(t, err)
	// b = 1.5, f = (0.8*1.5 - 0.2) / 1.5 = 2/3
	assert.InDelta(t, 1.5, res.Odds, 1e-9)
	assert.InDelta(t, 2.0/3.0, res.KellyFraction, 1e-9)
	assert.True(t, res.SuggestHalfKelly)
	assert.InDelta(t, 1000.0/3.0, res.HalfKellyStake, 1e-6)
	assert.InDelta(t, 2000.0/3.0, res.RecommendedStake, 1e-6)
}

func TestComputeStake_CertainWinStakesBankroll(t *testing.T) {
	res, err := ComputeStake(100, 100, cents(99))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.KellyFraction, 1e-9)
	assert.InDelta(t, 100, res.RecommendedStake, 1e-9)
}

func TestComputeStake_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		bankroll float64
		prob     float64
		price    *float64
	}{
		{"zero bankroll", 0, 50, nil},
		{"negative bankroll", -10, 50, nil},
		{"probability below zero", 100, -1, nil},
		{"probability above 100", 100, 101, nil},
		{"price zero", 100, 50, cents(0)},
		{"price 100", 100, 50, cents(100)},
		{"negative price", 100, 50, cents(-5)},
		{"NaN bankroll", math.NaN(), 50, nil},
		{"infinite bankroll", math.Inf(1), 50, nil},
		{"NaN probability", 100, math.NaN(), nil},
		{"infinite probability", 100, math.Inf(1), nil},
		{"NaN price", 100, 50, cents(math.NaN())},
		{"negative infinite price", 100, 50, cents(math.Inf(-1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ComputeStake(tt.bankroll, tt.prob, tt.price)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
			assert.Nil(t, res)
		})
	}
}
