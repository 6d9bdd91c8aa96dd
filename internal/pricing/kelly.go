package pricing

import (
	"fmt"
	"math"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

// HalfKellyThreshold is the Kelly fraction above which a half-Kelly stake is suggested.
const HalfKellyThreshold = 0.25

const (
	annotationNoEdge = "No positive edge - don't bet"
	annotationMaxBet = "Very high edge - max bet"
)

// ComputeStake sizes a bet with the Kelly criterion.
//
// bankroll must be positive and finite. winProbability is a percentage in [0, 100].
// marketPriceCents, when non-nil, is the contract price in the open interval (0, 100) and sets
// the odds to (100-P)/P; nil means even money. NaN never passes validation.
func ComputeStake(bankroll, winProbability float64, marketPriceCents *float64) (*models.BetSizingResult, error) {
	if !(bankroll > 0) || math.IsInf(bankroll, 1) {
		return nil, fmt.Errorf("%w: bankroll must be positive", models.ErrInvalidInput)
	}
	if !(winProbability >= 0 && winProbability <= 100) {
		return nil, fmt.Errorf("%w: win probability must be between 0 and 100", models.ErrInvalidInput)
	}

	b := 1.0
	if marketPriceCents != nil {
		price := *marketPriceCents
		if !(price > 0 && price < 100) {
			return nil, fmt.Errorf("%w: market price must be between 1 and 99 cents", models.ErrInvalidInput)
		}
		b = (100 - price) / price
	}

	p := winProbability / 100
	q := 1 - p
	raw := (p*b - q) / b

	res := &models.BetSizingResult{
		Bankroll:         bankroll,
		WinProbability:   winProbability,
		MarketPriceCents: marketPriceCents,
		Odds:             b,
		RawKellyFraction: raw,
		EdgePercent:      (p*(1+b) - 1) * 100,
	}

	f := raw
	switch {
	case f <= 0:
		f = 0
		res.NoEdge = true
		res.Annotation = annotationNoEdge
	case f > 1:
		f = 1
		res.MaxBet = true
		res.Annotation = annotationMaxBet
	default:
		res.Annotation = fmt.Sprintf("Edge: %.2f%%", res.EdgePercent)
	}

	res.KellyFraction = f
	res.RecommendedStake = bankroll * f
	res.ExpectedValue = (p*(1+b) - 1) * res.RecommendedStake
	if f > HalfKellyThreshold {
		res.SuggestHalfKelly = true
		res.HalfKellyStake = bankroll * f / 2
	}
	return res, nil
}

// ProbabilityPercent converts a unit-interval probability to the percentage ComputeStake takes.
func ProbabilityPercent(p float64) float64 {
	return p * 100
}
