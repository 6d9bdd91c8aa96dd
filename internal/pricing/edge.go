// Package pricing turns historical hit rates and market quotes into expected values, edges,
// and Kelly-criterion stake sizes.
package pricing

import (
	"math"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

// ComputeEdge prices both sides of a binary contract at the given unit-interval prices.
//
// Inputs are not validated: prices outside [0, 1] or a negative hit rate propagate
// arithmetically. Callers choose which price variant (ask, mid) they pass.
func ComputeEdge(hitRate, yesPrice, noPrice float64) models.EdgeAnalysis {
	yesEV := hitRate*(1-yesPrice) - (1-hitRate)*yesPrice
	noEV := (1-hitRate)*(1-noPrice) - hitRate*noPrice

	best := models.SideNo
	if yesEV > noEV {
		best = models.SideYes
	}
	bestEV := math.Max(yesEV, noEV)

	return models.EdgeAnalysis{
		HitRate:           hitRate,
		YesPrice:          yesPrice,
		NoPrice:           noPrice,
		YesExpectedValue:  yesEV,
		NoExpectedValue:   noEV,
		YesImpliedProb:    yesPrice,
		NoImpliedProb:     noPrice,
		YesEdge:           hitRate - yesPrice,
		NoEdge:            (1 - hitRate) - noPrice,
		BestBet:           best,
		BestExpectedValue: bestEV,
		IsPositiveEV:      bestEV > 0,
	}
}

// EdgeFromQuote prices a quote the way the research report does: expected values at the
// mid price, edges at the ask price actually payable to open a position.
func EdgeFromQuote(hitRate float64, q models.MarketQuote) models.EdgeAnalysis {
	ea := ComputeEdge(hitRate, q.YesMid(), q.NoMid())
	ea.YesEdge = hitRate - q.YesAsk
	ea.NoEdge = (1 - hitRate) - q.NoAsk
	return ea
}

// BestEdge returns the side with the larger edge and that edge.
func BestEdge(ea models.EdgeAnalysis) (models.Side, float64) {
	if ea.YesEdge >= ea.NoEdge {
		return models.SideYes, ea.YesEdge
	}
	return models.SideNo, ea.NoEdge
}
