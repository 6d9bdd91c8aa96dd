package models

import (
	"errors"
	"time"
)

// Side is one side of a binary contract.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// MarketQuote is a two-sided quote for a binary contract, with every price in the unit interval.
type MarketQuote struct {
	YesBid float64 `json:"yes_bid"`
	YesAsk float64 `json:"yes_ask"`
	NoBid  float64 `json:"no_bid"`
	NoAsk  float64 `json:"no_ask"`
}

// YesMid is the mid-price implied probability of YES. A one-sided quote uses the side present.
func (q MarketQuote) YesMid() float64 {
	return mid(q.YesBid, q.YesAsk)
}

// NoMid is the mid-price implied probability of NO.
func (q MarketQuote) NoMid() float64 {
	return mid(q.NoBid, q.NoAsk)
}

func mid(bid, ask float64) float64 {
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	default:
		return ask
	}
}

// Validate checks that every price lies in [0, 1] and bids do not exceed asks.
func (q MarketQuote) Validate() error {
	for _, p := range []float64{q.YesBid, q.YesAsk, q.NoBid, q.NoAsk} {
		if p < 0.0 || p > 1.0 {
			return errors.New("quote prices must be between 0.0 and 1.0")
		}
	}
	if q.YesAsk > 0 && q.YesBid > q.YesAsk {
		return errors.New("yes bid must not exceed yes ask")
	}
	if q.NoAsk > 0 && q.NoBid > q.NoAsk {
		return errors.New("no bid must not exceed no ask")
	}
	return nil
}

// EdgeAnalysis combines a hit rate with a quote. Edge may be negative.
type EdgeAnalysis struct {
	HitRate           float64 `json:"hit_rate"`
	YesPrice          float64 `json:"yes_price"`
	NoPrice           float64 `json:"no_price"`
	YesExpectedValue  float64 `json:"yes_expected_value"`
	NoExpectedValue   float64 `json:"no_expected_value"`
	YesImpliedProb    float64 `json:"yes_implied_prob"`
	NoImpliedProb     float64 `json:"no_implied_prob"`
	YesEdge           float64 `json:"yes_edge"`
	NoEdge            float64 `json:"no_edge"`
	BestBet           Side    `json:"best_bet"`
	BestExpectedValue float64 `json:"best_expected_value"`
	IsPositiveEV      bool    `json:"is_positive_ev"`
}

// BetSizingResult is the Kelly-criterion stake recommendation.
type BetSizingResult struct {
	Bankroll         float64  `json:"bankroll"`
	WinProbability   float64  `json:"win_probability"`
	MarketPriceCents *float64 `json:"market_price_cents,omitempty"`
	Odds             float64  `json:"odds"`
	RawKellyFraction float64  `json:"raw_kelly_fraction"`
	KellyFraction    float64  `json:"kelly_fraction"`
	RecommendedStake float64  `json:"recommended_stake"`
	ExpectedValue    float64  `json:"expected_value"`
	EdgePercent      float64  `json:"edge_percent"`
	Annotation       string   `json:"annotation"`
	NoEdge           bool     `json:"no_edge"`
	MaxBet           bool     `json:"max_bet"`
	HalfKellyStake   float64  `json:"half_kelly_stake,omitempty"`
	SuggestHalfKelly bool     `json:"suggest_half_kelly"`
}

// MentionMarket is a single word/phrase contract listed on the exchange.
type MentionMarket struct {
	Ticker       string      `json:"ticker"`
	EventTicker  string      `json:"event_ticker"`
	Title        string      `json:"title"`
	Subtitle     string      `json:"subtitle,omitempty"`
	Term         string      `json:"term"`
	Status       string      `json:"status"`
	Quote        MarketQuote `json:"quote"`
	Volume       int64       `json:"volume"`
	OpenInterest int64       `json:"open_interest"`
	CloseTime    time.Time   `json:"close_time"`
	LastUpdated  time.Time   `json:"last_updated"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Validate checks market field constraints.
func (m *MentionMarket) Validate() error {
	if m.Ticker == "" {
		return errors.New("market ticker must not be empty")
	}
	if m.EventTicker == "" {
		return errors.New("event ticker must not be empty")
	}
	if m.Term == "" {
		return errors.New("market term must not be empty")
	}
	if err := m.Quote.Validate(); err != nil {
		return err
	}
	if m.Volume < 0 {
		return errors.New("volume must not be negative")
	}
	if m.LastUpdated.After(time.Now()) {
		return errors.New("last updated must not be in the future")
	}
	if m.CreatedAt.After(m.LastUpdated) {
		return errors.New("created at must be <= last updated")
	}
	return nil
}

// EventGroup is the set of mention markets sharing one event (one earnings call, one speech).
type EventGroup struct {
	EventTicker   string
	Title         string
	CompanyTicker string
	Markets       []MentionMarket
}

// Terms returns the distinct bet words in the group, in market order.
func (g *EventGroup) Terms() []string {
	seen := make(map[string]bool, len(g.Markets))
	terms := make([]string, 0, len(g.Markets))
	for _, m := range g.Markets {
		if seen[m.Term] {
			continue
		}
		seen[m.Term] = true
		terms = append(terms, m.Term)
	}
	return terms
}
