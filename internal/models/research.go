package models

import "time"

// Opportunity is a market side whose historical hit rate beats the ask price.
type Opportunity struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	MarketTicker     string    `json:"market_ticker"`
	EventTicker      string    `json:"event_ticker"`
	EventTitle       string    `json:"event_title"`
	CompanyTicker    string    `json:"company_ticker"`
	Term             string    `json:"term"`
	Side             Side      `json:"side"`
	HitRate          float64   `json:"hit_rate"`
	AskPrice         float64   `json:"ask_price"`
	Edge             float64   `json:"edge"`
	ExpectedValue    float64   `json:"expected_value"`
	QuartersAnalyzed int       `json:"quarters_analyzed"`
	CurrentStreak    Streak    `json:"current_streak"`
	SuggestedStake   float64   `json:"suggested_stake"`
	DetectedAt       time.Time `json:"detected_at"`
	Notified         bool      `json:"notified"`
}

// TermReport pairs one market with the statistics and edge computed for its term.
type TermReport struct {
	Market       MentionMarket   `json:"market"`
	Stats        *TermStatistics `json:"stats,omitempty"`
	Edge         *EdgeAnalysis   `json:"edge,omitempty"`
	Insufficient bool            `json:"insufficient"`
	Err          string          `json:"error,omitempty"`
}

// GroupReport is the research outcome for one event group.
type GroupReport struct {
	EventTicker      string       `json:"event_ticker"`
	Title            string       `json:"title"`
	CompanyTicker    string       `json:"company_ticker"`
	QuartersAnalyzed int          `json:"quarters_analyzed"`
	Terms            []TermReport `json:"terms"`
	Skipped          string       `json:"skipped,omitempty"`
	Err              string       `json:"error,omitempty"`
}

// Report is the outcome of one research cycle.
type Report struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	MarketsScanned   int           `json:"markets_scanned"`
	Groups           []GroupReport `json:"groups"`
	YesOpportunities []Opportunity `json:"yes_opportunities"`
	NoOpportunities  []Opportunity `json:"no_opportunities"`
}

// Opportunities returns YES then NO opportunities.
func (r *Report) Opportunities() []Opportunity {
	out := make([]Opportunity, 0, len(r.YesOpportunities)+len(r.NoOpportunities))
	out = append(out, r.YesOpportunities...)
	return append(out, r.NoOpportunities...)
}
