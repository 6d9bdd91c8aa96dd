// Package models defines the core domain entities: transcripts, term statistics,
// market quotes, and the pricing results derived from them.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// StreakType tells whether a run of periods consists of hits or misses.
type StreakType string

const (
	StreakHit  StreakType = "hit"
	StreakMiss StreakType = "miss"
)

// Streak is a maximal run of consecutive periods sharing the same hit/miss outcome.
type Streak struct {
	Type   StreakType `json:"type"`
	Length int        `json:"length"`
}

func (s Streak) String() string {
	return fmt.Sprintf("%d %s", s.Length, s.Type)
}

// Period is one communication event in a company's history together with its transcript.
// Earnings calls are identified by Year and Quarter; other events carry only a Date.
type Period struct {
	Ticker      string `json:"ticker"`
	CompanyName string `json:"company_name,omitempty"`
	Year        int    `json:"year"`
	Quarter     int    `json:"quarter"`
	Date        string `json:"date"`
	URL         string `json:"url,omitempty"`
	Transcript  string `json:"transcript"`
}

// Label returns the human-readable period key, e.g. "Q2 2025".
func (p *Period) Label() string {
	if p.Quarter == 0 {
		return p.Date
	}
	return fmt.Sprintf("Q%d %d", p.Quarter, p.Year)
}

// WordCount counts whitespace-separated tokens in the transcript.
func (p *Period) WordCount() int {
	return len(strings.Fields(p.Transcript))
}

// Before reports whether p happened chronologically before o.
func (p *Period) Before(o *Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	if p.Quarter != o.Quarter {
		return p.Quarter < o.Quarter
	}
	return p.Date < o.Date
}

// Validate checks period field constraints.
func (p *Period) Validate() error {
	if p.Ticker == "" {
		return errors.New("period ticker must not be empty")
	}
	if p.Quarter < 0 || p.Quarter > 4 {
		return errors.New("quarter must be between 1 and 4")
	}
	if p.Quarter == 0 && p.Date == "" {
		return errors.New("period needs either a quarter or a date")
	}
	return nil
}

// Occurrence is one match of a term inside a transcript.
type Occurrence struct {
	Period  string `json:"period,omitempty"`
	Line    int    `json:"line_number"`
	Offset  int    `json:"offset"`
	Match   string `json:"full_match"`
	Context string `json:"context"`
}

// PeriodBreakdown is the per-period slice of a TermStatistics.
type PeriodBreakdown struct {
	Label     string       `json:"label"`
	Year      int          `json:"year"`
	Quarter   int          `json:"quarter"`
	Date      string       `json:"date"`
	Count     int          `json:"count"`
	Hit       bool         `json:"hit"`
	WordCount int          `json:"word_count"`
	Samples   []Occurrence `json:"samples,omitempty"`
}

// TermStatistics aggregates the mentions of one term over a chronological sequence of periods.
// HitRate, not EmpiricalProbability, is the quantity used for pricing. InsufficientData marks
// zero analyzed periods: no evidence, as opposed to a 0% hit rate.
type TermStatistics struct {
	Term                  string            `json:"term"`
	Ticker                string            `json:"ticker,omitempty"`
	TotalMentions         int               `json:"total_mentions"`
	TotalWords            int               `json:"total_words"`
	EmpiricalProbability  float64           `json:"empirical_probability"`
	HitRate               float64           `json:"hit_rate"`
	QuartersWithMentions  int               `json:"quarters_with_mentions"`
	TotalQuartersAnalyzed int               `json:"total_quarters_analyzed"`
	Periods               []PeriodBreakdown `json:"mentions_by_quarter"`
	HitPattern            []bool            `json:"hit_pattern"`
	CurrentStreak         Streak            `json:"current_streak"`
	LongestStreak         Streak            `json:"longest_streak"`
	SampleContexts        []string          `json:"sample_contexts,omitempty"`
	InsufficientData      bool              `json:"insufficient_data"`
}

// HasData reports whether at least one period was analyzed. A zero hit rate without data
// means "no evidence", not "evidence of absence".
func (s *TermStatistics) HasData() bool {
	return s.TotalQuartersAnalyzed > 0
}
