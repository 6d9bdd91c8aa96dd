// Package stats computes per-term mention statistics over a chronological sequence of
// transcripts: hit rate, occurrence totals, per-period breakdown and streaks.
package stats

import (
	"slices"

	"github.com/sourcegraph/conc/iter"

	"github.com/rewired-gh/mentionoracle/internal/matcher"
	"github.com/rewired-gh/mentionoracle/internal/models"
)

const (
	// MaxSampleContexts caps the number of contexts kept across all periods.
	MaxSampleContexts = 5
	// MaxSamplesPerPeriod caps the occurrences kept in each period breakdown.
	MaxSamplesPerPeriod = 3
)

// TermResult is the outcome for one term. Err is set only when the term is invalid.
type TermResult struct {
	Term  string                 `json:"term"`
	Stats *models.TermStatistics `json:"stats,omitempty"`
	Err   error                  `json:"-"`
}

// AnalyzeTerm compiles term once and scans every period. Periods are sorted chronologically
// first, so callers may pass them in any order.
func AnalyzeTerm(term string, periods []models.Period) (*models.TermStatistics, error) {
	rule, err := matcher.Compile(term)
	if err != nil {
		return nil, err
	}
	return AnalyzeRule(rule, periods), nil
}

// AnalyzeRule is AnalyzeTerm for an already-compiled rule.
func AnalyzeRule(rule *matcher.MatchRule, periods []models.Period) *models.TermStatistics {
	ordered := chronological(periods)

	st := &models.TermStatistics{
		Term:       rule.Term(),
		Periods:    make([]models.PeriodBreakdown, 0, len(ordered)),
		HitPattern: make([]bool, 0, len(ordered)),
	}
	if len(ordered) > 0 {
		st.Ticker = ordered[0].Ticker
	}

	for i := range ordered {
		p := &ordered[i]
		label := p.Label()
		words := p.WordCount()

		count := 0
		var samples []models.Occurrence
		for occ := range rule.Scan(p.Transcript) {
			count++
			occ.Period = label
			if len(samples) < MaxSamplesPerPeriod {
				samples = append(samples, occ)
			}
		}

		hit := count > 0
		if hit && len(st.SampleContexts) < MaxSampleContexts {
			st.SampleContexts = append(st.SampleContexts,
				rule.Contexts(p.Transcript, rule.ContextWindow(), MaxSampleContexts-len(st.SampleContexts))...)
		}
		st.Periods = append(st.Periods, models.PeriodBreakdown{
			Label:     label,
			Year:      p.Year,
			Quarter:   p.Quarter,
			Date:      p.Date,
			Count:     count,
			Hit:       hit,
			WordCount: words,
			Samples:   samples,
		})
		st.HitPattern = append(st.HitPattern, hit)
		st.TotalMentions += count
		st.TotalWords += words
		if hit {
			st.QuartersWithMentions++
		}
	}

	st.TotalQuartersAnalyzed = len(ordered)
	st.InsufficientData = st.TotalQuartersAnalyzed == 0
	if st.TotalWords > 0 {
		st.EmpiricalProbability = float64(st.TotalMentions) / float64(st.TotalWords)
	}
	if st.TotalQuartersAnalyzed > 0 {
		st.HitRate = float64(st.QuartersWithMentions) / float64(st.TotalQuartersAnalyzed)
	}
	st.CurrentStreak = CurrentStreak(st.HitPattern)
	st.LongestStreak = LongestStreak(st.HitPattern)
	return st
}

// AnalyzeMultipleTerms analyzes each term independently and in parallel. An invalid term
// only fails its own result; results keep the input order.
func AnalyzeMultipleTerms(terms []string, periods []models.Period) []TermResult {
	return analyzeTerms(terms, periods, matcher.DefaultContextWindow)
}

func analyzeTerms(terms []string, periods []models.Period, contextWindow int) []TermResult {
	ordered := chronological(periods)
	return iter.Map(terms, func(term *string) TermResult {
		rule, err := matcher.Compile(*term)
		if err != nil {
			return TermResult{Term: *term, Err: err}
		}
		return TermResult{Term: *term, Stats: AnalyzeRule(rule.WithContextWindow(contextWindow), ordered)}
	})
}

func chronological(periods []models.Period) []models.Period {
	if slices.IsSortedFunc(periods, comparePeriods) {
		return periods
	}
	ordered := slices.Clone(periods)
	slices.SortStableFunc(ordered, comparePeriods)
	return ordered
}

func comparePeriods(a, b models.Period) int {
	switch {
	case a.Before(&b):
		return -1
	case b.Before(&a):
		return 1
	}
	return 0
}
