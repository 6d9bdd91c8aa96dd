package stats

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/matcher"
	"github.com/rewired-gh/mentionoracle/internal/models"
)

// Corpus supplies the chronological transcripts of a ticker. It returns an error only for
// genuine provider failures; quarters without a transcript are simply left out.
type Corpus interface {
	FetchPeriods(ctx context.Context, ticker string, quarters int) ([]models.Period, error)
}

// TickerAnalysis is the outcome of analyzing a set of terms for one ticker.
type TickerAnalysis struct {
	Ticker           string          `json:"ticker"`
	Terms            []string        `json:"terms_analyzed"`
	QuartersAnalyzed int             `json:"quarters_analyzed"`
	TotalWords       int             `json:"total_words_analyzed"`
	Periods          []PeriodSummary `json:"earnings_calls"`
	Results          []TermResult    `json:"term_results"`
	InsufficientData bool            `json:"insufficient_data"`
	Message          string          `json:"message,omitempty"`
	Err              error           `json:"-"`

	byTerm map[string]*models.TermStatistics
}

// InsufficientDataMessage is reported when no transcript was analyzed for a ticker.
const InsufficientDataMessage = "insufficient historical data: no transcripts found"

// PeriodSummary describes one analyzed transcript.
type PeriodSummary struct {
	Year      int    `json:"year"`
	Quarter   int    `json:"quarter"`
	Date      string `json:"date"`
	WordCount int    `json:"word_count"`
}

// Stats returns the statistics for term, or nil when the term was not analyzed or invalid.
func (a *TickerAnalysis) Stats(term string) *models.TermStatistics {
	return a.byTerm[term]
}

// HasData reports whether any transcript was analyzed.
func (a *TickerAnalysis) HasData() bool {
	return a.Err == nil && a.QuartersAnalyzed > 0
}

// Analyzer runs term analysis against a transcript corpus.
type Analyzer struct {
	corpus         Corpus
	quarters       int
	maxConcurrency int
	contextWindow  int
}

// NewAnalyzer creates an Analyzer looking back the given number of quarters.
func NewAnalyzer(corpus Corpus, quarters, maxConcurrency int) *Analyzer {
	if quarters <= 0 {
		quarters = 8
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Analyzer{
		corpus:         corpus,
		quarters:       quarters,
		maxConcurrency: maxConcurrency,
		contextWindow:  matcher.DefaultContextWindow,
	}
}

// SetContextWindow sets the characters of context kept on each side of a sample match.
func (a *Analyzer) SetContextWindow(n int) {
	if n >= 0 {
		a.contextWindow = n
	}
}

// Quarters returns the lookback used for every ticker.
func (a *Analyzer) Quarters() int { return a.quarters }

// AnalyzeTicker fetches the ticker's transcripts and analyzes every term. A fetch failure
// yields a single error tagged with the ticker and zero quarters analyzed; nothing is
// partially aggregated.
func (a *Analyzer) AnalyzeTicker(ctx context.Context, ticker string, terms []string) (*TickerAnalysis, error) {
	result := &TickerAnalysis{Ticker: ticker, Terms: terms, byTerm: map[string]*models.TermStatistics{}}

	periods, err := a.corpus.FetchPeriods(ctx, ticker, a.quarters)
	if err != nil {
		result.Err = fmt.Errorf("failed to analyze %s: %w", ticker, err)
		result.InsufficientData = true
		return result, result.Err
	}
	if len(periods) == 0 {
		logger.Warn("No transcripts found for %s in the last %d quarters", ticker, a.quarters)
	}

	return buildTickerAnalysis(result, periods, a.contextWindow), nil
}

// AnalyzePeriods analyzes terms against periods that were already fetched.
func AnalyzePeriods(ticker string, terms []string, periods []models.Period) *TickerAnalysis {
	result := &TickerAnalysis{Ticker: ticker, Terms: terms, byTerm: map[string]*models.TermStatistics{}}
	return buildTickerAnalysis(result, periods, matcher.DefaultContextWindow)
}

func buildTickerAnalysis(result *TickerAnalysis, periods []models.Period, contextWindow int) *TickerAnalysis {
	ordered := chronological(periods)
	result.QuartersAnalyzed = len(ordered)
	if len(ordered) == 0 {
		result.InsufficientData = true
		result.Message = InsufficientDataMessage
	}
	result.Periods = make([]PeriodSummary, 0, len(ordered))
	for i := range ordered {
		wc := ordered[i].WordCount()
		result.TotalWords += wc
		result.Periods = append(result.Periods, PeriodSummary{
			Year:      ordered[i].Year,
			Quarter:   ordered[i].Quarter,
			Date:      ordered[i].Date,
			WordCount: wc,
		})
	}

	result.Results = analyzeTerms(result.Terms, ordered, contextWindow)
	for _, r := range result.Results {
		if r.Err != nil {
			logger.Warn("Skipping term %q for %s: %v", r.Term, result.Ticker, r.Err)
			continue
		}
		r.Stats.Ticker = result.Ticker
		result.byTerm[r.Term] = r.Stats
	}
	return result
}

// AnalyzeMultipleTickers analyzes each ticker's terms concurrently. A failing ticker records
// its error in its own TickerAnalysis and never cancels its siblings.
func (a *Analyzer) AnalyzeMultipleTickers(ctx context.Context, tickerTerms map[string][]string) map[string]*TickerAnalysis {
	results := make(map[string]*TickerAnalysis, len(tickerTerms))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)
	for ticker, terms := range tickerTerms {
		g.Go(func() error {
			logger.Info("Analyzing company: %s", ticker)
			res, err := a.AnalyzeTicker(ctx, ticker, terms)
			if err != nil {
				logger.Error("Analysis failed for %s: %v", ticker, err)
			}
			mu.Lock()
			results[ticker] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
