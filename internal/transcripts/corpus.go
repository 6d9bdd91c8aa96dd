package transcripts

import (
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/metrics"
	"github.com/rewired-gh/mentionoracle/internal/models"
)

// Fetcher retrieves a single transcript; (nil, nil) means no transcript exists.
type Fetcher interface {
	FetchTranscript(ctx context.Context, ticker string, year, quarter int) (*models.Period, error)
}

// FetchStatus tags the outcome of one quarter's fetch.
type FetchStatus int

const (
	StatusFound FetchStatus = iota
	StatusAbsent
	StatusFailed
)

func (s FetchStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusAbsent:
		return "absent"
	default:
		return "failed"
	}
}

// FetchResult is the tagged outcome of fetching one quarter.
type FetchResult struct {
	Quarter Quarter
	Status  FetchStatus
	Period  *models.Period
	Err     error
}

// Corpus fans quarter fetches out to a Fetcher with bounded concurrency and joins them
// into a chronological period sequence.
type Corpus struct {
	fetcher        Fetcher
	maxConcurrency int
	now            func() time.Time
	metrics        *metrics.Metrics
}

// CorpusOption configures a Corpus.
type CorpusOption func(*Corpus)

// WithClock overrides the time source used to decide the last completed quarter.
func WithClock(now func() time.Time) CorpusOption {
	return func(c *Corpus) { c.now = now }
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *metrics.Metrics) CorpusOption {
	return func(c *Corpus) { c.metrics = m }
}

// NewCorpus creates a Corpus. maxConcurrency caps simultaneous fetches per ticker.
func NewCorpus(fetcher Fetcher, maxConcurrency int, opts ...CorpusOption) *Corpus {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	c := &Corpus{fetcher: fetcher, maxConcurrency: maxConcurrency, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll fetches the n most recent completed quarters of ticker. Results are ordered
// oldest first. A failed quarter never cancels the others.
func (c *Corpus) FetchAll(ctx context.Context, ticker string, n int) []FetchResult {
	quarters := RecentQuarters(c.now(), n)
	slices.Reverse(quarters)
	results := make([]FetchResult, len(quarters))

	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for i, q := range quarters {
		g.Go(func() error {
			results[i] = c.fetchOne(ctx, ticker, q)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Corpus) fetchOne(ctx context.Context, ticker string, q Quarter) FetchResult {
	res := FetchResult{Quarter: q}
	p, err := c.fetcher.FetchTranscript(ctx, ticker, q.Year, q.Quarter)
	switch {
	case err != nil:
		res.Status, res.Err = StatusFailed, err
		logger.Warn("Failed to fetch transcript for %s %s: %v", ticker, q, err)
	case p == nil:
		res.Status = StatusAbsent
		logger.Debug("No transcript for %s %s", ticker, q)
	default:
		res.Status, res.Period = StatusFound, p
		logger.Debug("Found transcript for %s %s", ticker, q)
	}
	c.metrics.ObserveTranscriptFetch(res.Status.String())
	return res
}

// FetchPeriods returns the available transcripts of the n most recent quarters, oldest first.
// Quarters without a transcript are skipped. Any genuine failure discards the whole set and
// returns the joined fetch errors.
func (c *Corpus) FetchPeriods(ctx context.Context, ticker string, n int) ([]models.Period, error) {
	results := c.FetchAll(ctx, ticker, n)

	var errs []error
	periods := make([]models.Period, 0, len(results))
	for _, r := range results {
		switch r.Status {
		case StatusFailed:
			errs = append(errs, r.Err)
		case StatusFound:
			periods = append(periods, *r.Period)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	logger.Info("Found %d/%d transcripts for %s", len(periods), len(results), ticker)
	return periods, nil
}
