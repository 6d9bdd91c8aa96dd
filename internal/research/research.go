// Package research runs the end-to-end mention-market research cycle: discover markets,
// resolve each event's company, analyze its transcripts, price every term and rank the
// positive-edge sides.
package research

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/mentionoracle/internal/kalshi"
	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/metrics"
	"github.com/rewired-gh/mentionoracle/internal/models"
	"github.com/rewired-gh/mentionoracle/internal/pricing"
	"github.com/rewired-gh/mentionoracle/internal/stats"
)

type MarketSource interface {
	ListMentionMarkets(ctx context.Context) ([]models.MentionMarket, error)
}

type TermAnalyzer interface {
	AnalyzeTicker(ctx context.Context, ticker string, terms []string) (*stats.TickerAnalysis, error)
}

type Store interface {
	UpsertMarket(market *models.MentionMarket) error
	SaveReport(report *models.Report) error
	MarkNotified(runID string) error
}

type Notifier interface {
	Send(report *models.Report) error
}

type Config struct {
	MinEdge        float64
	MinQuarters    int
	TopK           int
	Bankroll       float64
	NotifyCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinEdge:        0.05,
		MinQuarters:    4,
		TopK:           10,
		Bankroll:       1000,
		NotifyCooldown: 6 * time.Hour,
	}
}

type notifiedRecord struct {
	Edge   float64
	SentAt time.Time
}

type Researcher struct {
	source   MarketSource
	analyzer TermAnalyzer
	store    Store
	notifier Notifier
	metrics  *metrics.Metrics
	config   Config
	now      func() time.Time

	notified map[string]notifiedRecord
}

// Option configures a Researcher.
type Option func(*Researcher)

func WithStore(s Store) Option { return func(r *Researcher) { r.store = s } }

func WithNotifier(n Notifier) Option { return func(r *Researcher) { r.notifier = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Researcher) { r.metrics = m } }

func WithClock(now func() time.Time) Option { return func(r *Researcher) { r.now = now } }

func New(source MarketSource, analyzer TermAnalyzer, config Config, opts ...Option) *Researcher {
	r := &Researcher{
		source:   source,
		analyzer: analyzer,
		config:   config,
		now:      time.Now,
		notified: make(map[string]notifiedRecord),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCycle discovers the open mention markets, researches every event group and returns the
// ranked report. Only a market-discovery failure fails the cycle; per-group failures are
// recorded in the report.
func (r *Researcher) RunCycle(ctx context.Context) (*models.Report, error) {
	start := r.now()
	logger.Info("Starting research cycle")

	markets, err := r.source.ListMentionMarkets(ctx)
	if err != nil {
		err = fmt.Errorf("failed to fetch mention markets: %w", err)
		r.metrics.ObserveCycle(r.now().Sub(start), err)
		return nil, err
	}
	r.metrics.ObserveMarkets(len(markets))
	r.persistMarkets(markets)

	groups := kalshi.GroupByEvent(markets)
	logger.Info("Researching %d event groups (%d markets)", len(groups), len(markets))

	report := r.Research(ctx, groups)
	report.StartedAt = start
	report.MarketsScanned = len(markets)
	report.Duration = r.now().Sub(start)

	if r.store != nil {
		if err := r.store.SaveReport(report); err != nil {
			logger.Error("Failed to save report %s: %v", report.RunID, err)
		}
	}
	r.notify(report)

	r.metrics.ObserveCycle(report.Duration, nil)
	logger.Info("Research cycle %s completed in %v: %d YES, %d NO opportunities",
		report.RunID, report.Duration, len(report.YesOpportunities), len(report.NoOpportunities))
	return report, nil
}

// Research analyzes already-grouped markets and ranks the opportunities.
func (r *Researcher) Research(ctx context.Context, groups []models.EventGroup) *models.Report {
	report := &models.Report{RunID: uuid.NewString(), StartedAt: r.now()}
	for _, g := range groups {
		if ctx.Err() != nil {
			logger.Warn("Research cancelled after %d/%d groups", len(report.Groups), len(groups))
			break
		}
		report.Groups = append(report.Groups, r.ResearchGroup(ctx, g))
	}
	r.rank(report)
	return report
}

func (r *Researcher) persistMarkets(markets []models.MentionMarket) {
	if r.store == nil {
		return
	}
	saved := 0
	for i := range markets {
		if err := r.store.UpsertMarket(&markets[i]); err != nil {
			logger.Warn("Failed to save market %s: %v", markets[i].Ticker, err)
			continue
		}
		saved++
	}
	logger.Debug("Saved %d/%d markets", saved, len(markets))
}

// ResearchGroup analyzes one event group's terms against its company's transcripts and
// prices each market.
func (r *Researcher) ResearchGroup(ctx context.Context, g models.EventGroup) models.GroupReport {
	gr := models.GroupReport{
		EventTicker:   g.EventTicker,
		Title:         g.Title,
		CompanyTicker: g.CompanyTicker,
	}
	if g.CompanyTicker == "" {
		gr.Skipped = "no company ticker for event"
		logger.Debug("Skipping %s: %s", g.EventTicker, gr.Skipped)
		return gr
	}

	log := logger.With(map[string]any{"ticker": g.CompanyTicker, "event": g.EventTicker})
	analysis, err := r.analyzer.AnalyzeTicker(ctx, g.CompanyTicker, g.Terms())
	if err != nil {
		log.Errorf("Transcript analysis failed: %v", err)
		gr.Err = err.Error()
		for _, m := range g.Markets {
			gr.Terms = append(gr.Terms, models.TermReport{Market: m, Err: gr.Err})
			r.metrics.ObserveTermAnalysis("failed", 0)
		}
		return gr
	}
	gr.QuartersAnalyzed = analysis.QuartersAnalyzed

	for _, m := range g.Markets {
		tr := models.TermReport{Market: m, Stats: analysis.Stats(m.Term)}
		switch {
		case tr.Stats == nil:
			tr.Err = fmt.Sprintf("term %q could not be analyzed", m.Term)
			r.metrics.ObserveTermAnalysis("invalid", 0)
		case tr.Stats.TotalQuartersAnalyzed < r.config.MinQuarters:
			tr.Insufficient = true
			r.metrics.ObserveTermAnalysis("insufficient", 0)
		default:
			ea := pricing.EdgeFromQuote(tr.Stats.HitRate, m.Quote)
			tr.Edge = &ea
			r.metrics.ObserveTermAnalysis("ok", tr.Stats.HitRate)
		}
		gr.Terms = append(gr.Terms, tr)
	}
	log.Infof("Analyzed %d markets over %d quarters", len(gr.Terms), gr.QuartersAnalyzed)
	return gr
}

// rank collects every side whose ask-based edge is positive and at least MinEdge, sorted by
// edge descending. A side without an ask cannot be bought and is never ranked.
func (r *Researcher) rank(report *models.Report) {
	report.YesOpportunities = []models.Opportunity{}
	report.NoOpportunities = []models.Opportunity{}
	detected := r.now()

	for _, g := range report.Groups {
		for _, tr := range g.Terms {
			if tr.Edge == nil || tr.Insufficient {
				continue
			}
			hit := tr.Stats.HitRate
			q := tr.Market.Quote
			if q.YesAsk > 0 && r.qualifies(tr.Edge.YesEdge) {
				o := r.opportunity(report.RunID, g, tr, models.SideYes, q.YesAsk, tr.Edge.YesEdge, tr.Edge.YesExpectedValue, hit)
				o.DetectedAt = detected
				report.YesOpportunities = append(report.YesOpportunities, o)
			}
			if q.NoAsk > 0 && r.qualifies(tr.Edge.NoEdge) {
				o := r.opportunity(report.RunID, g, tr, models.SideNo, q.NoAsk, tr.Edge.NoEdge, tr.Edge.NoExpectedValue, 1-hit)
				o.DetectedAt = detected
				report.NoOpportunities = append(report.NoOpportunities, o)
			}
		}
	}

	byEdge := func(a, b models.Opportunity) int { return cmp.Compare(b.Edge, a.Edge) }
	slices.SortStableFunc(report.YesOpportunities, byEdge)
	slices.SortStableFunc(report.NoOpportunities, byEdge)

	for _, o := range report.Opportunities() {
		r.metrics.ObserveOpportunity(string(o.Side), o.Edge)
	}
}

func (r *Researcher) qualifies(edge float64) bool {
	return edge > 0 && edge >= r.config.MinEdge
}

func (r *Researcher) opportunity(runID string, g models.GroupReport, tr models.TermReport, side models.Side, ask, edge, ev, winProb float64) models.Opportunity {
	return models.Opportunity{
		ID:               uuid.NewString(),
		RunID:            runID,
		MarketTicker:     tr.Market.Ticker,
		EventTicker:      g.EventTicker,
		EventTitle:       g.Title,
		CompanyTicker:    g.CompanyTicker,
		Term:             tr.Market.Term,
		Side:             side,
		HitRate:          tr.Stats.HitRate,
		AskPrice:         ask,
		Edge:             edge,
		ExpectedValue:    ev,
		QuartersAnalyzed: tr.Stats.TotalQuartersAnalyzed,
		CurrentStreak:    tr.Stats.CurrentStreak,
		SuggestedStake:   r.suggestStake(winProb, ask),
	}
}

// suggestStake sizes a bet on a side with the given win probability bought at ask.
func (r *Researcher) suggestStake(winProb, ask float64) float64 {
	if r.config.Bankroll <= 0 {
		return 0
	}
	cents := ask * 100
	res, err := pricing.ComputeStake(r.config.Bankroll, pricing.ProbabilityPercent(winProb), &cents)
	if err != nil {
		logger.Debug("No stake for win probability %.3f at %.2f: %v", winProb, ask, err)
		return 0
	}
	return res.RecommendedStake
}
