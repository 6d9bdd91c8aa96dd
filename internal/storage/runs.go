package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

// RunSummary is a persisted research run.
type RunSummary struct {
	ID               string
	StartedAt        time.Time
	Duration         time.Duration
	MarketsScanned   int
	GroupsAnalyzed   int
	YesOpportunities int
	NoOpportunities  int
}

// TermResult is the persisted statistics of one market's term in one run.
type TermResult struct {
	RunID            string
	MarketTicker     string
	CompanyTicker    string
	Term             string
	HitRate          float64
	TotalMentions    int
	QuartersWith     int
	QuartersAnalyzed int
	CurrentStreak    models.Streak
	LongestStreak    models.Streak
}

// SaveReport persists a research run with its per-term statistics and opportunities in
// one transaction.
func (s *Storage) SaveReport(r *models.Report) error {
	if r.RunID == "" {
		return fmt.Errorf("report run id must not be empty")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO analysis_runs
			(id, started_at, duration_ms, markets_scanned, groups_analyzed, yes_count, no_count)
		VALUES (?,?,?,?,?,?,?)`,
		r.RunID, r.StartedAt.UnixNano(), r.Duration.Milliseconds(), r.MarketsScanned,
		len(r.Groups), len(r.YesOpportunities), len(r.NoOpportunities),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, g := range r.Groups {
		for _, tr := range g.Terms {
			if tr.Stats == nil {
				continue
			}
			st := tr.Stats
			_, err = tx.Exec(`
				INSERT OR REPLACE INTO term_results
					(run_id, market_ticker, company_ticker, term, hit_rate, total_mentions,
					 quarters_with, quarters_analyzed, current_streak_type, current_streak_len,
					 longest_streak_type, longest_streak_len)
				VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
				r.RunID, tr.Market.Ticker, g.CompanyTicker, st.Term, st.HitRate, st.TotalMentions,
				st.QuartersWithMentions, st.TotalQuartersAnalyzed,
				string(st.CurrentStreak.Type), st.CurrentStreak.Length,
				string(st.LongestStreak.Type), st.LongestStreak.Length,
			)
			if err != nil {
				return fmt.Errorf("failed to insert term result: %w", err)
			}
		}
	}

	for _, o := range r.Opportunities() {
		_, err = tx.Exec(`
			INSERT INTO opportunities
				(id, run_id, market_ticker, event_ticker, event_title, company_ticker, term, side,
				 hit_rate, ask_price, edge, expected_value, quarters_analyzed, streak_type, streak_len,
				 suggested_stake, detected_at, notified)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			o.ID, r.RunID, o.MarketTicker, o.EventTicker, o.EventTitle, o.CompanyTicker, o.Term,
			string(o.Side), o.HitRate, o.AskPrice, o.Edge, o.ExpectedValue, o.QuartersAnalyzed,
			string(o.CurrentStreak.Type), o.CurrentStreak.Length, o.SuggestedStake,
			o.DetectedAt.UnixNano(), boolToInt(o.Notified),
		)
		if err != nil {
			return fmt.Errorf("failed to insert opportunity %s: %w", o.MarketTicker, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a persisted run summary.
func (s *Storage) GetRun(id string) (*RunSummary, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, duration_ms, markets_scanned, groups_analyzed, yes_count, no_count
		FROM analysis_runs WHERE id = ?`, id)
	var r RunSummary
	var startedNano, durationMs int64
	err := row.Scan(&r.ID, &startedNano, &durationMs, &r.MarketsScanned, &r.GroupsAnalyzed,
		&r.YesOpportunities, &r.NoOpportunities)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	r.StartedAt = time.Unix(0, startedNano)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return &r, nil
}

// GetTermResults returns the per-term statistics of a run, highest hit rate first.
func (s *Storage) GetTermResults(runID string) ([]TermResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, market_ticker, company_ticker, term, hit_rate, total_mentions,
		       quarters_with, quarters_analyzed, current_streak_type, current_streak_len,
		       longest_streak_type, longest_streak_len
		FROM term_results WHERE run_id = ? ORDER BY hit_rate DESC, market_ticker`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query term results: %w", err)
	}
	defer rows.Close()

	var results []TermResult
	for rows.Next() {
		var tr TermResult
		var curType, longType string
		err := rows.Scan(&tr.RunID, &tr.MarketTicker, &tr.CompanyTicker, &tr.Term, &tr.HitRate,
			&tr.TotalMentions, &tr.QuartersWith, &tr.QuartersAnalyzed,
			&curType, &tr.CurrentStreak.Length, &longType, &tr.LongestStreak.Length)
		if err != nil {
			return nil, fmt.Errorf("failed to scan term result: %w", err)
		}
		tr.CurrentStreak.Type = models.StreakType(curType)
		tr.LongestStreak.Type = models.StreakType(longType)
		results = append(results, tr)
	}
	return results, rows.Err()
}

// GetTopOpportunities returns the k highest-edge opportunities across all runs.
func (s *Storage) GetTopOpportunities(k int) ([]models.Opportunity, error) {
	return s.queryOpportunities(`SELECT `+opportunityCols+` FROM opportunities
		ORDER BY edge DESC, detected_at DESC LIMIT ?`, k)
}

// GetRunOpportunities returns a run's opportunities, highest edge first.
func (s *Storage) GetRunOpportunities(runID string) ([]models.Opportunity, error) {
	return s.queryOpportunities(`SELECT `+opportunityCols+` FROM opportunities
		WHERE run_id = ? ORDER BY edge DESC`, runID)
}

// MarkNotified flags every opportunity of a run as delivered.
func (s *Storage) MarkNotified(runID string) error {
	if _, err := s.db.Exec(`UPDATE opportunities SET notified = 1 WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to mark opportunities notified: %w", err)
	}
	return nil
}

// PruneRuns keeps the newest keep runs; term results and opportunities cascade.
func (s *Storage) PruneRuns(keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM analysis_runs WHERE id NOT IN (
			SELECT id FROM analysis_runs ORDER BY started_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	return nil
}

const opportunityCols = `id, run_id, market_ticker, event_ticker, event_title, company_ticker, term, side,
	hit_rate, ask_price, edge, expected_value, quarters_analyzed, streak_type, streak_len,
	suggested_stake, detected_at, notified`

func (s *Storage) queryOpportunities(query string, args ...any) ([]models.Opportunity, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		var o models.Opportunity
		var side, streakType string
		var detectedNano int64
		var notified int
		err := rows.Scan(
			&o.ID, &o.RunID, &o.MarketTicker, &o.EventTicker, &o.EventTitle, &o.CompanyTicker,
			&o.Term, &side, &o.HitRate, &o.AskPrice, &o.Edge, &o.ExpectedValue,
			&o.QuartersAnalyzed, &streakType, &o.CurrentStreak.Length, &o.SuggestedStake,
			&detectedNano, &notified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		o.Side = models.Side(side)
		o.CurrentStreak.Type = models.StreakType(streakType)
		o.DetectedAt = time.Unix(0, detectedNano)
		o.Notified = notified != 0
		opps = append(opps, o)
	}
	return opps, rows.Err()
}
