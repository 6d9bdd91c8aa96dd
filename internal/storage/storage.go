// Package storage provides SQLite-backed persistence for mention markets, cached transcripts,
// and research runs.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/mentionoracle/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db         *sql.DB
	maxMarkets int
	now        func() time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/mentionoracle/data.db.
func New(maxMarkets int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "mentionoracle", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStorage(db, maxMarkets)
}

// newStorage configures db and creates the schema. db is closed if any step fails.
func newStorage(db *sql.DB, maxMarkets int) (*Storage, error) {
	s, err := setup(db, maxMarkets)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func setup(db *sql.DB, maxMarkets int) (*Storage, error) {
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxMarkets: maxMarkets, now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS mention_markets (
			ticker          TEXT PRIMARY KEY,
			event_ticker    TEXT NOT NULL,
			title           TEXT NOT NULL,
			subtitle        TEXT,
			term            TEXT NOT NULL,
			status          TEXT,
			yes_bid         REAL NOT NULL,
			yes_ask         REAL NOT NULL,
			no_bid          REAL NOT NULL,
			no_ask          REAL NOT NULL,
			volume          INTEGER NOT NULL DEFAULT 0,
			open_interest   INTEGER NOT NULL DEFAULT 0,
			close_time      INTEGER NOT NULL DEFAULT 0,
			last_updated    INTEGER NOT NULL,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			ticker          TEXT NOT NULL,
			year            INTEGER NOT NULL,
			quarter         INTEGER NOT NULL,
			available       INTEGER NOT NULL,
			company_name    TEXT,
			call_date       TEXT,
			url             TEXT,
			transcript      TEXT,
			fetched_at      INTEGER NOT NULL,
			PRIMARY KEY (ticker, year, quarter)
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id              TEXT PRIMARY KEY,
			started_at      INTEGER NOT NULL,
			duration_ms     INTEGER NOT NULL,
			markets_scanned INTEGER NOT NULL,
			groups_analyzed INTEGER NOT NULL,
			yes_count       INTEGER NOT NULL,
			no_count        INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS term_results (
			run_id              TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
			market_ticker       TEXT NOT NULL,
			company_ticker      TEXT NOT NULL,
			term                TEXT NOT NULL,
			hit_rate            REAL NOT NULL,
			total_mentions      INTEGER NOT NULL,
			quarters_with       INTEGER NOT NULL,
			quarters_analyzed   INTEGER NOT NULL,
			current_streak_type TEXT NOT NULL,
			current_streak_len  INTEGER NOT NULL,
			longest_streak_type TEXT NOT NULL,
			longest_streak_len  INTEGER NOT NULL,
			PRIMARY KEY (run_id, market_ticker)
		)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id                TEXT PRIMARY KEY,
			run_id            TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
			market_ticker     TEXT NOT NULL,
			event_ticker      TEXT NOT NULL,
			event_title       TEXT NOT NULL,
			company_ticker    TEXT NOT NULL,
			term              TEXT NOT NULL,
			side              TEXT NOT NULL,
			hit_rate          REAL NOT NULL,
			ask_price         REAL NOT NULL,
			edge              REAL NOT NULL,
			expected_value    REAL NOT NULL,
			quarters_analyzed INTEGER NOT NULL,
			streak_type       TEXT NOT NULL,
			streak_len        INTEGER NOT NULL,
			suggested_stake   REAL NOT NULL,
			detected_at       INTEGER NOT NULL,
			notified          INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_markets_event ON mention_markets(event_ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_edge ON opportunities(edge DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_run ON opportunities(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertMarket inserts a market or refreshes its quote, keeping the original created_at,
// then enforces the market cap.
func (s *Storage) UpsertMarket(market *models.MentionMarket) error {
	if err := market.Validate(); err != nil {
		return fmt.Errorf("invalid market: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO mention_markets
			(ticker, event_ticker, title, subtitle, term, status,
			 yes_bid, yes_ask, no_bid, no_ask, volume, open_interest,
			 close_time, last_updated, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ticker) DO UPDATE SET
			event_ticker=excluded.event_ticker, title=excluded.title, subtitle=excluded.subtitle,
			term=excluded.term, status=excluded.status,
			yes_bid=excluded.yes_bid, yes_ask=excluded.yes_ask,
			no_bid=excluded.no_bid, no_ask=excluded.no_ask,
			volume=excluded.volume, open_interest=excluded.open_interest,
			close_time=excluded.close_time, last_updated=excluded.last_updated`,
		market.Ticker, market.EventTicker, market.Title, market.Subtitle, market.Term, market.Status,
		market.Quote.YesBid, market.Quote.YesAsk, market.Quote.NoBid, market.Quote.NoAsk,
		market.Volume, market.OpenInterest,
		unixNano(market.CloseTime), market.LastUpdated.UnixNano(), market.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM mention_markets WHERE ticker NOT IN (
			SELECT ticker FROM mention_markets ORDER BY last_updated DESC LIMIT ?
		)`, s.maxMarkets); err != nil {
		return fmt.Errorf("failed to enforce market cap: %w", err)
	}

	return tx.Commit()
}

func (s *Storage) GetMarket(ticker string) (*models.MentionMarket, error) {
	row := s.db.QueryRow(`SELECT `+marketCols+` FROM mention_markets WHERE ticker = ?`, ticker)
	m, err := scanMarket(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("market not found: %s", ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return m, nil
}

func (s *Storage) GetAllMarkets() ([]*models.MentionMarket, error) {
	rows, err := s.db.Query(`SELECT ` + marketCols + ` FROM mention_markets ORDER BY event_ticker, ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()
	markets := []*models.MentionMarket{}
	for rows.Next() {
		m, err := scanMarket(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// RotateMarkets keeps at most maxMarkets newest markets by last_updated.
func (s *Storage) RotateMarkets() error {
	_, err := s.db.Exec(`
		DELETE FROM mention_markets WHERE ticker NOT IN (
			SELECT ticker FROM mention_markets ORDER BY last_updated DESC LIMIT ?
		)`, s.maxMarkets)
	if err != nil {
		return fmt.Errorf("failed to rotate markets: %w", err)
	}
	return nil
}

const marketCols = `ticker, event_ticker, title, subtitle, term, status,
	yes_bid, yes_ask, no_bid, no_ask, volume, open_interest,
	close_time, last_updated, created_at`

func scanMarket(scan func(...any) error) (*models.MentionMarket, error) {
	var m models.MentionMarket
	var subtitle, status sql.NullString
	var closeNano, lastUpdatedNano, createdAtNano int64
	err := scan(
		&m.Ticker, &m.EventTicker, &m.Title, &subtitle, &m.Term, &status,
		&m.Quote.YesBid, &m.Quote.YesAsk, &m.Quote.NoBid, &m.Quote.NoAsk,
		&m.Volume, &m.OpenInterest,
		&closeNano, &lastUpdatedNano, &createdAtNano,
	)
	if err != nil {
		return nil, err
	}
	m.Subtitle = subtitle.String
	m.Status = status.String
	if closeNano != 0 {
		m.CloseTime = time.Unix(0, closeNano)
	}
	m.LastUpdated = time.Unix(0, lastUpdatedNano)
	m.CreatedAt = time.Unix(0, createdAtNano)
	return &m, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
