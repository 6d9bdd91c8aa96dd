package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

// GetTranscript returns a cached transcript. ok is false on a miss or when the entry is
// older than maxAge; maxAge <= 0 never expires. A hit with a nil period is a cached
// "no transcript for this quarter".
func (s *Storage) GetTranscript(ticker string, year, quarter int, maxAge time.Duration) (*models.Period, bool, error) {
	ticker = strings.ToUpper(ticker)
	row := s.db.QueryRow(`
		SELECT available, company_name, call_date, url, transcript, fetched_at
		FROM transcripts WHERE ticker = ? AND year = ? AND quarter = ?`, ticker, year, quarter)

	var available int
	var company, date, url, text sql.NullString
	var fetchedNano int64
	err := row.Scan(&available, &company, &date, &url, &text, &fetchedNano)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get transcript: %w", err)
	}

	if maxAge > 0 && s.now().Sub(time.Unix(0, fetchedNano)) > maxAge {
		return nil, false, nil
	}
	if available == 0 {
		return nil, true, nil
	}
	return &models.Period{
		Ticker:      ticker,
		CompanyName: company.String,
		Year:        year,
		Quarter:     quarter,
		Date:        date.String,
		URL:         url.String,
		Transcript:  text.String,
	}, true, nil
}

// PutTranscript caches a fetched transcript, replacing any earlier entry.
func (s *Storage) PutTranscript(p *models.Period) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid transcript: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO transcripts
			(ticker, year, quarter, available, company_name, call_date, url, transcript, fetched_at)
		VALUES (?,?,?,1,?,?,?,?,?)`,
		strings.ToUpper(p.Ticker), p.Year, p.Quarter, p.CompanyName, p.Date, p.URL, p.Transcript,
		s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// PutAbsent records that the provider has no transcript for the quarter.
func (s *Storage) PutAbsent(ticker string, year, quarter int) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO transcripts
			(ticker, year, quarter, available, fetched_at)
		VALUES (?,?,?,0,?)`,
		strings.ToUpper(ticker), year, quarter, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save absent transcript: %w", err)
	}
	return nil
}

// PurgeExpiredTranscripts deletes entries older than maxAge and returns how many were removed.
func (s *Storage) PurgeExpiredTranscripts(maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-maxAge).UnixNano()
	res, err := s.db.Exec(`DELETE FROM transcripts WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge transcripts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
