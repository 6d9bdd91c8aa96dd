package transcripts

import (
	"context"
	"time"

	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/models"
)

// Cache persists transcripts and known gaps.
type Cache interface {
	// GetTranscript returns ok=false on a cache miss or an expired entry. A hit with a nil
	// period is a cached "no transcript".
	GetTranscript(ticker string, year, quarter int, maxAge time.Duration) (p *models.Period, ok bool, err error)
	PutTranscript(p *models.Period) error
	PutAbsent(ticker string, year, quarter int) error
}

// CachedFetcher serves transcripts from a Cache and falls through to the wrapped Fetcher.
// Provider failures are never cached.
type CachedFetcher struct {
	next   Fetcher
	cache  Cache
	maxAge time.Duration
}

// NewCachedFetcher wraps next with cache; entries older than maxAge are refetched.
func NewCachedFetcher(next Fetcher, cache Cache, maxAge time.Duration) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, maxAge: maxAge}
}

// FetchTranscript implements Fetcher.
func (f *CachedFetcher) FetchTranscript(ctx context.Context, ticker string, year, quarter int) (*models.Period, error) {
	p, ok, err := f.cache.GetTranscript(ticker, year, quarter, f.maxAge)
	if err != nil {
		logger.Warn("Transcript cache read failed for %s Q%d %d: %v", ticker, quarter, year, err)
	} else if ok {
		return p, nil
	}

	p, err = f.next.FetchTranscript(ctx, ticker, year, quarter)
	if err != nil {
		return nil, err
	}

	if p == nil {
		err = f.cache.PutAbsent(ticker, year, quarter)
	} else {
		err = f.cache.PutTranscript(p)
	}
	if err != nil {
		logger.Warn("Transcript cache write failed for %s Q%d %d: %v", ticker, quarter, year, err)
	}
	return p, nil
}
