// Package kalshi discovers mention markets on the Kalshi exchange and converts them into
// priced, grouped bet words.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/models"
)

// DefaultBaseURL is the public trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

// Client handles communication with the Kalshi trade API.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
	pageLimit      int
	maxMarkets     int
}

// ClientConfig tunes pagination, rate limiting and retries. Zero values fall back to defaults.
type ClientConfig struct {
	RateLimit      float64
	Burst          int
	MaxRetries     int
	RetryDelayBase time.Duration
	PageLimit      int
	MaxMarkets     int // 0 = no cap
}

type apiMarket struct {
	Ticker       string         `json:"ticker"`
	EventTicker  string         `json:"event_ticker"`
	Title        string         `json:"title"`
	Subtitle     string         `json:"subtitle"`
	NoSubTitle   string         `json:"no_sub_title"`
	Status       string         `json:"status"`
	StrikeType   string         `json:"strike_type"`
	CustomStrike map[string]any `json:"custom_strike"`

	YesBid        *int64 `json:"yes_bid"`
	YesAsk        *int64 `json:"yes_ask"`
	NoBid         *int64 `json:"no_bid"`
	NoAsk         *int64 `json:"no_ask"`
	YesBidDollars string `json:"yes_bid_dollars"`
	YesAskDollars string `json:"yes_ask_dollars"`
	NoBidDollars  string `json:"no_bid_dollars"`
	NoAskDollars  string `json:"no_ask_dollars"`

	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
	CloseTime    string `json:"close_time"`
}

type marketsPage struct {
	Markets []apiMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

type marketEnvelope struct {
	Market *apiMarket `json:"market"`
}

// NewClient creates a new Kalshi API client. apiKey may be empty for public market data.
func NewClient(baseURL, apiKey string, timeout time.Duration, cfg ClientConfig) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > 1000 {
		cfg.PageLimit = 1000
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		httpClient:     &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		pageLimit:      cfg.PageLimit,
		maxMarkets:     cfg.MaxMarkets,
	}
}

// ListMentionMarkets pages through every open market and keeps the mention markets.
func (c *Client) ListMentionMarkets(ctx context.Context) ([]models.MentionMarket, error) {
	var (
		markets []models.MentionMarket
		cursor  string
		scanned int
		pages   int
	)
	seen := make(map[string]bool)

	for {
		page, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch markets page %d: %w", pages+1, err)
		}
		pages++
		scanned += len(page.Markets)

		now := time.Now()
		for _, am := range page.Markets {
			if !isMentionMarket(am) {
				continue
			}
			m, err := convertMarket(am, now)
			if err != nil {
				logger.Warn("Skipping market %s: %v", am.Ticker, err)
				continue
			}
			markets = append(markets, m)
			if c.maxMarkets > 0 && len(markets) >= c.maxMarkets {
				logger.Info("Reached market cap of %d after %d pages", c.maxMarkets, pages)
				return markets, nil
			}
		}

		if page.Cursor == "" || seen[page.Cursor] {
			break
		}
		seen[page.Cursor] = true
		cursor = page.Cursor
	}

	logger.Info("Found %d mention markets among %d open markets (%d pages)", len(markets), scanned, pages)
	return markets, nil
}

func (c *Client) fetchPage(ctx context.Context, cursor string) (*marketsPage, error) {
	u, err := url.Parse(c.baseURL + "/markets")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("status", "open")
	q.Set("limit", strconv.Itoa(c.pageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	body, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}
	var page marketsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &page, nil
}

// GetMarket fetches a single market by ticker, mention market or not.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*models.MentionMarket, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker must not be empty")
	}

	body, err := c.doRequest(ctx, c.baseURL+"/markets/"+url.PathEscape(ticker))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", ticker, err)
	}
	var env marketEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode market %s: %w", ticker, err)
	}
	if env.Market == nil {
		return nil, fmt.Errorf("market %s not found", ticker)
	}
	m, err := convertMarket(*env.Market, time.Now())
	if err != nil {
		return nil, fmt.Errorf("invalid market %s: %w", ticker, err)
	}
	return &m, nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !c.backoff(ctx, i) {
				return nil, ctx.Err()
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			if !c.backoff(ctx, i) {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API error: %d", resp.StatusCode)
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}
		return data, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) backoff(ctx context.Context, attempt int) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelayBase * time.Duration(attempt+1)):
		return true
	}
}
