package transcripts

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

// DefaultBaseURL is the API Ninjas endpoint root.
const DefaultBaseURL = "https://api.api-ninjas.com/v1"

// Client fetches earnings-call transcripts from API Ninjas.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
}

// ClientConfig holds retry, rate-limit and connection-pool tuning for Client.
type ClientConfig struct {
	RateLimit           float64
	Burst               int
	MaxRetries          int
	RetryDelayBase      time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

type transcriptResponse struct {
	Date        string `json:"date"`
	Transcript  string `json:"transcript"`
	CompanyName string `json:"company_name"`
	URL         string `json:"url"`
}

// NewClient creates a transcript client. Zero-valued config fields fall back to defaults.
func NewClient(baseURL, apiKey string, timeout time.Duration, cfg ClientConfig) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
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
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 5
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.IdleConnTimeout,
			},
		},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// FetchTranscript returns the transcript for one quarter. It returns (nil, nil) when the
// provider has no transcript for that quarter; any other failure is a *models.FetchError.
func (c *Client) FetchTranscript(ctx context.Context, ticker string, year, quarter int) (*models.Period, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, &models.FetchError{Year: year, Quarter: quarter, Err: fmt.Errorf("ticker must not be empty")}
	}
	if quarter < 1 || quarter > 4 {
		return nil, &models.FetchError{Ticker: ticker, Year: year, Quarter: quarter, Err: fmt.Errorf("invalid quarter %d", quarter)}
	}

	u, err := url.Parse(c.baseURL + "/earningstranscript")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("ticker", ticker)
	q.Set("year", strconv.Itoa(year))
	q.Set("quarter", strconv.Itoa(quarter))
	u.RawQuery = q.Encode()

	body, found, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, &models.FetchError{Ticker: ticker, Year: year, Quarter: quarter, Err: err}
	}
	if !found {
		logger.Debug("No transcript found for %s Q%d %d", ticker, quarter, year)
		return nil, nil
	}

	tr, err := decodeTranscript(body)
	if err != nil {
		return nil, &models.FetchError{Ticker: ticker, Year: year, Quarter: quarter, Err: err}
	}
	if tr == nil || strings.TrimSpace(tr.Transcript) == "" {
		logger.Debug("No transcript found for %s Q%d %d", ticker, quarter, year)
		return nil, nil
	}

	name := tr.CompanyName
	if name == "" {
		name = ticker
	}
	return &models.Period{
		Ticker:      ticker,
		CompanyName: name,
		Year:        year,
		Quarter:     quarter,
		Date:        tr.Date,
		URL:         tr.URL,
		Transcript:  tr.Transcript,
	}, nil
}

// decodeTranscript accepts either a single object or a list whose first element is used.
func decodeTranscript(body []byte) (*transcriptResponse, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []transcriptResponse
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("failed to decode transcript list: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		return &list[0], nil
	}
	var tr transcriptResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return &tr, nil
}

// doRequest performs a rate-limited GET with linear-backoff retry on transport errors and
// 5xx/429 responses. found is false for 404.
func (c *Client) doRequest(ctx context.Context, urlStr string) (body []byte, found bool, err error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !c.backoff(ctx, i) {
				return nil, false, ctx.Err()
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, false, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			if !c.backoff(ctx, i) {
				return nil, false, ctx.Err()
			}
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, false, fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		if readErr != nil {
			return nil, false, fmt.Errorf("failed to read response: %w", readErr)
		}
		return data, true, nil
	}
	return nil, false, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) backoff(ctx context.Context, attempt int) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelayBase * time.Duration(attempt+1)):
		return true
	}
}
