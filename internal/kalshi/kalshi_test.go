package kalshi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

func cents(v int64) *int64 { return &v }

func TestIsMentionMarket(t *testing.T) {
	tests := []struct {
		name   string
		market apiMarket
		want   bool
	}{
		{"ticker contains mention", apiMarket{Ticker: "KXEARNINGSMENTIONAAPL-25OCT30-AI"}, true},
		{"lowercase ticker", apiMarket{Ticker: "kxfedmention-25oct-rate"}, true},
		{"custom strike", apiMarket{Ticker: "KXSPEECH-1", CustomStrike: map[string]any{"Word": "Tariff"}}, true},
		{"custom strike type", apiMarket{Ticker: "KXSPEECH-2", StrikeType: "custom"}, true},
		{"ordinary market", apiMarket{Ticker: "KXHIGHNY-25OCT15-T70", StrikeType: "greater"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isMentionMarket(tt.market))
		})
	}
}

func TestBetWord(t *testing.T) {
	tests := []struct {
		name   string
		market apiMarket
		want   string
	}{
		{
			"custom strike word first",
			apiMarket{CustomStrike: map[string]any{"Word": "Tariff"}, NoSubTitle: "Tariffs", Title: "Will Apple say Tariff?"},
			"Tariff",
		},
		{"no sub title", apiMarket{NoSubTitle: "AI / Artificial Intelligence", Subtitle: "x"}, "AI / Artificial Intelligence"},
		{"subtitle", apiMarket{Subtitle: "China", Title: "Will they say China?"}, "China"},
		{"title", apiMarket{Title: "Recession"}, "Recession"},
		{"ticker segment", apiMarket{Ticker: "KXEARNINGSMENTIONAAPL-25OCT30-IPHONE"}, "IPHONE"},
		{"bare ticker", apiMarket{Ticker: "WORD"}, "WORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, betWord(tt.market))
		})
	}
}

func TestConvertQuote(t *testing.T) {
	q, err := convertQuote(apiMarket{YesBid: cents(45), YesAsk: cents(48), NoBid: cents(52), NoAsk: cents(55)})
	require.NoError(t, err)
	assert.Equal(t, models.MarketQuote{YesBid: 0.45, YesAsk: 0.48, NoBid: 0.52, NoAsk: 0.55}, q)
	assert.InDelta(t, 0.465, q.YesMid(), 1e-9)

	q, err = convertQuote(apiMarket{YesAskDollars: "0.0700", YesAsk: cents(99)})
	require.NoError(t, err)
	assert.Equal(t, 0.07, q.YesAsk, "dollar string takes precedence")
	assert.Zero(t, q.NoBid)
	assert.Equal(t, 0.07, q.YesMid(), "one-sided quote uses the side present")

	_, err = convertQuote(apiMarket{NoAskDollars: "abc"})
	assert.Error(t, err)
}

func TestEventTitle(t *testing.T) {
	assert.Equal(t, "What will GOOGL say during their next earnings call?", EventTitle("KXEARNINGSMENTIONGOOGL-25NOV04", ""))
	assert.Equal(t, "What will Trump say during [event]?", EventTitle("KXTRUMPMENTION-25OCT20", ""))
	assert.Equal(t, "What will Powell say at his next press conference?", EventTitle("KXFEDMENTION-25OCT", ""))
	assert.Equal(t, "Custom title", EventTitle("KXOTHER-1", "Custom title"))
	assert.Equal(t, "KXOTHER-1", EventTitle("KXOTHER-1", ""))
}

func TestCompanyTicker(t *testing.T) {
	tests := []struct {
		title       string
		eventTicker string
		want        string
		wantOK      bool
	}{
		{"", "KXEARNINGSMENTIONNVDA-25NOV19", "NVDA", true},
		{"What will Apple say during their Q4 earnings call?", "", "AAPL", true},
		{"What will Meta Platforms say during earnings?", "", "META", true},
		{"What will Snowflake say during earnings?", "", "SNOWFLAKE", true},
		{"What will [company] say during their next earnings call?", "", "", false},
		{"What will Trump say during [event]?", "KXTRUMPMENTION-25OCT20", "", false},
		{"Random market", "KXOTHER", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.title+tt.eventTicker, func(t *testing.T) {
			got, ok := CompanyTicker(tt.title, tt.eventTicker)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGroupByEvent(t *testing.T) {
	markets := []models.MentionMarket{
		{Ticker: "A-1", EventTicker: "KXEARNINGSMENTIONAAPL-25OCT30", Term: "AI", Volume: 10},
		{Ticker: "T-1", EventTicker: "KXTRUMPMENTION-25OCT20", Term: "Tariff", Volume: 500},
		{Ticker: "A-2", EventTicker: "KXEARNINGSMENTIONAAPL-25OCT30", Term: "China", Volume: 20},
		{Ticker: "A-3", EventTicker: "KXEARNINGSMENTIONAAPL-25OCT30", Term: "AI", Volume: 5},
	}

	groups := GroupByEvent(markets)
	require.Len(t, groups, 2)

	assert.Equal(t, "KXTRUMPMENTION-25OCT20", groups[0].EventTicker, "highest volume first")
	assert.Empty(t, groups[0].CompanyTicker)

	apple := groups[1]
	assert.Equal(t, "AAPL", apple.CompanyTicker)
	assert.Equal(t, "What will AAPL say during their next earnings call?", apple.Title)
	require.Len(t, apple.Markets, 3)
	assert.Equal(t, "A-1", apple.Markets[0].Ticker)
	assert.Equal(t, []string{"AI", "China"}, apple.Terms())
}

func newTestClient(t *testing.T, cfg ClientConfig, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.RateLimit = 1000
	cfg.RetryDelayBase = time.Millisecond
	return NewClient(srv.URL, "secret", 5*time.Second, cfg)
}

const pageOne = `{
  "cursor": "page2",
  "markets": [
    {"ticker": "KXEARNINGSMENTIONAAPL-25OCT30-AI", "event_ticker": "KXEARNINGSMENTIONAAPL-25OCT30",
     "custom_strike": {"Word": "AI"}, "status": "active", "yes_bid": 80, "yes_ask": 84, "no_bid": 16, "no_ask": 20,
     "volume": 1200, "open_interest": 300, "close_time": "2025-10-30T20:00:00Z"},
    {"ticker": "KXHIGHNY-25OCT15-T70", "event_ticker": "KXHIGHNY-25OCT15", "strike_type": "greater",
     "yes_bid": 10, "yes_ask": 12}
  ]
}`

const pageTwo = `{
  "cursor": "",
  "markets": [
    {"ticker": "KXEARNINGSMENTIONAAPL-25OCT30-TARIFF", "event_ticker": "KXEARNINGSMENTIONAAPL-25OCT30",
     "no_sub_title": "Tariff", "yes_bid_dollars": "0.3000", "yes_ask_dollars": "0.3500",
     "no_bid_dollars": "0.6500", "no_ask_dollars": "0.7000"}
  ]
}`

func TestListMentionMarkets(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, ClientConfig{PageLimit: 2}, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if r.URL.Query().Get("cursor") == "page2" {
			fmt.Fprint(w, pageTwo)
			return
		}
		fmt.Fprint(w, pageOne)
	})

	markets, err := c.ListMentionMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, int32(2), calls.Load())

	ai := markets[0]
	assert.Equal(t, "AI", ai.Term)
	assert.Equal(t, 0.84, ai.Quote.YesAsk)
	assert.Equal(t, int64(1200), ai.Volume)
	assert.Equal(t, time.Date(2025, 10, 30, 20, 0, 0, 0, time.UTC), ai.CloseTime)

	tariff := markets[1]
	assert.Equal(t, "Tariff", tariff.Term)
	assert.Equal(t, 0.7, tariff.Quote.NoAsk)
}

func TestListMentionMarkets_Cap(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, ClientConfig{MaxMarkets: 1}, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, pageOne)
	})
	markets, err := c.ListMentionMarkets(context.Background())
	require.NoError(t, err)
	assert.Len(t, markets, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestListMentionMarkets_RepeatedCursorStops(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, ClientConfig{}, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"cursor": "same", "markets": []}`)
	})
	markets, err := c.ListMentionMarkets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, markets)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListMentionMarkets_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, ClientConfig{MaxRetries: 2}, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.ListMentionMarkets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetMarket(t *testing.T) {
	c := newTestClient(t, ClientConfig{}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/KXEARNINGSMENTIONAAPL-25OCT30-AI":
			fmt.Fprint(w, `{"market": {"ticker": "KXEARNINGSMENTIONAAPL-25OCT30-AI",
				"event_ticker": "KXEARNINGSMENTIONAAPL-25OCT30", "no_sub_title": "AI", "yes_ask": 60, "no_ask": 42}}`)
		default:
			http.NotFound(w, r)
		}
	})

	m, err := c.GetMarket(context.Background(), "KXEARNINGSMENTIONAAPL-25OCT30-AI")
	require.NoError(t, err)
	assert.Equal(t, "AI", m.Term)
	assert.Equal(t, 0.6, m.Quote.YesAsk)

	_, err = c.GetMarket(context.Background(), "MISSING")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = c.GetMarket(context.Background(), " ")
	assert.Error(t, err)
}
