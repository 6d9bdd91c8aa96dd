package kalshi

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

var hundred = decimal.NewFromInt(100)

func isMentionMarket(m apiMarket) bool {
	if strings.Contains(strings.ToUpper(m.Ticker), "MENTION") {
		return true
	}
	return len(m.CustomStrike) > 0 || m.StrikeType == "custom"
}

// betWord picks the mention term: custom strike word, then the NO sub-title, subtitle,
// title, and finally the last ticker segment.
func betWord(m apiMarket) string {
	if w, ok := m.CustomStrike["Word"]; ok && w != nil {
		if s := strings.TrimSpace(fmt.Sprint(w)); s != "" {
			return s
		}
	}
	for _, s := range []string{m.NoSubTitle, m.Subtitle, m.Title} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	if i := strings.LastIndex(m.Ticker, "-"); i >= 0 {
		return m.Ticker[i+1:]
	}
	return m.Ticker
}

// price converts a quote to the unit interval. The *_dollars string wins when present;
// otherwise integer cents are divided by 100. A missing price is 0.
func price(cents *int64, dollars string) (float64, error) {
	if dollars != "" {
		d, err := decimal.NewFromString(dollars)
		if err != nil {
			return 0, fmt.Errorf("invalid dollar price %q: %w", dollars, err)
		}
		return d.InexactFloat64(), nil
	}
	if cents == nil {
		return 0, nil
	}
	return decimal.NewFromInt(*cents).Div(hundred).InexactFloat64(), nil
}

func convertQuote(m apiMarket) (models.MarketQuote, error) {
	var q models.MarketQuote
	var errs []error
	var err error
	q.YesBid, err = price(m.YesBid, m.YesBidDollars)
	errs = append(errs, err)
	q.YesAsk, err = price(m.YesAsk, m.YesAskDollars)
	errs = append(errs, err)
	q.NoBid, err = price(m.NoBid, m.NoBidDollars)
	errs = append(errs, err)
	q.NoAsk, err = price(m.NoAsk, m.NoAskDollars)
	errs = append(errs, err)
	return q, errors.Join(errs...)
}

func convertMarket(am apiMarket, now time.Time) (models.MentionMarket, error) {
	quote, err := convertQuote(am)
	if err != nil {
		return models.MentionMarket{}, err
	}

	m := models.MentionMarket{
		Ticker:       am.Ticker,
		EventTicker:  am.EventTicker,
		Title:        am.Title,
		Subtitle:     am.Subtitle,
		Term:         betWord(am),
		Status:       am.Status,
		Quote:        quote,
		Volume:       am.Volume,
		OpenInterest: am.OpenInterest,
		LastUpdated:  now,
		CreatedAt:    now,
	}
	if m.EventTicker == "" {
		m.EventTicker = am.Ticker
	}
	if am.CloseTime != "" {
		if t, err := time.Parse(time.RFC3339, am.CloseTime); err == nil {
			m.CloseTime = t
		}
	}
	if err := m.Validate(); err != nil {
		return models.MentionMarket{}, err
	}
	return m, nil
}

// GroupByEvent groups markets by event ticker. Groups are ordered by total volume, highest
// first; markets keep their input order within a group.
func GroupByEvent(markets []models.MentionMarket) []models.EventGroup {
	index := make(map[string]int)
	var groups []models.EventGroup
	volume := make(map[string]int64)

	for _, m := range markets {
		i, ok := index[m.EventTicker]
		if !ok {
			i = len(groups)
			index[m.EventTicker] = i
			title := EventTitle(m.EventTicker, m.Title)
			company, _ := CompanyTicker(title, m.EventTicker)
			groups = append(groups, models.EventGroup{
				EventTicker:   m.EventTicker,
				Title:         title,
				CompanyTicker: company,
			})
		}
		groups[i].Markets = append(groups[i].Markets, m)
		volume[m.EventTicker] += m.Volume
	}

	slices.SortStableFunc(groups, func(a, b models.EventGroup) int {
		return cmp.Compare(volume[b.EventTicker], volume[a.EventTicker])
	})
	return groups
}

// EventTitle derives a readable event title from the event ticker.
func EventTitle(eventTicker, fallback string) string {
	upper := strings.ToUpper(eventTicker)
	switch {
	case strings.Contains(upper, "EARNINGSMENTION"):
		if company := earningsCompany(upper); company != "" {
			return fmt.Sprintf("What will %s say during their next earnings call?", company)
		}
		return "What will [company] say during their next earnings call?"
	case strings.Contains(upper, "FEDMENTION"):
		return "What will Powell say at his next press conference?"
	case strings.Contains(upper, "TRUMPMENTION"):
		return "What will Trump say during [event]?"
	}
	if fallback != "" {
		return fallback
	}
	return eventTicker
}

func earningsCompany(upperEventTicker string) string {
	_, rest, ok := strings.Cut(upperEventTicker, "EARNINGSMENTION")
	if !ok {
		return ""
	}
	company, _, _ := strings.Cut(rest, "-")
	return company
}

var companyNamePattern = regexp.MustCompile(`(?i)what will (.+?) say during`)

var tickerByName = map[string]string{
	"apple":                           "AAPL",
	"apple inc.":                      "AAPL",
	"alphabet":                        "GOOGL",
	"alphabet inc.":                   "GOOGL",
	"google":                          "GOOGL",
	"microsoft":                       "MSFT",
	"microsoft corporation":           "MSFT",
	"amazon":                          "AMZN",
	"amazon.com":                      "AMZN",
	"tesla":                           "TSLA",
	"tesla inc.":                      "TSLA",
	"meta":                            "META",
	"meta platforms":                  "META",
	"facebook":                        "META",
	"netflix":                         "NFLX",
	"nvidia":                          "NVDA",
	"intel":                           "INTC",
	"intel corporation":               "INTC",
	"ibm":                             "IBM",
	"international business machines": "IBM",
}

// CompanyTicker resolves the stock ticker an earnings event is about. Earnings event tickers
// carry it directly; otherwise the company name is read from a "What will X say during ...
// earnings" title and mapped through known names, falling back to the upper-cased name.
// ok is false for events that are not earnings calls.
func CompanyTicker(title, eventTicker string) (string, bool) {
	if company := earningsCompany(strings.ToUpper(eventTicker)); company != "" {
		return company, true
	}
	if !strings.Contains(strings.ToLower(title), "earnings") {
		return "", false
	}
	match := companyNamePattern.FindStringSubmatch(title)
	if match == nil {
		return "", false
	}
	name := strings.TrimSpace(match[1])
	if name == "" || strings.HasPrefix(name, "[") {
		return "", false
	}
	if t, ok := tickerByName[strings.ToLower(name)]; ok {
		return t, true
	}
	return strings.ToUpper(name), true
}
