package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rewired-gh/mentionoracle/internal/kalshi"
	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/models"
	"github.com/rewired-gh/mentionoracle/internal/pricing"
	"github.com/rewired-gh/mentionoracle/internal/transcripts"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFloats(args []string, names ...string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number, got %q", models.ErrInvalidInput, names[i], a)
		}
		out[i] = f
	}
	return out, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runEdge(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: edge HIT_RATE YES_PRICE NO_PRICE")
	}
	v, err := parseFloats(args, "hit rate", "yes price", "no price")
	if err != nil {
		return err
	}
	for i, name := range []string{"hit rate", "yes price", "no price"} {
		if !(v[i] >= 0 && v[i] <= 1) {
			return fmt.Errorf("%w: %s must be between 0 and 1", models.ErrInvalidInput, name)
		}
	}
	return printJSON(pricing.ComputeEdge(v[0], v[1], v[2]))
}

func runKelly(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: kelly BANKROLL WIN_PCT [PRICE_CENTS]")
	}
	v, err := parseFloats(args, "bankroll", "win probability", "market price")
	if err != nil {
		return err
	}
	var price *float64
	if len(v) == 3 {
		price = &v[2]
	}
	res, err := pricing.ComputeStake(v[0], v[1], price)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runQuarters(args []string) error {
	fs := flag.NewFlagSet("quarters", flag.ContinueOnError)
	years := fs.Int("years", 2, "Years to look back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, q := range transcripts.ListPeriods(time.Now(), *years) {
		fmt.Println(q)
	}
	return nil
}

func runMarkets(args []string) error {
	fs := flag.NewFlagSet("markets", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	markets, err := newKalshiClient(cfg).ListMentionMarkets(ctx)
	if err != nil {
		return err
	}

	type group struct {
		EventTicker   string                 `json:"event_ticker"`
		Title         string                 `json:"title"`
		CompanyTicker string                 `json:"company_ticker,omitempty"`
		Markets       []models.MentionMarket `json:"markets"`
	}
	groups := kalshi.GroupByEvent(markets)
	out := make([]group, 0, len(groups))
	for _, g := range groups {
		out = append(out, group{
			EventTicker:   g.EventTicker,
			Title:         g.Title,
			CompanyTicker: g.CompanyTicker,
			Markets:       g.Markets,
		})
	}
	logger.Info("Found %d mention markets in %d events", len(markets), len(groups))
	return printJSON(out)
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	ticker := fs.String("ticker", "", "Company stock ticker, e.g. AAPL")
	quarters := fs.Int("quarters", 0, "Quarters to look back (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ticker == "" || fs.NArg() == 0 {
		return errors.New("usage: analyze -ticker T [-quarters N] TERM...")
	}
	cfg := loadConfig()
	if *quarters <= 0 {
		*quarters = cfg.Transcripts.QuartersBack
	}

	store := openStorage(cfg)
	defer closeStorage(store)

	ctx, cancel := signalContext()
	defer cancel()

	analysis, err := newAnalyzer(cfg, store, nil, *quarters).
		AnalyzeTicker(ctx, strings.ToUpper(*ticker), fs.Args())
	if err != nil {
		return err
	}
	if analysis.InsufficientData {
		fmt.Fprintf(os.Stderr, "%s: %s in the last %d quarters\n", analysis.Ticker, analysis.Message, *quarters)
	}
	return printJSON(analysis)
}
