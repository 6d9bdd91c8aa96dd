package stats

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

func period(year, quarter int, transcript string) models.Period {
	return models.Period{Ticker: "AAPL", Year: year, Quarter: quarter, Transcript: transcript}
}

func patternPeriods(hits ...bool) []models.Period {
	periods := make([]models.Period, len(hits))
	for i, hit := range hits {
		text := "revenue grew this quarter"
		if hit {
			text = "we talked about tariffs today"
		}
		periods[i] = period(2023+i/4, i%4+1, text)
	}
	return periods
}

func TestStreaks(t *testing.T) {
	tests := []struct {
		name    string
		hits    []bool
		current models.Streak
		longest models.Streak
	}{
		{"empty", nil, models.Streak{Type: models.StreakMiss}, models.Streak{Type: models.StreakMiss}},
		{"single hit", []bool{true}, models.Streak{Type: models.StreakHit, Length: 1}, models.Streak{Type: models.StreakHit, Length: 1}},
		{"all miss", []bool{false, false, false}, models.Streak{Type: models.StreakMiss, Length: 3}, models.Streak{Type: models.StreakMiss, Length: 3}},
		{"mixed", []bool{false, true, true, false, true}, models.Streak{Type: models.StreakHit, Length: 1}, models.Streak{Type: models.StreakHit, Length: 2}},
		{"tie favours hit", []bool{true, true, false, false}, models.Streak{Type: models.StreakMiss, Length: 2}, models.Streak{Type: models.StreakHit, Length: 2}},
		{"longer miss run", []bool{true, false, false, false, true, true}, models.Streak{Type: models.StreakHit, Length: 2}, models.Streak{Type: models.StreakMiss, Length: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.current, CurrentStreak(tt.hits))
			assert.Equal(t, tt.longest, LongestStreak(tt.hits))
		})
	}
}

func TestAnalyzeTerm_Empty(t *testing.T) {
	st, err := AnalyzeTerm("tariff", nil)
	require.NoError(t, err)
	assert.Zero(t, st.HitRate)
	assert.Zero(t, st.TotalMentions)
	assert.Zero(t, st.TotalQuartersAnalyzed)
	assert.Zero(t, st.EmpiricalProbability)
	assert.Zero(t, st.CurrentStreak.Length)
	assert.Zero(t, st.LongestStreak.Length)
	assert.False(t, st.HasData())
	assert.True(t, st.InsufficientData)
}

func TestAnalyzeTerm_InvalidTerm(t *testing.T) {
	_, err := AnalyzeTerm(" / ", patternPeriods(true))
	assert.ErrorIs(t, err, models.ErrInvalidTerm)
}

func TestAnalyzeTerm_AllHits(t *testing.T) {
	st, err := AnalyzeTerm("tariff", patternPeriods(true, true, true, true))
	require.NoError(t, err)
	assert.Equal(t, 1.0, st.HitRate)
	assert.Equal(t, models.Streak{Type: models.StreakHit, Length: 4}, st.CurrentStreak)
	assert.Equal(t, models.Streak{Type: models.StreakHit, Length: 4}, st.LongestStreak)
	assert.Equal(t, 4, st.QuartersWithMentions)
	assert.Equal(t, 4, st.TotalMentions)
	assert.Equal(t, 20, st.TotalWords)
	assert.InDelta(t, 0.2, st.EmpiricalProbability, 1e-9)
	assert.Len(t, st.SampleContexts, 4)
}

func TestAnalyzeTerm_AbsentEverywhere(t *testing.T) {
	st, err := AnalyzeTerm("tariff", patternPeriods(false, false, false))
	require.NoError(t, err)
	assert.Zero(t, st.HitRate)
	assert.Equal(t, models.Streak{Type: models.StreakMiss, Length: 3}, st.CurrentStreak)
	assert.Equal(t, models.Streak{Type: models.StreakMiss, Length: 3}, st.LongestStreak)
	assert.True(t, st.HasData())
	assert.False(t, st.InsufficientData, "zero hits over analyzed periods is evidence of absence")
}

func TestAnalyzeTerm_SampleContextsSpanLines(t *testing.T) {
	st, err := AnalyzeTerm("tariff", []models.Period{period(2025, 1, "Revenue was flat and\ntariffs weighed on margins")})
	require.NoError(t, err)
	require.Len(t, st.SampleContexts, 1)
	assert.Equal(t, "Revenue was flat and tariffs weighed on margins", st.SampleContexts[0])

	require.Len(t, st.Periods[0].Samples, 1)
	assert.NotContains(t, st.Periods[0].Samples[0].Context, "Revenue", "per-line context stays within its line")
}

func TestAnalyzeTerm_PatternAndBreakdown(t *testing.T) {
	st, err := AnalyzeTerm("tariff", patternPeriods(false, true, true, false, true))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, st.HitRate, 1e-9)
	assert.Equal(t, []bool{false, true, true, false, true}, st.HitPattern)
	assert.Equal(t, models.Streak{Type: models.StreakHit, Length: 1}, st.CurrentStreak)
	assert.Equal(t, models.Streak{Type: models.StreakHit, Length: 2}, st.LongestStreak)

	require.Len(t, st.Periods, 5)
	assert.Equal(t, "Q1 2023", st.Periods[0].Label)
	assert.Equal(t, "Q1 2024", st.Periods[4].Label)
	assert.Equal(t, 1, st.Periods[1].Count)
	assert.Equal(t, "Q2 2023", st.Periods[1].Samples[0].Period)
}

func TestAnalyzeTerm_SortsChronologically(t *testing.T) {
	periods := []models.Period{
		period(2025, 2, "tariffs"),
		period(2024, 4, "nothing"),
		period(2025, 1, "nothing"),
	}
	st, err := AnalyzeTerm("tariff", periods)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, st.HitPattern)
	assert.Equal(t, models.Streak{Type: models.StreakHit, Length: 1}, st.CurrentStreak)
	assert.Equal(t, "Q2 2025", periods[0].Label(), "input must not be reordered")
}

func TestAnalyzeTerm_HitRateCountsPeriodsNotWords(t *testing.T) {
	periods := []models.Period{
		period(2025, 1, strings.Repeat("tariff ", 50)),
		period(2025, 2, "no mention"),
	}
	st, err := AnalyzeTerm("tariff", periods)
	require.NoError(t, err)
	assert.Equal(t, 0.5, st.HitRate)
	assert.Equal(t, 50, st.TotalMentions)
	assert.Len(t, st.Periods[0].Samples, MaxSamplesPerPeriod)
	assert.Len(t, st.SampleContexts, MaxSampleContexts)
}

func TestAnalyzeTerm_ZeroWords(t *testing.T) {
	st, err := AnalyzeTerm("tariff", []models.Period{period(2025, 1, "")})
	require.NoError(t, err)
	assert.Zero(t, st.EmpiricalProbability)
	assert.Zero(t, st.HitRate)
	assert.Equal(t, 1, st.TotalQuartersAnalyzed)
}

func TestAnalyzeMultipleTerms_IsolatesErrors(t *testing.T) {
	results := AnalyzeMultipleTerms([]string{"tariff", "", "AI/Artificial Intelligence"}, []models.Period{
		period(2025, 1, "Artificial intelligence and tariffs"),
		period(2025, 2, "AI only"),
	})
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, 0.5, results[0].Stats.HitRate)

	assert.ErrorIs(t, results[1].Err, models.ErrInvalidTerm)
	assert.Nil(t, results[1].Stats)

	assert.NoError(t, results[2].Err)
	assert.Equal(t, 1.0, results[2].Stats.HitRate)
}

type fakeCorpus struct {
	periods map[string][]models.Period
	fail    map[string]error
	calls   atomic.Int32
}

func (f *fakeCorpus) FetchPeriods(_ context.Context, ticker string, _ int) ([]models.Period, error) {
	f.calls.Add(1)
	if err := f.fail[ticker]; err != nil {
		return nil, err
	}
	return f.periods[ticker], nil
}

func TestAnalyzer_AnalyzeTicker(t *testing.T) {
	corpus := &fakeCorpus{periods: map[string][]models.Period{"AAPL": patternPeriods(true, false, true)}}
	a := NewAnalyzer(corpus, 8, 2)

	res, err := a.AnalyzeTicker(context.Background(), "AAPL", []string{"tariff", "iPhone"})
	require.NoError(t, err)
	assert.True(t, res.HasData())
	assert.Equal(t, 3, res.QuartersAnalyzed)
	assert.Len(t, res.Periods, 3)
	require.NotNil(t, res.Stats("tariff"))
	assert.InDelta(t, 2.0/3.0, res.Stats("tariff").HitRate, 1e-9)
	assert.Equal(t, "AAPL", res.Stats("tariff").Ticker)
	assert.Zero(t, res.Stats("iPhone").HitRate)
	assert.Nil(t, res.Stats("unknown"))
}

func TestAnalyzer_NoDataIsNotAnError(t *testing.T) {
	a := NewAnalyzer(&fakeCorpus{}, 8, 2)
	res, err := a.AnalyzeTicker(context.Background(), "ZZZZ", []string{"tariff"})
	require.NoError(t, err)
	assert.False(t, res.HasData())
	assert.Zero(t, res.Stats("tariff").TotalQuartersAnalyzed)
	assert.True(t, res.InsufficientData)
	assert.Equal(t, InsufficientDataMessage, res.Message)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"insufficient_data":true`)
	assert.Contains(t, string(out), `"message":"insufficient historical data`)
}

func TestAnalyzer_DataIsNotInsufficient(t *testing.T) {
	corpus := &fakeCorpus{periods: map[string][]models.Period{"AAPL": patternPeriods(false, false)}}
	res, err := NewAnalyzer(corpus, 8, 2).AnalyzeTicker(context.Background(), "AAPL", []string{"tariff"})
	require.NoError(t, err)
	assert.False(t, res.InsufficientData)
	assert.Empty(t, res.Message)
	assert.False(t, res.Stats("tariff").InsufficientData)
}

func TestAnalyzer_FetchFailure(t *testing.T) {
	cause := &models.FetchError{Ticker: "MSFT", Year: 2025, Quarter: 1, Err: errors.New("503")}
	a := NewAnalyzer(&fakeCorpus{fail: map[string]error{"MSFT": cause}}, 8, 2)

	res, err := a.AnalyzeTicker(context.Background(), "MSFT", []string{"cloud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MSFT")
	var fe *models.FetchError
	assert.ErrorAs(t, err, &fe)
	assert.Zero(t, res.QuartersAnalyzed)
	assert.Empty(t, res.Results)
	assert.False(t, res.HasData())
}

func TestAnalyzer_AnalyzeMultipleTickers(t *testing.T) {
	corpus := &fakeCorpus{
		periods: map[string][]models.Period{
			"AAPL":  patternPeriods(true, true),
			"GOOGL": patternPeriods(false, true),
		},
		fail: map[string]error{"MSFT": errors.New("provider down")},
	}
	a := NewAnalyzer(corpus, 4, 2)

	results := a.AnalyzeMultipleTickers(context.Background(), map[string][]string{
		"AAPL":  {"tariff"},
		"GOOGL": {"tariff"},
		"MSFT":  {"tariff"},
	})
	require.Len(t, results, 3)
	assert.Equal(t, int32(3), corpus.calls.Load())
	assert.Equal(t, 1.0, results["AAPL"].Stats("tariff").HitRate)
	assert.Equal(t, 0.5, results["GOOGL"].Stats("tariff").HitRate)
	assert.Error(t, results["MSFT"].Err)
}
