package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/mentionoracle/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"AI/Artificial Intelligence", "AI/Artificial Intelligence"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// Chat ID parsing happens before any network call.
	_, err := NewClient("", "not-a-number", 3, time.Second, 10)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestKellyReply(t *testing.T) {
	tests := []struct {
		name string
		args string
		want []string
	}{
		{
			name: "priced bet with half kelly",
			args: "1000 60 45",
			want: []string{"$272\\.73", "Half Kelly: $136\\.36", "Edge: 33\\.33%"},
		},
		{
			name: "even money without edge",
			args: "1000 40%",
			want: []string{"$0\\.00", "No positive edge \\- don't bet"},
		},
		{
			name: "missing arguments",
			args: "1000",
			want: []string{"Usage: /kelly"},
		},
		{
			name: "not a number",
			args: "lots 60",
			want: []string{"Not a number"},
		},
		{
			name: "invalid input",
			args: "-5 60",
			want: []string{"invalid input"},
		},
		{
			name: "NaN probability",
			args: "1000 NaN",
			want: []string{"invalid input"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kellyReply(tt.args)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("kellyReply(%q) = %q, missing %q", tt.args, got, w)
				}
			}
		})
	}
}

func testOpportunity(term string, side models.Side, edge float64) models.Opportunity {
	return models.Opportunity{
		CompanyTicker:    "AAPL",
		Term:             term,
		Side:             side,
		HitRate:          0.75,
		AskPrice:         0.45,
		Edge:             edge,
		QuartersAnalyzed: 8,
		CurrentStreak:    models.Streak{Type: models.StreakHit, Length: 3},
		SuggestedStake:   120.5,
	}
}

func TestFormatReport(t *testing.T) {
	report := &models.Report{
		StartedAt:      time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
		MarketsScanned: 12,
		YesOpportunities: []models.Opportunity{
			testOpportunity("AI", models.SideYes, 0.30),
			testOpportunity("China", models.SideYes, 0.20),
			testOpportunity("Tariff", models.SideYes, 0.10),
		},
		NoOpportunities: []models.Opportunity{
			testOpportunity("Recession", models.SideNo, 0.08),
		},
	}

	msg := formatReport(report, 2)

	for _, want := range []string{
		"2026\\-10\\-15 09:30:00",
		"12 markets",
		"*Bet YES*",
		"1\\. *AAPL* YES: AI",
		"edge *\\+30\\.0%*",
		"streak 3 hit",
		"stake $120\\.50",
		"_1 more_",
		"*Bet NO*",
		"1\\. *AAPL* NO: Recession",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Tariff") {
		t.Error("opportunities beyond top k should be collapsed")
	}
}

func TestFormatReport_Empty(t *testing.T) {
	msg := formatReport(&models.Report{StartedAt: time.Now()}, 5)
	if !strings.Contains(msg, "No positive\\-edge markets") {
		t.Errorf("expected empty-run notice, got:\n%s", msg)
	}
}

type stubSource struct {
	opps []models.Opportunity
}

func (s stubSource) GetTopOpportunities(k int) ([]models.Opportunity, error) {
	if k < len(s.opps) {
		return s.opps[:k], nil
	}
	return s.opps, nil
}

func TestTopReply(t *testing.T) {
	c := &Client{topK: 1}
	if got := c.topReply(); !strings.Contains(got, "No opportunity history") {
		t.Errorf("expected missing-source notice, got %q", got)
	}

	c.SetOpportunitySource(stubSource{opps: []models.Opportunity{
		testOpportunity("AI", models.SideYes, 0.3),
		testOpportunity("China", models.SideYes, 0.2),
	}})
	got := c.topReply()
	if !strings.Contains(got, "AI") || strings.Contains(got, "China") {
		t.Errorf("expected only the top opportunity, got %q", got)
	}
}
