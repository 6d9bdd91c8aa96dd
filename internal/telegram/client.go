// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/models"
	"github.com/rewired-gh/mentionoracle/internal/pricing"
)

// OpportunitySource answers the /top command.
type OpportunitySource interface {
	GetTopOpportunities(k int) ([]models.Opportunity, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	topK           int
	source         OpportunitySource
}

// NewClient creates a new Telegram client. topK caps the opportunities listed per side.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, topK int) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if topK <= 0 {
		topK = 10
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		topK:           topK,
	}, nil
}

// SetOpportunitySource enables the /top command.
func (c *Client) SetOpportunitySource(src OpportunitySource) {
	c.source = src
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	var reply tgbotapi.MessageConfig
	switch msg.Command() {
	case "ping":
		reply = tgbotapi.NewMessage(msg.Chat.ID, "Pong")
	case "kelly":
		reply = tgbotapi.NewMessage(msg.Chat.ID, kellyReply(msg.CommandArguments()))
		reply.ParseMode = "MarkdownV2"
	case "top":
		reply = tgbotapi.NewMessage(msg.Chat.ID, c.topReply())
		reply.ParseMode = "MarkdownV2"
	default:
		return
	}
	if _, err := c.bot.Send(reply); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

const kellyUsage = "Usage: /kelly <bankroll> <win%> [price_cents]"

// kellyReply answers "/kelly 1000 60 45" with a MarkdownV2 stake recommendation.
func kellyReply(args string) string {
	fields := strings.Fields(args)
	if len(fields) < 2 || len(fields) > 3 {
		return escapeMarkdownV2(kellyUsage)
	}
	nums := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSuffix(f, "%"), 64)
		if err != nil {
			return escapeMarkdownV2(fmt.Sprintf("Not a number: %q\n%s", f, kellyUsage))
		}
		nums[i] = v
	}
	var price *float64
	if len(nums) == 3 {
		price = &nums[2]
	}

	res, err := pricing.ComputeStake(nums[0], nums[1], price)
	if err != nil {
		return escapeMarkdownV2(err.Error())
	}
	return formatStake(res)
}

func formatStake(r *models.BetSizingResult) string {
	var b strings.Builder
	b.WriteString("🎲 *Kelly sizing*\n")
	fmt.Fprintf(&b, "Bankroll: %s\n", escapeMarkdownV2(fmt.Sprintf("$%.2f", r.Bankroll)))
	fmt.Fprintf(&b, "Win probability: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", r.WinProbability)))
	fmt.Fprintf(&b, "Odds: %s\n", escapeMarkdownV2(fmt.Sprintf("%.3f", r.Odds)))
	fmt.Fprintf(&b, "Kelly fraction: %s\n", escapeMarkdownV2(fmt.Sprintf("%.2f%%", r.KellyFraction*100)))
	fmt.Fprintf(&b, "Stake: *%s*\n", escapeMarkdownV2(fmt.Sprintf("$%.2f", r.RecommendedStake)))
	if r.SuggestHalfKelly {
		fmt.Fprintf(&b, "Half Kelly: %s\n", escapeMarkdownV2(fmt.Sprintf("$%.2f", r.HalfKellyStake)))
	}
	fmt.Fprintf(&b, "_%s_", escapeMarkdownV2(r.Annotation))
	return b.String()
}

func (c *Client) topReply() string {
	if c.source == nil {
		return escapeMarkdownV2("No opportunity history available.")
	}
	opps, err := c.source.GetTopOpportunities(c.topK)
	if err != nil {
		return escapeMarkdownV2(fmt.Sprintf("Failed to load opportunities: %v", err))
	}
	if len(opps) == 0 {
		return escapeMarkdownV2("No opportunities recorded yet.")
	}
	var b strings.Builder
	b.WriteString("🏆 *Top opportunities*\n\n")
	for i, o := range opps {
		b.WriteString(formatOpportunity(i+1, o))
	}
	return b.String()
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a research-cycle error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Research error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Research recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send sends the opportunities of a research run.
func (c *Client) Send(report *models.Report) error {
	return c.sendMarkdownV2(formatReport(report, c.topK))
}

// formatReport formats a run's YES and NO opportunities into a Telegram MarkdownV2 message.
func formatReport(r *models.Report, topK int) string {
	var b strings.Builder
	b.WriteString("📢 *Mention Market Opportunities*\n\n")
	dateStr := escapeMarkdownV2(r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "📅 Run: %s \\(%d markets\\)\n\n", dateStr, r.MarketsScanned)

	sections := []struct {
		title string
		opps  []models.Opportunity
	}{
		{"✅ *Bet YES*", r.YesOpportunities},
		{"❌ *Bet NO*", r.NoOpportunities},
	}
	for _, s := range sections {
		if len(s.opps) == 0 {
			continue
		}
		b.WriteString(s.title + "\n")
		for i, o := range s.opps {
			if i >= topK {
				fmt.Fprintf(&b, "   _%d more_\n", len(s.opps)-topK)
				break
			}
			b.WriteString(formatOpportunity(i+1, o))
		}
		b.WriteString("\n")
	}
	if len(r.YesOpportunities) == 0 && len(r.NoOpportunities) == 0 {
		b.WriteString("No positive\\-edge markets this run\\.\n")
	}
	return b.String()
}

func formatOpportunity(rank int, o models.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\\. *%s* %s: %s\n", rank,
		escapeMarkdownV2(o.CompanyTicker), escapeMarkdownV2(string(o.Side)), escapeMarkdownV2(o.Term))
	fmt.Fprintf(&b, "   🎯 hit %s vs ask %s, edge *%s*\n",
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", o.HitRate*100)),
		escapeMarkdownV2(fmt.Sprintf("%.0f¢", o.AskPrice*100)),
		escapeMarkdownV2(fmt.Sprintf("%+.1f%%", o.Edge*100)))
	fmt.Fprintf(&b, "   📊 %d quarters, streak %s",
		o.QuartersAnalyzed, escapeMarkdownV2(o.CurrentStreak.String()))
	if o.SuggestedStake > 0 {
		fmt.Fprintf(&b, ", stake %s", escapeMarkdownV2(fmt.Sprintf("$%.2f", o.SuggestedStake)))
	}
	b.WriteString("\n")
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
