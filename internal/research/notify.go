package research

import (
	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/models"
)

func notifyKey(o models.Opportunity) string {
	return o.MarketTicker + ":" + string(o.Side)
}

// FilterRecentlySent drops opportunities already sent within the cooldown unless their
// edge has grown since.
func (r *Researcher) FilterRecentlySent(opps []models.Opportunity) []models.Opportunity {
	now := r.now()
	var result []models.Opportunity
	for _, o := range opps {
		rec, exists := r.notified[notifyKey(o)]
		if exists && now.Sub(rec.SentAt) < r.config.NotifyCooldown && o.Edge <= rec.Edge {
			continue
		}
		result = append(result, o)
	}
	return result
}

// RecordNotified remembers what was sent for the cooldown filter.
func (r *Researcher) RecordNotified(opps []models.Opportunity) {
	now := r.now()
	for _, o := range opps {
		r.notified[notifyKey(o)] = notifiedRecord{Edge: o.Edge, SentAt: now}
	}
}

// PostProcess trims a report to the top K fresh opportunities per side. It returns nil when
// nothing is worth sending.
func (r *Researcher) PostProcess(report *models.Report) *models.Report {
	yes := r.FilterRecentlySent(report.YesOpportunities)
	no := r.FilterRecentlySent(report.NoOpportunities)
	if len(yes) == 0 && len(no) == 0 {
		return nil
	}
	if r.config.TopK > 0 {
		yes = yes[:min(len(yes), r.config.TopK)]
		no = no[:min(len(no), r.config.TopK)]
	}
	out := *report
	out.YesOpportunities = yes
	out.NoOpportunities = no
	return &out
}

func (r *Researcher) notify(report *models.Report) {
	if r.notifier == nil {
		logger.Debug("Opportunities found but notifications disabled")
		return
	}
	filtered := r.PostProcess(report)
	if filtered == nil {
		logger.Info("No new opportunities to notify this cycle")
		return
	}
	if err := r.notifier.Send(filtered); err != nil {
		logger.Error("Failed to send notification: %v", err)
		return
	}
	r.RecordNotified(filtered.Opportunities())
	logger.Info("Sent notification with %d YES and %d NO opportunities",
		len(filtered.YesOpportunities), len(filtered.NoOpportunities))
	if r.store != nil {
		if err := r.store.MarkNotified(report.RunID); err != nil {
			logger.Warn("Failed to mark run %s notified: %v", report.RunID, err)
		}
	}
}
