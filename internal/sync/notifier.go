package sync

import (
	"context"
	"net/http"

	"github.com/herdsync/engine/internal/gateway"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
)

// SummaryNotifier posts a short summary to the server after a session
// syncs. It is strictly best effort: the batch already landed, so a failed
// notification is logged and forgotten, never retried and never allowed to
// fail the sync that triggered it.
type SummaryNotifier struct {
	client *gateway.Client
	log    *observability.Logger
}

// NewSummaryNotifier creates the notifier.
func NewSummaryNotifier(client *gateway.Client) *SummaryNotifier {
	return &SummaryNotifier{
		client: client,
		log:    observability.GetLogger().WithField("component", "notifier"),
	}
}

// Notify sends one summary. All failure modes collapse to a log line.
func (n *SummaryNotifier) Notify(ctx context.Context, summary models.SessionSummary) {
	res, err := n.client.Request(ctx, http.MethodPost, "/api/v1/sessions/summary", summary)
	if err != nil {
		n.log.Warnf("session summary for %d not sent: %v", summary.ServerSessionID, err)
		return
	}
	if !res.OK() {
		n.log.Warnf("session summary for %d rejected: %s", summary.ServerSessionID, res.Message)
	}
}
