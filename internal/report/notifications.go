package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/domain"
)

// Notifier posts a run summary to a webhook (Slack-compatible payload).
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewNotifier(webhookURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type webhookPayload struct {
	Text string `json:"text"`
}

// NotifyRunComplete posts a one-line run summary; a missing webhook
// URL is a no-op, a failed post is logged and swallowed.
func (n *Notifier) NotifyRunComplete(ctx context.Context, run *domain.RunResult, regressions int) error {
	if n.webhookURL == "" {
		return nil
	}

	status := "✅"
	if run.Totals.Failed > 0 || run.Totals.Errored > 0 {
		status = "❌"
	}
	text := fmt.Sprintf("%s QA run %s against %s: %d/%d passed, %d failed, %d skipped",
		status, run.RunID, run.TargetURL, run.Totals.Passed, run.Totals.Total,
		run.Totals.Failed, run.Totals.Skipped)
	if regressions > 0 {
		text += fmt.Sprintf(" — %d regression(s)", regressions)
	}
	if run.Totals.Flaky > 0 {
		text += fmt.Sprintf(" — %d potentially flaky", run.Totals.Flaky)
	}

	body, err := json.Marshal(webhookPayload{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		if n.logger != nil {
			n.logger.Warn("report: webhook notification failed", zap.Error(err))
		}
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && n.logger != nil {
		n.logger.Warn("report: webhook rejected notification", zap.Int("status", resp.StatusCode))
	}
	return nil
}
