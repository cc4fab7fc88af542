package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hakim/autopent/internal/models"
)

// NotifyConfig configures where to send completion notifications.
type NotifyConfig struct {
	WebhookURL string // if empty, no notifications
	Client     *http.Client
}

// completionPayload is the JSON body posted to the webhook endpoint.
type completionPayload struct {
	Target         string            `json:"target"`
	RunID          string            `json:"run_id"`
	State          models.RunState   `json:"state"`
	StagesRun      []string          `json:"stages_run"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	MatchCount     int               `json:"match_count"`
	Exploited      bool              `json:"exploited"`
	AbortReason    string            `json:"abort_reason,omitempty"`
	ReportPath     string            `json:"report_path,omitempty"`
	Errors         map[string]string `json:"errors"`
}

// SendCompletion posts a JSON summary of result to the webhook URL.
// Returns nil if WebhookURL is empty (no-op). Errors are returned but callers
// should treat them as warnings.
func (n *NotifyConfig) SendCompletion(ctx context.Context, result *models.AssessmentResult) error {
	if n == nil || n.WebhookURL == "" || result == nil {
		return nil
	}

	payload := completionPayload{
		Target:         result.Target.Host,
		RunID:          result.RunID,
		State:          result.State,
		StagesRun:      result.StagesRun,
		ElapsedSeconds: result.Elapsed().Seconds(),
		MatchCount:     len(result.Matches),
		Exploited:      result.Exploit != nil && result.Exploit.Success,
		AbortReason:    result.AbortReason,
		ReportPath:     result.ReportPath,
		Errors:         result.StageErrors,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: posting to %s: %w", n.WebhookURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned non-2xx status %d", resp.StatusCode)
	}

	return nil
}
