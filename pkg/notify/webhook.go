package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/types"
)

// Message is one outcome notification
type Message struct {
	Header  string
	Body    string
	Success bool
}

// Notifier delivers run outcome notifications. Delivery is best effort:
// implementations log failures and never return them.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// NopNotifier discards all messages
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, msg Message) {}

// WebhookNotifier posts messages to Slack-compatible webhook URLs, one per
// outcome. An empty URL disables that outcome.
type WebhookNotifier struct {
	successURL string
	failureURL string
	client     *http.Client
}

// NewWebhookNotifier creates a notifier for the given webhook config
func NewWebhookNotifier(cfg types.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		successURL: cfg.SuccessURL,
		failureURL: cfg.FailureURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts the message to the URL for its outcome. Failures are logged
// and swallowed: a dead webhook must never fail a run.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) {
	url := n.failureURL
	if msg.Success {
		url = n.successURL
	}
	if url == "" {
		return
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{"type": "plain_text", "text": msg.Header},
			},
			{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": msg.Body},
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Logger.Error().Err(err).Msg("Failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		log.Logger.Error().Err(err).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Logger.Error().Err(err).Msg("Failed to deliver webhook notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Logger.Error().Int("status", resp.StatusCode).Msg("Webhook notification rejected")
		return
	}

	log.Logger.Info().Bool("success", msg.Success).Msg("Delivered run notification")
}

// BuildMessage summarizes a closed run into a notification
func BuildMessage(record types.RunRecord) Message {
	success := record.AllSucceeded()

	var header string
	if success {
		header = fmt.Sprintf("✅ Run #%d: all %d instances synced", record.Count, len(record.Instances))
	} else {
		header = fmt.Sprintf("❌ Run #%d failed", record.Count)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("*Run:* %s (#%d)", record.ID, record.Count))
	lines = append(lines, fmt.Sprintf("*Duration:* %s", record.Duration.Round(time.Second)))
	if record.Commit != "" {
		lines = append(lines, fmt.Sprintf("*Commit:* %s", record.Commit))
	}
	for _, inst := range record.Instances {
		line := fmt.Sprintf("*%s:* %s", inst.Name, inst.State)
		if inst.State == types.InstanceSuccess {
			line += fmt.Sprintf(" (synced in %s, block %d)", inst.SyncDuration.Round(time.Second), inst.LastProgress)
		} else if inst.Error != "" {
			line += fmt.Sprintf(": %s", inst.Error)
		}
		lines = append(lines, line)
	}

	return Message{
		Header:  header,
		Body:    strings.Join(lines, "\n"),
		Success: success,
	}
}
