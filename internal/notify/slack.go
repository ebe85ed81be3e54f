package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxDetailLen = 2000

// SlackSink posts events to a Slack incoming webhook
type SlackSink struct {
	webhookURL string
	httpClient *http.Client
	location   *time.Location
	now        func() time.Time
}

// NewSlackSink creates a webhook sink. Timestamps are shown in loc.
func NewSlackSink(webhookURL string, timeout time.Duration, loc *time.Location) *SlackSink {
	if loc == nil {
		loc = time.UTC
	}
	return &SlackSink{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		location:   loc,
		now:        time.Now,
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

var titles = map[Kind]string{
	ScannerError:     "Scanner Failed",
	ResultsError:     "Results Tracker Failed",
	SchedulerError:   "Scheduler Failed",
	ScannerSuccess:   "Scanner Success",
	ResultsSuccess:   "Results Tracker Success",
	SchedulerSuccess: "Scheduler Success",
	SchedulerNoGames: "Scheduler - No Games",
}

// Notify posts the event
func (s *SlackSink) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(s.payload(ev))
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, string(msg))
	}

	return nil
}

func (s *SlackSink) payload(ev Event) slackPayload {
	title, ok := titles[ev.Kind]
	if !ok {
		title = string(ev.Kind)
	}
	emoji := "✅"
	if ev.Kind.IsError() {
		emoji = "🚨"
	}

	var text strings.Builder
	text.WriteString(ev.Message)
	if len(ev.Context) > 0 {
		text.WriteString("\n")
		for _, f := range ev.Context {
			fmt.Fprintf(&text, "\n*%s:* %s", f.Key, f.Value)
		}
	}
	if ev.Detail != "" {
		fmt.Fprintf(&text, "\n\n```%s```", truncateTail(ev.Detail, maxDetailLen))
	}

	stamp := s.now().In(s.location).Format("2006-01-02 03:04 PM MST")

	return slackPayload{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: emoji + " " + title}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text.String()}},
		{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: "⏰ " + stamp}}},
	}}
}

// truncateTail keeps the last n bytes of s, on a rune boundary.
func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !isRuneStart(s[cut]) {
		cut++
	}
	return s[cut:] + "\n... (truncated)"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
