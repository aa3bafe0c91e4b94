package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxListedSources caps the per-source lines in one alert.
const maxListedSources = 5

// SlackNotifier posts an alert for every lookup flagged by at least minFlagged sources.
// It satisfies ports.ResultPublisher, so it plugs in next to the NATS publisher.
type SlackNotifier struct {
	botToken    string
	channel     string
	mentionTeam string
	minFlagged  int
	apiURL      string
	httpClient  *http.Client
}

type Option func(*SlackNotifier)

// WithAPIURL points the notifier at another chat.postMessage endpoint.
func WithAPIURL(u string) Option {
	return func(s *SlackNotifier) { s.apiURL = u }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *SlackNotifier) { s.httpClient = c }
}

func NewSlackNotifier(botToken, channel, mentionTeam string, minFlagged int, opts ...Option) *SlackNotifier {
	if minFlagged < 1 {
		minFlagged = 1
	}
	s := &SlackNotifier{
		botToken:    botToken,
		channel:     channel,
		mentionTeam: mentionTeam,
		minFlagged:  minFlagged,
		apiURL:      slackPostMessageURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish alerts on flagged lookups and ignores everything else.
func (s *SlackNotifier) Publish(ctx context.Context, record domain.LookupRecord) error {
	if record.Summary.Flagged < s.minFlagged {
		return nil
	}

	payload := SlackMessage{
		Channel: s.channel,
		Blocks:  s.buildFlaggedBlocks(record),
		Text:    fmt.Sprintf("🚨 %s flagged by %d sources: %s", record.Type, record.Summary.Flagged, record.Indicator),
	}
	return s.sendMessage(ctx, payload)
}

// Close is a no-op; the notifier holds no connection.
func (s *SlackNotifier) Close() error {
	return nil
}

func (s *SlackNotifier) buildFlaggedBlocks(record domain.LookupRecord) []SlackBlock {
	flaggedBy := make([]string, len(record.Summary.FlaggedBy))
	for i, name := range record.Summary.FlaggedBy {
		flaggedBy[i] = string(name)
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{
				Type: "plain_text",
				Text: "🚨 Flagged Indicator",
			},
		},
		{
			Type: "section",
			Fields: []SlackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Value*\n`%s`", record.Indicator)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Type*\n%s", record.Type)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Flagged*\n%d of %d sources", record.Summary.Flagged, record.Summary.Queried)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Defanged input*\n%t", record.WasDefanged)},
			},
		},
		{Type: "divider"},
	}

	lines := make([]string, 0, maxListedSources+1)
	for i, name := range flaggedBy {
		if i == maxListedSources {
			lines = append(lines, fmt.Sprintf("_...and %d more sources_", len(flaggedBy)-maxListedSources))
			break
		}
		lines = append(lines, "• "+name)
	}
	blocks = append(blocks, SlackBlock{
		Type: "section",
		Text: &SlackText{
			Type: "mrkdwn",
			Text: "*Flagged by*\n" + strings.Join(lines, "\n"),
		},
	})

	blocks = append(blocks, SlackBlock{
		Type: "context",
		Elements: []SlackText{
			{Type: "mrkdwn", Text: fmt.Sprintf("Lookup `%s` at %s", record.ID, record.Timestamp.UTC().Format(time.RFC3339))},
		},
	})

	if s.mentionTeam != "" {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("🔔 %s", s.mentionTeam),
			},
		})
	}

	return blocks
}

// slackResponse is the chat.postMessage envelope; Slack reports errors with HTTP 200.
type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *SlackNotifier) sendMessage(ctx context.Context, msg SlackMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.botToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	var reply slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("failed to decode Slack response: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("slack API error: %s", reply.Error)
	}

	return nil
}

// Slack API structures

type SlackMessage struct {
	Channel string       `json:"channel"`
	Blocks  []SlackBlock `json:"blocks"`
	Text    string       `json:"text"` // Fallback text
}

type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
