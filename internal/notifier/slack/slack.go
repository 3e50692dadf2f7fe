package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/scrimlab/overqueue/internal/metrics"
	"github.com/scrimlab/overqueue/internal/notifier"
	"github.com/scrimlab/overqueue/internal/roster"
	"github.com/slack-go/slack"
)

// slackClient is an interface that contains the methods from the slack.Client that we use.
// This allows for easy mocking in tests.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

var _ notifier.Notifier = &Notifier{}

// Notifier handles sending escalation and result notifications to Slack.
type Notifier struct {
	api       slackClient
	channelID string
	metrics   metrics.Metrics
}

// New creates a new Notifier.
func New(token, channelID string, metrics metrics.Metrics) *Notifier {
	api := slack.New(token)
	return &Notifier{
		api:       api,
		channelID: channelID,
		metrics:   metrics,
	}
}

// NewWithAPI creates a new Notifier with a specific client instance.
// Useful for tests that need to intercept API calls.
func NewWithAPI(api slackClient, channelID string, metrics metrics.Metrics) *Notifier {
	return &Notifier{
		api:       api,
		channelID: channelID,
		metrics:   metrics,
	}
}

func (s *Notifier) sendMessage(message slack.Message, dryRun bool) error {
	if dryRun {
		jsonMsg, _ := json.MarshalIndent(message, "", "  ")
		log.Info("[Dry Run] Would send Slack message", "channel", s.channelID, "message", string(jsonMsg))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := s.api.PostMessageContext(
		ctx,
		s.channelID,
		slack.MsgOptionBlocks(message.Blocks.BlockSet...),
		slack.MsgOptionAsUser(true),
	)
	if err != nil {
		s.metrics.IncNotifFailed()
		log.Error("Failed to send Slack message", "error", err)
		return err
	}
	s.metrics.IncNotifSent()
	return nil
}

// SendEscalation raises a disputed-reports escalation. Deliberately no
// channel-wide mention: admins watch this channel already.
func (s *Notifier) SendEscalation(matchID, reason string, dryRun bool) error {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", "Match needs an admin", true, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject("plain_text",
			fmt.Sprintf("Match: %s\nReason: %s", matchID, reason), true, false), nil, nil),
	}
	return s.sendMessage(slack.NewBlockMessage(blocks...), dryRun)
}

// SendResultSummary announces a settled match with per-player rating movement.
func (s *Notifier) SendResultSummary(rec *roster.MatchRecord, changes []roster.RatingChange, dryRun bool) error {
	blocks := make([]slack.Block, 0)
	blocks = append(blocks, slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", "Match complete", true, false)))

	details := fmt.Sprintf("Result: %s", resultLabel(rec.Result))
	if rec.MapName != "" {
		details += "\nMap: " + rec.MapName
	}
	blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject("plain_text", details, true, false), nil, nil))

	var lines []string
	for _, change := range changes {
		lines = append(lines, fmt.Sprintf("%s %s (%d → %d)", formatDelta(change.Delta), change.PlayerName, change.MMRBefore, change.MMRAfter))
	}
	if len(lines) > 0 {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject("plain_text", strings.Join(lines, "\n"), true, false), nil, nil))
	}
	return s.sendMessage(slack.NewBlockMessage(blocks...), dryRun)
}

// SendMatchCancelled announces an admin cancellation.
func (s *Notifier) SendMatchCancelled(matchID string, requeued int, dryRun bool) error {
	text := fmt.Sprintf("Match %s was cancelled.", matchID)
	if requeued > 0 {
		text += fmt.Sprintf(" %d players returned to the queue.", requeued)
	}
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("plain_text", text, true, false), nil, nil),
	}
	return s.sendMessage(slack.NewBlockMessage(blocks...), dryRun)
}

func resultLabel(result string) string {
	switch result {
	case roster.ResultTeamA:
		return "Team A wins"
	case roster.ResultTeamB:
		return "Team B wins"
	case roster.ResultDraw:
		return "Draw"
	default:
		return "Unknown"
	}
}

func formatDelta(delta int) string {
	if delta >= 0 {
		return fmt.Sprintf("+%d", delta)
	}
	return fmt.Sprintf("%d", delta)
}
