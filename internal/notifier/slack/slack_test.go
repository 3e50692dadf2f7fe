package slack

import (
	"context"
	"errors"
	"testing"

	"github.com/scrimlab/overqueue/internal/metrics"
	"github.com/scrimlab/overqueue/internal/roster"
	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSlackAPI is a mock implementation of the parts of the slack.Client that we use.
type mockSlackAPI struct {
	postMessageContextFunc func(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

func (m *mockSlackAPI) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if m.postMessageContextFunc != nil {
		return m.postMessageContextFunc(ctx, channelID, options...)
	}
	return "C12345", "123456789.12345", nil
}

func TestSendMessage_DryRun(t *testing.T) {
	metrics := metrics.NewMock()
	// Pass nil for the api, as it shouldn't be called in dry-run mode.
	notifier := NewWithAPI(nil, "C123", metrics)

	message := slackapi.NewBlockMessage()
	err := notifier.sendMessage(message, true)
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.NotifSent())
}

func TestSendMessage_Success(t *testing.T) {
	postMessageCalled := false
	api := &mockSlackAPI{
		postMessageContextFunc: func(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
			postMessageCalled = true
			assert.Equal(t, "C123", channelID)
			return "C123", "ts123", nil
		},
	}

	metrics := metrics.NewMock()
	notifier := NewWithAPI(api, "C123", metrics)

	message := slackapi.NewBlockMessage(slackapi.NewSectionBlock(slackapi.NewTextBlockObject("plain_text", "hello", false, false), nil, nil))
	err := notifier.sendMessage(message, false)

	require.NoError(t, err)
	assert.True(t, postMessageCalled, "PostMessageContext should have been called")
	assert.Equal(t, 1, metrics.NotifSent())
	assert.Equal(t, 0, metrics.NotifFailed())
}

func TestSendMessage_Failure(t *testing.T) {
	expectedErr := errors.New("slack API is down")
	api := &mockSlackAPI{
		postMessageContextFunc: func(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
			return "", "", expectedErr
		},
	}

	metrics := metrics.NewMock()
	notifier := NewWithAPI(api, "C123", metrics)

	err := notifier.sendMessage(slackapi.NewBlockMessage(), false)

	require.Error(t, err)
	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 0, metrics.NotifSent())
	assert.Equal(t, 1, metrics.NotifFailed())
}

func TestSendEscalation_CallsSender(t *testing.T) {
	postMessageCalled := false
	api := &mockSlackAPI{
		postMessageContextFunc: func(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
			postMessageCalled = true
			return "C123", "ts123", nil
		},
	}

	notifier := NewWithAPI(api, "C123", metrics.NewMock())

	err := notifier.SendEscalation("match-1", "conflicting result reports", false)
	require.NoError(t, err)
	assert.True(t, postMessageCalled, "PostMessageContext should have been called via SendEscalation")
}

func TestSendResultSummary_Blocks(t *testing.T) {
	api := &mockSlackAPI{}
	notifier := NewWithAPI(api, "C123", metrics.NewMock())

	rec := &roster.MatchRecord{
		ID:      "match-1",
		Result:  roster.ResultTeamA,
		MapName: "Ilios",
	}
	changes := []roster.RatingChange{
		{PlayerName: "Player A", MMRBefore: 2500, Delta: 12, MMRAfter: 2512},
		{PlayerName: "Player B", MMRBefore: 2500, Delta: -12, MMRAfter: 2488},
	}

	err := notifier.SendResultSummary(rec, changes, false)
	require.NoError(t, err)
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "Team A wins", resultLabel(roster.ResultTeamA))
	assert.Equal(t, "Team B wins", resultLabel(roster.ResultTeamB))
	assert.Equal(t, "Draw", resultLabel(roster.ResultDraw))
	assert.Equal(t, "Unknown", resultLabel("garbage"))
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "+12", formatDelta(12))
	assert.Equal(t, "-12", formatDelta(-12))
	assert.Equal(t, "+0", formatDelta(0))
}
