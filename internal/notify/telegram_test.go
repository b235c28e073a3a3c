package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/engine"
)

type fakeSender struct {
	sent []*tgbot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &tgmodels.Message{}, nil
}

type fakeResolver struct {
	chatID int64
	err    error
}

func (f *fakeResolver) TelegramChatID(context.Context, string) (int64, error) {
	return f.chatID, f.err
}

func sampleNotification() engine.Notification {
	return engine.Notification{
		RuleName:    "Pause losers",
		RuleID:      "R1",
		TriggeredAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Conditions: []domain.ConditionEvaluation{
			{Metric: "ctr", Operator: domain.OpGT, ExpectedValue: 10, ActualValue: 12.5, Met: true},
		},
		Actions: []domain.Action{{Type: domain.ActionPause}},
	}
}

func TestNotifyDelivers(t *testing.T) {
	sender := &fakeSender{}
	d := &TelegramDispatcher{sender: sender, resolver: &fakeResolver{chatID: 777}, timeout: time.Second}

	ok := d.Notify(context.Background(), "u1", sampleNotification())

	require.True(t, ok)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(777), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "Pause losers")
	assert.Contains(t, sender.sent[0].Text, "ctr > 10")
}

func TestNotifyNoChatConnected(t *testing.T) {
	sender := &fakeSender{}
	d := &TelegramDispatcher{sender: sender, resolver: &fakeResolver{chatID: 0}, timeout: time.Second}

	assert.False(t, d.Notify(context.Background(), "u1", sampleNotification()))
	assert.Empty(t, sender.sent)
}

func TestNotifyResolverError(t *testing.T) {
	d := &TelegramDispatcher{
		sender:   &fakeSender{},
		resolver: &fakeResolver{err: errors.New("db down")},
		timeout:  time.Second,
	}
	assert.False(t, d.Notify(context.Background(), "u1", sampleNotification()))
}

func TestNotifySendFailure(t *testing.T) {
	d := &TelegramDispatcher{
		sender:   &fakeSender{err: errors.New("telegram: 502")},
		resolver: &fakeResolver{chatID: 777},
		timeout:  time.Second,
	}
	assert.False(t, d.Notify(context.Background(), "u1", sampleNotification()))
}

func TestRenderMessageCustomTemplate(t *testing.T) {
	n := sampleNotification()
	n.CustomMessage = "Rule {ruleName} ({ruleId}) fired at {time}: {conditions} -> {actions}"

	got := RenderMessage(n)

	assert.Equal(t, "Rule Pause losers (R1) fired at 2026-03-14 09:30:00: ctr > 10 -> pause", got)
}

func TestRenderMessageUnknownVariableKept(t *testing.T) {
	n := sampleNotification()
	n.CustomMessage = "hello {nope}"
	assert.Equal(t, "hello {nope}", RenderMessage(n))
}

func TestRenderMessageDefaultSummary(t *testing.T) {
	got := RenderMessage(sampleNotification())
	assert.Contains(t, got, "Rule triggered: Pause losers")
	assert.Contains(t, got, "ctr > 10 (actual 12.5)")
	assert.Contains(t, got, "Pause campaign")
}
