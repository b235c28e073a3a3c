// Package notify delivers rule-triggered notifications. Telegram is the
// only shipped channel; the engine depends on the Notifier interface, so
// new channels slot in without touching execution logic.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/engine"
)

// ChatResolver maps a rule owner to their Telegram chat. Zero chat ID means
// the user has not connected Telegram.
type ChatResolver interface {
	TelegramChatID(ctx context.Context, userID string) (int64, error)
}

// messageSender is the slice of the Telegram bot API the dispatcher uses.
// *tgbot.Bot satisfies it; tests substitute fakes.
type messageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramDispatcher implements engine.Notifier over the Telegram Bot API.
type TelegramDispatcher struct {
	sender   messageSender
	resolver ChatResolver
	timeout  time.Duration
}

// NewTelegramDispatcher connects a bot with the given token.
func NewTelegramDispatcher(token string, resolver ChatResolver) (*TelegramDispatcher, error) {
	b, err := tgbot.New(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramDispatcher{sender: b, resolver: resolver, timeout: 10 * time.Second}, nil
}

// Notify renders and delivers one rule-trigger notification. It returns
// delivery success only; it never returns an error, because notification
// failure must not influence the caller's execution outcome.
func (d *TelegramDispatcher) Notify(ctx context.Context, userID string, n engine.Notification) bool {
	chatID, err := d.resolver.TelegramChatID(ctx, userID)
	if err != nil {
		log.Printf("[notify] chat lookup failed for user %s: %v", userID, err)
		return false
	}
	if chatID == 0 {
		log.Printf("[notify] user %s has no telegram chat connected", userID)
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err = d.sender.SendMessage(sendCtx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   RenderMessage(n),
	})
	if err != nil {
		log.Printf("[notify] telegram send failed for user %s: %v", userID, err)
		return false
	}
	return true
}

// RenderMessage builds the outgoing text. A custom message, when present,
// goes through template-variable substitution; otherwise a standard summary
// is produced.
func RenderMessage(n engine.Notification) string {
	if n.CustomMessage != "" {
		return substituteVars(n.CustomMessage, n)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 Rule triggered: %s\n", n.RuleName)
	fmt.Fprintf(&b, "Time: %s\n", n.TriggeredAt.Format("2006-01-02 15:04:05"))
	if len(n.Conditions) > 0 {
		b.WriteString("Conditions:\n")
		for _, c := range n.Conditions {
			fmt.Fprintf(&b, "  • %s %s %g (actual %g)\n", c.Metric, c.Operator, c.ExpectedValue, c.ActualValue)
		}
	}
	if len(n.Actions) > 0 {
		b.WriteString("Actions:\n")
		for _, a := range n.Actions {
			fmt.Fprintf(&b, "  • %s\n", engine.DescribeAction(a.Type, domain.ExecutionData{BudgetTo: a.Value}))
		}
	}
	return b.String()
}

// substituteVars replaces supported template variables in operator-authored
// custom messages. Unknown variables are left as-is.
func substituteVars(msg string, n engine.Notification) string {
	conds := make([]string, 0, len(n.Conditions))
	for _, c := range n.Conditions {
		conds = append(conds, fmt.Sprintf("%s %s %g", c.Metric, c.Operator, c.ExpectedValue))
	}
	acts := make([]string, 0, len(n.Actions))
	for _, a := range n.Actions {
		acts = append(acts, string(a.Type))
	}

	r := strings.NewReplacer(
		"{ruleName}", n.RuleName,
		"{ruleId}", n.RuleID,
		"{time}", n.TriggeredAt.Format("2006-01-02 15:04:05"),
		"{conditions}", strings.Join(conds, ", "),
		"{actions}", strings.Join(acts, ", "),
	)
	return r.Replace(msg)
}
