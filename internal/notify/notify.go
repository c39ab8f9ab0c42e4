// Package notify posts one-line operator alerts about automatic index
// mutation events (primarily rollbacks), on top of the
// github.com/slack-go/slack client. It is optional: constructed with an
// empty bot token, it becomes a silent no-op.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// Notifier posts index-mutation alerts to a single configured channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	log     *slog.Logger
}

// New creates a Notifier. If botToken is empty, IsEnabled reports false
// and every post is a logged no-op.
func New(botToken, channel string, log *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, log: log}
}

// IsEnabled reports whether the notifier has a usable client and channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyRollback posts a one-line summary of an automatic rollback. It
// satisfies rollback.Notifier.
func (n *Notifier) NotifyRollback(ctx context.Context, original domain.Mutation, reason string) error {
	text := fmt.Sprintf(":leftwards_arrow_with_hook: rolled back mid=%d index=%s table=%s: %s",
		original.MID, original.Index, original.Table, reason)

	if !n.IsEnabled() {
		n.log.Debug("slack notifier disabled, skipping rollback alert", "mid", original.MID)
		return nil
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting rollback alert to slack: %w", err)
	}
	return nil
}

// NotifyPromotion posts a one-line summary of a canary promotion or
// rejection decided by the safeguards A/B gate.
func (n *Notifier) NotifyPromotion(ctx context.Context, table, indexName string, promoted bool, detail string) error {
	verb := "promoted"
	if !promoted {
		verb = "rejected"
	}
	text := fmt.Sprintf(":vertical_traffic_light: canary %s for index=%s table=%s: %s", verb, indexName, table, detail)

	if !n.IsEnabled() {
		n.log.Debug("slack notifier disabled, skipping canary alert", "index", indexName)
		return nil
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting canary alert to slack: %w", err)
	}
	return nil
}
