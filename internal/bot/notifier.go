package bot

import (
	"context"
	"fmt"

	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// Notifier posts approval-queue and publish events to the operator's chat
// channel. It does not subscribe to the event bus itself: pkg/server's
// relayToNotifier subscribes on its behalf and passes each event to Send,
// which renders it as a chat message instead of a wire frame.
type Notifier struct {
	client *slack.Client
	chatID string
}

// NewNotifier builds a Notifier from a bot token and channel/chat ID. A
// Notifier built with an empty token is inert: Send silently no-ops so the
// core runs without a configured bot.
func NewNotifier(token, chatID string) *Notifier {
	if token == "" {
		return &Notifier{}
	}
	return &Notifier{client: slack.New(token), chatID: chatID}
}

// Send posts a rendered event message to the configured chat channel. A nil
// or inert Notifier is a no-op, so callers don't need to guard on whether a
// bot is configured.
func (n *Notifier) Send(ctx context.Context, eventType models.EventType, payload map[string]any) {
	if n == nil || n.client == nil {
		return
	}
	text := render(eventType, payload)
	if text == "" {
		return
	}
	if _, _, err := n.client.PostMessageContext(ctx, n.chatID, slack.MsgOptionText(text, false)); err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Msg("bot: failed to post chat notification")
	}
}

func render(eventType models.EventType, payload map[string]any) string {
	draftID, _ := payload["draft_id"].(string)
	switch eventType {
	case models.EventApprovalChanged:
		status, _ := payload["status"].(string)
		return fmt.Sprintf("draft %s changed status to %s", draftID, status)
	case models.EventPublishComplete:
		url, _ := payload["url"].(string)
		return fmt.Sprintf("draft %s published: %s", draftID, url)
	case models.EventPublishFailed:
		reason, _ := payload["error"].(string)
		return fmt.Sprintf("draft %s failed to publish: %s", draftID, reason)
	case models.EventRecoveryComplete:
		status, _ := payload["status"].(string)
		return fmt.Sprintf("draft %s recovery finished: %s", draftID, status)
	case models.EventContentStale:
		clientName, _ := payload["client_name"].(string)
		hours, _ := payload["hours_stale"].(float64)
		return fmt.Sprintf("%s has had no approved content for %.0fh", clientName, hours)
	default:
		return ""
	}
}
