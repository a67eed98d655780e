// internal/types/interfaces.go
package types

import (
	"context"

	"github.com/slack-go/slack"
)

// ChatMessage is the assembled platform payload for one outbound message.
// Fallback is the notification-safe plain-text summary; Blocks and
// Attachments carry the rich content.
type ChatMessage struct {
	Fallback    string
	Blocks      []slack.Block
	Attachments []slack.Attachment
}

// ChatService is the narrow interface over the messaging platform. All
// operations are fallible remote calls; callers decide which failures are
// critical. Reactions in particular are best-effort.
type ChatService interface {
	SendMessage(ctx context.Context, channel, threadTS string, msg *ChatMessage) (ts string, err error)
	UpdateMessage(ctx context.Context, channel, ts string, msg *ChatMessage) error
	AddReaction(ctx context.Context, channel, ts, name string) error
	RemoveReaction(ctx context.Context, channel, ts, name string) error
	History(ctx context.Context, channel string, limit int) ([]Message, error)
	UserIdentity(ctx context.Context, userID string) (string, error)
}
