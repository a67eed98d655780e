package slackbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"

	"github.com/user/slackclaw/internal/types"
)

// slackAPI is the slice of the Slack Web API the bridge actually calls.
// *slack.Client satisfies it; tests substitute a fake.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
	RemoveReactionContext(ctx context.Context, name string, item slack.ItemRef) error
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

// Client implements types.ChatService over the Slack Web API, retrying
// transient failures per its RetryPolicy.
type Client struct {
	api   slackAPI
	retry *RetryPolicy
}

// NewClient wraps a Slack API client.
func NewClient(api slackAPI) *Client {
	return &Client{api: api, retry: DefaultRetryPolicy()}
}

// SetRetryPolicy overrides the default retry behavior.
func (c *Client) SetRetryPolicy(p *RetryPolicy) { c.retry = p }

func msgOptions(threadTS string, msg *types.ChatMessage) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Fallback, false)}
	if len(msg.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(msg.Blocks...))
	}
	if len(msg.Attachments) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(msg.Attachments...))
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	return opts
}

// SendMessage posts an assembled message and returns its timestamp.
func (c *Client) SendMessage(ctx context.Context, channel, threadTS string, msg *types.ChatMessage) (string, error) {
	var ts string
	err := c.retry.Execute(func() error {
		var err error
		_, ts, err = c.api.PostMessageContext(ctx, channel, msgOptions(threadTS, msg)...)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	return ts, nil
}

// UpdateMessage rewrites an existing message in place.
func (c *Client) UpdateMessage(ctx context.Context, channel, ts string, msg *types.ChatMessage) error {
	err := c.retry.Execute(func() error {
		_, _, _, err := c.api.UpdateMessageContext(ctx, channel, ts, msgOptions("", msg)...)
		return err
	})
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// AddReaction attaches an emoji reaction. Reactions are best-effort and
// are not retried; an "already_reacted" response is treated as success.
func (c *Client) AddReaction(ctx context.Context, channel, ts, name string) error {
	err := c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channel, ts))
	if err != nil && err.Error() != "already_reacted" {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// RemoveReaction removes an emoji reaction. A "no_reaction" response is
// treated as success.
func (c *Client) RemoveReaction(ctx context.Context, channel, ts, name string) error {
	err := c.api.RemoveReactionContext(ctx, name, slack.NewRefToMessage(channel, ts))
	if err != nil && err.Error() != "no_reaction" {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

// History fetches the most recent channel messages, oldest first.
func (c *Client) History(ctx context.Context, channel string, limit int) ([]types.Message, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation history: %w", err)
	}

	// the API returns newest first
	out := make([]types.Message, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		role := types.RoleUser
		if m.BotID != "" {
			role = types.RoleAssistant
		}
		out = append(out, types.Message{
			Text: m.Text,
			Role: role,
			At:   parseSlackTS(m.Timestamp),
		})
	}
	return out, nil
}

// UserIdentity resolves a user id to a display name.
func (c *Client) UserIdentity(ctx context.Context, userID string) (string, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("user info: %w", err)
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName, nil
	}
	return user.RealName, nil
}

// parseSlackTS converts a "seconds.fraction" Slack timestamp to time.Time,
// ignoring the fractional part.
func parseSlackTS(ts string) time.Time {
	var sec int64
	if _, err := fmt.Sscanf(ts, "%d.", &sec); err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
