package slackbridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/user/slackclaw/internal/store"
	"github.com/user/slackclaw/internal/types"
)

// handleInteraction processes a block_actions callback: acknowledge the
// click by rewriting the clicked message in place, then re-enter the
// orchestration loop with a synthetic button-click event.
func (a *Adapter) handleInteraction(ctx context.Context, cb *slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	action := cb.ActionCallback.BlockActions[0]

	channel := cb.Channel.ID
	messageTS := cb.Message.Timestamp
	threadTS := rootTS(cb.Message.ThreadTimestamp, messageTS)
	user := cb.User.ID

	threadID := types.ThreadIDFor(channel, threadTS, user)
	thread := a.threads.Get(threadID)

	label := clickLabel(thread, action)

	// a repeated click on the same button is acknowledged silently, not
	// re-processed
	if prev, handled := thread.ClickResult(messageTS, action.Value); handled {
		slog.Info("duplicate button click ignored",
			"thread_id", string(threadID), "value", action.Value, "previous", prev)
		return
	}
	thread.MarkClickHandled(messageTS, action.Value, label)

	acknowledged := a.rewriteClickedMessage(ctx, channel, messageTS, &cb.Message, action.BlockID, label)
	thread.SetMeta("click_acknowledged", acknowledged)
	thread.SetMeta("button_selection", label)

	event := &types.InboundEvent{
		Source:        sourceSlack,
		ThreadID:      threadID,
		Channel:       channel,
		User:          user,
		Text:          fmt.Sprintf("[clicked button: %s]", label),
		ThreadTS:      threadTS,
		EventTS:       messageTS,
		IsButtonClick: true,
		ButtonValue:   action.Value,
		ButtonLabel:   label,
	}
	if err := a.gateway.HandleInbound(ctx, event); err != nil {
		slog.Error("enqueue button click failed", "error", err, "thread_id", string(threadID))
	}
}

// clickLabel derives the human-readable label for a clicked button: the
// button's own text, or the registered group's label for the value, or the
// raw value as a last resort.
func clickLabel(thread *store.Thread, action *slack.BlockAction) string {
	if action.Text.Text != "" {
		return action.Text.Text
	}
	if group, ok := thread.ResolveGroup(action.ActionID); ok {
		for _, spec := range group.Buttons {
			if spec.Value == action.Value {
				return spec.Label
			}
		}
	}
	return action.Value
}

// rewriteClickedMessage replaces the clicked actions block with a
// confirmation line so the buttons cannot be clicked twice. The block is
// looked up by its block id in the message's attachments first, then at
// top level; when no actions block is found the confirmation is appended
// instead. Returns whether the platform accepted the rewrite.
func (a *Adapter) rewriteClickedMessage(ctx context.Context, channel, ts string, original *slack.Message, blockID, label string) bool {
	confirmation := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, ":white_check_mark: You chose *"+label+"*", false, false))

	msg := &types.ChatMessage{Fallback: original.Text}
	if msg.Fallback == "" {
		msg.Fallback = "You chose " + label
	}

	replaced := false
	for _, att := range original.Attachments {
		out := att
		out.Blocks.BlockSet = nil
		for _, b := range att.Blocks.BlockSet {
			if !replaced && isClickedActions(b, blockID) {
				out.Blocks.BlockSet = append(out.Blocks.BlockSet, confirmation)
				replaced = true
				continue
			}
			out.Blocks.BlockSet = append(out.Blocks.BlockSet, b)
		}
		msg.Attachments = append(msg.Attachments, out)
	}
	for _, b := range original.Blocks.BlockSet {
		if !replaced && isClickedActions(b, blockID) {
			msg.Blocks = append(msg.Blocks, confirmation)
			replaced = true
			continue
		}
		msg.Blocks = append(msg.Blocks, b)
	}
	if !replaced {
		msg.Blocks = append(msg.Blocks, confirmation)
	}

	if err := a.chat.UpdateMessage(ctx, channel, ts, msg); err != nil {
		slog.Warn("click acknowledgement rewrite failed", "error", err, "ts", ts)
		return false
	}
	return true
}

// isClickedActions reports whether b is the actions block the click came
// from. An empty blockID matches any actions block.
func isClickedActions(b slack.Block, blockID string) bool {
	actions, ok := b.(*slack.ActionBlock)
	if !ok {
		return false
	}
	return blockID == "" || actions.BlockID == blockID
}
