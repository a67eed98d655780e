package slackbridge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/user/slackclaw/internal/gateway"
	"github.com/user/slackclaw/internal/store"
	"github.com/user/slackclaw/internal/types"
)

const sourceSlack = "slack"

// socketRunner is the slice of the Socket Mode client the adapter drives.
type socketRunner interface {
	Ack(req socketmode.Request, payload ...interface{})
	RunContext(ctx context.Context) error
}

// Adapter bridges Slack Socket Mode to the gateway: it normalizes inbound
// events, filters noise, and enqueues runs on per-thread lanes.
type Adapter struct {
	socket    socketRunner
	events    chan socketmode.Event
	chat      types.ChatService
	gateway   *gateway.Gateway
	threads   *store.ThreadStore
	botUserID string
}

// New creates a Slack adapter. botUserID is the bot's own user id, used to
// drop self-originated events and to detect mentions.
func New(sm *socketmode.Client, chat types.ChatService, gw *gateway.Gateway, threads *store.ThreadStore, botUserID string) *Adapter {
	return &Adapter{
		socket:    sm,
		events:    sm.Events,
		chat:      chat,
		gateway:   gw,
		threads:   threads,
		botUserID: botUserID,
	}
}

// Start runs the Socket Mode event loop until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	go a.consume(ctx)
	return a.socket.RunContext(ctx)
}

func (a *Adapter) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.events:
			if !ok {
				return
			}
			a.dispatch(ctx, evt)
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		slog.Info("slack socket connected")

	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleEventsAPI(ctx, apiEvent)

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleInteraction(ctx, &callback)
	}
}

func (a *Adapter) handleEventsAPI(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	switch inner := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.handleInbound(ctx, &types.InboundEvent{
			Source:   sourceSlack,
			ThreadID: types.ThreadIDFor(inner.Channel, inner.ThreadTimeStamp, inner.User),
			Channel:  inner.Channel,
			User:     inner.User,
			Text:     stripMention(inner.Text, a.botUserID),
			ThreadTS: rootTS(inner.ThreadTimeStamp, inner.TimeStamp),
			EventTS:  inner.TimeStamp,
		})

	case *slackevents.MessageEvent:
		event := a.eventFromMessage(inner)
		if event == nil {
			return
		}
		a.handleInbound(ctx, event)
	}
}

// eventFromMessage normalizes a message event, or returns nil when the
// event should be ignored (self, bots, edits, non-DM channel chatter).
func (a *Adapter) eventFromMessage(msg *slackevents.MessageEvent) *types.InboundEvent {
	if msg.BotID != "" || msg.User == a.botUserID || msg.User == "" {
		return nil
	}
	if msg.SubType != "" {
		// edits, joins, deletions and other subtypes carry no new request
		return nil
	}
	// direct messages always engage; channel messages only via app_mention
	if msg.ChannelType != "im" {
		return nil
	}
	return &types.InboundEvent{
		Source:   sourceSlack,
		ThreadID: types.ThreadIDFor(msg.Channel, msg.ThreadTimeStamp, msg.User),
		Channel:  msg.Channel,
		User:     msg.User,
		Text:     msg.Text,
		ThreadTS: rootTS(msg.ThreadTimeStamp, msg.TimeStamp),
		EventTS:  msg.TimeStamp,
	}
}

// historySeedLimit bounds how many prior channel messages seed a fresh
// thread.
const historySeedLimit = 10

func (a *Adapter) handleInbound(ctx context.Context, event *types.InboundEvent) {
	if event.Text == "" && !event.IsButtonClick {
		return
	}

	a.primeThread(ctx, event)

	// receipt acknowledgement; swapped for a checkmark when the run ends
	channel, eventTS := event.Channel, event.EventTS
	if err := a.chat.AddReaction(ctx, channel, eventTS, "eyes"); err != nil {
		slog.Debug("receipt reaction failed", "error", err)
	}

	err := a.gateway.HandleInbound(ctx, event, gateway.WithOnComplete(func(outcome string) {
		if err := a.chat.RemoveReaction(ctx, channel, eventTS, "eyes"); err != nil {
			slog.Debug("remove receipt reaction failed", "error", err)
		}
		if outcome == "aborted" {
			if err := a.chat.AddReaction(ctx, channel, eventTS, "warning"); err != nil {
				slog.Debug("outcome reaction failed", "error", err)
			}
		}
	}))
	if err != nil {
		slog.Error("enqueue inbound event failed", "error", err, "thread_id", string(event.ThreadID))
	}
}

// primeThread enriches a thread before its run is enqueued: the
// requester's display name is resolved once per thread, and a thread with
// no recorded history yet is seeded with the channel's recent messages so
// the first model call sees the surrounding conversation. Both lookups
// are best-effort; failures are logged and the run proceeds without them.
func (a *Adapter) primeThread(ctx context.Context, event *types.InboundEvent) {
	thread := a.threads.Get(event.ThreadID)

	if _, ok := thread.Meta("user_name"); !ok {
		name, err := a.chat.UserIdentity(ctx, event.User)
		switch {
		case err != nil:
			slog.Debug("user identity lookup failed", "user", event.User, "error", err)
		case name != "":
			thread.SetMeta("user_name", name)
		}
	}

	if len(thread.Messages()) > 0 {
		return
	}
	history, err := a.chat.History(ctx, event.Channel, historySeedLimit)
	if err != nil {
		slog.Debug("history seed failed", "channel", event.Channel, "error", err)
		return
	}
	// the triggering message is already in the history; the run records
	// it itself, so drop it here
	if n := len(history); n > 0 && history[n-1].Text == event.Text {
		history = history[:n-1]
	}
	parentMarked := false
	for _, msg := range history {
		if msg.Text == "" {
			continue
		}
		if !parentMarked {
			msg.IsParent = true
			parentMarked = true
		}
		thread.AppendMessage(msg)
	}
}

// rootTS picks the thread root for outbound replies: the existing thread
// root if the message is already threaded, otherwise the message itself so
// the reply opens a thread.
func rootTS(threadTS, ts string) string {
	if threadTS != "" {
		return threadTS
	}
	return ts
}

// stripMention removes the bot's own <@Uxxx> mention token from the text.
func stripMention(text, botUserID string) string {
	if botUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botUserID+">", ""))
}
