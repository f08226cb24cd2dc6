package channels

import (
	"context"
	"fmt"
)

// ChannelSender is implemented by a Channel that can deliver a reply to
// one of its own reply targets.
type ChannelSender interface {
	Send(ctx context.Context, replyTarget, text string) error
}

// ChannelTyper is implemented by a Channel that can show a best-effort
// typing indicator while a reply is being prepared.
type ChannelTyper interface {
	StartTyping(ctx context.Context, replyTarget string) (stop func())
}

// Hub fans gateway.Sender/gateway.Typing calls out to whichever running
// Channel owns the target channel id, so the gateway can stay ignorant
// of which concrete transport an Incoming message came from.
type Hub struct {
	byID map[string]Channel
}

// NewHub indexes channels by their ID.
func NewHub(chs []Channel) *Hub {
	h := &Hub{byID: make(map[string]Channel, len(chs))}
	for _, c := range chs {
		h.byID[c.ID()] = c
	}
	return h
}

// Send implements gateway.Sender.
func (h *Hub) Send(ctx context.Context, channel, replyTarget, text string) error {
	ch, ok := h.byID[channel]
	if !ok {
		return fmt.Errorf("channels: no running channel %q", channel)
	}
	sender, ok := ch.(ChannelSender)
	if !ok {
		return fmt.Errorf("channels: channel %q cannot send", channel)
	}
	return sender.Send(ctx, replyTarget, text)
}

// StartTyping implements gateway.Typing.
func (h *Hub) StartTyping(ctx context.Context, channel, replyTarget string) func() {
	ch, ok := h.byID[channel]
	if !ok {
		return func() {}
	}
	typer, ok := ch.(ChannelTyper)
	if !ok {
		return func() {}
	}
	return typer.StartTyping(ctx, replyTarget)
}
