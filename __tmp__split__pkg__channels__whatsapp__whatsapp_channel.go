// Package whatsapp adapts whatsmeow's multi-device WhatsApp client to the
// gateway pipeline.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite"

	"github.com/omegacortex/omega/pkg/gateway"
)

// slogWALogger adapts whatsmeow's internal logger interface onto slog,
// the way the rest of the program logs.
type slogWALogger struct{ module string }

func (l slogWALogger) Errorf(msg string, args ...interface{}) {
	slog.Error(fmt.Sprintf(msg, args...), "module", l.module)
}
func (l slogWALogger) Warnf(msg string, args ...interface{}) {
	slog.Warn(fmt.Sprintf(msg, args...), "module", l.module)
}
func (l slogWALogger) Infof(msg string, args ...interface{}) {
	slog.Info(fmt.Sprintf(msg, args...), "module", l.module)
}
func (l slogWALogger) Debugf(msg string, args ...interface{}) {}
func (l slogWALogger) Sub(module string) waLog.Logger          { return slogWALogger{module: module} }

// Config holds the WhatsApp channel's session store location and
// allow-list.
type Config struct {
	DBPath       string
	AllowedUsers []string
}

// Channel is the WhatsApp implementation of channels.Channel, backed by
// a previously paired (via `omega pair`) whatsmeow device store.
type Channel struct {
	cfg    Config
	gw     *gateway.Gateway
	client *whatsmeow.Client

	allowed map[string]bool

	typingMu   sync.Mutex
	typingStop map[string]chan struct{}
}

// New opens the device store at cfg.DBPath and constructs an unstarted
// Channel. The device must already be paired; New returns an error if
// no session is present.
func New(ctx context.Context, cfg Config, gw *gateway.Gateway) (*Channel, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("whatsapp: db_path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("whatsapp: failed to create session directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", "file:"+cfg.DBPath+"?_pragma=foreign_keys(1)", slogWALogger{module: "store"})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: failed to open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: failed to load device: %w", err)
	}

	client := whatsmeow.NewClient(device, slogWALogger{module: "client"})
	if client.Store.ID == nil {
		return nil, fmt.Errorf("whatsapp: not paired; run 'omega pair' first")
	}

	allowed := make(map[string]bool, len(cfg.AllowedUsers))
	for _, u := range cfg.AllowedUsers {
		allowed[u] = true
	}

	return &Channel{
		cfg: cfg, gw: gw, client: client, allowed: allowed,
		typingStop: make(map[string]chan struct{}),
	}, nil
}

// ID returns "whatsapp".
func (c *Channel) ID() string { return "whatsapp" }

// Start connects to WhatsApp and registers the inbound message handler.
func (c *Channel) Start(ctx context.Context) error {
	c.client.AddEventHandler(func(evt interface{}) {
		c.handleEvent(ctx, evt)
	})

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect failed: %w", err)
	}
	slog.Info("whatsapp: connected", "user", c.client.Store.ID.User)

	go func() {
		<-ctx.Done()
		c.stopAllTyping()
		c.client.Disconnect()
	}()
	return nil
}

// Stop disconnects the client.
func (c *Channel) Stop() error {
	c.stopAllTyping()
	c.client.Disconnect()
	return nil
}

func (c *Channel) handleEvent(ctx context.Context, evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected, *events.PushNameSetting:
		if err := c.client.SendPresence(ctx, types.PresenceAvailable); err != nil {
			slog.Warn("whatsapp: failed to send presence", "error", err)
		}
	case *events.Message:
		c.handleMessage(ctx, v)
	}
}

func (c *Channel) handleMessage(ctx context.Context, msg *events.Message) {
	if msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}

	senderID := msg.Info.Sender.User
	if len(c.allowed) > 0 && !c.allowed[senderID] {
		slog.Warn("whatsapp: dropped message from unauthorized sender", "sender", senderID)
		return
	}

	content := extractText(msg)
	if content == "" {
		return
	}
	content = strings.TrimSpace(content)

	_ = c.client.MarkRead(ctx, []types.MessageID{msg.Info.ID}, msg.Info.Timestamp, msg.Info.Chat, msg.Info.Sender)

	in := gateway.Incoming{
		Channel:     c.ID(),
		SenderID:    senderID,
		ReplyTarget: msg.Info.Chat.String(),
		Text:        content,
	}

	go func() {
		if err := c.gw.Handle(ctx, in); err != nil {
			slog.Error("whatsapp: gateway handling failed", "error", err)
		}
	}()
}

func extractText(msg *events.Message) string {
	if msg.Message.Conversation != nil {
		return *msg.Message.Conversation
	}
	if msg.Message.ExtendedTextMessage != nil && msg.Message.ExtendedTextMessage.Text != nil {
		return *msg.Message.ExtendedTextMessage.Text
	}
	return ""
}

// Send delivers text to a chat JID; text longer than 4096 bytes is split
// into chunks of at most 4096 runes.
func (c *Channel) Send(ctx context.Context, replyTarget, text string) error {
	recipient, err := types.ParseJID(replyTarget)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid chat id %q: %w", replyTarget, err)
	}

	c.stopTyping(replyTarget)

	for _, chunk := range splitMessage(text, 4096) {
		chunk := chunk
		_, err := c.client.SendMessage(ctx, recipient, &waProto.Message{Conversation: &chunk})
		if err != nil {
			return fmt.Errorf("whatsapp: send failed: %w", err)
		}
	}
	return nil
}

// StartTyping begins a "composing" presence for replyTarget, refreshing
// every 8 seconds (WhatsApp's composing state lapses quickly) until
// stopped or 5 minutes elapse.
func (c *Channel) StartTyping(ctx context.Context, replyTarget string) func() {
	jid, err := types.ParseJID(replyTarget)
	if err != nil {
		return func() {}
	}

	c.typingMu.Lock()
	if prior, ok := c.typingStop[replyTarget]; ok {
		close(prior)
	}
	stop := make(chan struct{})
	c.typingStop[replyTarget] = stop
	c.typingMu.Unlock()

	go func() {
		_ = c.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()
		for {
			select {
			case <-stop:
				_ = c.client.SendChatPresence(ctx, jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
				return
			case <-timeout.C:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
			}
		}
	}()
	return func() { c.stopTyping(replyTarget) }
}

func (c *Channel) stopTyping(chatID string) {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if stop, ok := c.typingStop[chatID]; ok {
		close(stop)
		delete(c.typingStop, chatID)
	}
}

func (c *Channel) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	for _, stop := range c.typingStop {
		close(stop)
	}
	c.typingStop = make(map[string]chan struct{})
}

func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}


