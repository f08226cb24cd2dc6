// Package telegram adapts the Telegram Bot API to the gateway pipeline.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/omegacortex/omega/pkg/gateway"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Config encapsulates the credentials required to authenticate with the
// Telegram Bot API.
type Config struct {
	Token        string
	AllowedUsers []string
	ReplyTarget  string
	MessageLimit int
}

// Channel is the Telegram implementation of channels.Channel. It
// long-polls for updates and forwards each text message into the
// gateway pipeline, and implements channels.ChannelSender/ChannelTyper
// so the gateway can reply and show a typing indicator back through it.
type Channel struct {
	cfg Config
	gw  *gateway.Gateway
	bot *tgbotapi.BotAPI

	stopCtx    context.Context
	stopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New authorizes against the Telegram Bot API and returns an unstarted
// Channel.
func New(cfg Config, gw *gateway.Gateway) (*Channel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				merged, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-ctx.Done():
						mergedCancel()
					case <-merged.Done():
					}
				}()
				return dialer.DialContext(merged, network, addr)
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("telegram: failed to authorize: %w", err)
	}
	slog.Info("telegram: bot authorized", "username", bot.Self.UserName)

	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 4000
	}

	return &Channel{cfg: cfg, gw: gw, bot: bot, stopCtx: ctx, stopCancel: cancel}, nil
}

// ID returns "telegram".
func (c *Channel) ID() string { return "telegram" }

// Start begins the long-polling update loop in a background goroutine.
func (c *Channel) Start(ctx context.Context) error {
	offset := 0
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.stopCtx.Done():
				return
			case <-ctx.Done():
				return
			default:
			}

			req := tgbotapi.NewUpdate(offset)
			req.Timeout = 60

			updates, err := c.bot.GetUpdates(req)
			if err != nil {
				select {
				case <-c.stopCtx.Done():
					return
				default:
					slog.Debug("telegram: failed to get updates", "error", err)
					time.Sleep(3 * time.Second)
					continue
				}
			}

			for _, update := range updates {
				if update.UpdateID < offset {
					continue
				}
				offset = update.UpdateID + 1

				if update.Message == nil || update.Message.Text == "" {
					continue
				}

				senderID := strconv.FormatInt(update.Message.From.ID, 10)
				in := gateway.Incoming{
					Channel:     c.ID(),
					SenderID:    senderID,
					SenderName:  update.Message.From.UserName,
					ReplyTarget: strconv.FormatInt(update.Message.Chat.ID, 10),
					Text:        update.Message.Text,
				}

				go func(in gateway.Incoming) {
					if err := c.gw.Handle(ctx, in); err != nil {
						slog.Error("telegram: gateway handling failed", "error", err)
					}
				}(in)
			}
		}
	}()
	return nil
}

// Stop cancels the long-polling loop and waits for it to exit.
func (c *Channel) Stop() error {
	c.stopCancel()
	if httpClient, ok := c.bot.Client.(*http.Client); ok && httpClient != nil {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
	c.wg.Wait()
	return nil
}

// Send delivers text to a chat, splitting into MessageLimit-sized
// chunks when it would otherwise exceed Telegram's bubble length.
func (c *Channel) Send(ctx context.Context, replyTarget, text string) error {
	chatID, err := strconv.ParseInt(replyTarget, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", replyTarget, err)
	}

	runes := []rune(text)
	if len(runes) <= c.cfg.MessageLimit {
		msg := tgbotapi.NewMessage(chatID, text)
		_, err := c.bot.Send(msg)
		return err
	}

	for i := 0; i < len(runes); i += c.cfg.MessageLimit {
		end := i + c.cfg.MessageLimit
		if end > len(runes) {
			end = len(runes)
		}
		msg := tgbotapi.NewMessage(chatID, string(runes[i:end]))
		if _, err := c.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram: send chunk at %d failed: %w", i, err)
		}
	}
	return nil
}

// StartTyping sends a repeating "typing" chat action every 4 seconds
// (Telegram's indicator expires after ~5s) until the returned stop
// function is called.
func (c *Channel) StartTyping(ctx context.Context, replyTarget string) func() {
	chatID, err := strconv.ParseInt(replyTarget, 10, 64)
	if err != nil {
		return func() {}
	}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		_, _ = c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
			}
		}
	}()
	return func() { close(stopCh) }
}
