package telegram

import (
	"fmt"

	"github.com/omegacortex/omega/pkg/channels"
	"github.com/omegacortex/omega/pkg/config"
	"github.com/omegacortex/omega/pkg/gateway"
)

// Factory implements channels.Factory for Telegram.
type Factory struct{}

// Create parses the telegram channel config and builds an unstarted
// Channel.
func (f *Factory) Create(cfg config.ChannelConfig, gw *gateway.Gateway, system *config.SystemConfig) (channels.Channel, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram: missing bot_token")
	}
	return New(Config{
		Token:        cfg.BotToken,
		AllowedUsers: cfg.AllowedUsers,
		ReplyTarget:  cfg.ReplyTarget,
		MessageLimit: 4000,
	}, gw)
}

func init() {
	channels.Register("telegram", &Factory{})
}


