package whatsapp

import (
	"context"

	"github.com/omegacortex/omega/pkg/channels"
	"github.com/omegacortex/omega/pkg/config"
	"github.com/omegacortex/omega/pkg/gateway"
)

// Factory implements channels.Factory for WhatsApp.
type Factory struct{}

// Create opens the paired device store named by cfg.DBPath and builds
// an unstarted Channel.
func (f *Factory) Create(cfg config.ChannelConfig, gw *gateway.Gateway, system *config.SystemConfig) (channels.Channel, error) {
	return New(context.Background(), Config{
		DBPath:       cfg.DBPath,
		AllowedUsers: cfg.AllowedUsers,
	}, gw)
}

func init() {
	channels.Register("whatsapp", &Factory{})
}


